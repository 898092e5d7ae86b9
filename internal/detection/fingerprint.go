// BuffaLogs - Login Anomaly Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/buffalogs

package detection

import (
	"strings"

	"github.com/mssola/useragent"
)

const (
	unknownOS      = "unknownos"
	unknownOSMajor = "unknownosmajor"
	unknownDevice  = "unknowndevice"
	unknownBrowser = "unknownbrowser"

	// UnknownFingerprint is returned for empty and unparseable user agents.
	UnknownFingerprint = unknownOS + "-" + unknownOSMajor + "-" + unknownDevice + "-" + unknownBrowser

	DeviceDesktop = "desktop"
	DeviceTablet  = "tablet"
	DeviceMobile  = "mobile"
)

// osAliases maps useragent OS names to the family names stored in existing
// fingerprints. iPad agents ("CPU OS 16_0") parse as "OS".
var osAliases = map[string]string{
	"OS":        "iOS",
	"iPhone OS": "iOS",
	"CPU OS":    "iOS",
}

// deviceOverrides is checked in order against the lowercased user agent.
var deviceOverrides = []struct {
	device  string
	needles []string
}{
	{DeviceTablet, []string{"tablet", "ipad"}},
	{DeviceMobile, []string{"mobile"}},
	{DeviceDesktop, []string{"x11", "win64", "wow64", "x86_64", "macintosh"}},
}

// Fingerprint reduces a user agent to "<os>-<osmajor>-<device>-<browser>",
// lowercased with spaces removed, e.g. "windows-10-desktop-chrome".
func Fingerprint(userAgent string) string {
	userAgent = strings.TrimSpace(userAgent)
	if userAgent == "" {
		return UnknownFingerprint
	}

	ua := useragent.New(userAgent)
	browser, _ := ua.Browser()
	if ua.Bot() || (ua.Mozilla() == "" && !strings.HasPrefix(browser, "Opera")) {
		return UnknownFingerprint
	}

	info := ua.OSInfo()
	name := info.Name
	if alias, ok := osAliases[name]; ok {
		name = alias
	}
	os := orUnknown(name, unknownOS)
	major := orUnknown(osMajor(info.Version), unknownOSMajor)
	device := orUnknown(ua.Model(), unknownDevice)
	lower := strings.ToLower(userAgent)
	for _, o := range deviceOverrides {
		if containsAny(lower, o.needles) {
			device = o.device
			break
		}
	}
	return os + "-" + major + "-" + device + "-" + orUnknown(browser, unknownBrowser)
}

// FingerprintDevice returns the device part of a fingerprint.
func FingerprintDevice(fingerprint string) string {
	parts := strings.Split(fingerprint, "-")
	if len(parts) != 4 {
		return unknownDevice
	}
	return parts[2]
}

// osMajor keeps the leading component of versions such as "10_15_7" or "10.0".
func osMajor(version string) string {
	if i := strings.IndexAny(version, "._"); i >= 0 {
		version = version[:i]
	}
	return version
}

func orUnknown(v, fallback string) string {
	v = strings.ToLower(strings.ReplaceAll(strings.TrimSpace(v), " ", ""))
	// "-" separates the fingerprint fields
	v = strings.ReplaceAll(v, "-", "")
	if v == "" {
		return fallback
	}
	return v
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
