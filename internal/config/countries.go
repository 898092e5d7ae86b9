// BuffaLogs - Login Anomaly Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/buffalogs

package config

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/goccy/go-json"
)

//go:embed data/countries.json
var countriesJSON []byte

// Countries is the canonical country set, keyed by ISO 3166 alpha-2 code.
type Countries struct {
	byCode map[string]string
	byName map[string]string // lowercased name -> canonical name
}

var (
	countries     *Countries
	countriesOnce sync.Once
	countriesErr  error
)

// BundledCountries returns the embedded country list.
func BundledCountries() (*Countries, error) {
	countriesOnce.Do(func() {
		countries, countriesErr = ParseCountries(countriesJSON)
	})
	return countries, countriesErr
}

// ParseCountries parses a {"IT": "Italy", ...} document.
func ParseCountries(data []byte) (*Countries, error) {
	var raw map[string]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("invalid countries list: %w", err)
	}
	c := &Countries{
		byCode: make(map[string]string, len(raw)),
		byName: make(map[string]string, len(raw)),
	}
	for code, name := range raw {
		c.byCode[strings.ToUpper(code)] = name
		c.byName[strings.ToLower(name)] = name
	}
	return c, nil
}

// Canonical resolves a country name (any case) or alpha-2 code to the
// canonical name.
func (c *Countries) Canonical(v string) (string, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return "", false
	}
	if name, ok := c.byName[strings.ToLower(v)]; ok {
		return name, true
	}
	if len(v) == 2 {
		if name, ok := c.byCode[strings.ToUpper(v)]; ok {
			return name, true
		}
	}
	return "", false
}

// Names returns all canonical names, sorted.
func (c *Countries) Names() []string {
	out := make([]string, 0, len(c.byName))
	for _, n := range c.byName {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// CleanCountries maps every entry to its canonical name and returns the
// entries that could not be resolved separately. Duplicates are dropped.
func (c *Countries) CleanCountries(in []string) (clean, invalid []string) {
	seen := make(map[string]struct{}, len(in))
	for _, v := range in {
		name, ok := c.Canonical(v)
		if !ok {
			invalid = append(invalid, v)
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		clean = append(clean, name)
	}
	return clean, invalid
}
