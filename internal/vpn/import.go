// BuffaLogs - Login Anomaly Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/buffalogs

package vpn

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/buffalogs/internal/logging"
)

// Importer loads anonymizer data into a Lookup.
type Importer struct {
	lookup *Lookup
	source string
}

// NewImporter returns an Importer that tags entries with source.
func NewImporter(lookup *Lookup, source string) *Importer {
	return &Importer{lookup: lookup, source: source}
}

// ImportFile reads a gluetun servers.json or a plain list from disk.
func (i *Importer) ImportFile(filename string) (*ImportResult, error) {
	data, err := os.ReadFile(filename) //nolint:gosec // path comes from configuration
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", filename, err)
	}
	return i.ImportBytes(data)
}

// ImportBytes detects the format: a JSON object is read as gluetun data,
// anything else as a plain list.
func (i *Importer) ImportBytes(data []byte) (*ImportResult, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		return i.importGluetun(trimmed)
	}
	return i.importList(trimmed)
}

func (i *Importer) importGluetun(data []byte) (*ImportResult, error) {
	start := time.Now()
	result := &ImportResult{}

	// The root "version" field is a number, providers are objects.
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}
	names := make([]string, 0, len(raw))
	for name := range raw {
		if name != "version" {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	for _, name := range names {
		var provider GluetunProvider
		if err := json.Unmarshal(raw[name], &provider); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("provider %s: %v", name, err))
			continue
		}
		for _, srv := range provider.Servers {
			added := i.lookup.AddServer(name, i.source, srv)
			if added < len(srv.IPs) {
				result.Errors = append(result.Errors,
					fmt.Sprintf("server %s: %d invalid addresses", srv.Hostname, len(srv.IPs)-added))
			}
			result.Servers++
			result.Entries += added
		}
		result.Providers++
	}

	result.Duration = time.Since(start)
	return result, nil
}

func (i *Importer) importList(data []byte) (*ImportResult, error) {
	start := time.Now()
	result := &ImportResult{}

	sc := bufio.NewScanner(bytes.NewReader(data))
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		// Allow trailing comments: "198.51.100.0/24  # provider".
		if idx := strings.IndexAny(text, " \t#"); idx > 0 {
			text = text[:idx]
		}
		if err := i.lookup.Add(text, providerLocal, i.source); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("line %d: %v", line, err))
			continue
		}
		result.Entries++
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read list: %w", err)
	}
	if result.Entries > 0 {
		result.Providers = 1
	}

	result.Duration = time.Since(start)
	if len(result.Errors) > 0 {
		logging.Warn().Int("errors", len(result.Errors)).Str("source", i.source).
			Msg("Skipped invalid anonymizer entries")
	}
	return result, nil
}
