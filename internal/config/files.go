// BuffaLogs - Login Anomaly Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/buffalogs

package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	kjson "github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/tomtom215/buffalogs/internal/validation"
)

// Config file names inside the config directory.
const (
	IngestionFile = "ingestion.json"
	AlertingFile  = "alerting.json"
)

// jsonDelim separates koanf paths for the JSON files. It cannot be "."
// because custom_mapping keys are themselves dotted paths.
const jsonDelim = "/"

// jsonFile is a loaded JSON configuration file.
type jsonFile struct {
	name string
	k    *koanf.Koanf
}

func loadJSONFile(dir, name string) (*jsonFile, error) {
	path := filepath.Join(dir, name)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, configErrorf(name, err, "file not found in %s", dir)
		}
		return nil, configErrorf(name, err, "cannot stat file")
	}
	k := koanf.New(jsonDelim)
	if err := k.Load(file.Provider(path), kjson.Parser()); err != nil {
		return nil, configErrorf(name, err, "cannot parse JSON")
	}
	return &jsonFile{name: name, k: k}, nil
}

// hasSection reports whether section exists and holds at least one key.
func (f *jsonFile) hasSection(section string) bool {
	if !f.k.Exists(section) {
		return false
	}
	return len(f.k.Cut(section).Keys()) > 0
}

// decodeSection unmarshals section into out and validates its tags.
// out should already hold the defaults.
func (f *jsonFile) decodeSection(section string, out any) error {
	source := f.name + ":" + section
	if err := f.k.Unmarshal(section, out); err != nil {
		return configErrorf(source, err, "cannot decode section")
	}
	if err := validation.ValidateStruct(out); err != nil {
		return configErrorf(source, err, "invalid section")
	}
	return nil
}

// marshal re-serializes the loaded file.
func (f *jsonFile) marshal() ([]byte, error) {
	return f.k.Marshal(kjson.Parser())
}
