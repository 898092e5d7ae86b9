// BuffaLogs - Login Anomaly Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/buffalogs

package config

import (
	"fmt"
	"slices"
	"strings"
)

// Supported ingestion sources.
const (
	SourceElasticsearch = "elasticsearch"
	SourceOpenSearch    = "opensearch"
	SourceSplunk        = "splunk"
	SourceCloudTrail    = "cloudtrail"
)

// SupportedIngestionSources lists the values accepted for active_ingestion.
var SupportedIngestionSources = []string{
	SourceElasticsearch,
	SourceOpenSearch,
	SourceSplunk,
	SourceCloudTrail,
}

// SourceConfig is one section of ingestion.json. Fields not used by the
// selected source are ignored.
type SourceConfig struct {
	URL                string            `koanf:"url"`
	Username           string            `koanf:"username"`
	Password           string            `koanf:"password"`
	APIKey             string            `koanf:"api_key"`
	Token              string            `koanf:"token"`
	Timeout            int               `koanf:"timeout" validate:"gte=0"`
	Indexes            []string          `koanf:"indexes"`
	BucketSize         int               `koanf:"bucket_size" validate:"gte=0"`
	InsecureSkipVerify bool              `koanf:"insecure_skip_verify"`
	CustomMapping      map[string]string `koanf:"custom_mapping"`

	// CloudTrail
	BucketName string `koanf:"bucket_name"`
	Prefix     string `koanf:"prefix"`
	Region     string `koanf:"region"`

	// Mapping is CustomMapping compiled at load time.
	Mapping Mapping `koanf:"-"`
}

type httpSourceRules struct {
	URL string `koanf:"url" validate:"required,url"`
}

type cloudTrailRules struct {
	BucketName string `koanf:"bucket_name" validate:"required"`
}

// IngestionConfig is the parsed ingestion.json.
type IngestionConfig struct {
	Active string
	Source SourceConfig

	file *jsonFile
}

func defaultSourceConfig() SourceConfig {
	return SourceConfig{
		Timeout:    90,
		BucketSize: 10000,
	}
}

// LoadIngestion reads dir/ingestion.json, checks active_ingestion against
// SupportedIngestionSources and decodes the matching section.
func LoadIngestion(dir string) (*IngestionConfig, error) {
	f, err := loadJSONFile(dir, IngestionFile)
	if err != nil {
		return nil, err
	}

	active := strings.TrimSpace(f.k.String("active_ingestion"))
	if active == "" {
		return nil, configErrorf(IngestionFile, nil, "active_ingestion is not set")
	}
	if !slices.Contains(SupportedIngestionSources, active) {
		return nil, configErrorf(IngestionFile, nil, "unsupported ingestion source %q (supported: %s)",
			active, strings.Join(SupportedIngestionSources, ", "))
	}
	if !f.hasSection(active) {
		return nil, configErrorf(IngestionFile, nil, "section %q is missing or empty", active)
	}

	src := defaultSourceConfig()
	if err := f.decodeSection(active, &src); err != nil {
		return nil, err
	}
	if active == SourceCloudTrail {
		if err := f.decodeSection(active, &cloudTrailRules{}); err != nil {
			return nil, err
		}
	} else {
		if err := f.decodeSection(active, &httpSourceRules{}); err != nil {
			return nil, err
		}
	}

	src.Indexes = splitList(src.Indexes)
	src.Mapping, err = CompileMapping(src.CustomMapping)
	if err != nil {
		return nil, configErrorf(IngestionFile+":"+active, err, "invalid custom_mapping")
	}

	return &IngestionConfig{Active: active, Source: src, file: f}, nil
}

// Marshal re-serializes the loaded file as JSON.
func (c *IngestionConfig) Marshal() ([]byte, error) {
	if c.file == nil {
		return nil, fmt.Errorf("ingestion config was not loaded from a file")
	}
	return c.file.marshal()
}

// splitList flattens comma-separated entries, so both
// "indexes": "a,b" and "indexes": ["a", "b"] are accepted.
func splitList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}
