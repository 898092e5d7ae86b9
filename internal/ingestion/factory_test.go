// BuffaLogs - Login Anomaly Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/buffalogs

package ingestion

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/tomtom215/buffalogs/internal/config"
)

func TestNew(t *testing.T) {
	t.Parallel()
	tests := []struct {
		active string
		source config.SourceConfig
		want   string
	}{
		{config.SourceElasticsearch, config.SourceConfig{URL: "http://localhost:9200"}, "elasticsearch"},
		{config.SourceOpenSearch, config.SourceConfig{URL: "https://localhost:9200"}, "opensearch"},
		{config.SourceSplunk, config.SourceConfig{URL: "https://localhost:8089", Token: "t"}, "splunk"},
		{config.SourceCloudTrail, config.SourceConfig{
			BucketName: "trail", Region: "eu-west-1", Username: "AKIDEXAMPLE", Password: "secret",
		}, "cloudtrail"},
	}
	for _, tt := range tests {
		t.Run(tt.active, func(t *testing.T) {
			t.Parallel()
			src, err := New(context.Background(), &config.IngestionConfig{Active: tt.active, Source: tt.source})
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			if src.Name() != tt.want {
				t.Errorf("Name = %q, want %q", src.Name(), tt.want)
			}
		})
	}
}

func TestNew_Errors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		cfg  *config.IngestionConfig
	}{
		{"nil", nil},
		{"unsupported", &config.IngestionConfig{Active: "graylog"}},
		{"bad url", &config.IngestionConfig{Active: config.SourceSplunk, Source: config.SourceConfig{URL: "::"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := New(context.Background(), tt.cfg)
			var ce *config.ConfigError
			if !errors.As(err, &ce) {
				t.Fatalf("err = %v, want *config.ConfigError", err)
			}
		})
	}
}

func TestFromDir(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	body := `{"active_ingestion": "opensearch", "opensearch": {"url": "http://localhost:9200", "indexes": "cloud-*"}}`
	if err := os.WriteFile(filepath.Join(dir, config.IngestionFile), []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	src, err := FromDir(context.Background(), dir)
	if err != nil {
		t.Fatalf("FromDir: %v", err)
	}
	if src.Name() != config.SourceOpenSearch {
		t.Errorf("Name = %q", src.Name())
	}

	if _, err := FromDir(context.Background(), t.TempDir()); err == nil {
		t.Error("expected error for a directory without ingestion.json")
	}
}
