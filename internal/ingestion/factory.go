// BuffaLogs - Login Anomaly Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/buffalogs

package ingestion

import (
	"context"
	"fmt"

	"github.com/tomtom215/buffalogs/internal/config"
)

// New builds the adapter selected by cfg. Every failure is a
// *config.ConfigError.
func New(ctx context.Context, cfg *config.IngestionConfig) (Source, error) {
	if cfg == nil {
		return nil, &config.ConfigError{Source: config.IngestionFile, Reason: "no ingestion configuration"}
	}
	var (
		src Source
		err error
	)
	switch cfg.Active {
	case config.SourceElasticsearch:
		src, err = NewElasticsearch(cfg.Source)
	case config.SourceOpenSearch:
		src, err = NewOpenSearch(cfg.Source)
	case config.SourceSplunk:
		src, err = NewSplunk(cfg.Source)
	case config.SourceCloudTrail:
		src, err = NewCloudTrail(ctx, cfg.Source)
	default:
		return nil, &config.ConfigError{
			Source: config.IngestionFile,
			Reason: fmt.Sprintf("unsupported ingestion source %q", cfg.Active),
		}
	}
	if err != nil {
		return nil, &config.ConfigError{
			Source: config.IngestionFile + ":" + cfg.Active,
			Reason: "cannot build source",
			Err:    err,
		}
	}
	return src, nil
}

// FromDir loads dir/ingestion.json and builds its active source.
func FromDir(ctx context.Context, dir string) (Source, error) {
	cfg, err := config.LoadIngestion(dir)
	if err != nil {
		return nil, err
	}
	return New(ctx, cfg)
}
