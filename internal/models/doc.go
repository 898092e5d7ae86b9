// BuffaLogs - Login Anomaly Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/buffalogs

/*
Package models defines the BuffaLogs domain types shared by the store,
the ingestion adapters, the detectors, the pipeline and the notifiers.

Entities:

  - User: one row per observed username, carrying the current risk band.
  - Login: an accepted authentication event, append-only.
  - Alert: produced by a detector, with per-channel delivery state.
  - Config: the single process-wide detection configuration record.
  - TaskSettings: the last window processed by a task in a given execution mode.

LoginEvent is the canonical shape every ingestion source normalizes into.
*/
package models
