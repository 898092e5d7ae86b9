// BuffaLogs - Login Anomaly Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/buffalogs

// Package services adapts BuffaLogs components to suture.Service.
//
// TaskService turns any periodic task (the detection window, the notifier,
// cleanup, the alert summary, the anonymizer refresh) into a ticker loop.
// HTTPServerService converts http.Server's ListenAndServe/Shutdown pair into
// a context-driven Serve.
package services
