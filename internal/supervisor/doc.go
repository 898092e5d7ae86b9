// BuffaLogs - Login Anomaly Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/buffalogs

/*
Package supervisor runs the long-lived part of BuffaLogs (the serve command)
under a suture v4 supervisor tree.

Every periodic task is a service of the tasks layer: process_logs,
notify_alerts, clean_models_periodically, the scheduled alert summary and the
anonymizer list refresh. The metrics and health endpoint lives in the ops
layer. See internal/supervisor/services for the service wrappers.

# Failure Handling

A task run that returns an error is logged and the service keeps ticking;
only a panic or a service returning makes suture restart it. Restarts follow
the usual decay: FailureThreshold failures within roughly FailureDecay
seconds put the layer into a FailureBackoff pause.

# Shutdown

Cancelling the context passed to Serve stops every service. A running task
sees its context cancelled; anything still running after ShutdownTimeout is
listed by UnstoppedServiceReport.

# Logging

Supervisor events go through sutureslog into the zerolog bridge of
internal/logging:

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
*/
package supervisor
