// BuffaLogs - Login Anomaly Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/buffalogs

// Package vpn answers whether a login came from an anonymizing network.
//
// # Overview
//
// The anonymous IP detector needs a fast membership test over a set of
// addresses and networks that operators keep up to date. The package has
// three parts:
//
//   - Lookup: exact addresses in a hash map plus CIDR prefixes, most
//     specific prefix first
//   - Importer: reads gluetun's servers.json (24+ VPN providers) and plain
//     newline-separated IP/CIDR lists
//   - Service: owns the active Lookup, builds it from configuration and
//     swaps in refreshed data without blocking readers
//
// # Data Sources
//
// Networks listed in the application config are always loaded. A local
// data file and a remote source URL are optional; the gluetun project
// publishes a suitable file at:
// https://github.com/qdm12/gluetun/blob/master/internal/storage/servers.json
//
// The gluetun format is:
//
//	{
//	    "mullvad": {
//	        "version": 1,
//	        "timestamp": 1721997873,
//	        "servers": [
//	            {"country": "Austria", "city": "Vienna", "hostname": "at-vie-wg-001", "ips": ["203.0.113.1"]}
//	        ]
//	    }
//	}
//
// Files that are not JSON objects are read as one address or prefix per
// line; blank lines and lines starting with "#" are skipped.
//
// # Usage
//
//	svc, err := vpn.NewService(cfg.Anonymizer)
//	if err != nil {
//	    return err
//	}
//	if err := svc.Load(ctx); err != nil {
//	    return err
//	}
//	if svc.Contains("198.51.100.1") {
//	    // anonymous login
//	}
package vpn
