// BuffaLogs - Login Anomaly Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/buffalogs

package alerting

import (
	"context"
	"net/url"
	"time"

	"github.com/tomtom215/buffalogs/internal/config"
)

const pushoverAPI = "https://api.pushover.net/1/messages.json"

// pushoverMaxMessage is the Pushover message limit.
const pushoverMaxMessage = 1024

type pushoverConfig struct {
	APIKey  string `koanf:"api_key" validate:"required"`
	UserKey string `koanf:"user_key" validate:"required"`
	APIURL  string `koanf:"api_url" validate:"omitempty,url"`
	Timeout int    `koanf:"timeout" validate:"gte=0"`
}

// PushoverNotifier posts form-encoded messages to the Pushover API.
type PushoverNotifier struct {
	poster
	cfg pushoverConfig
}

func newPushover(cfg pushoverConfig) *PushoverNotifier {
	if cfg.APIURL == "" {
		cfg.APIURL = pushoverAPI
	}
	return &PushoverNotifier{poster: newPoster(nil, time.Duration(cfg.Timeout)*time.Second), cfg: cfg}
}

func (n *PushoverNotifier) Name() string { return config.AlerterPushover }

func (n *PushoverNotifier) Send(ctx context.Context, msg Message) Result {
	return n.postForm(ctx, n.cfg.APIURL, url.Values{
		"token":   {n.cfg.APIKey},
		"user":    {n.cfg.UserKey},
		"title":   {msg.Title},
		"message": {truncate(msg.Body, pushoverMaxMessage)},
	})
}
