// BuffaLogs - Login Anomaly Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/buffalogs

package alerting

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/tomtom215/buffalogs/internal/config"
	"github.com/tomtom215/buffalogs/internal/models"
)

// Default claims of signed webhooks.
const (
	DefaultWebhookIssuer     = "buffalogs"
	DefaultWebhookAudience   = "buffalogs-webhook"
	DefaultWebhookExpiration = 300 // seconds
	webhookSubject           = "Alert Notification"
)

type httpRequestConfig struct {
	EndpointURL string            `koanf:"endpoint_url" validate:"required,url"`
	Headers     map[string]string `koanf:"headers"`
	Timeout     int               `koanf:"timeout" validate:"gte=0"`

	// TokenVariableName names an environment variable holding a bearer token.
	TokenVariableName string `koanf:"token_variable_name"`

	// LoginData selects login_raw_data keys copied into the payload.
	LoginData []string `koanf:"login_data" validate:"dive,oneof=index lat lon country timestamp ip agent"`
}

type webhooksConfig struct {
	httpRequestConfig `koanf:",squash"`

	SecretKeyVariableName  string `koanf:"secret_key_variable_name" validate:"required"`
	IssuerVariableName     string `koanf:"issuer_variable_name"`
	Audience               string `koanf:"audience"`
	TokenExpirationSeconds int    `koanf:"token_expiration_seconds" validate:"gt=0"`
}

// alertRecord is the JSON body posted for one alert.
type alertRecord struct {
	User        string         `json:"user"`
	AlertName   string         `json:"alert_name"`
	Description string         `json:"description"`
	Created     time.Time      `json:"created"`
	IsVIP       bool           `json:"is_vip"`
	Login       map[string]any `json:"login,omitempty"`
}

// summaryRecord is the JSON body posted for a summary.
type summaryRecord struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// HTTPRequestNotifier posts one JSON record per alert to an endpoint.
type HTTPRequestNotifier struct {
	poster
	cfg     httpRequestConfig
	headers map[string]string
}

func newHTTPRequest(cfg httpRequestConfig) *HTTPRequestNotifier {
	headers := make(map[string]string, len(cfg.Headers)+1)
	for k, v := range cfg.Headers {
		headers[k] = v
	}
	if cfg.TokenVariableName != "" {
		if tok := os.Getenv(cfg.TokenVariableName); tok != "" {
			headers["Authorization"] = "Bearer " + tok
		}
	}
	return &HTTPRequestNotifier{
		poster:  newPoster(nil, time.Duration(cfg.Timeout)*time.Second),
		cfg:     cfg,
		headers: headers,
	}
}

func (n *HTTPRequestNotifier) Name() string { return config.AlerterHTTPRequest }

func (n *HTTPRequestNotifier) perAlert() {}

func (n *HTTPRequestNotifier) Send(ctx context.Context, msg Message) Result {
	return n.postJSON(ctx, n.cfg.EndpointURL, n.payload(msg), n.headers)
}

func (n *HTTPRequestNotifier) payload(msg Message) any {
	if msg.Kind == KindSummary || len(msg.Alerts) == 0 {
		return summaryRecord{Title: msg.Title, Body: msg.Body}
	}
	return newAlertRecord(msg.Alerts[0], n.cfg.LoginData)
}

func newAlertRecord(a *models.Alert, loginKeys []string) alertRecord {
	rec := alertRecord{
		User:        a.Username,
		AlertName:   string(a.Name),
		Description: a.Description,
		Created:     a.CreatedAt.UTC(),
		IsVIP:       a.IsVIP,
	}
	if len(loginKeys) > 0 {
		rec.Login = make(map[string]any, len(loginKeys))
		for _, k := range loginKeys {
			if v, ok := a.LoginRawData[k]; ok {
				rec.Login[k] = v
			}
		}
	}
	return rec
}

// WebhookNotifier is an HTTPRequestNotifier that signs every request with
// an HS256 bearer token.
type WebhookNotifier struct {
	*HTTPRequestNotifier
	secret   []byte
	issuer   string
	audience string
	ttl      time.Duration
	now      func() time.Time
}

func newWebhook(cfg webhooksConfig) (*WebhookNotifier, error) {
	source := config.AlertingFile + ":" + config.AlerterWebhooks
	secret := os.Getenv(cfg.SecretKeyVariableName)
	if secret == "" {
		return nil, &config.ConfigError{Source: source,
			Reason: fmt.Sprintf("environment variable %s is not set", cfg.SecretKeyVariableName)}
	}
	issuer := DefaultWebhookIssuer
	if cfg.IssuerVariableName != "" {
		if v := os.Getenv(cfg.IssuerVariableName); v != "" {
			issuer = v
		}
	}
	audience := cfg.Audience
	if audience == "" {
		audience = DefaultWebhookAudience
	}

	base := cfg.httpRequestConfig
	base.TokenVariableName = ""
	return &WebhookNotifier{
		HTTPRequestNotifier: newHTTPRequest(base),
		secret:              []byte(secret),
		issuer:              issuer,
		audience:            audience,
		ttl:                 time.Duration(cfg.TokenExpirationSeconds) * time.Second,
		now:                 time.Now,
	}, nil
}

func (n *WebhookNotifier) Name() string { return config.AlerterWebhooks }

func (n *WebhookNotifier) Send(ctx context.Context, msg Message) Result {
	token, err := n.token()
	if err != nil {
		return permanent(0, "sign token: %v", err)
	}
	headers := make(map[string]string, len(n.headers)+1)
	for k, v := range n.headers {
		headers[k] = v
	}
	headers["Authorization"] = "Bearer " + token
	return n.postJSON(ctx, n.cfg.EndpointURL, n.payload(msg), headers)
}

func (n *WebhookNotifier) token() (string, error) {
	now := n.now()
	claims := jwt.RegisteredClaims{
		Issuer:    n.issuer,
		Audience:  jwt.ClaimStrings{n.audience},
		Subject:   webhookSubject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(n.ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(n.secret)
}
