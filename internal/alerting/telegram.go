// BuffaLogs - Login Anomaly Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/buffalogs

package alerting

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/buffalogs/internal/config"
)

const telegramAPI = "https://api.telegram.org"

// telegramMaxText is the sendMessage text limit.
const telegramMaxText = 4096

type telegramConfig struct {
	BotToken string   `koanf:"bot_token" validate:"required"`
	ChatIDs  []string `koanf:"chat_ids" validate:"required,min=1,dive,required"`
	APIURL   string   `koanf:"api_url" validate:"omitempty,url"`
	Timeout  int      `koanf:"timeout" validate:"gte=0"`
}

type telegramRequest struct {
	ChatID string `json:"chat_id"`
	Text   string `json:"text"`
}

type telegramResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code,omitempty"`
	Description string `json:"description,omitempty"`
	Parameters  *struct {
		RetryAfter int `json:"retry_after,omitempty"`
	} `json:"parameters,omitempty"`
}

// TelegramNotifier sends one sendMessage call per configured chat.
// Chats that already received a message are skipped when the same
// message is retried.
type TelegramNotifier struct {
	poster
	endpoint string
	chatIDs  []string

	mu   sync.Mutex
	sent map[string]map[string]bool // message key -> chat id
}

func newTelegram(cfg telegramConfig) *TelegramNotifier {
	base := strings.TrimRight(cfg.APIURL, "/")
	if base == "" {
		base = telegramAPI
	}
	return &TelegramNotifier{
		poster:   newPoster(nil, time.Duration(cfg.Timeout)*time.Second),
		endpoint: fmt.Sprintf("%s/bot%s/sendMessage", base, cfg.BotToken),
		chatIDs:  cfg.ChatIDs,
		sent:     make(map[string]map[string]bool),
	}
}

func (n *TelegramNotifier) Name() string { return config.AlerterTelegram }

func (n *TelegramNotifier) Send(ctx context.Context, msg Message) Result {
	key := messageKey(msg)
	text := truncate(messageText(msg), telegramMaxText)

	var last Result
	for _, chat := range n.chatIDs {
		if n.wasSent(key, chat) {
			continue
		}
		last = n.sendOne(ctx, chat, text)
		if !last.OK() {
			last.Reason = fmt.Sprintf("chat %s: %s", chat, last.Reason)
			return last
		}
		n.markSent(key, chat)
	}

	n.mu.Lock()
	delete(n.sent, key)
	n.mu.Unlock()
	return delivered(last.StatusCode)
}

func (n *TelegramNotifier) sendOne(ctx context.Context, chat, text string) Result {
	body, err := json.Marshal(telegramRequest{ChatID: chat, Text: text})
	if err != nil {
		return permanent(0, "marshal payload: %v", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(string(body)))
	if err != nil {
		return permanent(0, "create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return classifyTransportError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return transient(resp.StatusCode, "read response: %v", err)
	}
	var apiResp telegramResponse
	if err := json.Unmarshal(raw, &apiResp); err != nil {
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return delivered(resp.StatusCode)
		}
		apiResp.ErrorCode = resp.StatusCode
		apiResp.Description = strings.TrimSpace(string(raw))
	}
	if apiResp.OK {
		return delivered(resp.StatusCode)
	}

	code := apiResp.ErrorCode
	if code == 0 {
		code = resp.StatusCode
	}
	if !transientStatus(code) {
		return permanent(code, "%s", apiResp.Description)
	}
	r := transient(code, "%s", apiResp.Description)
	if apiResp.Parameters != nil && apiResp.Parameters.RetryAfter > 0 {
		r.RetryAfter = time.Duration(apiResp.Parameters.RetryAfter) * time.Second
	} else {
		r.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"))
	}
	return r
}

func (n *TelegramNotifier) wasSent(key, chat string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.sent[key][chat]
}

func (n *TelegramNotifier) markSent(key, chat string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.sent[key] == nil {
		n.sent[key] = make(map[string]bool)
	}
	n.sent[key][chat] = true
}

// messageKey identifies a message across retries: its alert IDs, or its
// title for summaries.
func messageKey(msg Message) string {
	if len(msg.Alerts) == 0 {
		return "summary:" + msg.Title
	}
	ids := make([]string, 0, len(msg.Alerts))
	for _, a := range msg.Alerts {
		ids = append(ids, strconv.FormatInt(a.ID, 10))
	}
	return strings.Join(ids, ",")
}

func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}
