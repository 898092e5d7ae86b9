// BuffaLogs - Login Anomaly Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/buffalogs

package alerting

import (
	"context"
	"strings"
	"time"

	"github.com/tomtom215/buffalogs/internal/config"
)

// webhookConfig is the section shared by incoming-webhook channels.
type webhookConfig struct {
	WebhookURL string `koanf:"webhook_url" validate:"required,url"`
	Timeout    int    `koanf:"timeout" validate:"gte=0"` // seconds
}

func (c webhookConfig) timeout() time.Duration {
	return time.Duration(c.Timeout) * time.Second
}

// --- Slack ---

type slackConfig struct {
	webhookConfig `koanf:",squash"`

	// RecipientListUsers maps usernames to Slack member IDs to mention.
	RecipientListUsers map[string]string `koanf:"recipient_list_users"`
}

type slackAttachment struct {
	Title string `json:"title"`
	Text  string `json:"text"`
	Color string `json:"color"`
}

type slackPayload struct {
	Attachments []slackAttachment `json:"attachments"`
}

// SlackNotifier posts to a Slack incoming webhook.
type SlackNotifier struct {
	poster
	url      string
	mentions map[string]string
	format   *Formatter
}

func newSlack(cfg slackConfig, f *Formatter) *SlackNotifier {
	mentions := make(map[string]string, len(cfg.RecipientListUsers))
	for user, id := range cfg.RecipientListUsers {
		mentions[strings.ToLower(user)] = id
	}
	return &SlackNotifier{
		poster:   newPoster(nil, cfg.timeout()),
		url:      cfg.WebhookURL,
		mentions: mentions,
		format:   f,
	}
}

func (n *SlackNotifier) Name() string { return config.AlerterSlack }

func (n *SlackNotifier) Send(ctx context.Context, msg Message) Result {
	text := msg.Body
	if id, ok := n.mentions[strings.ToLower(msg.Username)]; ok && id != "" && n.format != nil {
		text = n.format.Mention("<@"+id+">", text)
	}
	return n.postJSON(ctx, n.url, slackPayload{
		Attachments: []slackAttachment{{Title: msg.Title, Text: text, Color: "#ff0000"}},
	}, nil)
}

// --- Discord ---

type discordEmbed struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Color       int    `json:"color"`
}

type discordPayload struct {
	Username string         `json:"username"`
	Embeds   []discordEmbed `json:"embeds"`
}

// DiscordNotifier posts embeds to a Discord webhook.
type DiscordNotifier struct {
	poster
	url string
}

func newDiscord(cfg webhookConfig) *DiscordNotifier {
	return &DiscordNotifier{poster: newPoster(nil, cfg.timeout()), url: cfg.WebhookURL}
}

func (n *DiscordNotifier) Name() string { return config.AlerterDiscord }

func (n *DiscordNotifier) Send(ctx context.Context, msg Message) Result {
	return n.postJSON(ctx, n.url, discordPayload{
		Username: "BuffaLogs Alert",
		Embeds:   []discordEmbed{{Title: msg.Title, Description: msg.Body, Color: 0xFF0000}},
	}, nil)
}

// --- Microsoft Teams ---

type teamsCard struct {
	Type       string `json:"@type"`
	Context    string `json:"@context"`
	ThemeColor string `json:"themeColor"`
	Title      string `json:"title"`
	Text       string `json:"text"`
}

// TeamsNotifier posts MessageCards to a Teams connector.
type TeamsNotifier struct {
	poster
	url string
}

func newTeams(cfg webhookConfig) *TeamsNotifier {
	return &TeamsNotifier{poster: newPoster(nil, cfg.timeout()), url: cfg.WebhookURL}
}

func (n *TeamsNotifier) Name() string { return config.AlerterTeams }

func (n *TeamsNotifier) Send(ctx context.Context, msg Message) Result {
	return n.postJSON(ctx, n.url, teamsCard{
		Type:       "MessageCard",
		Context:    "http://schema.org/extensions",
		ThemeColor: "FF0000",
		Title:      msg.Title,
		Text:       msg.Body,
	}, nil)
}

// --- Google Chat ---

type gchatPayload struct {
	Cards []gchatCard `json:"cards"`
}

type gchatCard struct {
	Header   gchatHeader    `json:"header"`
	Sections []gchatSection `json:"sections"`
}

type gchatHeader struct {
	Title    string `json:"title"`
	Subtitle string `json:"subtitle"`
}

type gchatSection struct {
	Widgets []gchatWidget `json:"widgets"`
}

type gchatWidget struct {
	TextParagraph gchatText `json:"textParagraph"`
}

type gchatText struct {
	Text string `json:"text"`
}

// GoogleChatNotifier posts cards to a Google Chat space webhook.
type GoogleChatNotifier struct {
	poster
	url string
}

func newGoogleChat(cfg webhookConfig) *GoogleChatNotifier {
	return &GoogleChatNotifier{poster: newPoster(nil, cfg.timeout()), url: cfg.WebhookURL}
}

func (n *GoogleChatNotifier) Name() string { return config.AlerterGoogleChat }

func (n *GoogleChatNotifier) Send(ctx context.Context, msg Message) Result {
	subtitle := string(msg.Name)
	if msg.Kind == KindSummary {
		subtitle = msg.Title
	}
	return n.postJSON(ctx, n.url, gchatPayload{Cards: []gchatCard{{
		Header:   gchatHeader{Title: "Login Anomaly Alert", Subtitle: subtitle},
		Sections: []gchatSection{{Widgets: []gchatWidget{{TextParagraph: gchatText{Text: msg.Body}}}}},
	}}}, nil)
}

// --- Rocket.Chat and Mattermost ---

type rocketChatConfig struct {
	webhookConfig `koanf:",squash"`

	Username string `koanf:"username"`
	Channel  string `koanf:"channel"`
}

type rocketChatPayload struct {
	Text     string `json:"text"`
	Username string `json:"username,omitempty"`
	Channel  string `json:"channel,omitempty"`
}

// RocketChatNotifier posts to a Rocket.Chat incoming integration.
type RocketChatNotifier struct {
	poster
	cfg rocketChatConfig
}

func newRocketChat(cfg rocketChatConfig) *RocketChatNotifier {
	return &RocketChatNotifier{poster: newPoster(nil, cfg.timeout()), cfg: cfg}
}

func (n *RocketChatNotifier) Name() string { return config.AlerterRocketChat }

func (n *RocketChatNotifier) Send(ctx context.Context, msg Message) Result {
	return n.postJSON(ctx, n.cfg.WebhookURL, rocketChatPayload{
		Text:     messageText(msg),
		Username: n.cfg.Username,
		Channel:  n.cfg.Channel,
	}, nil)
}

type mattermostConfig struct {
	webhookConfig `koanf:",squash"`

	Username string `koanf:"username"`
}

type mattermostPayload struct {
	Text     string `json:"text"`
	Username string `json:"username,omitempty"`
}

// MattermostNotifier posts to a Mattermost incoming webhook.
type MattermostNotifier struct {
	poster
	cfg mattermostConfig
}

func newMattermost(cfg mattermostConfig) *MattermostNotifier {
	return &MattermostNotifier{poster: newPoster(nil, cfg.timeout()), cfg: cfg}
}

func (n *MattermostNotifier) Name() string { return config.AlerterMattermost }

func (n *MattermostNotifier) Send(ctx context.Context, msg Message) Result {
	return n.postJSON(ctx, n.cfg.WebhookURL, mattermostPayload{
		Text:     messageText(msg),
		Username: n.cfg.Username,
	}, nil)
}
