// BuffaLogs - Login Anomaly Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/buffalogs

package alerting

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"text/template"
	"time"

	"github.com/tomtom215/buffalogs/internal/config"
	"github.com/tomtom215/buffalogs/internal/models"
)

//go:embed templates/*.tmpl
var builtinTemplates embed.FS

// templateFiles can each be overridden by a file of the same name in the
// custom template directory.
var templateFiles = []string{"alert.tmpl", "clubbed.tmpl", "summary.tmpl", "mention.tmpl"}

// Formatter renders alert and summary messages with text/template.
// It is safe for concurrent use once built.
type Formatter struct {
	tmpl *template.Template
}

// NewFormatter parses the embedded templates, then any overrides found in
// dir. An empty dir uses the embedded templates only.
func NewFormatter(dir string) (*Formatter, error) {
	root := template.New("messages").Funcs(template.FuncMap{
		"date":     func(t time.Time) string { return t.UTC().Format("2006-01-02") },
		"datetime": func(t time.Time) string { return t.UTC().Format(time.RFC3339) },
		"upper":    strings.ToUpper,
	})
	tmpl, err := root.ParseFS(builtinTemplates, "templates/*.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse builtin templates: %w", err)
	}

	if dir != "" {
		for _, name := range templateFiles {
			path := filepath.Join(dir, name)
			data, err := os.ReadFile(path)
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			if err != nil {
				return nil, &config.ConfigError{Source: path, Reason: "cannot read template", Err: err}
			}
			if _, err := tmpl.New(name).Parse(string(data)); err != nil {
				return nil, &config.ConfigError{Source: path, Reason: "invalid template", Err: err}
			}
		}
	}
	return &Formatter{tmpl: tmpl}, nil
}

type alertView struct {
	Name        models.AlertName
	Username    string
	Description string
	CreatedAt   time.Time
	Count       int
	Alerts      []*models.Alert
}

// Alert renders alerts sharing one user and alert name. A single alert
// uses the alert template, several use the clubbed template.
func (f *Formatter) Alert(alerts []*models.Alert) (Message, error) {
	if len(alerts) == 0 {
		return Message{}, errors.New("no alerts to format")
	}
	first := alerts[0]
	view := alertView{
		Name:        first.Name,
		Username:    first.Username,
		Description: first.Description,
		CreatedAt:   first.CreatedAt,
		Count:       len(alerts),
		Alerts:      alerts,
	}

	prefix := "alert"
	if len(alerts) > 1 {
		prefix = "clubbed"
	}
	title, err := f.render(prefix+"_title", view)
	if err != nil {
		return Message{}, err
	}
	body, err := f.render(prefix+"_body", view)
	if err != nil {
		return Message{}, err
	}
	return Message{
		Kind:     KindAlert,
		Title:    title,
		Body:     body,
		Name:     first.Name,
		Username: first.Username,
		Alerts:   alerts,
	}, nil
}

// Summary renders a periodic summary.
func (f *Formatter) Summary(s Summary) (Message, error) {
	title, err := f.render("summary_title", s)
	if err != nil {
		return Message{}, err
	}
	body, err := f.render("summary_body", s)
	if err != nil {
		return Message{}, err
	}
	return Message{Kind: KindSummary, Title: title, Body: body}, nil
}

// Mention prefixes body with a channel-specific user mention.
func (f *Formatter) Mention(mention, body string) string {
	out, err := f.render("mention", struct{ Mention, Body string }{mention, body})
	if err != nil {
		return mention + " " + body
	}
	return out
}

func (f *Formatter) render(name string, data any) (string, error) {
	var b strings.Builder
	if err := f.tmpl.ExecuteTemplate(&b, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return b.String(), nil
}
