// Package notify posts match-ready notifications to a Discord webhook.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/wowsvault/replay-api/internal/models"
)

// Embed colors per outcome.
const (
	colorWin  = 0x00FF00
	colorLoss = 0xFF0000
	colorGray = 0x808080
)

// Notifier sends webhook embeds. A Notifier with an empty URL is a no-op,
// so callers never branch on configuration.
type Notifier struct {
	webhookURL  string
	frontendURL string
	client      *http.Client
	logger      *zap.SugaredLogger
}

func New(webhookURL, frontendURL string, logger *zap.Logger) *Notifier {
	return &Notifier{
		webhookURL:  webhookURL,
		frontendURL: frontendURL,
		client:      &http.Client{Timeout: 10 * time.Second},
		logger:      logger.Sugar(),
	}
}

type embed struct {
	Title       string       `json:"title"`
	Description string       `json:"description,omitempty"`
	URL         string       `json:"url,omitempty"`
	Color       int          `json:"color"`
	Fields      []embedField `json:"fields,omitempty"`
}

type embedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

// MatchRendered announces a rendered match. The orchestrator calls it only
// for clan battles.
func (n *Notifier) MatchRendered(ctx context.Context, match *models.MatchRecord) error {
	if n.webhookURL == "" {
		return nil
	}

	color := colorGray
	outcome := "Unknown"
	switch match.WinLoss {
	case models.WinLossWin:
		color, outcome = colorWin, "Victory"
	case models.WinLossLoss:
		color, outcome = colorLoss, "Defeat"
	case models.WinLossDraw:
		outcome = "Draw"
	}

	title := fmt.Sprintf("%s vs %s", tagOrDash(match.AllyMainClanTag), tagOrDash(match.EnemyMainClanTag))
	e := embed{
		Title: title,
		Color: color,
		Fields: []embedField{
			{Name: "Result", Value: outcome, Inline: true},
			{Name: "Map", Value: match.MapDisplayName, Inline: true},
			{Name: "Time", Value: match.DateTime, Inline: true},
		},
	}
	if n.frontendURL != "" {
		e.URL = fmt.Sprintf("%s/match/%s", n.frontendURL, match.ArenaUniqueID)
	}

	body, err := json.Marshal(map[string]any{"embeds": []embed{e}})
	if err != nil {
		return fmt.Errorf("notify: marshal embed: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("notify: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("notify: post webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("notify: webhook returned %d", resp.StatusCode)
	}
	n.logger.Infow("Posted match notification", "arenaUniqueID", match.ArenaUniqueID)
	return nil
}

func tagOrDash(tag string) string {
	if tag == "" {
		return "-"
	}
	return "[" + tag + "]"
}
