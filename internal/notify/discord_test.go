package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/wowsvault/replay-api/internal/models"
)

func testMatch() *models.MatchRecord {
	return &models.MatchRecord{
		ArenaUniqueID:    "123",
		GameType:         models.GameTypeClan,
		WinLoss:          models.WinLossWin,
		MapDisplayName:   "Haven",
		DateTime:         "03.01.2026 23:28:22",
		AllyMainClanTag:  "OZEKI",
		EnemyMainClanTag: "PREY",
	}
}

func TestMatchRendered_PostsEmbed(t *testing.T) {
	var payload map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &payload)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := New(srv.URL, "https://replays.example.org", zap.NewNop())
	if err := n.MatchRendered(context.Background(), testMatch()); err != nil {
		t.Fatalf("MatchRendered: %v", err)
	}

	embeds, ok := payload["embeds"].([]any)
	if !ok || len(embeds) != 1 {
		t.Fatalf("payload = %v", payload)
	}
	embed := embeds[0].(map[string]any)
	if embed["title"] != "[OZEKI] vs [PREY]" {
		t.Errorf("title = %v", embed["title"])
	}
	if embed["url"] != "https://replays.example.org/match/123" {
		t.Errorf("url = %v", embed["url"])
	}
	if embed["color"] != float64(colorWin) {
		t.Errorf("color = %v", embed["color"])
	}
}

func TestMatchRendered_NoWebhookConfigured(t *testing.T) {
	n := New("", "", zap.NewNop())
	if err := n.MatchRendered(context.Background(), testMatch()); err != nil {
		t.Errorf("unconfigured notifier must be a no-op, got %v", err)
	}
}

func TestMatchRendered_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	n := New(srv.URL, "", zap.NewNop())
	if err := n.MatchRendered(context.Background(), testMatch()); err == nil {
		t.Error("expected error for non-2xx webhook response")
	}
}
