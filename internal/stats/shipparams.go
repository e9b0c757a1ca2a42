package stats

import (
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/wowsvault/replay-api/internal/models"
)

// ShipParams resolves ship ids to display names and hull classes. The table is
// derived from game data and embedded at build time; it is immutable for the
// lifetime of the process.
type ShipParams struct {
	ships map[int64]shipEntry
}

type shipEntry struct {
	Name  string `json:"name"`
	Class string `json:"class"`
}

//go:embed ships.json
var shipsJSON []byte

// LoadShipParams parses the embedded ship table. Construct once at process
// start and pass through the call graph.
func LoadShipParams() (*ShipParams, error) {
	var raw map[string]shipEntry
	if err := json.Unmarshal(shipsJSON, &raw); err != nil {
		return nil, fmt.Errorf("ship params: %w", err)
	}
	ships := make(map[int64]shipEntry, len(raw))
	for id, entry := range raw {
		var key int64
		if _, err := fmt.Sscanf(id, "%d", &key); err != nil {
			continue
		}
		ships[key] = entry
	}
	return &ShipParams{ships: ships}, nil
}

// Name returns the display name for a ship id, or a placeholder when the id is
// not in the table (new ship shipped after the table snapshot).
func (s *ShipParams) Name(shipID int64) string {
	if e, ok := s.ships[shipID]; ok && e.Name != "" {
		return e.Name
	}
	return fmt.Sprintf("Unknown Ship (ID: %d)", shipID)
}

// Class returns the hull class for a ship id; empty when unknown.
func (s *ShipParams) Class(shipID int64) models.ShipClass {
	if e, ok := s.ships[shipID]; ok {
		return models.ShipClass(e.Class)
	}
	return ""
}
