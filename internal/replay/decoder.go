// Package replay decodes .wowsreplay container files: the fixed header, the
// JSON metadata block, and the Blowfish-encrypted zlib-framed packet stream.
// Decoding is version-indexed; see registry.go for the supported set.
package replay

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/wowsvault/replay-api/internal/models"
)

// Decoder turns raw replay bytes into a DecodedReplay. It is stateless and
// safe for concurrent use.
type Decoder struct {
	logger *zap.SugaredLogger
	strict bool
}

// NewDecoder builds a lenient decoder: incomplete replays (the player left
// before end of battle) decode with BattleStats == nil instead of failing.
func NewDecoder(logger *zap.Logger) *Decoder {
	return &Decoder{logger: logger.Sugar()}
}

// NewStrictDecoder fails on incomplete replays with ErrNoBattleStats.
func NewStrictDecoder(logger *zap.Logger) *Decoder {
	return &Decoder{logger: logger.Sugar(), strict: true}
}

// Decode parses the container and walks the packet sequence. Decoding the
// same bytes twice yields equal results.
func (d *Decoder) Decode(data []byte) (*models.DecodedReplay, error) {
	c, err := readContainer(data)
	if err != nil {
		return nil, err
	}

	version := NormalizeVersion(c.Meta.ClientVersionFromXML)
	cat, err := CatalogFor(c.Meta.ClientVersionFromXML)
	if err != nil {
		return nil, err
	}

	state := newStreamState(cat)
	walker := &packetWalker{stream: c.Stream}
	packets := 0
	for {
		p, werr := walker.next()
		if werr != nil {
			// A cut-off tail is tolerated once some packets decoded; the
			// stream behind it belongs to the moment the client died.
			if packets > 0 {
				d.logger.Warnw("Packet stream ends mid-frame", "packets", packets, "error", werr)
				break
			}
			return nil, werr
		}
		if p == nil {
			break
		}
		packets++
		if herr := state.handle(p); herr != nil {
			d.logger.Warnw("Skipping malformed packet", "type", p.Type, "error", herr)
		}
	}

	decoded := &models.DecodedReplay{
		ClientVersion: version,
		MapID:         c.Meta.MapName,
		MapDisplay:    c.Meta.MapDisplayName,
		DateTime:      c.Meta.DateTime,
		GameType:      gameTypeFromMeta(c.Meta),
		OwnPlayerID:   c.Meta.PlayerID,
		BattleStats:   state.battleStats,
		Hidden:        state.hidden,
		Tracks:        state.tracks,
	}
	if state.mapName != "" {
		decoded.MapID = state.mapName
	}

	d.splitRoster(decoded, c.Meta)

	if decoded.BattleStats == nil {
		if d.strict {
			return nil, ErrNoBattleStats
		}
		d.logger.Infow("Replay has no battle stats packet, decoding as incomplete",
			"player", c.Meta.PlayerName, "map", decoded.MapID)
	}

	return decoded, nil
}

// splitRoster classifies the metadata vehicle list into own/allies/enemies and
// enriches each entry with the clan tag from the hidden player table.
func (d *Decoder) splitRoster(decoded *models.DecodedReplay, meta models.ReplayMeta) {
	clanTags := make(map[string]string, len(decoded.Hidden.Players))
	for _, p := range decoded.Hidden.Players {
		if p.Name != "" && p.ClanTag != "" {
			clanTags[p.Name] = p.ClanTag
		}
	}

	for _, v := range meta.Vehicles {
		ref := models.PlayerRef{
			Name:    v.Name,
			ShipID:  v.ShipID,
			ClanTag: clanTags[v.Name],
		}
		switch v.Relation {
		case 0:
			decoded.OwnPlayer = ref
		case 1:
			decoded.Allies = append(decoded.Allies, ref)
		default:
			decoded.Enemies = append(decoded.Enemies, ref)
		}
	}

	if own, ok := decoded.Hidden.Players[meta.PlayerID]; ok {
		decoded.OwnTeamID = own.TeamID
		if decoded.OwnPlayer.ClanTag == "" {
			decoded.OwnPlayer.ClanTag = own.ClanTag
		}
	}
	if decoded.OwnPlayer.Name == "" {
		decoded.OwnPlayer.Name = meta.PlayerName
	}
}

// gameTypeFromMeta picks the raw game type the way the client records it:
// matchGroup first, then gameLogic, then battleType. Older clients leave
// matchGroup empty and only fill one of the fallbacks.
func gameTypeFromMeta(meta models.ReplayMeta) string {
	if meta.MatchGroup != "" {
		return meta.MatchGroup
	}
	if meta.GameLogic != "" {
		return meta.GameLogic
	}
	return meta.BattleType
}

// ReadMeta parses only the header and JSON metadata block, without touching
// the encrypted stream. Used by the upload handler for cheap format checks.
func ReadMeta(data []byte) (models.ReplayMeta, error) {
	meta, err := readMetaBlock(data)
	if err != nil {
		return models.ReplayMeta{}, fmt.Errorf("read meta: %w", err)
	}
	return meta, nil
}
