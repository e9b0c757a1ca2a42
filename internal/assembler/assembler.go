// Package assembler normalizes a decoded replay plus parsed stats into the
// three persistence records: MATCH, STATS and UPLOAD.
package assembler

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/wowsvault/replay-api/internal/models"
	"github.com/wowsvault/replay-api/internal/stats"
)

// UploadInfo carries the upload-boundary facts the assembler cannot derive
// from the replay itself.
type UploadInfo struct {
	BlobKey    string
	FileName   string
	FileSize   int64
	UploadedBy string
	UploadedAt int64
}

// Assembled is the persistence-ready output for one upload. Stats is nil for
// incomplete replays.
type Assembled struct {
	Match  models.MatchRecord
	Stats  *models.StatsRecord
	Upload models.UploadRecord
}

// Assembler resolves ship names through the shared params table.
type Assembler struct {
	ships *stats.ShipParams
}

func New(ships *stats.ShipParams) *Assembler {
	return &Assembler{ships: ships}
}

// Assemble builds the three records from the first-uploader perspective. The
// persister decides whether the MATCH record creates or merges.
func (a *Assembler) Assemble(decoded *models.DecodedReplay, playerStats []models.PlayerStats, upload UploadInfo) (*Assembled, error) {
	if decoded.OwnPlayer.Name == "" {
		return nil, fmt.Errorf("assemble: replay has no own player")
	}

	gameType := models.NormalizeGameType(decoded.GameType)
	arenaID := a.arenaID(decoded, upload)

	allies := a.resolveShips(decoded.Allies)
	enemies := a.resolveShips(decoded.Enemies)
	own := a.resolveShip(decoded.OwnPlayer)

	allPlayers := append([]models.PlayerRef{own}, allies...)
	names := make([]string, 0, len(allPlayers)+len(enemies))
	for _, p := range allPlayers {
		names = append(names, p.Name)
	}
	for _, p := range enemies {
		names = append(names, p.Name)
	}

	match := models.MatchRecord{
		ArenaUniqueID: arenaID,
		GameType:      gameType,

		ListingKey:       "ACTIVE",
		UnixTime:         ParseUnixTime(decoded.DateTime),
		DateTime:         decoded.DateTime,
		DateTimeSortable: FormatSortableDateTime(decoded.DateTime),
		MatchKey:         MatchKey(decoded.DateTime, decoded.MapID, string(gameType), names),

		MapID:          decoded.MapID,
		MapDisplayName: decoded.MapDisplay,
		ClientVersion:  decoded.ClientVersion,

		AllyPerspectivePlayerID:   decoded.OwnPlayerID,
		AllyPerspectivePlayerName: decoded.OwnPlayer.Name,

		WinLoss: stats.DetermineWinLoss(decoded),

		Allies:  append([]models.PlayerRef{own}, allies...),
		Enemies: enemies,

		Uploaders: []models.Uploader{{
			PlayerID:   decoded.OwnPlayerID,
			PlayerName: decoded.OwnPlayer.Name,
			Team:       models.TeamAlly,
		}},
	}

	// Majority clan tags only make sense when teams actually share tags;
	// a random battle with one two-man division still counts.
	match.AllyMainClanTag = MainClanTag(match.Allies)
	match.EnemyMainClanTag = MainClanTag(match.Enemies)

	var statsRecord *models.StatsRecord
	if len(playerStats) > 0 {
		statsRecord = &models.StatsRecord{
			ArenaUniqueID:   arenaID,
			GameType:        gameType,
			AllPlayersStats: playerStats,
		}
	}

	uploadRecord := models.UploadRecord{
		ArenaUniqueID: arenaID,
		GameType:      gameType,
		PlayerID:      decoded.OwnPlayerID,
		PlayerName:    decoded.OwnPlayer.Name,
		Team:          models.TeamAlly,
		BlobKey:       upload.BlobKey,
		FileName:      upload.FileName,
		FileSize:      upload.FileSize,
		UploadedBy:    upload.UploadedBy,
		UploadedAt:    upload.UploadedAt,
		OwnPlayer:     own,
	}
	for i := range playerStats {
		if playerStats[i].IsOwn {
			uploadRecord.OwnStats = &playerStats[i]
			break
		}
	}

	return &Assembled{Match: match, Stats: statsRecord, Upload: uploadRecord}, nil
}

// arenaID prefers the server-assigned id from BattleStats; incomplete replays
// fall back to the matchKey-derived synthetic id so metadata still persists.
func (a *Assembler) arenaID(decoded *models.DecodedReplay, upload UploadInfo) string {
	if decoded.BattleStats != nil && decoded.BattleStats.ArenaUniqueID != 0 {
		return strconv.FormatInt(decoded.BattleStats.ArenaUniqueID, 10)
	}
	names := make([]string, 0, 1+len(decoded.Allies)+len(decoded.Enemies))
	for _, p := range decoded.AllPlayers() {
		names = append(names, p.Name)
	}
	return SyntheticArenaID(MatchKey(decoded.DateTime, decoded.MapID, decoded.GameType, names))
}

func (a *Assembler) resolveShips(refs []models.PlayerRef) []models.PlayerRef {
	out := make([]models.PlayerRef, len(refs))
	for i, ref := range refs {
		out[i] = a.resolveShip(ref)
	}
	return out
}

func (a *Assembler) resolveShip(ref models.PlayerRef) models.PlayerRef {
	if ref.ShipName == "" && ref.ShipID != 0 {
		ref.ShipName = a.ships.Name(ref.ShipID)
	}
	return ref
}

// MainClanTag returns the most common clan tag on a team, breaking ties
// lexicographically. Empty when fewer than two players share a tag.
func MainClanTag(players []models.PlayerRef) string {
	counts := make(map[string]int)
	for _, p := range players {
		if p.ClanTag != "" {
			counts[p.ClanTag]++
		}
	}

	tags := make([]string, 0, len(counts))
	for tag := range counts {
		tags = append(tags, tag)
	}
	sort.Strings(tags)

	best := ""
	bestCount := 0
	for _, tag := range tags {
		if counts[tag] > bestCount {
			best = tag
			bestCount = counts[tag]
		}
	}
	if bestCount < 2 {
		return ""
	}
	return best
}
