package assembler

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"time"
)

// replayTimeLayout is the datetime format the game client records.
const replayTimeLayout = "02.01.2006 15:04:05"

// sortableZero sorts to the bottom; used for empty or malformed datetimes.
const sortableZero = "00000000000000"

// FormatSortableDateTime converts DD.MM.YYYY HH:MM:SS to YYYYMMDDHHMMSS.
// The client format is not lexicographically sortable across year boundaries;
// this one is. Empty or malformed input yields sortableZero.
func FormatSortableDateTime(dateTime string) string {
	if dateTime == "" {
		return sortableZero
	}
	t, err := time.Parse(replayTimeLayout, dateTime)
	if err != nil {
		return sortableZero
	}
	return t.Format("20060102150405")
}

// ParseSortableDateTime is the inverse of FormatSortableDateTime.
func ParseSortableDateTime(sortable string) (time.Time, error) {
	return time.Parse("20060102150405", sortable)
}

// ParseUnixTime converts the replay datetime to epoch seconds; 0 when empty
// or malformed.
func ParseUnixTime(dateTime string) int64 {
	if dateTime == "" {
		return 0
	}
	t, err := time.Parse(replayTimeLayout, dateTime)
	if err != nil {
		return 0
	}
	return t.UTC().Unix()
}

// roundDateTimeDown5Min truncates the datetime to its 5-minute boundary;
// times exactly on a boundary map to themselves. Malformed input is returned
// unchanged so the key still distinguishes two broken records.
func roundDateTimeDown5Min(dateTime string) string {
	t, err := time.Parse(replayTimeLayout, dateTime)
	if err != nil {
		return dateTime
	}
	rounded := t.Truncate(5 * time.Minute)
	return rounded.Format(replayTimeLayout)
}

// MatchKey builds the stable grouping key for a battle:
// rounded datetime | mapId | gameType | sorted player names. The key is
// insensitive to which uploader submitted first and tolerates small clock
// skew between clients, so it can flag probable duplicates even when two
// uploads disagree on arenaUniqueID.
func MatchKey(dateTime, mapID, gameType string, playerNames []string) string {
	unique := make(map[string]struct{}, len(playerNames))
	for _, name := range playerNames {
		if name != "" {
			unique[name] = struct{}{}
		}
	}
	names := make([]string, 0, len(unique))
	for name := range unique {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := append([]string{roundDateTimeDown5Min(dateTime), mapID, gameType}, names...)
	return strings.Join(parts, "|")
}

// SyntheticArenaID derives a stable stand-in arena id from a match key, for
// incomplete replays whose BattleStats packet (and so the server-assigned id)
// is missing. The tmp- prefix keeps it distinguishable from real ids.
func SyntheticArenaID(matchKey string) string {
	sum := sha256.Sum256([]byte(matchKey))
	return "tmp-" + hex.EncodeToString(sum[:8])
}
