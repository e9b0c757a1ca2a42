package assembler

import (
	"strconv"
	"testing"

	"github.com/wowsvault/replay-api/internal/models"
	"github.com/wowsvault/replay-api/internal/stats"
)

func newTestAssembler(t *testing.T) *Assembler {
	t.Helper()
	ships, err := stats.LoadShipParams()
	if err != nil {
		t.Fatalf("LoadShipParams: %v", err)
	}
	return New(ships)
}

func clanDecoded() *models.DecodedReplay {
	return &models.DecodedReplay{
		ClientVersion: "14.11.0",
		MapID:         "spaces/19_OC_prey",
		MapDisplay:    "Haven",
		DateTime:      "03.01.2026 23:28:22",
		GameType:      "clan",
		OwnPlayerID:   537149649,
		OwnTeamID:     0,
		OwnPlayer:     models.PlayerRef{Name: "_meteor0090", ShipID: 4181604048, ClanTag: "OZEKI"},
		Allies: []models.PlayerRef{
			{Name: "ally_one", ShipID: 4180522704, ClanTag: "OZEKI"},
			{Name: "ally_two", ShipID: 4179474128, ClanTag: "OZEKI"},
		},
		Enemies: []models.PlayerRef{
			{Name: "enemy_one", ShipID: 4276008656, ClanTag: "PREY"},
			{Name: "enemy_two", ShipID: 4179408592, ClanTag: "PREY"},
		},
		BattleStats: &models.BattleStats{ArenaUniqueID: 8674789463686483},
		Hidden: models.HiddenState{
			BattleResult: &models.BattleResult{WinnerTeamID: 0},
		},
	}
}

func testUpload() UploadInfo {
	return UploadInfo{
		BlobKey:    "replays/discord-1/20260103_232822__meteor0090.wowsreplay",
		FileName:   "20260103_232822__meteor0090.wowsreplay",
		FileSize:   1 << 20,
		UploadedBy: "discord-1",
		UploadedAt: 1767480502,
	}
}

func TestAssemble_ClanWin(t *testing.T) {
	a := newTestAssembler(t)

	asm, err := a.Assemble(clanDecoded(), nil, testUpload())
	if err != nil {
		t.Fatalf("Assemble error: %v", err)
	}

	m := asm.Match
	if m.ArenaUniqueID != strconv.FormatInt(8674789463686483, 10) {
		t.Errorf("ArenaUniqueID = %q", m.ArenaUniqueID)
	}
	if m.GameType != models.GameTypeClan {
		t.Errorf("GameType = %v", m.GameType)
	}
	if m.WinLoss != models.WinLossWin {
		t.Errorf("WinLoss = %v", m.WinLoss)
	}
	if m.ListingKey != "ACTIVE" {
		t.Errorf("ListingKey = %q", m.ListingKey)
	}
	if m.DateTimeSortable != "20260103232822" {
		t.Errorf("DateTimeSortable = %q", m.DateTimeSortable)
	}
	if m.AllyMainClanTag != "OZEKI" || m.EnemyMainClanTag != "PREY" {
		t.Errorf("clan tags = %q vs %q", m.AllyMainClanTag, m.EnemyMainClanTag)
	}
	if m.AllyPerspectivePlayerID != 537149649 {
		t.Errorf("AllyPerspectivePlayerID = %d", m.AllyPerspectivePlayerID)
	}
	if len(m.Allies) != 3 {
		t.Errorf("Allies should include the own player, got %d", len(m.Allies))
	}
	if m.Allies[0].ShipName != "Chung Mu" {
		t.Errorf("own ship resolved to %q", m.Allies[0].ShipName)
	}
	if len(m.Uploaders) != 1 || m.Uploaders[0].Team != models.TeamAlly {
		t.Errorf("Uploaders = %+v", m.Uploaders)
	}
	if m.HasDualReplay {
		t.Error("single upload should not flag dual replay")
	}

	if asm.Stats != nil {
		t.Error("no player stats given, Stats record should be nil")
	}
	if asm.Upload.BlobKey != testUpload().BlobKey || asm.Upload.Team != models.TeamAlly {
		t.Errorf("Upload = %+v", asm.Upload)
	}
}

func TestAssemble_MatchKeyRecomputable(t *testing.T) {
	a := newTestAssembler(t)
	asm, err := a.Assemble(clanDecoded(), nil, testUpload())
	if err != nil {
		t.Fatalf("Assemble error: %v", err)
	}

	m := asm.Match
	names := make([]string, 0, len(m.Allies)+len(m.Enemies))
	for _, p := range m.Allies {
		names = append(names, p.Name)
	}
	for _, p := range m.Enemies {
		names = append(names, p.Name)
	}
	recomputed := MatchKey(m.DateTime, m.MapID, string(m.GameType), names)
	if recomputed != m.MatchKey {
		t.Errorf("matchKey not recomputable from record fields:\n%s\n%s", m.MatchKey, recomputed)
	}
}

func TestAssemble_GameTypeBuckets(t *testing.T) {
	a := newTestAssembler(t)
	tests := []struct {
		raw  string
		want models.GameType
	}{
		{"clan", models.GameTypeClan},
		{"ranked", models.GameTypeRanked},
		{"pvp", models.GameTypeRandom},
		{"pve", models.GameTypeOther},
		{"cooperative", models.GameTypeOther},
		{"BrawlBattle", models.GameTypeOther},
	}
	for _, tt := range tests {
		d := clanDecoded()
		d.GameType = tt.raw
		asm, err := a.Assemble(d, nil, testUpload())
		if err != nil {
			t.Fatalf("Assemble(%s): %v", tt.raw, err)
		}
		if asm.Match.GameType != tt.want {
			t.Errorf("raw %q -> %v, want %v", tt.raw, asm.Match.GameType, tt.want)
		}
	}
}

func TestAssemble_IncompleteReplaySyntheticArena(t *testing.T) {
	a := newTestAssembler(t)
	d := clanDecoded()
	d.BattleStats = nil
	d.Hidden.BattleResult = nil

	asm, err := a.Assemble(d, nil, testUpload())
	if err != nil {
		t.Fatalf("Assemble error: %v", err)
	}
	if asm.Match.ArenaUniqueID[:4] != "tmp-" {
		t.Errorf("expected synthetic arena id, got %q", asm.Match.ArenaUniqueID)
	}
	if asm.Match.WinLoss != models.WinLossUnknown {
		t.Errorf("WinLoss = %v, want unknown", asm.Match.WinLoss)
	}
}

func TestAssemble_EmptyDateTime(t *testing.T) {
	a := newTestAssembler(t)
	d := clanDecoded()
	d.DateTime = ""

	asm, err := a.Assemble(d, nil, testUpload())
	if err != nil {
		t.Fatalf("Assemble error: %v", err)
	}
	if asm.Match.DateTimeSortable != "00000000000000" {
		t.Errorf("DateTimeSortable = %q", asm.Match.DateTimeSortable)
	}
	if asm.Match.UnixTime != 0 {
		t.Errorf("UnixTime = %d, want 0", asm.Match.UnixTime)
	}
}

func TestAssemble_OwnStatsDenormalized(t *testing.T) {
	a := newTestAssembler(t)
	playerStats := []models.PlayerStats{
		{PlayerName: "ally_one", Damage: 90000},
		{PlayerName: "_meteor0090", Damage: 120000, IsOwn: true},
	}

	asm, err := a.Assemble(clanDecoded(), playerStats, testUpload())
	if err != nil {
		t.Fatalf("Assemble error: %v", err)
	}
	if asm.Stats == nil || len(asm.Stats.AllPlayersStats) != 2 {
		t.Fatalf("Stats = %+v", asm.Stats)
	}
	if asm.Upload.OwnStats == nil || asm.Upload.OwnStats.Damage != 120000 {
		t.Errorf("OwnStats = %+v", asm.Upload.OwnStats)
	}
}

func TestMainClanTag(t *testing.T) {
	refs := func(tags ...string) []models.PlayerRef {
		out := make([]models.PlayerRef, len(tags))
		for i, tag := range tags {
			out[i] = models.PlayerRef{Name: "p" + strconv.Itoa(i), ClanTag: tag}
		}
		return out
	}

	tests := []struct {
		name string
		in   []models.PlayerRef
		want string
	}{
		{"clear majority", refs("OZEKI", "OZEKI", "OZEKI", "RAIN"), "OZEKI"},
		{"no shared tag", refs("A", "B", "C"), ""},
		{"all empty", refs("", "", ""), ""},
		{"tie breaks lexicographically", refs("ZZZ", "ZZZ", "AAA", "AAA"), "AAA"},
		{"pair counts", refs("", "DIV", "DIV"), "DIV"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MainClanTag(tt.in); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}
