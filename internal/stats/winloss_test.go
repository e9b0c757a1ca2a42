package stats

import (
	"testing"

	"github.com/wowsvault/replay-api/internal/models"
)

func decodedWithResult(ownTeam int, result *models.BattleResult, privateData []any) *models.DecodedReplay {
	return &models.DecodedReplay{
		OwnTeamID: ownTeam,
		Hidden:    models.HiddenState{BattleResult: result},
		BattleStats: &models.BattleStats{
			PrivateDataList: privateData,
		},
	}
}

func TestDetermineWinLoss_FromBattleResult(t *testing.T) {
	tests := []struct {
		name    string
		ownTeam int
		winner  int
		want    models.WinLoss
	}{
		{"own team wins", 0, 0, models.WinLossWin},
		{"other team wins", 0, 1, models.WinLossLoss},
		{"draw", 0, -1, models.WinLossDraw},
		{"own team one wins", 1, 1, models.WinLossWin},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := decodedWithResult(tt.ownTeam, &models.BattleResult{WinnerTeamID: tt.winner}, nil)
			if got := DetermineWinLoss(d); got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDetermineWinLoss_XPFallback(t *testing.T) {
	privateData := func(xp int64) []any {
		return []any{nil, nil, nil, nil, nil, nil, nil, []any{xp}}
	}

	tests := []struct {
		name string
		data []any
		want models.WinLoss
	}{
		{"win xp", privateData(300000), models.WinLossWin},
		{"loss xp", privateData(150000), models.WinLossLoss},
		{"random xp", privateData(98765), models.WinLossUnknown},
		{"short list", []any{int64(1)}, models.WinLossUnknown},
		{"nil list", nil, models.WinLossUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := decodedWithResult(0, nil, tt.data)
			if got := DetermineWinLoss(d); got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDetermineWinLoss_ResultBeatsXP(t *testing.T) {
	// A decoded battle_result always wins over the heuristic, even when the
	// XP says the opposite.
	d := decodedWithResult(0, &models.BattleResult{WinnerTeamID: 1},
		[]any{nil, nil, nil, nil, nil, nil, nil, []any{int64(300000)}})
	if got := DetermineWinLoss(d); got != models.WinLossLoss {
		t.Errorf("got %v, want loss", got)
	}
}

func TestExperienceEarned(t *testing.T) {
	d := decodedWithResult(0, nil, []any{nil, nil, nil, nil, nil, nil, nil, []any{int64(300000)}})
	if got := ExperienceEarned(d.BattleStats); got != 30000 {
		t.Errorf("ExperienceEarned = %d, want 30000 (recorded value is 10x)", got)
	}
	if got := ExperienceEarned(nil); got != 0 {
		t.Errorf("ExperienceEarned(nil) = %d", got)
	}
}
