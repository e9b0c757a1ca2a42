package stats

import "github.com/wowsvault/replay-api/internal/models"

// Clan battles award a fixed XP pair, recorded at 10x in privateDataList[7].
const (
	clanBattleWinXP  = 300000
	clanBattleLossXP = 150000
)

// DetermineWinLoss resolves the battle outcome from the uploader's
// perspective. The battle_result winner team is authoritative; the clan-battle
// XP pair is a fallback for replays whose hidden result did not decode.
func DetermineWinLoss(decoded *models.DecodedReplay) models.WinLoss {
	if result := decoded.Hidden.BattleResult; result != nil {
		switch {
		case result.WinnerTeamID == -1:
			return models.WinLossDraw
		case result.WinnerTeamID == decoded.OwnTeamID:
			return models.WinLossWin
		default:
			return models.WinLossLoss
		}
	}
	return winLossFromXP(decoded.BattleStats)
}

// winLossFromXP applies the clan-battle XP heuristic:
// privateDataList[7][0] of 300000 (30k x10) means a win, 150000 a loss.
func winLossFromXP(bs *models.BattleStats) models.WinLoss {
	if bs == nil || len(bs.PrivateDataList) <= 7 {
		return models.WinLossUnknown
	}
	expList, ok := bs.PrivateDataList[7].([]any)
	if !ok || len(expList) == 0 {
		return models.WinLossUnknown
	}
	switch toInt(expList[0]) {
	case clanBattleWinXP:
		return models.WinLossWin
	case clanBattleLossXP:
		return models.WinLossLoss
	}
	return models.WinLossUnknown
}

// ExperienceEarned returns the uploader's earned XP (the recorded value is
// 10x the real one), or 0 when unavailable.
func ExperienceEarned(bs *models.BattleStats) int {
	if bs == nil || len(bs.PrivateDataList) <= 7 {
		return 0
	}
	expList, ok := bs.PrivateDataList[7].([]any)
	if !ok || len(expList) == 0 {
		return 0
	}
	return toInt(expList[0]) / 10
}
