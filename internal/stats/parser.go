// Package stats turns the positional playersPublicInfo arrays of a decoded
// BattleStats payload into named per-player records, using a reviewed
// per-version index table.
package stats

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/wowsvault/replay-api/internal/models"
)

// Parser decodes scoreboard arrays. Ship params and modernization tables are
// built once at process start and shared; the parser itself is stateless.
type Parser struct {
	ships  *ShipParams
	mods   *Modernizations
	logger *zap.SugaredLogger
}

func NewParser(ships *ShipParams, mods *Modernizations, logger *zap.Logger) *Parser {
	return &Parser{ships: ships, mods: mods, logger: logger.Sugar()}
}

// Parse emits one PlayerStats per playersPublicInfo entry, sorted by damage
// descending. Returns ErrIndexMissing when the client version has no table.
func (p *Parser) Parse(decoded *models.DecodedReplay) ([]models.PlayerStats, error) {
	if decoded.BattleStats == nil {
		return nil, nil
	}

	table, err := TableFor(decoded.ClientVersion)
	if err != nil {
		return nil, err
	}

	// Name -> roster entry, to pull team/ship/own flags onto each line.
	type rosterEntry struct {
		ref   models.PlayerRef
		team  models.Team
		isOwn bool
	}
	roster := make(map[string]rosterEntry, 1+len(decoded.Allies)+len(decoded.Enemies))
	roster[decoded.OwnPlayer.Name] = rosterEntry{ref: decoded.OwnPlayer, team: models.TeamAlly, isOwn: true}
	for _, ally := range decoded.Allies {
		roster[ally.Name] = rosterEntry{ref: ally, team: models.TeamAlly}
	}
	for _, enemy := range decoded.Enemies {
		roster[enemy.Name] = rosterEntry{ref: enemy, team: models.TeamEnemy}
	}

	hiddenByName := make(map[string]*models.HiddenPlayer, len(decoded.Hidden.Players))
	for _, hp := range decoded.Hidden.Players {
		hiddenByName[hp.Name] = hp
	}

	out := make([]models.PlayerStats, 0, len(decoded.BattleStats.PlayersPublicInfo))
	for playerID, raw := range decoded.BattleStats.PlayersPublicInfo {
		ps, err := p.parseOne(table, playerID, raw)
		if err != nil {
			p.logger.Warnw("Skipping unparseable player entry", "playerID", playerID, "error", err)
			continue
		}

		entry, onRoster := roster[ps.PlayerName]
		if onRoster {
			ps.Team = entry.team
			ps.IsOwn = entry.isOwn
			ps.ShipID = entry.ref.ShipID
		} else {
			ps.Team = models.TeamUnknown
		}

		hp := hiddenByName[ps.PlayerName]
		if hp != nil && ps.ShipID == 0 {
			ps.ShipID = hp.ShipParamsID
		}
		if ps.ShipID != 0 {
			ps.ShipName = p.ships.Name(ps.ShipID)
			ps.ShipClass = p.ships.Class(ps.ShipID)
		}
		if hp != nil {
			ps.CaptainSkills = captainSkills(decoded.Hidden, hp, ps.ShipClass)
			ps.Upgrades = p.mods.upgradesFromDump(hp.ShipConfigDump)
			if ps.ClanTag == "" {
				ps.ClanTag = hp.ClanTag
			}
		}

		out = append(out, *ps)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Damage != out[j].Damage {
			return out[i].Damage > out[j].Damage
		}
		return out[i].PlayerName < out[j].PlayerName
	})
	return out, nil
}

// parseOne decodes a single positional array through the index table.
func (p *Parser) parseOne(table IndexTable, playerID int64, raw []any) (*models.PlayerStats, error) {
	if len(raw) < table.MinSlots {
		return nil, fmt.Errorf("stats: array has %d slots, table %s needs %d", len(raw), table.Version, table.MinSlots)
	}

	intOf := func(f FieldID) int {
		v, _ := decodeSlot(raw, table.Slots[f]).(int)
		return v
	}
	stringOf := func(f FieldID) string {
		v, _ := decodeSlot(raw, table.Slots[f]).(string)
		return v
	}

	ps := &models.PlayerStats{
		PlayerID:   playerID,
		PlayerName: stringOf(FieldPlayerName),
		ClanTag:    stringOf(FieldClanTag),

		Damage:          intOf(FieldDamage),
		ReceivedDamage:  intOf(FieldReceivedDamage),
		SpottingDamage:  intOf(FieldSpottingDamage),
		PotentialDamage: intOf(FieldPotentialDamage),
		Kills:           intOf(FieldKills),
		Fires:           intOf(FieldFires),
		Floods:          intOf(FieldFloods),
		Citadels:        intOf(FieldCitadels),
		Crits:           intOf(FieldCrits),
		BaseXP:          intOf(FieldBaseXP),
		SurvivalTime:    intOf(FieldSurvivalTime),

		HitsAP:          intOf(FieldHitsAP),
		HitsHE:          intOf(FieldHitsHE),
		HitsSecondaries: intOf(FieldHitsSecondaries),

		DamageAP:             intOf(FieldDamageAP),
		DamageHE:             intOf(FieldDamageHE),
		DamageHESecondaries:  intOf(FieldDamageHESecondaries),
		DamageSAPSecondaries: intOf(FieldDamageSAPSecondaries),
		DamageTorps:          intOf(FieldDamageTorps),
		DamageDeepWaterTorps: intOf(FieldDamageDeepWaterTorps),
		DamageFire:           intOf(FieldDamageFire),
		DamageFlooding:       intOf(FieldDamageFlooding),
		DamageOther:          intOf(FieldDamageOther),
	}

	if ps.PlayerName == "" {
		return nil, fmt.Errorf("stats: player %d has no name slot", playerID)
	}
	return ps, nil
}
