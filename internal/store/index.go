package store

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/wowsvault/replay-api/internal/models"
)

// BuildIndexRows derives the reverse-index rows for a freshly created MATCH.
// Exactly one row per (dimension value, arena id) tuple.
func BuildIndexRows(match *models.MatchRecord) ([]models.ShipIndexRow, []models.PlayerIndexRow, []models.ClanIndexRow) {
	sk := IndexSK(match.GameType, match.UnixTime, match.ArenaUniqueID)

	type counts struct{ ally, enemy int }

	shipCounts := make(map[string]*counts)
	clanCounts := make(map[string]*counts)
	var players []models.PlayerIndexRow

	tally := func(refs []models.PlayerRef, team models.Team) {
		for _, p := range refs {
			if p.ShipName != "" {
				key := strings.ToUpper(p.ShipName)
				c := shipCounts[key]
				if c == nil {
					c = &counts{}
					shipCounts[key] = c
				}
				if team == models.TeamAlly {
					c.ally++
				} else {
					c.enemy++
				}
			}
			if p.ClanTag != "" {
				c := clanCounts[p.ClanTag]
				if c == nil {
					c = &counts{}
					clanCounts[p.ClanTag] = c
				}
				if team == models.TeamAlly {
					c.ally++
				} else {
					c.enemy++
				}
			}
			if p.Name != "" {
				players = append(players, models.PlayerIndexRow{
					PlayerName: p.Name,
					SK:         sk,
					Team:       team,
					ClanTag:    p.ClanTag,
					ShipName:   p.ShipName,
				})
			}
		}
	}
	tally(match.Allies, models.TeamAlly)
	tally(match.Enemies, models.TeamEnemy)

	ships := make([]models.ShipIndexRow, 0, len(shipCounts))
	for name, c := range shipCounts {
		ships = append(ships, models.ShipIndexRow{
			ShipName:   name,
			SK:         sk,
			AllyCount:  c.ally,
			EnemyCount: c.enemy,
			TotalCount: c.ally + c.enemy,
		})
	}
	sort.Slice(ships, func(i, j int) bool { return ships[i].ShipName < ships[j].ShipName })

	clans := make([]models.ClanIndexRow, 0, len(clanCounts))
	for tag, c := range clanCounts {
		team := models.TeamAlly
		if c.enemy > c.ally {
			team = models.TeamEnemy
		}
		clans = append(clans, models.ClanIndexRow{
			ClanTag:     tag,
			SK:          sk,
			Team:        team,
			MemberCount: c.ally + c.enemy,
			IsMainClan:  tag == match.AllyMainClanTag || tag == match.EnemyMainClanTag,
		})
	}
	sort.Slice(clans, func(i, j int) bool { return clans[i].ClanTag < clans[j].ClanTag })

	return ships, players, clans
}

// WriteIndexes upserts the reverse-index rows. Called only when the MATCH
// insert actually created the row, never on merge; upsert keeps an admin
// backfill idempotent.
func (s *Store) WriteIndexes(ctx context.Context, match *models.MatchRecord) error {
	ships, players, clans := BuildIndexRows(match)

	for _, row := range ships {
		if _, err := s.pg.Exec(ctx, `
			INSERT INTO ship_index (ship_name, sk, ally_count, enemy_count, total_count)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (ship_name, sk) DO UPDATE
			SET ally_count = EXCLUDED.ally_count, enemy_count = EXCLUDED.enemy_count, total_count = EXCLUDED.total_count
		`, row.ShipName, row.SK, row.AllyCount, row.EnemyCount, row.TotalCount); err != nil {
			return fmt.Errorf("write ship index: %w", err)
		}
	}

	for _, row := range players {
		if _, err := s.pg.Exec(ctx, `
			INSERT INTO player_index (player_name, sk, team, clan_tag, ship_name)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (player_name, sk) DO UPDATE
			SET team = EXCLUDED.team, clan_tag = EXCLUDED.clan_tag, ship_name = EXCLUDED.ship_name
		`, row.PlayerName, row.SK, row.Team, row.ClanTag, row.ShipName); err != nil {
			return fmt.Errorf("write player index: %w", err)
		}
	}

	for _, row := range clans {
		if _, err := s.pg.Exec(ctx, `
			INSERT INTO clan_index (clan_tag, sk, team, member_count, is_main_clan)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (clan_tag, sk) DO UPDATE
			SET team = EXCLUDED.team, member_count = EXCLUDED.member_count, is_main_clan = EXCLUDED.is_main_clan
		`, row.ClanTag, row.SK, row.Team, row.MemberCount, row.IsMainClan); err != nil {
			return fmt.Errorf("write clan index: %w", err)
		}
	}

	return nil
}

// indexLookupLimit bounds how many index rows feed one search; the newest
// rows win, matching the listing order.
const indexLookupLimit = 500

// SearchShipIndex returns ship-index rows for a ship name, newest first.
func (s *Store) SearchShipIndex(ctx context.Context, shipName string, gt models.GameType) ([]models.ShipIndexRow, error) {
	query := `SELECT ship_name, sk, ally_count, enemy_count, total_count FROM ship_index WHERE ship_name = $1`
	args := []any{strings.ToUpper(shipName)}
	if gt != "" {
		query += ` AND sk LIKE $2`
		args = append(args, string(gt)+"#%")
	}
	query += fmt.Sprintf(` ORDER BY sk DESC LIMIT %d`, indexLookupLimit)

	rows, err := s.pg.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search ship index: %w", err)
	}
	defer rows.Close()

	var out []models.ShipIndexRow
	for rows.Next() {
		var r models.ShipIndexRow
		if err := rows.Scan(&r.ShipName, &r.SK, &r.AllyCount, &r.EnemyCount, &r.TotalCount); err != nil {
			continue
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// SearchPlayerIndex returns player-index rows for a player name, newest first.
func (s *Store) SearchPlayerIndex(ctx context.Context, playerName string, gt models.GameType) ([]models.PlayerIndexRow, error) {
	query := `SELECT player_name, sk, team, clan_tag, ship_name FROM player_index WHERE player_name = $1`
	args := []any{playerName}
	if gt != "" {
		query += ` AND sk LIKE $2`
		args = append(args, string(gt)+"#%")
	}
	query += fmt.Sprintf(` ORDER BY sk DESC LIMIT %d`, indexLookupLimit)

	rows, err := s.pg.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search player index: %w", err)
	}
	defer rows.Close()

	var out []models.PlayerIndexRow
	for rows.Next() {
		var r models.PlayerIndexRow
		if err := rows.Scan(&r.PlayerName, &r.SK, &r.Team, &r.ClanTag, &r.ShipName); err != nil {
			continue
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// SearchClanIndex returns clan-index rows for a clan tag, newest first.
func (s *Store) SearchClanIndex(ctx context.Context, clanTag string, gt models.GameType) ([]models.ClanIndexRow, error) {
	query := `SELECT clan_tag, sk, team, member_count, is_main_clan FROM clan_index WHERE clan_tag = $1`
	args := []any{clanTag}
	if gt != "" {
		query += ` AND sk LIKE $2`
		args = append(args, string(gt)+"#%")
	}
	query += fmt.Sprintf(` ORDER BY sk DESC LIMIT %d`, indexLookupLimit)

	rows, err := s.pg.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search clan index: %w", err)
	}
	defer rows.Close()

	var out []models.ClanIndexRow
	for rows.Next() {
		var r models.ClanIndexRow
		if err := rows.Scan(&r.ClanTag, &r.SK, &r.Team, &r.MemberCount, &r.IsMainClan); err != nil {
			continue
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
