package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/wowsvault/replay-api/internal/models"
)

// defaultSearchLimit applies when the request carries no explicit limit.
const defaultSearchLimit = 30

// Search runs the paginated match search. The most selective reverse index is
// consulted first (ship, then player, then clan); remaining filters apply as
// post-scan predicates against the listing query.
func (s *Store) Search(ctx context.Context, req models.SearchRequest) (*models.SearchResponse, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	var gameTypes []models.GameType
	var indexGT models.GameType
	if req.GameType != "" {
		indexGT = models.NormalizeGameType(req.GameType)
		gameTypes = []models.GameType{indexGT}
	} else {
		gameTypes = models.GameTypes
	}

	// Index phase: intersect arena-id sets across the dimensions present.
	var filtered map[string]bool
	intersect := func(ids map[string]bool) {
		if filtered == nil {
			filtered = ids
			return
		}
		for id := range filtered {
			if !ids[id] {
				delete(filtered, id)
			}
		}
	}

	if req.ShipName != "" {
		rows, err := s.SearchShipIndex(ctx, req.ShipName, indexGT)
		if err != nil {
			return nil, err
		}
		ids := make(map[string]bool, len(rows))
		for _, r := range rows {
			if req.ShipTeam == "ally" && r.AllyCount < 1 {
				continue
			}
			if req.ShipTeam == "enemy" && r.EnemyCount < 1 {
				continue
			}
			if req.ShipMinCount > 0 && r.TotalCount < req.ShipMinCount {
				continue
			}
			if _, _, arenaID, err := ParseIndexSK(r.SK); err == nil {
				ids[arenaID] = true
			}
		}
		intersect(ids)
	}

	if req.PlayerName != "" {
		rows, err := s.SearchPlayerIndex(ctx, req.PlayerName, indexGT)
		if err != nil {
			return nil, err
		}
		ids := make(map[string]bool, len(rows))
		for _, r := range rows {
			if _, _, arenaID, err := ParseIndexSK(r.SK); err == nil {
				ids[arenaID] = true
			}
		}
		intersect(ids)
	}

	if req.ClanTag != "" {
		rows, err := s.SearchClanIndex(ctx, req.ClanTag, indexGT)
		if err != nil {
			return nil, err
		}
		ids := make(map[string]bool, len(rows))
		for _, r := range rows {
			if _, _, arenaID, err := ParseIndexSK(r.SK); err == nil {
				ids[arenaID] = true
			}
		}
		intersect(ids)
	}

	if filtered != nil && len(filtered) == 0 {
		return &models.SearchResponse{Items: []models.MatchRecord{}, Count: 0}, nil
	}

	// Listing phase: fetch candidates per table, newest first.
	var all []models.MatchRecord
	for _, gt := range gameTypes {
		items, err := s.listMatches(ctx, gt, req, limit)
		if err != nil {
			return nil, err
		}
		for _, item := range items {
			if filtered != nil && !filtered[item.ArenaUniqueID] {
				continue
			}
			all = append(all, item)
		}
	}

	sort.Slice(all, func(i, j int) bool { return all[i].UnixTime > all[j].UnixTime })

	hasMore := len(all) > limit
	if hasMore {
		all = all[:limit]
	}
	var cursor int64
	if hasMore && len(all) > 0 {
		cursor = all[len(all)-1].UnixTime
	}

	return &models.SearchResponse{
		Items:          all,
		Count:          len(all),
		CursorUnixTime: cursor,
		HasMore:        hasMore,
	}, nil
}

// listMatches queries one game-type table with the scalar-filterable
// predicates lowered to SQL; the date range lowers to BETWEEN on unix_time.
func (s *Store) listMatches(ctx context.Context, gt models.GameType, req models.SearchRequest, limit int) ([]models.MatchRecord, error) {
	query := fmt.Sprintf(`
		SELECT payload FROM %s
		WHERE record_type = 'MATCH' AND listing_key = 'ACTIVE'
	`, matchTable(gt))
	args := []any{}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if req.MapID != "" {
		query += ` AND map_id = ` + arg(req.MapID)
	}
	if req.AllyClanTag != "" {
		query += ` AND ally_clan_tag = ` + arg(req.AllyClanTag)
	}
	if req.EnemyClanTag != "" {
		query += ` AND enemy_clan_tag = ` + arg(req.EnemyClanTag)
	}
	if req.WinLoss != "" {
		query += ` AND win_loss = ` + arg(req.WinLoss)
	}
	if req.DateFrom > 0 && req.DateTo > 0 {
		query += ` AND unix_time BETWEEN ` + arg(req.DateFrom) + ` AND ` + arg(req.DateTo)
	} else if req.DateFrom > 0 {
		query += ` AND unix_time >= ` + arg(req.DateFrom)
	} else if req.DateTo > 0 {
		query += ` AND unix_time <= ` + arg(req.DateTo)
	}
	if req.CursorUnixTime > 0 {
		query += ` AND unix_time < ` + arg(req.CursorUnixTime)
	}

	// Overfetch so post-scan index filtering still fills a page.
	query += fmt.Sprintf(` ORDER BY unix_time DESC LIMIT %d`, limit*3+1)

	rows, err := s.pg.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list matches %s: %w", gt, err)
	}
	defer rows.Close()

	var out []models.MatchRecord
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			continue
		}
		var match models.MatchRecord
		if err := json.Unmarshal(payload, &match); err != nil {
			continue
		}
		out = append(out, match)
	}
	return out, rows.Err()
}

// MatchDetail joins MATCH + STATS + UPLOAD records under one partition key.
func (s *Store) MatchDetail(ctx context.Context, arenaID string) (*models.MatchDetail, error) {
	match, err := s.FindMatch(ctx, arenaID)
	if err != nil {
		return nil, err
	}

	detail := &models.MatchDetail{Match: match}

	stats, err := s.GetStats(ctx, match.GameType, arenaID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	detail.Stats = stats

	uploads, err := s.GetUploads(ctx, match.GameType, arenaID)
	if err != nil {
		return nil, err
	}
	detail.Uploads = uploads

	return detail, nil
}
