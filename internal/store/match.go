package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/wowsvault/replay-api/internal/models"
)

// ErrConflict is a lost compare-and-set race on the MATCH row; callers retry.
var ErrConflict = errors.New("store: concurrent match update")

// ErrNotFound is returned by point reads that matched nothing.
var ErrNotFound = errors.New("store: record not found")

// PutResult reports what the conditional MATCH write did.
type PutResult struct {
	Created bool // true: this writer created the MATCH row
	// DualFlipped is true when this merge set hasDualReplay for the first
	// time; the caller enqueues the dual render exactly once off this flag.
	DualFlipped bool
}

// CreateOrMergeMatch is the single conditional write that protects all
// concurrent uploads of one battle. The first writer creates the row; later
// writers merge their uploader entry and flip hasDualReplay when their team
// differs. allyPerspectivePlayerID stays pinned to the creator.
func (s *Store) CreateOrMergeMatch(ctx context.Context, match *models.MatchRecord) (PutResult, error) {
	var result PutResult
	err := s.withConflictRetry(ctx, func(ctx context.Context) error {
		r, err := s.tryCreateOrMerge(ctx, match)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	return result, err
}

func (s *Store) tryCreateOrMerge(ctx context.Context, match *models.MatchRecord) (PutResult, error) {
	table := matchTable(match.GameType)

	payload, err := json.Marshal(match)
	if err != nil {
		return PutResult{}, fmt.Errorf("marshal match: %w", err)
	}

	tag, err := s.pg.Exec(ctx, fmt.Sprintf(`
		INSERT INTO %s (arena_unique_id, record_type, listing_key, unix_time, map_id,
		                match_key, win_loss, ally_clan_tag, enemy_clan_tag, version, payload)
		VALUES ($1, 'MATCH', $2, $3, $4, $5, $6, $7, $8, 1, $9)
		ON CONFLICT (arena_unique_id, record_type) DO NOTHING
	`, table),
		match.ArenaUniqueID, match.ListingKey, match.UnixTime, match.MapID,
		match.MatchKey, match.WinLoss, match.AllyMainClanTag, match.EnemyMainClanTag, payload)
	if err != nil {
		return PutResult{}, fmt.Errorf("insert match: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return PutResult{Created: true}, nil
	}

	// Row exists: merge this uploader under optimistic concurrency. The
	// version column is the compare of the compare-and-set.
	existing, version, err := s.getMatchWithVersion(ctx, table, match.ArenaUniqueID)
	if err != nil {
		return PutResult{}, err
	}

	for _, u := range existing.Uploaders {
		if u.PlayerID == match.AllyPerspectivePlayerID {
			// Same player re-uploading: MATCH unchanged by design.
			return PutResult{}, nil
		}
	}

	team := uploaderTeam(existing, match.AllyPerspectivePlayerName)
	existing.Uploaders = append(existing.Uploaders, models.Uploader{
		PlayerID:   match.AllyPerspectivePlayerID,
		PlayerName: match.AllyPerspectivePlayerName,
		Team:       team,
	})
	dualFlipped := false
	if team == models.TeamEnemy && !existing.HasDualReplay {
		existing.HasDualReplay = true
		dualFlipped = true
	}

	merged, err := json.Marshal(existing)
	if err != nil {
		return PutResult{}, fmt.Errorf("marshal merged match: %w", err)
	}

	tag, err = s.pg.Exec(ctx, fmt.Sprintf(`
		UPDATE %s SET payload = $1, version = version + 1
		WHERE arena_unique_id = $2 AND record_type = 'MATCH' AND version = $3
	`, table), merged, match.ArenaUniqueID, version)
	if err != nil {
		return PutResult{}, fmt.Errorf("merge match: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return PutResult{}, ErrConflict
	}
	return PutResult{DualFlipped: dualFlipped}, nil
}

// uploaderTeam classifies a late uploader against the pinned perspective: on
// the creator's ally roster means ally, anything else is the other side.
func uploaderTeam(match *models.MatchRecord, playerName string) models.Team {
	for _, ally := range match.Allies {
		if ally.Name == playerName {
			return models.TeamAlly
		}
	}
	return models.TeamEnemy
}

func (s *Store) getMatchWithVersion(ctx context.Context, table, arenaID string) (*models.MatchRecord, int64, error) {
	var payload []byte
	var version int64
	err := s.pg.QueryRow(ctx, fmt.Sprintf(`
		SELECT payload, version FROM %s
		WHERE arena_unique_id = $1 AND record_type = 'MATCH'
	`, table), arenaID).Scan(&payload, &version)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, 0, ErrNotFound
	}
	if err != nil {
		return nil, 0, fmt.Errorf("get match: %w", err)
	}
	var match models.MatchRecord
	if err := json.Unmarshal(payload, &match); err != nil {
		return nil, 0, fmt.Errorf("unmarshal match: %w", err)
	}
	return &match, version, nil
}

// GetMatch fetches the MATCH record for one arena id within a game type.
func (s *Store) GetMatch(ctx context.Context, gt models.GameType, arenaID string) (*models.MatchRecord, error) {
	match, _, err := s.getMatchWithVersion(ctx, matchTable(gt), arenaID)
	return match, err
}

// FindMatch locates a MATCH record without knowing its game type by checking
// each table; used by API calls keyed on arena id alone.
func (s *Store) FindMatch(ctx context.Context, arenaID string) (*models.MatchRecord, error) {
	for _, gt := range models.GameTypes {
		match, err := s.GetMatch(ctx, gt, arenaID)
		if err == nil {
			return match, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}
	return nil, ErrNotFound
}

// PutStats writes the STATS record create-if-not-exists. The first complete
// upload wins; all replays of one battle agree on the positional arrays.
func (s *Store) PutStats(ctx context.Context, stats *models.StatsRecord) (bool, error) {
	payload, err := json.Marshal(stats)
	if err != nil {
		return false, fmt.Errorf("marshal stats: %w", err)
	}
	tag, err := s.pg.Exec(ctx, fmt.Sprintf(`
		INSERT INTO %s (arena_unique_id, record_type, version, payload)
		VALUES ($1, 'STATS', 1, $2)
		ON CONFLICT (arena_unique_id, record_type) DO NOTHING
	`, matchTable(stats.GameType)), stats.ArenaUniqueID, payload)
	if err != nil {
		return false, fmt.Errorf("insert stats: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// GetStats fetches the STATS record; ErrNotFound for incomplete matches.
func (s *Store) GetStats(ctx context.Context, gt models.GameType, arenaID string) (*models.StatsRecord, error) {
	var payload []byte
	err := s.pg.QueryRow(ctx, fmt.Sprintf(`
		SELECT payload FROM %s WHERE arena_unique_id = $1 AND record_type = 'STATS'
	`, matchTable(gt)), arenaID).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get stats: %w", err)
	}
	var stats models.StatsRecord
	if err := json.Unmarshal(payload, &stats); err != nil {
		return nil, fmt.Errorf("unmarshal stats: %w", err)
	}
	return &stats, nil
}

// PutUpload writes the uploader's own record unconditionally; a player
// re-uploading overwrites only their own row.
func (s *Store) PutUpload(ctx context.Context, upload *models.UploadRecord) error {
	payload, err := json.Marshal(upload)
	if err != nil {
		return fmt.Errorf("marshal upload: %w", err)
	}
	recordType := fmt.Sprintf("UPLOAD#%d", upload.PlayerID)
	_, err = s.pg.Exec(ctx, fmt.Sprintf(`
		INSERT INTO %s (arena_unique_id, record_type, version, payload)
		VALUES ($1, $2, 1, $3)
		ON CONFLICT (arena_unique_id, record_type)
		DO UPDATE SET payload = EXCLUDED.payload, version = %s.version + 1
	`, matchTable(upload.GameType), matchTable(upload.GameType)),
		upload.ArenaUniqueID, recordType, payload)
	if err != nil {
		return fmt.Errorf("put upload: %w", err)
	}
	return nil
}

// GetUploads fetches every UPLOAD record of a match.
func (s *Store) GetUploads(ctx context.Context, gt models.GameType, arenaID string) ([]models.UploadRecord, error) {
	rows, err := s.pg.Query(ctx, fmt.Sprintf(`
		SELECT payload FROM %s
		WHERE arena_unique_id = $1 AND record_type LIKE 'UPLOAD#%%'
		ORDER BY record_type
	`, matchTable(gt)), arenaID)
	if err != nil {
		return nil, fmt.Errorf("get uploads: %w", err)
	}
	defer rows.Close()

	var uploads []models.UploadRecord
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			continue
		}
		var upload models.UploadRecord
		if err := json.Unmarshal(payload, &upload); err != nil {
			continue
		}
		uploads = append(uploads, upload)
	}
	return uploads, rows.Err()
}

// SetVideo stamps the rendered single-perspective video onto the MATCH row.
func (s *Store) SetVideo(ctx context.Context, gt models.GameType, arenaID, mp4Key string, generatedAt time.Time) error {
	return s.updateMatchVideo(ctx, gt, arenaID, func(m *models.MatchRecord) {
		m.MP4Key = mp4Key
		m.MP4GeneratedAt = generatedAt.Unix()
	})
}

// SetDualVideo stamps the combined dual-perspective video.
func (s *Store) SetDualVideo(ctx context.Context, gt models.GameType, arenaID, mp4Key string) error {
	return s.updateMatchVideo(ctx, gt, arenaID, func(m *models.MatchRecord) {
		m.DualMP4Key = mp4Key
	})
}

func (s *Store) updateMatchVideo(ctx context.Context, gt models.GameType, arenaID string, mutate func(*models.MatchRecord)) error {
	table := matchTable(gt)
	return s.withConflictRetry(ctx, func(ctx context.Context) error {
		match, version, err := s.getMatchWithVersion(ctx, table, arenaID)
		if err != nil {
			return err
		}
		mutate(match)
		payload, err := json.Marshal(match)
		if err != nil {
			return fmt.Errorf("marshal match: %w", err)
		}
		tag, err := s.pg.Exec(ctx, fmt.Sprintf(`
			UPDATE %s SET payload = $1, version = version + 1
			WHERE arena_unique_id = $2 AND record_type = 'MATCH' AND version = $3
		`, table), payload, arenaID, version)
		if err != nil {
			return fmt.Errorf("update match video: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrConflict
		}
		return nil
	})
}

// RecordDecodeFailure writes the DECODE_FAILED marker for an upload key.
func (s *Store) RecordDecodeFailure(ctx context.Context, uploadKey, kind, detail string) error {
	_, err := s.pg.Exec(ctx, `
		INSERT INTO decode_failures (upload_key, kind, detail, failed_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (upload_key) DO UPDATE SET kind = EXCLUDED.kind, detail = EXCLUDED.detail, failed_at = now()
	`, uploadKey, kind, detail)
	if err != nil {
		return fmt.Errorf("record decode failure: %w", err)
	}
	return nil
}
