// Package store persists MATCH/STATS/UPLOAD records and the ship/player/clan
// reverse indexes, one table set per game type. All cross-writer coordination
// is the compare-and-set on the MATCH row; nothing here takes locks.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/wowsvault/replay-api/internal/models"
)

// PgPool defines the interface for the PostgreSQL connection pool.
type PgPool interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Store is the persister and read-side query surface.
type Store struct {
	pg     PgPool
	logger *zap.SugaredLogger

	// Conflict retry policy for the MATCH compare-and-set.
	retryBase time.Duration
	retryMax  uint64
}

func New(pg PgPool, logger *zap.Logger) *Store {
	return &Store{
		pg:        pg,
		logger:    logger.Sugar(),
		retryBase: 50 * time.Millisecond,
		retryMax:  5,
	}
}

// matchTable maps a game type to its table. Game types are a closed enum, so
// this can never build SQL from caller input.
func matchTable(gt models.GameType) string {
	switch gt {
	case models.GameTypeClan:
		return "matches_clan"
	case models.GameTypeRanked:
		return "matches_ranked"
	case models.GameTypeRandom:
		return "matches_random"
	default:
		return "matches_other"
	}
}

// IndexSK builds the reverse-index sort key: gameType#unixTime#arenaUniqueID.
// Range scans over it are monotonic in time within one game type.
func IndexSK(gt models.GameType, unixTime int64, arenaID string) string {
	return fmt.Sprintf("%s#%010d#%s", gt, unixTime, arenaID)
}

// ParseIndexSK splits a reverse-index sort key back into its parts.
func ParseIndexSK(sk string) (gt models.GameType, unixTime int64, arenaID string, err error) {
	parts := splitSK(sk)
	if len(parts) != 3 {
		err = fmt.Errorf("store: bad index sk %q", sk)
		return
	}
	gt = models.GameType(parts[0])
	if _, err = fmt.Sscanf(parts[1], "%d", &unixTime); err != nil {
		return
	}
	arenaID = parts[2]
	return gt, unixTime, arenaID, nil
}

func splitSK(sk string) []string {
	var parts []string
	start := 0
	for i := 0; i < len(sk); i++ {
		if sk[i] == '#' {
			parts = append(parts, sk[start:i])
			start = i + 1
			if len(parts) == 2 {
				break
			}
		}
	}
	parts = append(parts, sk[start:])
	return parts
}

// withConflictRetry runs fn, retrying on ErrConflict with exponential backoff
// up to the configured bound.
func (s *Store) withConflictRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	backoff := retry.WithMaxRetries(s.retryMax, retry.NewExponential(s.retryBase))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := fn(ctx)
		if err == ErrConflict {
			return retry.RetryableError(err)
		}
		return err
	})
}
