// Package analytics flattens per-player battle stats into ClickHouse for
// aggregate queries (damage averages per ship, clan win rates over time).
// Rows are append-only; the Postgres MATCH record stays the source of truth.
package analytics

import (
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"

	"github.com/wowsvault/replay-api/internal/models"
)

// Writer batch-inserts one row per player per battle.
type Writer struct {
	ch     driver.Conn
	logger *zap.SugaredLogger
}

func NewWriter(ch driver.Conn, logger *zap.Logger) *Writer {
	return &Writer{ch: ch, logger: logger.Sugar()}
}

// Schema is the DDL for the analytics table, applied at startup.
const Schema = `
CREATE TABLE IF NOT EXISTS wows_stats.player_battles (
    arena_unique_id String,
    game_type       LowCardinality(String),
    unix_time       Int64,
    map_id          LowCardinality(String),
    client_version  LowCardinality(String),
    win_loss        LowCardinality(String),
    player_id       Int64,
    player_name     String,
    clan_tag        String,
    team            LowCardinality(String),
    ship_id         Int64,
    ship_name       String,
    ship_class      LowCardinality(String),
    damage          Int64,
    received_damage Int64,
    spotting_damage Int64,
    potential_damage Int64,
    kills           Int32,
    fires           Int32,
    floods          Int32,
    citadels        Int32,
    base_xp         Int64,
    survival_time   Int32
) ENGINE = MergeTree()
ORDER BY (game_type, unix_time, arena_unique_id, player_id)
`

// EnsureSchema creates the database and table when absent.
func (w *Writer) EnsureSchema(ctx context.Context) error {
	if err := w.ch.Exec(ctx, `CREATE DATABASE IF NOT EXISTS wows_stats`); err != nil {
		return fmt.Errorf("analytics: create database: %w", err)
	}
	if err := w.ch.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("analytics: create table: %w", err)
	}
	return nil
}

// WriteMatch appends every scoreboard line of one match as a batch. Re-runs
// for the same arena id duplicate rows; readers aggregate with uniqExact on
// (arena_unique_id, player_id), so duplicates only cost storage.
func (w *Writer) WriteMatch(ctx context.Context, match *models.MatchRecord, stats *models.StatsRecord) error {
	if stats == nil || len(stats.AllPlayersStats) == 0 {
		return nil
	}

	batch, err := w.ch.PrepareBatch(ctx, `
		INSERT INTO wows_stats.player_battles (
			arena_unique_id, game_type, unix_time, map_id, client_version, win_loss,
			player_id, player_name, clan_tag, team, ship_id, ship_name, ship_class,
			damage, received_damage, spotting_damage, potential_damage,
			kills, fires, floods, citadels, base_xp, survival_time
		)
	`)
	if err != nil {
		return fmt.Errorf("analytics: prepare batch: %w", err)
	}

	for _, ps := range stats.AllPlayersStats {
		err := batch.Append(
			match.ArenaUniqueID,
			string(match.GameType),
			match.UnixTime,
			match.MapID,
			match.ClientVersion,
			string(match.WinLoss),
			ps.PlayerID,
			ps.PlayerName,
			ps.ClanTag,
			string(ps.Team),
			ps.ShipID,
			ps.ShipName,
			string(ps.ShipClass),
			int64(ps.Damage),
			int64(ps.ReceivedDamage),
			int64(ps.SpottingDamage),
			int64(ps.PotentialDamage),
			int32(ps.Kills),
			int32(ps.Fires),
			int32(ps.Floods),
			int32(ps.Citadels),
			int64(ps.BaseXP),
			int32(ps.SurvivalTime),
		)
		if err != nil {
			w.logger.Warnw("Failed to append player row to batch", "player", ps.PlayerName, "error", err)
			continue
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("analytics: send batch: %w", err)
	}
	return nil
}
