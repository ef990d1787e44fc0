// Package sqlite is the durable domain.StateStore backing, one row per user
// in a single database file. Matrices (the bandit's A/L and b) round-trip as
// little-endian float64 blobs rather than JSON so Save/Load never lose bits
// to decimal rounding; everything else persists as JSON, which is cheap to
// evolve across releases without a migration for every new field.
package sqlite

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"time"

	_ "modernc.org/sqlite"

	"github.com/tutu-network/tutu/internal/domain"
)

// Migrations returns the schema migration statements, applied in order.
func Migrations() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS user_state (
			user_id        TEXT PRIMARY KEY,
			state_json     TEXT NOT NULL,
			bandit_d       INTEGER NOT NULL,
			bandit_lambda  REAL NOT NULL,
			bandit_alpha   REAL NOT NULL,
			bandit_updates INTEGER NOT NULL,
			bandit_a       BLOB NOT NULL,
			bandit_b       BLOB NOT NULL,
			bandit_l       BLOB NOT NULL,
			mdm_json       TEXT NOT NULL,
			mastery_json   TEXT NOT NULL,
			vark_json      TEXT NOT NULL,
			updated_at     TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_user_state_updated ON user_state(updated_at)`,
	}
}

// DB is a sqlite-backed domain.StateStore.
type DB struct {
	db *sql.DB
}

// Open opens (creating if necessary) the sqlite file at dsn and applies the
// schema migrations. dsn is passed straight to modernc.org/sqlite, so
// "file::memory:?cache=shared" and "file:/path/to/amas.db" both work.
func Open(dsn string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dsn, err)
	}
	sqlDB.SetMaxOpenConns(1) // modernc.org/sqlite has no native concurrent-writer story
	db := &DB{db: sqlDB}
	if err := db.migrate(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return db, nil
}

func (db *DB) migrate() error {
	for _, stmt := range Migrations() {
		if _, err := db.db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// Close releases the underlying connection.
func (db *DB) Close() error { return db.db.Close() }

// Load implements domain.StateStore.
func (db *DB) Load(ctx context.Context, userID string) (*domain.PersistedState, bool, error) {
	row := db.db.QueryRowContext(ctx, `
		SELECT state_json, bandit_d, bandit_lambda, bandit_alpha, bandit_updates,
		       bandit_a, bandit_b, bandit_l, mdm_json, mastery_json, vark_json, updated_at
		FROM user_state WHERE user_id = ?
	`, userID)

	var (
		stateJSON, mdmJSON, masteryJSON, varkJSON string
		updatedAtStr                              string
		aBlob, bBlob, lBlob                       []byte
		snap                                       domain.BanditModelSnapshot
	)
	err := row.Scan(&stateJSON, &snap.D, &snap.Lambda, &snap.Alpha, &snap.UpdateCount,
		&aBlob, &bBlob, &lBlob, &mdmJSON, &masteryJSON, &varkJSON, &updatedAtStr)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load user %s: %w", userID, err)
	}

	out := &domain.PersistedState{UserID: userID, Bandit: snap}
	if err := json.Unmarshal([]byte(stateJSON), &out.State); err != nil {
		return nil, false, fmt.Errorf("decode state for %s: %w", userID, err)
	}
	if err := json.Unmarshal([]byte(mdmJSON), &out.Mdm); err != nil {
		return nil, false, fmt.Errorf("decode mdm for %s: %w", userID, err)
	}
	if err := json.Unmarshal([]byte(masteryJSON), &out.Mastery); err != nil {
		return nil, false, fmt.Errorf("decode mastery for %s: %w", userID, err)
	}
	if err := json.Unmarshal([]byte(varkJSON), &out.Vark); err != nil {
		return nil, false, fmt.Errorf("decode vark for %s: %w", userID, err)
	}
	out.Bandit.A, err = decodeMatrix(aBlob, snap.D)
	if err != nil {
		return nil, false, fmt.Errorf("decode bandit A for %s: %w", userID, err)
	}
	out.Bandit.L, err = decodeMatrix(lBlob, snap.D)
	if err != nil {
		return nil, false, fmt.Errorf("decode bandit L for %s: %w", userID, err)
	}
	out.Bandit.B = decodeVector(bBlob)

	updatedAt, err := time.Parse(time.RFC3339Nano, updatedAtStr)
	if err != nil {
		return nil, false, fmt.Errorf("decode updated_at for %s: %w", userID, err)
	}
	out.UpdatedAt = updatedAt

	return out, true, nil
}

// Save implements domain.StateStore, upserting the full row in one statement.
func (db *DB) Save(ctx context.Context, userID string, state *domain.PersistedState) error {
	stateJSON, err := json.Marshal(state.State)
	if err != nil {
		return fmt.Errorf("encode state for %s: %w", userID, err)
	}
	mdmJSON, err := json.Marshal(state.Mdm)
	if err != nil {
		return fmt.Errorf("encode mdm for %s: %w", userID, err)
	}
	masteryJSON, err := json.Marshal(state.Mastery)
	if err != nil {
		return fmt.Errorf("encode mastery for %s: %w", userID, err)
	}
	varkJSON, err := json.Marshal(state.Vark)
	if err != nil {
		return fmt.Errorf("encode vark for %s: %w", userID, err)
	}

	updatedAt := state.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	_, err = db.db.ExecContext(ctx, `
		INSERT INTO user_state (
			user_id, state_json, bandit_d, bandit_lambda, bandit_alpha, bandit_updates,
			bandit_a, bandit_b, bandit_l, mdm_json, mastery_json, vark_json, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			state_json = excluded.state_json,
			bandit_d = excluded.bandit_d,
			bandit_lambda = excluded.bandit_lambda,
			bandit_alpha = excluded.bandit_alpha,
			bandit_updates = excluded.bandit_updates,
			bandit_a = excluded.bandit_a,
			bandit_b = excluded.bandit_b,
			bandit_l = excluded.bandit_l,
			mdm_json = excluded.mdm_json,
			mastery_json = excluded.mastery_json,
			vark_json = excluded.vark_json,
			updated_at = excluded.updated_at
	`, userID, string(stateJSON), state.Bandit.D, state.Bandit.Lambda, state.Bandit.Alpha, state.Bandit.UpdateCount,
		encodeMatrix(state.Bandit.A), encodeVector(state.Bandit.B), encodeMatrix(state.Bandit.L),
		string(mdmJSON), string(masteryJSON), string(varkJSON), updatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("save user %s: %w", userID, err)
	}
	return nil
}

// ─── Matrix/vector blob encoding ────────────────────────────────────────────
// Row-major little-endian float64, so a square DxD matrix is D*D*8 bytes.

func encodeVector(v []float64) []byte {
	buf := make([]byte, 8*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(x))
	}
	return buf
}

func decodeVector(b []byte) []float64 {
	n := len(b) / 8
	if n == 0 {
		return nil
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = math.Float64frombits(binary.LittleEndian.Uint64(b[i*8:]))
	}
	return out
}

func encodeMatrix(m [][]float64) []byte {
	var buf bytes.Buffer
	for _, row := range m {
		buf.Write(encodeVector(row))
	}
	return buf.Bytes()
}

func decodeMatrix(b []byte, d int) ([][]float64, error) {
	if d <= 0 {
		return nil, nil
	}
	rowBytes := d * 8
	if len(b)%rowBytes != 0 {
		return nil, fmt.Errorf("matrix blob length %d not a multiple of row size %d", len(b), rowBytes)
	}
	rows := len(b) / rowBytes
	out := make([][]float64, rows)
	for i := 0; i < rows; i++ {
		out[i] = decodeVector(b[i*rowBytes : (i+1)*rowBytes])
	}
	return out, nil
}
