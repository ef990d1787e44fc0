package domain

import "context"

// ─── Service Interfaces ─────────────────────────────────────────────────────
// These interfaces define boundaries between layers.
// Infrastructure implements them; application layer depends on them.

// StateStore abstracts durable storage of a user's full AMAS state. A
// reference SQLite-backed implementation lives under internal/store/sqlite;
// internal/store/memstore offers a process-local implementation for tests
// and the CLI.
type StateStore interface {
	Load(ctx context.Context, userID string) (*PersistedState, bool, error)
	Save(ctx context.Context, userID string, state *PersistedState) error
}

// EventSource abstracts where RawEvents come from (HTTP body, JSONL replay,
// a message queue in a richer deployment).
type EventSource interface {
	Next(ctx context.Context) (*RawEvent, error)
}

// ResultConsumer abstracts where a ProcessResult goes after it is produced
// (HTTP response, a live stream, a log sink).
type ResultConsumer interface {
	Consume(ctx context.Context, result *ProcessResult) error
}
