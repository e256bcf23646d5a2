// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package eventlog

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore is a Store backed by Postgres: events in an append-only
// table guarded by a CAS on MAX(version), leases tracked in a companion
// claims table and claimed with SELECT ... FOR UPDATE SKIP LOCKED.
type PostgresStore struct {
	pool          *pgxpool.Pool
	leaseDuration time.Duration
}

// NewPostgresStore connects to dsn and returns a ready PostgresStore. The
// caller is expected to have already applied the event_log/event_claims/
// event_snapshots schema migrations.
func NewPostgresStore(ctx context.Context, dsn string, leaseDuration time.Duration) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if leaseDuration <= 0 {
		leaseDuration = defaultLeaseDuration
	}
	return &PostgresStore{pool: pool, leaseDuration: leaseDuration}, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) ListEvents(ctx context.Context, execID string) ([]Event, int, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, type, payload, created_at, prev_hash, hash
		FROM event_log WHERE execution_id = $1 ORDER BY version ASC`, execID)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.Type, &e.Payload, &e.CreatedAt, &e.PrevHash, &e.Hash); err != nil {
			return nil, 0, err
		}
		e.ExecutionID = execID
		events = append(events, e)
	}
	return events, len(events), rows.Err()
}

func (s *PostgresStore) Append(ctx context.Context, execID string, expectedVersion int, event Event) (int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	if attemptID := AttemptIDFromContext(ctx); attemptID != "" {
		var current string
		err := tx.QueryRow(ctx, `
			SELECT attempt_id FROM event_claims
			WHERE execution_id = $1 AND expires_at > now()`, execID).Scan(&current)
		if errors.Is(err, pgx.ErrNoRows) || current != attemptID {
			return 0, ErrStaleAttempt
		}
		if err != nil {
			return 0, err
		}
	}

	var version int
	err = tx.QueryRow(ctx, `SELECT COALESCE(MAX(version), 0) FROM event_log WHERE execution_id = $1`, execID).Scan(&version)
	if err != nil {
		return 0, err
	}
	if version != expectedVersion {
		return 0, ErrVersionMismatch
	}

	var prevHash string
	if version > 0 {
		if err := tx.QueryRow(ctx, `
			SELECT hash FROM event_log WHERE execution_id = $1 AND version = $2`, execID, version).Scan(&prevHash); err != nil {
			return 0, err
		}
	}

	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	event.ExecutionID = execID
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	event.PrevHash = prevHash
	event.Hash = ComputeHash(event)
	newVersion := version + 1

	_, err = tx.Exec(ctx, `
		INSERT INTO event_log (id, execution_id, version, type, payload, created_at, prev_hash, hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		event.ID, execID, newVersion, event.Type, event.Payload, event.CreatedAt, event.PrevHash, event.Hash)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, ErrVersionMismatch
		}
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return newVersion, nil
}

func (s *PostgresStore) Claim(ctx context.Context, workerID string) (string, int, string, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return "", 0, "", err
	}
	defer tx.Rollback(ctx)

	var execID string
	err = tx.QueryRow(ctx, `
		SELECT e.execution_id FROM execution_queue e
		LEFT JOIN event_claims c ON c.execution_id = e.execution_id AND c.expires_at > now()
		WHERE c.execution_id IS NULL
		ORDER BY e.priority DESC, e.available_at ASC
		FOR UPDATE OF e SKIP LOCKED LIMIT 1`).Scan(&execID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", 0, "", ErrNoExecution
	}
	if err != nil {
		return "", 0, "", err
	}

	version, attemptID, err := claimLocked(ctx, tx, execID, workerID, s.leaseDuration)
	if err != nil {
		return "", 0, "", err
	}
	if err := tx.Commit(ctx); err != nil {
		return "", 0, "", err
	}
	return execID, version, attemptID, nil
}

func (s *PostgresStore) ClaimExecution(ctx context.Context, workerID, execID string) (int, string, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, "", err
	}
	defer tx.Rollback(ctx)

	version, attemptID, err := claimLocked(ctx, tx, execID, workerID, s.leaseDuration)
	if err != nil {
		return 0, "", err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, "", err
	}
	return version, attemptID, nil
}

func claimLocked(ctx context.Context, tx pgx.Tx, execID, workerID string, leaseDuration time.Duration) (int, string, error) {
	attemptID := uuid.New().String()
	_, err := tx.Exec(ctx, `
		INSERT INTO event_claims (execution_id, worker_id, attempt_id, expires_at)
		VALUES ($1, $2, $3, now() + $4)
		ON CONFLICT (execution_id) DO UPDATE SET
			worker_id = EXCLUDED.worker_id, attempt_id = EXCLUDED.attempt_id, expires_at = EXCLUDED.expires_at
		WHERE event_claims.expires_at < now()`, execID, workerID, attemptID, leaseDuration)
	if err != nil {
		return 0, "", err
	}
	var version int
	if err := tx.QueryRow(ctx, `SELECT COALESCE(MAX(version), 0) FROM event_log WHERE execution_id = $1`, execID).Scan(&version); err != nil {
		return 0, "", err
	}
	return version, attemptID, nil
}

func (s *PostgresStore) Heartbeat(ctx context.Context, workerID, execID string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE event_claims SET expires_at = now() + $3
		WHERE execution_id = $1 AND worker_id = $2`, execID, workerID, s.leaseDuration)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrClaimNotFound
	}
	return nil
}

// Watch polls for new events every 500ms rather than using LISTEN/NOTIFY, to
// keep the store's dependency surface to the pgx driver already in use.
func (s *PostgresStore) Watch(ctx context.Context, execID string) (<-chan Event, error) {
	ch := make(chan Event, 32)
	go func() {
		defer close(ch)
		seen, _, err := s.ListEvents(ctx, execID)
		if err != nil {
			return
		}
		last := len(seen)
		ticker := time.NewTicker(500 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				events, _, err := s.ListEvents(ctx, execID)
				if err != nil {
					continue
				}
				for _, e := range events[last:] {
					select {
					case ch <- e:
					case <-ctx.Done():
						return
					}
				}
				last = len(events)
			}
		}
	}()
	return ch, nil
}

func (s *PostgresStore) ListExecutionIDsWithExpiredClaim(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT execution_id FROM event_claims WHERE expires_at < now()`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *PostgresStore) GetCurrentAttemptID(ctx context.Context, execID string) (string, error) {
	var attemptID string
	err := s.pool.QueryRow(ctx, `
		SELECT attempt_id FROM event_claims WHERE execution_id = $1 AND expires_at > now()`, execID).Scan(&attemptID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	return attemptID, err
}

func (s *PostgresStore) CreateSnapshot(ctx context.Context, execID string, upToVersion int, state []byte) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO event_snapshots (execution_id, version, state, created_at)
		VALUES ($1, $2, $3, now())`, execID, upToVersion, state)
	return err
}

func (s *PostgresStore) GetLatestSnapshot(ctx context.Context, execID string) (*Snapshot, error) {
	var snap Snapshot
	snap.ExecutionID = execID
	err := s.pool.QueryRow(ctx, `
		SELECT version, state, created_at FROM event_snapshots
		WHERE execution_id = $1 ORDER BY version DESC LIMIT 1`, execID).Scan(&snap.Version, &snap.State, &snap.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

func (s *PostgresStore) DeleteSnapshotsBefore(ctx context.Context, execID string, beforeVersion int) error {
	_, err := s.pool.Exec(ctx, `
		DELETE FROM event_snapshots WHERE execution_id = $1 AND version < $2`, execID, beforeVersion)
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

var _ Store = (*PostgresStore)(nil)
