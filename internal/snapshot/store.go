// Package snapshot persists index export blobs to PostgreSQL so a restarted
// service can restore its corpus without the original source files.
package snapshot

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/medsearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/medsearch/pkg/postgres"
)

const schema = `
CREATE TABLE IF NOT EXISTS index_snapshots (
    id          BIGSERIAL PRIMARY KEY,
    generation  BIGINT NOT NULL,
    documents   INTEGER NOT NULL,
    data        TEXT NOT NULL,
    captured_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// Meta describes a stored snapshot without its payload.
type Meta struct {
	ID         int64     `json:"id"`
	Generation uint64    `json:"generation"`
	Documents  int       `json:"documents"`
	CapturedAt time.Time `json:"captured_at"`
}

// Snapshot is a stored export blob.
type Snapshot struct {
	Meta
	Data string `json:"-"`
}

// Store persists index snapshots in the index_snapshots table.
type Store struct {
	db     *postgres.Client
	logger *slog.Logger
}

func NewStore(db *postgres.Client) *Store {
	return &Store{
		db:     db,
		logger: slog.Default().With("component", "snapshot-store"),
	}
}

// EnsureSchema creates the snapshot table if it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.DB.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("creating snapshot schema: %w", err)
	}
	return nil
}

// Save exports idx and stores the blob, then prunes all but the newest keep
// snapshots when keep is positive.
func (s *Store) Save(ctx context.Context, idx *index.Index, keep int) (Meta, error) {
	generation := idx.Generation()
	blob, err := idx.Export()
	if err != nil {
		return Meta{}, err
	}
	meta := Meta{Generation: generation, Documents: idx.Len(), CapturedAt: time.Now().UTC()}

	err = s.db.InTx(ctx, func(tx *sql.Tx) error {
		if err := tx.QueryRowContext(ctx,
			`INSERT INTO index_snapshots (generation, documents, data, captured_at)
			 VALUES ($1, $2, $3, $4) RETURNING id`,
			int64(meta.Generation), meta.Documents, blob, meta.CapturedAt,
		).Scan(&meta.ID); err != nil {
			return fmt.Errorf("inserting snapshot: %w", err)
		}
		if keep <= 0 {
			return nil
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM index_snapshots WHERE id NOT IN
			 (SELECT id FROM index_snapshots ORDER BY id DESC LIMIT $1)`,
			keep,
		); err != nil {
			return fmt.Errorf("pruning snapshots: %w", err)
		}
		return nil
	})
	if err != nil {
		return Meta{}, err
	}

	s.logger.Info("index snapshot saved", "id", meta.ID, "documents", meta.Documents, "generation", meta.Generation)
	return meta, nil
}

// Latest loads the newest snapshot. It returns nil, nil when none exist.
func (s *Store) Latest(ctx context.Context) (*Snapshot, error) {
	var (
		snap       Snapshot
		generation int64
	)
	err := s.db.DB.QueryRowContext(ctx,
		`SELECT id, generation, documents, data, captured_at
		 FROM index_snapshots ORDER BY id DESC LIMIT 1`,
	).Scan(&snap.ID, &generation, &snap.Documents, &snap.Data, &snap.CapturedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying latest snapshot: %w", err)
	}
	snap.Generation = uint64(generation)
	return &snap, nil
}

// Restore imports the newest snapshot into idx. It reports false when there
// is nothing to restore.
func (s *Store) Restore(ctx context.Context, idx *index.Index) (bool, error) {
	snap, err := s.Latest(ctx)
	if err != nil || snap == nil {
		return false, err
	}
	if err := idx.Import(snap.Data); err != nil {
		return false, fmt.Errorf("importing snapshot %d: %w", snap.ID, err)
	}
	s.logger.Info("index restored from snapshot", "id", snap.ID, "documents", snap.Documents, "captured_at", snap.CapturedAt)
	return true, nil
}

// List returns metadata for the newest limit snapshots.
func (s *Store) List(ctx context.Context, limit int) ([]Meta, error) {
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT id, generation, documents, captured_at
		 FROM index_snapshots ORDER BY id DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}
	defer rows.Close()

	var metas []Meta
	for rows.Next() {
		var (
			m          Meta
			generation int64
		)
		if err := rows.Scan(&m.ID, &generation, &m.Documents, &m.CapturedAt); err != nil {
			return nil, fmt.Errorf("scanning snapshot row: %w", err)
		}
		m.Generation = uint64(generation)
		metas = append(metas, m)
	}
	return metas, rows.Err()
}

// StartPeriodicSave saves a snapshot every interval when the index changed
// since the last save, and once more on shutdown.
func (s *Store) StartPeriodicSave(ctx context.Context, idx *index.Index, interval time.Duration, keep int) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		saved := idx.Generation()

		for {
			select {
			case <-ticker.C:
				if idx.Generation() == saved {
					continue
				}
				meta, err := s.Save(ctx, idx, keep)
				if err != nil {
					s.logger.Error("periodic snapshot failed", "error", err)
					continue
				}
				saved = meta.Generation
			case <-ctx.Done():
				if idx.Generation() == saved {
					return
				}
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if _, err := s.Save(shutdownCtx, idx, keep); err != nil {
					s.logger.Error("final snapshot failed", "error", err)
				}
				return
			}
		}
	}()
	s.logger.Info("periodic snapshot started", "interval", interval)
}
