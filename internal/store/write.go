package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/roach88/namehist/internal/history"
)

// execer is satisfied by *sql.Conn and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// AppendElement appends one element to the history of id and returns the
// number of rows written. It performs no ordering or dedup checks; callers
// own those invariants.
func (s *Store) AppendElement(ctx context.Context, id uuid.UUID, el history.Element, source history.Source) (int64, error) {
	conn, err := s.conn(ctx)
	if err != nil {
		return 0, err
	}
	defer conn.Close()

	n, err := insertElement(ctx, conn, id, el, source)
	if err != nil {
		return 0, storageErr("append element", err)
	}
	return n, nil
}

// InsertMetadata creates the reconciliation record of id.
// A second insert for the same id violates the UNIQUE constraint and fails.
func (s *Store) InsertMetadata(ctx context.Context, id uuid.UUID, meta history.Metadata) error {
	checked, err := encodeSeconds(meta.LastChecked)
	if err != nil {
		return history.NewStorage("insert metadata", err)
	}

	conn, err := s.conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	_, err = conn.ExecContext(ctx, `
		INSERT INTO updates ("uuid", "update", "changed")
		VALUES (?, ?, ?)
	`, id[:], checked, meta.LastCheckChanged)
	if err != nil {
		return history.NewStorage("insert metadata", err)
	}
	return nil
}

// UpdateMetadata overwrites the reconciliation record of id in place and
// returns the number of rows changed (0 when id has no record).
func (s *Store) UpdateMetadata(ctx context.Context, id uuid.UUID, meta history.Metadata) (int64, error) {
	checked, err := encodeSeconds(meta.LastChecked)
	if err != nil {
		return 0, history.NewStorage("update metadata", err)
	}

	conn, err := s.conn(ctx)
	if err != nil {
		return 0, err
	}
	defer conn.Close()

	res, err := conn.ExecContext(ctx, `
		UPDATE updates
		SET "update" = ?, "changed" = ?
		WHERE "uuid" = ?
	`, checked, meta.LastCheckChanged, id[:])
	if err != nil {
		return 0, history.NewStorage("update metadata", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, history.NewStorage("update metadata", err)
	}
	return n, nil
}

// SaveMetadata persists meta through the update path when existed is true
// and the insert path otherwise. existed is the caller's earlier GetMetadata
// observation. An update that finds no row falls back to an insert.
func (s *Store) SaveMetadata(ctx context.Context, id uuid.UUID, meta history.Metadata, existed bool) error {
	if !existed {
		return s.InsertMetadata(ctx, id, meta)
	}
	n, err := s.UpdateMetadata(ctx, id, meta)
	if err != nil {
		return err
	}
	if n == 0 {
		return s.InsertMetadata(ctx, id, meta)
	}
	return nil
}

// SeedHistory inserts elements as the whole history of id, but only when id
// has no stored history yet. The check and the inserts share one
// transaction. Reports whether anything was inserted.
func (s *Store) SeedHistory(ctx context.Context, id uuid.UUID, elements []history.Element, source history.Source) (bool, error) {
	if len(elements) == 0 {
		return false, nil
	}

	conn, err := s.conn(ctx)
	if err != nil {
		return false, err
	}
	defer conn.Close()

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return false, history.NewStorage("begin seed", err)
	}
	defer tx.Rollback()

	var existing int64
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM names WHERE "uuid" = ?`, id[:]).Scan(&existing); err != nil {
		return false, history.NewStorage("check existing history", err)
	}
	if existing > 0 {
		return false, nil
	}

	for i, el := range elements {
		if _, err := insertElement(ctx, tx, id, el, source); err != nil {
			return false, storageErr(fmt.Sprintf("seed element %d", i), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, history.NewStorage("commit seed", err)
	}
	return true, nil
}

func insertElement(ctx context.Context, ex execer, id uuid.UUID, el history.Element, source history.Source) (int64, error) {
	var changedToAt sql.NullInt64
	if el.ChangedAt != nil {
		ms, err := encodeMillis(*el.ChangedAt)
		if err != nil {
			return 0, err
		}
		changedToAt = sql.NullInt64{Int64: ms, Valid: true}
	}

	res, err := ex.ExecContext(ctx, `
		INSERT INTO names ("uuid", "name", "changedToAt", "source")
		VALUES (?, ?, ?, ?)
	`, id[:], el.Name, changedToAt, int64(source))
	if err != nil {
		return 0, fmt.Errorf("insert name row: %w", err)
	}
	return res.RowsAffected()
}
