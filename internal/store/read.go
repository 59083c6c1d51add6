package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"github.com/roach88/namehist/internal/history"
)

// GetHistory returns the stored history of id, oldest first.
//
// Returns an empty slice (not nil) if id has no history.
func (s *Store) GetHistory(ctx context.Context, id uuid.UUID) ([]history.Element, error) {
	conn, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	// NULL changedToAt sorts first in SQLite; "index" keeps insertion order for ties.
	rows, err := conn.QueryContext(ctx, `
		SELECT "name", "changedToAt"
		FROM names
		WHERE "uuid" = ?
		ORDER BY "changedToAt" ASC, "index" ASC
	`, id[:])
	if err != nil {
		return nil, history.NewStorage("query history", err)
	}
	defer rows.Close()

	elements := []history.Element{}
	for rows.Next() {
		var name string
		var changedToAt any
		if err := rows.Scan(&name, &changedToAt); err != nil {
			return nil, history.NewStorage("scan history row", err)
		}

		if changedToAt == nil {
			elements = append(elements, history.NewInitialElement(name))
			continue
		}
		v, err := storedInt(changedToAt, "ms")
		if err != nil {
			return nil, history.NewStorage("decode history row", err)
		}
		at, err := decodeMillis(v)
		if err != nil {
			return nil, history.NewStorage("decode history row", err)
		}
		elements = append(elements, history.NewElement(name, at))
	}

	if err := rows.Err(); err != nil {
		return nil, history.NewStorage("iterate history", err)
	}

	return elements, nil
}

// GetMetadata returns the reconciliation record of id, or nil if id was
// never reconciled.
func (s *Store) GetMetadata(ctx context.Context, id uuid.UUID) (*history.Metadata, error) {
	conn, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	var updated any
	var changed bool
	err = conn.QueryRowContext(ctx, `
		SELECT "update", "changed"
		FROM updates
		WHERE "uuid" = ?
	`, id[:]).Scan(&updated, &changed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, history.NewStorage("query metadata", err)
	}

	v, err := storedInt(updated, "s")
	if err != nil {
		return nil, history.NewStorage("decode metadata", err)
	}
	checked, err := decodeSeconds(v)
	if err != nil {
		return nil, history.NewStorage("decode metadata", err)
	}

	return &history.Metadata{LastChecked: checked, LastCheckChanged: changed}, nil
}

// CountIdentifiers returns how many distinct identifiers have stored history.
func (s *Store) CountIdentifiers(ctx context.Context) (int64, error) {
	conn, err := s.conn(ctx)
	if err != nil {
		return 0, err
	}
	defer conn.Close()

	var n int64
	if err := conn.QueryRowContext(ctx, `SELECT COUNT(DISTINCT "uuid") FROM names`).Scan(&n); err != nil {
		return 0, history.NewStorage("count identifiers", err)
	}
	return n, nil
}
