package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/roach88/autovnc/internal/template"
)

var _ template.Storage = (*Store)(nil)

// Upload stores a template image for script under the next free name.
//
// Implements template.Storage.
func (s *Store) Upload(ctx context.Context, script string, data []byte) (string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("upload template: begin: %w", err)
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM scripts WHERE name = ?`, script).Scan(&exists); err != nil {
		return "", fmt.Errorf("upload template: %w", err)
	}
	if exists == 0 {
		return "", fmt.Errorf("upload template for %q: %w", script, ErrNotFound)
	}

	taken, err := templateNames(ctx, tx, script)
	if err != nil {
		return "", err
	}
	set := make(map[string]bool, len(taken))
	for _, n := range taken {
		set[n] = true
	}
	name := template.NextName(func(n string) bool { return set[n] })

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO templates (script_name, name, data, created_at)
		VALUES (?, ?, ?, ?)
	`, script, name, data, toNanos(s.now())); err != nil {
		return "", fmt.Errorf("upload template %q: %w", name, err)
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("upload template %q: commit: %w", name, err)
	}
	s.logger.Debug("template uploaded", zap.String("script", script),
		zap.String("name", name), zap.Int("bytes", len(data)))
	return name, nil
}

// List returns the template names of script in name order.
//
// Implements template.Storage.
func (s *Store) List(ctx context.Context, script string) ([]string, error) {
	return templateNames(ctx, s.db, script)
}

// Delete removes one template.
//
// Implements template.Storage.
func (s *Store) Delete(ctx context.Context, script, name string) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM templates WHERE script_name = ? AND name = ?
	`, script, name)
	if err != nil {
		return fmt.Errorf("delete template %q: %w", name, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("delete template %q: %w", name, template.ErrNotFound)
	}
	return nil
}

// Fetch returns a template's PNG bytes.
//
// Implements template.Storage.
func (s *Store) Fetch(ctx context.Context, script, name string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT data FROM templates WHERE script_name = ? AND name = ?
	`, script, name).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("fetch template %q: %w", name, template.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("fetch template %q: %w", name, err)
	}
	return data, nil
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func templateNames(ctx context.Context, q querier, script string) ([]string, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT name FROM templates
		WHERE script_name = ?
		ORDER BY name COLLATE BINARY ASC
	`, script)
	if err != nil {
		return nil, fmt.Errorf("query templates: %w", err)
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		names = append(names, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate templates: %w", err)
	}
	return names, nil
}
