package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/roach88/autovnc/internal/ir"
)

// CreateScript inserts an empty script. Returns ErrExists if the name is
// taken.
func (s *Store) CreateScript(ctx context.Context, name, description string) (ir.Script, error) {
	if name == "" {
		return ir.Script{}, fmt.Errorf("create script: name is required")
	}
	now := toNanos(s.now())
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO scripts (name, description, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO NOTHING
	`, name, description, now, now)
	if err != nil {
		return ir.Script{}, fmt.Errorf("create script: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ir.Script{}, fmt.Errorf("create script %q: %w", name, ErrExists)
	}
	s.logger.Debug("script created", zap.String("script", name))
	return s.GetScript(ctx, name)
}

// GetScript returns a script with its steps, code and template names.
func (s *Store) GetScript(ctx context.Context, name string) (ir.Script, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT name, description, created_at, updated_at, is_ejected, steps, code,
		       generated_line_count, generated_code_hash, last_generated_at
		FROM scripts
		WHERE name = ?
	`, name)

	var (
		script             ir.Script
		createdAt, updated int64
		stepsJSON          string
		lineCount          sql.NullInt64
		hash               sql.NullString
		lastGenerated      sql.NullInt64
	)
	err := row.Scan(
		&script.Metadata.Name,
		&script.Metadata.Description,
		&createdAt,
		&updated,
		&script.Metadata.IsEjected,
		&stepsJSON,
		&script.Code,
		&lineCount,
		&hash,
		&lastGenerated,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Script{}, fmt.Errorf("get script %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return ir.Script{}, fmt.Errorf("get script %q: %w", name, err)
	}

	script.Metadata.CreatedAt = fromNanos(createdAt)
	script.Metadata.UpdatedAt = fromNanos(updated)
	if script.Steps, err = unmarshalSteps(stepsJSON); err != nil {
		return ir.Script{}, fmt.Errorf("get script %q: %w", name, err)
	}
	if lineCount.Valid {
		script.CodeMetadata = &ir.CodeMetadata{
			GeneratedLineCount: int(lineCount.Int64),
			GeneratedCodeHash:  hash.String,
		}
		if lastGenerated.Valid {
			t := fromNanos(lastGenerated.Int64)
			script.CodeMetadata.LastGeneratedAt = &t
		}
	}

	if script.Templates, err = s.List(ctx, name); err != nil {
		return ir.Script{}, err
	}
	return script, nil
}

// ListScripts returns summaries of every script, most recently updated
// first.
func (s *Store) ListScripts(ctx context.Context) ([]ir.ScriptSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, description, step_count, is_ejected, created_at, updated_at
		FROM scripts
		ORDER BY updated_at DESC, name COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query scripts: %w", err)
	}
	defer rows.Close()

	summaries := []ir.ScriptSummary{}
	for rows.Next() {
		var (
			sum                ir.ScriptSummary
			createdAt, updated int64
		)
		if err := rows.Scan(&sum.Name, &sum.Description, &sum.StepCount, &sum.IsEjected, &createdAt, &updated); err != nil {
			return nil, fmt.Errorf("scan script: %w", err)
		}
		sum.CreatedAt = fromNanos(createdAt)
		sum.UpdatedAt = fromNanos(updated)
		summaries = append(summaries, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate scripts: %w", err)
	}
	return summaries, nil
}

// SaveScript writes steps, code, code metadata and description in one
// transaction, creating the script if needed. CreatedAt and IsEjected of an
// existing row are kept.
func (s *Store) SaveScript(ctx context.Context, script ir.Script) error {
	name := script.Metadata.Name
	if name == "" {
		return fmt.Errorf("save script: name is required")
	}
	stepsJSON, err := marshalSteps(script.Steps)
	if err != nil {
		return fmt.Errorf("save script %q: %w", name, err)
	}

	var (
		lineCount     sql.NullInt64
		hash          sql.NullString
		lastGenerated sql.NullInt64
	)
	if md := script.CodeMetadata; md != nil {
		lineCount = sql.NullInt64{Int64: int64(md.GeneratedLineCount), Valid: true}
		hash = sql.NullString{String: md.GeneratedCodeHash, Valid: md.GeneratedCodeHash != ""}
		if md.LastGeneratedAt != nil {
			lastGenerated = sql.NullInt64{Int64: toNanos(*md.LastGeneratedAt), Valid: true}
		}
	}

	now := toNanos(s.now())
	created := now
	if !script.Metadata.CreatedAt.IsZero() {
		created = toNanos(script.Metadata.CreatedAt)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save script %q: begin: %w", name, err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO scripts
		(name, description, created_at, updated_at, steps, step_count, code,
		 generated_line_count, generated_code_hash, last_generated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			description = excluded.description,
			updated_at = excluded.updated_at,
			steps = excluded.steps,
			step_count = excluded.step_count,
			code = excluded.code,
			generated_line_count = excluded.generated_line_count,
			generated_code_hash = excluded.generated_code_hash,
			last_generated_at = excluded.last_generated_at
	`,
		name,
		script.Metadata.Description,
		created,
		now,
		stepsJSON,
		len(script.Steps),
		script.Code,
		lineCount,
		hash,
		lastGenerated,
	)
	if err != nil {
		return fmt.Errorf("save script %q: %w", name, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("save script %q: commit: %w", name, err)
	}
	s.logger.Debug("script saved", zap.String("script", name), zap.Int("steps", len(script.Steps)))
	return nil
}

// UpdateDescription changes a script's description.
func (s *Store) UpdateDescription(ctx context.Context, name, description string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE scripts SET description = ?, updated_at = ? WHERE name = ?
	`, description, toNanos(s.now()), name)
	if err != nil {
		return fmt.Errorf("update script %q: %w", name, err)
	}
	return requireRow(res, "update script", name)
}

// RenameScript renames a script and moves its templates. Refused with
// ErrExists when to is taken.
func (s *Store) RenameScript(ctx context.Context, from, to string) error {
	if to == "" {
		return fmt.Errorf("rename script: new name is required")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("rename script %q: begin: %w", from, err)
	}
	defer tx.Rollback()

	var taken int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM scripts WHERE name = ?`, to).Scan(&taken); err != nil {
		return fmt.Errorf("rename script %q: %w", from, err)
	}
	if taken > 0 {
		return fmt.Errorf("rename script %q to %q: %w", from, to, ErrExists)
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE scripts SET name = ?, updated_at = ? WHERE name = ?
	`, to, toNanos(s.now()), from)
	if err != nil {
		return fmt.Errorf("rename script %q: %w", from, err)
	}
	if err := requireRow(res, "rename script", from); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("rename script %q: commit: %w", from, err)
	}
	s.logger.Info("script renamed", zap.String("from", from), zap.String("to", to))
	return nil
}

// EjectScript marks a script as hand-maintained: its whole source becomes
// manual code and it is no longer resynthesized.
func (s *Store) EjectScript(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE scripts
		SET is_ejected = 1, generated_line_count = 0, generated_code_hash = NULL, updated_at = ?
		WHERE name = ?
	`, toNanos(s.now()), name)
	if err != nil {
		return fmt.Errorf("eject script %q: %w", name, err)
	}
	return requireRow(res, "eject script", name)
}

// DeleteScript removes a script and its templates.
func (s *Store) DeleteScript(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM scripts WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("delete script %q: %w", name, err)
	}
	if err := requireRow(res, "delete script", name); err != nil {
		return err
	}
	s.logger.Info("script deleted", zap.String("script", name))
	return nil
}

func requireRow(res sql.Result, op, name string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s %q: %w", op, name, err)
	}
	if n == 0 {
		return fmt.Errorf("%s %q: %w", op, name, ErrNotFound)
	}
	return nil
}
