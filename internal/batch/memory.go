package batch

// #region imports
import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"time"
)

// #endregion

// #region schema

const themeHistorySchema = `
CREATE TABLE IF NOT EXISTS theme_history (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    batch_id    TEXT NOT NULL,
    job_id      TEXT NOT NULL,
    theme       TEXT NOT NULL,
    created_at  TEXT NOT NULL
);
`

// #endregion

// #region memory-struct

// ThemeMemory persists job themes in SQLite so later batches avoid repeating
// earlier ones.
type ThemeMemory struct {
	db *sql.DB
}

// NewThemeMemory initializes the theme_history table and returns a ThemeMemory.
func NewThemeMemory(db *sql.DB) (*ThemeMemory, error) {
	if _, err := db.Exec(themeHistorySchema); err != nil {
		return nil, fmt.Errorf("migrate theme_history: %w", err)
	}
	return &ThemeMemory{db: db}, nil
}

// #endregion

// #region record

// Record persists a single theme row.
func (m *ThemeMemory) Record(ctx context.Context, batchID, jobID, theme string) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO theme_history (batch_id, job_id, theme, created_at)
		VALUES (?, ?, ?, ?)`,
		batchID, jobID, theme, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("record theme: %w", err)
	}
	return nil
}

// #endregion

// #region recent

// Recent returns up to n of the latest themes, oldest first.
func (m *ThemeMemory) Recent(ctx context.Context, n int) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}
	rows, err := m.db.QueryContext(ctx,
		`SELECT theme FROM theme_history ORDER BY id DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("query themes: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	slices.Reverse(out)
	return out, nil
}

// #endregion
