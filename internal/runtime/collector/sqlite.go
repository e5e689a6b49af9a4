package collector

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

const translationsSchema = `
CREATE TABLE IF NOT EXISTS translations (
	line_num INTEGER PRIMARY KEY,
	text TEXT NOT NULL
);
`

// SQLiteEmitter stores every line in the translations table, replacing any
// earlier text for the same line number so reruns are idempotent.
type SQLiteEmitter struct {
	ctx  context.Context
	db   *sql.DB
	stmt *sql.Stmt
}

// OpenSQLiteEmitter opens (or creates) the database at path in WAL mode and
// prepares the translations table.
func OpenSQLiteEmitter(ctx context.Context, path string) (*SQLiteEmitter, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// The collector emits from one goroutine at a time.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, translationsSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create translations table: %w", err)
	}

	stmt, err := db.PrepareContext(ctx, `
INSERT INTO translations (line_num, text)
VALUES (?, ?)
ON CONFLICT(line_num) DO UPDATE SET text=excluded.text;
`)
	if err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteEmitter{ctx: context.WithoutCancel(ctx), db: db, stmt: stmt}, nil
}

func (e *SQLiteEmitter) Emit(lineNum int, text string) error {
	if _, err := e.stmt.ExecContext(e.ctx, lineNum, text); err != nil {
		return fmt.Errorf("store line %d: %w", lineNum, err)
	}
	return nil
}

// Lines returns the stored lines in ascending order.
func (e *SQLiteEmitter) Lines(ctx context.Context) ([]string, error) {
	rows, err := e.db.QueryContext(ctx, `SELECT text FROM translations ORDER BY line_num`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var text string
		if err := rows.Scan(&text); err != nil {
			return nil, err
		}
		out = append(out, text)
	}
	return out, rows.Err()
}

func (e *SQLiteEmitter) Close() error {
	stmtErr := e.stmt.Close()
	if err := e.db.Close(); err != nil {
		return err
	}
	return stmtErr
}
