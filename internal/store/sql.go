package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// SQL stores each table as a relational table with one TEXT column per
// ledger column plus a position column that preserves row order.
type SQL struct {
	db          *sql.DB
	placeholder func(n int) string
}

func dollarPlaceholder(n int) string { return fmt.Sprintf("$%d", n) }

func questionPlaceholder(int) string { return "?" }

func quoteIdent(name string) string { return `"` + strings.ReplaceAll(name, `"`, `""`) + `"` }

func sqlTableName(t Table) string { return quoteIdent("ledger_" + t.Name) }

// DB exposes the pool for health checks.
func (s *SQL) DB() *sql.DB { return s.db }

func (s *SQL) Ensure(ctx context.Context, t Table) error {
	cols := make([]string, 0, len(t.Columns)+1)
	cols = append(cols, "position INTEGER NOT NULL")
	for _, c := range t.Columns {
		cols = append(cols, quoteIdent(c)+" TEXT NOT NULL DEFAULT ''")
	}
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (%s)", sqlTableName(t), strings.Join(cols, ", "),
	))
	return err
}

func (s *SQL) LoadAll(ctx context.Context, t Table) ([]Row, error) {
	cols := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		cols[i] = quoteIdent(c)
	}
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		"SELECT %s FROM %s ORDER BY position", strings.Join(cols, ", "), sqlTableName(t),
	))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Row{}
	vals := make([]string, len(t.Columns))
	ptrs := make([]any, len(t.Columns))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(Row, len(t.Columns))
		for i, c := range t.Columns {
			row[c] = vals[i]
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// SaveAll replaces the table inside a single transaction.
func (s *SQL) SaveAll(ctx context.Context, t Table, rows []Row) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM "+sqlTableName(t)); err != nil {
		return err
	}

	cols := make([]string, 0, len(t.Columns)+1)
	marks := make([]string, 0, len(t.Columns)+1)
	cols = append(cols, "position")
	marks = append(marks, s.placeholder(1))
	for i, c := range t.Columns {
		cols = append(cols, quoteIdent(c))
		marks = append(marks, s.placeholder(i+2))
	}
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s)", sqlTableName(t), strings.Join(cols, ", "), strings.Join(marks, ", "),
	))
	if err != nil {
		return err
	}
	defer stmt.Close()

	args := make([]any, len(t.Columns)+1)
	for pos, row := range rows {
		args[0] = pos
		for i, c := range t.Columns {
			args[i+1] = row[c]
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Close closes the underlying connection.
func (s *SQL) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
