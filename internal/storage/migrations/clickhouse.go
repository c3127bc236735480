package migrations

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	chstore "setup-outcome-lab/internal/storage/clickhouse"
)

// RunClickhouseMigrations creates the DSN's database when missing, then
// runs every statement of every migration against it. Statements must be
// idempotent because ClickHouse has no transactional DDL. The returned
// connection targets the migrated database.
func RunClickhouseMigrations(ctx context.Context, dsn string) (*chstore.Conn, []string, error) {
	dbName, err := databaseFromDSN(dsn)
	if err != nil {
		return nil, nil, err
	}
	migs, err := Clickhouse()
	if err != nil {
		return nil, nil, err
	}

	if err := ensureDatabase(ctx, dsn, dbName); err != nil {
		return nil, nil, err
	}

	conn, err := chstore.NewConnWithDatabase(ctx, dsn, dbName)
	if err != nil {
		return nil, nil, err
	}

	var applied []string
	for _, m := range migs {
		if err := execScript(ctx, conn, m); err != nil {
			_ = conn.Close()
			return nil, applied, err
		}
		applied = append(applied, m.Version)
	}
	return conn, applied, nil
}

func ensureDatabase(ctx context.Context, dsn, dbName string) error {
	admin, err := chstore.NewConnWithDatabase(ctx, dsn, "")
	if err != nil {
		return err
	}
	defer admin.Close()

	if err := admin.Exec(ctx, "CREATE DATABASE IF NOT EXISTS "+dbName); err != nil {
		return fmt.Errorf("create clickhouse database %s: %w", dbName, err)
	}
	return nil
}

// execScript runs m one statement at a time; the native driver rejects
// multi-statement Exec.
func execScript(ctx context.Context, conn *chstore.Conn, m Migration) error {
	if err := validateNoSemicolonInStrings(m.SQL); err != nil {
		return fmt.Errorf("clickhouse migration %s: %w", m.Version, err)
	}
	for i, stmt := range splitStatements(m.SQL) {
		if err := conn.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("clickhouse migration %s statement %d: %w", m.Version, i+1, err)
		}
	}
	return nil
}

// splitStatements drops "--" comment lines and splits on ";". It does not
// understand quoting, so migrations keep semicolons out of literals and
// block comments.
func splitStatements(script string) []string {
	var kept strings.Builder
	for _, line := range strings.Split(script, "\n") {
		t := strings.TrimSpace(line)
		if t == "" || strings.HasPrefix(t, "--") {
			continue
		}
		kept.WriteString(line)
		kept.WriteByte('\n')
	}

	var stmts []string
	for _, part := range strings.Split(kept.String(), ";") {
		if stmt := strings.TrimSpace(part); stmt != "" {
			stmts = append(stmts, stmt)
		}
	}
	return stmts
}

var errSemicolonInLiteral = errors.New("semicolon inside a quoted literal")

// validateNoSemicolonInStrings rejects scripts splitStatements would cut
// inside a single-quoted literal. A doubled quote is an escaped quote.
func validateNoSemicolonInStrings(script string) error {
	quoted := false
	for i := 0; i < len(script); i++ {
		switch script[i] {
		case '\'':
			if quoted && i+1 < len(script) && script[i+1] == '\'' {
				i++
				continue
			}
			quoted = !quoted
		case ';':
			if quoted {
				return fmt.Errorf("offset %d: %w", i, errSemicolonInLiteral)
			}
		}
	}
	return nil
}

func databaseFromDSN(dsn string) (string, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return "", fmt.Errorf("parse clickhouse dsn: %w", err)
	}
	if db := strings.Trim(u.Path, "/"); db != "" {
		return db, nil
	}
	return "", errors.New("clickhouse dsn names no database")
}
