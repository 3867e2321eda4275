/*
Copyright (C) 2026  Contributors

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU General Public License as published by
	the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU General Public License for more details.

	You should have received a copy of the GNU General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/
package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
)

// sqlJournal stores one row per operation frame in a register_ops table,
// ordered by an auto-incrementing sequence column. The driver is picked
// from the DSN's URL scheme, the same two drivers already present in the
// teacher's go.mod for its own SQL-backed storage experiments.
type sqlJournal struct {
	db         *sql.DB
	driverName string
}

type sqlConfig struct {
	DSN string `json:"dsn"`
}

func init() {
	BackendRegistry["sql"] = newSQLJournal
}

func newSQLJournal(raw json.RawMessage) (Journal, error) {
	var cfg sqlConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("journal: sql backend: invalid config: %w", err)
	}
	driverName, dsn, err := resolveSQLDriver(cfg.DSN)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("journal: sql backend: opening %s: %w", driverName, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal: sql backend: connecting: %w", err)
	}

	j := &sqlJournal{db: db, driverName: driverName}
	if err := j.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return j, nil
}

func resolveSQLDriver(dsn string) (driverName, driverDSN string, err error) {
	u, parseErr := url.Parse(dsn)
	if parseErr != nil {
		return "", "", fmt.Errorf("journal: sql backend: invalid dsn: %w", parseErr)
	}
	switch u.Scheme {
	case "mysql":
		return "mysql", strings.TrimPrefix(dsn, "mysql://"), nil
	case "postgres", "postgresql":
		return "postgres", dsn, nil
	default:
		return "", "", fmt.Errorf("journal: sql backend: unsupported dsn scheme %q (want mysql:// or postgres://)", u.Scheme)
	}
}

func (j *sqlJournal) ensureSchema() error {
	var ddl string
	switch j.driverName {
	case "mysql":
		ddl = `CREATE TABLE IF NOT EXISTS register_ops (
			seq BIGINT AUTO_INCREMENT PRIMARY KEY,
			frame TEXT NOT NULL
		)`
	case "postgres":
		ddl = `CREATE TABLE IF NOT EXISTS register_ops (
			seq BIGSERIAL PRIMARY KEY,
			frame TEXT NOT NULL
		)`
	}
	if _, err := j.db.Exec(ddl); err != nil {
		return fmt.Errorf("journal: sql backend: creating register_ops: %w", err)
	}
	return nil
}

func (j *sqlJournal) placeholder(n int) string {
	if j.driverName == "postgres" {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

func (j *sqlJournal) Append(frame []byte) error {
	query := fmt.Sprintf("INSERT INTO register_ops (frame) VALUES (%s)", j.placeholder(1))
	if _, err := j.db.Exec(query, string(frame)); err != nil {
		return fmt.Errorf("journal: sql backend: append: %w", err)
	}
	return nil
}

func (j *sqlJournal) Operations(ctx context.Context) (<-chan []byte, error) {
	rows, err := j.db.QueryContext(ctx, "SELECT frame FROM register_ops ORDER BY seq ASC")
	if err != nil {
		return nil, fmt.Errorf("journal: sql backend: replay query: %w", err)
	}

	out := make(chan []byte, 64)
	go func() {
		defer close(out)
		defer rows.Close()
		for rows.Next() {
			var frame string
			if err := rows.Scan(&frame); err != nil {
				return
			}
			select {
			case out <- []byte(frame):
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (j *sqlJournal) Sync() error {
	return nil // each Append is its own auto-committed statement
}

func (j *sqlJournal) Close() error {
	if err := j.db.Close(); err != nil {
		return fmt.Errorf("journal: sql backend: close: %w", err)
	}
	return nil
}
