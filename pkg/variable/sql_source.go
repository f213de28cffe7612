package variable

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/jmoiron/sqlx"
)

// SQLSource resolves variables against a relational table:
//
//	CREATE TABLE variables (
//	    name      TEXT PRIMARY KEY,
//	    value_kind TEXT NOT NULL,
//	    value     TEXT NOT NULL, -- JSON-encoded
//	    immutable BOOLEAN NOT NULL DEFAULT FALSE
//	)
//
// This is the concrete form of the "remote metadata service" collaborator
// spec.md §1 treats as external: a property provider backed by a database
// rather than a bespoke cloud client.
type SQLSource struct {
	db *sqlx.DB
}

// NewSQLSource wraps an existing *sqlx.DB (postgres, via lib/pq).
func NewSQLSource(db *sqlx.DB) *SQLSource {
	return &SQLSource{db: db}
}

func (s *SQLSource) Name() string { return "sql" }

type variableRow struct {
	Name      string `db:"name"`
	ValueKind string `db:"value_kind"`
	Value     string `db:"value"`
	Immutable bool   `db:"immutable"`
}

func (s *SQLSource) Lookup(ctx context.Context, name string) (Variable, error) {
	var row variableRow
	err := s.db.GetContext(ctx, &row,
		`SELECT name, value_kind, value, immutable FROM variables WHERE name = $1`, name)
	if err == sql.ErrNoRows {
		return Variable{}, ErrNotFound
	}
	if err != nil {
		return Variable{}, err
	}
	var value interface{}
	if err := json.Unmarshal([]byte(row.Value), &value); err != nil {
		return Variable{}, err
	}
	return Variable{Name: row.Name, Kind: Kind(row.ValueKind), Value: value, Immutable: row.Immutable}, nil
}

// Synchronize reports the names of rows whose updated_at column lies within
// the last second; it keeps no record of the previous call, so a change
// older than that window is not reported. The updated_at column is not part
// of the schema above; against a table without it the query fails and no
// changes are reported.
func (s *SQLSource) Synchronize(ctx context.Context) ([]string, error) {
	var names []string
	err := s.db.SelectContext(ctx, &names,
		`SELECT name FROM variables WHERE updated_at > now() - interval '1 second'`)
	if err != nil {
		// Older schemas without updated_at simply report no changes rather
		// than aborting the whole Resolver refresh.
		return nil, nil
	}
	return names, nil
}
