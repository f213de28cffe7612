package variable

import (
	"context"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
)

func newTestSQLSource(t *testing.T) (*SQLSource, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewSQLSource(sqlx.NewDb(db, "postgres")), mock
}

func TestSQLSourceLookupHit(t *testing.T) {
	src, mock := newTestSQLSource(t)
	rows := sqlmock.NewRows([]string{"name", "value_kind", "value", "immutable"}).
		AddRow("region", "string", `"eu-west-1"`, false)
	mock.ExpectQuery(regexp.QuoteMeta(
		`SELECT name, value_kind, value, immutable FROM variables WHERE name = $1`)).
		WithArgs("region").
		WillReturnRows(rows)

	v, err := src.Lookup(context.Background(), "region")
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if v.Kind != KindString || v.Value != "eu-west-1" {
		t.Errorf("Lookup() = %+v, want kind=string value=eu-west-1", v)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestSQLSourceLookupMiss(t *testing.T) {
	src, mock := newTestSQLSource(t)
	mock.ExpectQuery(regexp.QuoteMeta(
		`SELECT name, value_kind, value, immutable FROM variables WHERE name = $1`)).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"name", "value_kind", "value", "immutable"}))

	if _, err := src.Lookup(context.Background(), "missing"); err != ErrNotFound {
		t.Errorf("Lookup() error = %v, want ErrNotFound", err)
	}
}

func TestSQLSourceSynchronizeReturnsChangedNames(t *testing.T) {
	src, mock := newTestSQLSource(t)
	mock.ExpectQuery(regexp.QuoteMeta(
		`SELECT name FROM variables WHERE updated_at > now() - interval '1 second'`)).
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("region").AddRow("replicas"))

	changed, err := src.Synchronize(context.Background())
	if err != nil {
		t.Fatalf("Synchronize() error = %v", err)
	}
	if len(changed) != 2 || changed[0] != "region" || changed[1] != "replicas" {
		t.Errorf("Synchronize() = %v, want [region replicas]", changed)
	}
}
