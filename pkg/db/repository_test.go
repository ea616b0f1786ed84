package db

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/morezero/datatype-introspection/pkg/datatype"
)

const repoTestPrefix = "db:repository_test"

var (
	_ rowQuerier = (*pgxpool.Pool)(nil)
	_ rowQuerier = (pgx.Tx)(nil)
)

// echoQuerier records the statement and answers with a row built from its arguments.
type echoQuerier struct {
	sql  string
	args []any
	err  error
}

func (q *echoQuerier) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	q.sql = sql
	q.args = args
	return echoRow{args: args, err: q.err}
}

type echoRow struct {
	args []any
	err  error
}

func (r echoRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	*dest[0].(*int16) = r.args[0].(int16)
	*dest[1].(*int32) = r.args[1].(int32)
	*dest[2].(*string) = r.args[2].(string)
	*dest[3].(*int64) = r.args[3].(int64)
	*dest[4].(**string) = r.args[4].(*string)
	*dest[5].(*time.Time) = now
	*dest[6].(*time.Time) = now
	return nil
}

func TestUpsertDataType(t *testing.T) {
	q := &echoQuerier{}
	def := "uint8 x"
	d := datatype.Descriptor{
		Kind:      datatype.KindMessage,
		ID:        20,
		FullName:  "protocol.CatalogAnnouncement",
		Signature: datatype.Signature(0xB6B51824310AB752),
	}

	row, err := upsertDataType(context.Background(), q, d, &def)
	if err != nil {
		t.Fatalf("%s - upsertDataType failed: %v", repoTestPrefix, err)
	}
	if q.sql != upsertDataTypeSQL {
		t.Errorf("%s - statement = %q, want the shared upsert", repoTestPrefix, q.sql)
	}
	if !strings.Contains(q.sql, "ON CONFLICT (kind, type_id)") {
		t.Errorf("%s - upsert does not key on (kind, type_id)", repoTestPrefix)
	}
	if row.Descriptor() != d {
		t.Errorf("%s - descriptor = %+v, want %+v", repoTestPrefix, row.Descriptor(), d)
	}
	if row.Definition == nil || *row.Definition != def {
		t.Errorf("%s - definition = %v, want %q", repoTestPrefix, row.Definition, def)
	}

	// Signatures above MaxInt64 round-trip through the signed column.
	if got := q.args[3].(int64); datatype.Signature(uint64(got)) != d.Signature {
		t.Errorf("%s - signature arg = %d", repoTestPrefix, got)
	}
}

func TestUpsertDataType_NilDefinition(t *testing.T) {
	q := &echoQuerier{}
	d := datatype.Descriptor{Kind: datatype.KindService, ID: 2, FullName: "protocol.GetDataTypeInfo", Signature: 1}

	row, err := upsertDataType(context.Background(), q, d, nil)
	if err != nil {
		t.Fatalf("%s - upsertDataType failed: %v", repoTestPrefix, err)
	}
	if q.args[4].(*string) != nil || row.Definition != nil {
		t.Errorf("%s - nil definition should be passed as NULL", repoTestPrefix)
	}
}

func TestUpsertDataType_ScanError(t *testing.T) {
	q := &echoQuerier{err: errors.New("connection reset")}
	d := datatype.Descriptor{Kind: datatype.KindService, ID: 2, FullName: "protocol.GetDataTypeInfo", Signature: 1}

	if _, err := upsertDataType(context.Background(), q, d, nil); err == nil {
		t.Fatalf("%s - expected error from failed query", repoTestPrefix)
	}
}
