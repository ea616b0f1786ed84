package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/morezero/datatype-introspection/pkg/datatype"
)

const repoLogPrefix = "db:repository"

// Repository provides access to the stored data type catalog.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new Repository with the given connection pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const selectColumns = `SELECT kind, type_id, full_name, signature, definition, created, modified FROM data_types`

// ListDescriptors returns every stored data type ordered by kind then id.
func (r *Repository) ListDescriptors(ctx context.Context) ([]DataTypeRow, error) {
	rows, err := r.pool.Query(ctx, selectColumns+` ORDER BY kind, type_id`)
	if err != nil {
		return nil, fmt.Errorf("%s - ListDescriptors failed: %w", repoLogPrefix, err)
	}
	defer rows.Close()

	var out []DataTypeRow
	for rows.Next() {
		row, err := scanDataType(rows)
		if err != nil {
			return nil, fmt.Errorf("%s - ListDescriptors scan failed: %w", repoLogPrefix, err)
		}
		out = append(out, *row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s - ListDescriptors failed: %w", repoLogPrefix, err)
	}
	return out, nil
}

// GetByName returns the stored data type with the given full name, or nil.
func (r *Repository) GetByName(ctx context.Context, name string) (*DataTypeRow, error) {
	row, err := scanDataType(r.pool.QueryRow(ctx, selectColumns+` WHERE full_name = $1`, name))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s - GetByName failed: %w", repoLogPrefix, err)
	}
	return row, nil
}

// UpsertDescriptorParams holds parameters for UpsertDescriptor.
type UpsertDescriptorParams struct {
	Descriptor datatype.Descriptor
	Definition *string
}

// UpsertDescriptor inserts a data type or updates the one stored under (kind, id).
func (r *Repository) UpsertDescriptor(ctx context.Context, params UpsertDescriptorParams) (*DataTypeRow, error) {
	d := params.Descriptor
	if err := d.Validate(); err != nil {
		return nil, fmt.Errorf("%s - UpsertDescriptor: %w", repoLogPrefix, err)
	}
	slog.Debug(fmt.Sprintf("%s - UpsertDescriptor %s", repoLogPrefix, d))

	row, err := upsertDataType(ctx, r.pool, d, params.Definition)
	if err != nil {
		return nil, fmt.Errorf("%s - UpsertDescriptor %s failed: %w", repoLogPrefix, d.FullName, err)
	}
	return row, nil
}

// rowQuerier is satisfied by *pgxpool.Pool, *pgxpool.Conn and pgx.Tx.
type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// upsertDataTypeSQL keeps a stored definition when the new one is NULL.
const upsertDataTypeSQL = `INSERT INTO data_types (kind, type_id, full_name, signature, definition)
	 VALUES ($1, $2, $3, $4, $5)
	 ON CONFLICT (kind, type_id) DO UPDATE SET
	   full_name = EXCLUDED.full_name,
	   signature = EXCLUDED.signature,
	   definition = COALESCE(EXCLUDED.definition, data_types.definition),
	   modified = NOW()
	 RETURNING kind, type_id, full_name, signature, definition, created, modified`

func upsertDataType(ctx context.Context, q rowQuerier, d datatype.Descriptor, definition *string) (*DataTypeRow, error) {
	return scanDataType(q.QueryRow(ctx, upsertDataTypeSQL,
		int16(d.Kind), int32(d.ID), d.FullName, int64(d.Signature), definition))
}

// CountDescriptors returns the number of stored data types per kind.
func (r *Repository) CountDescriptors(ctx context.Context) (map[datatype.Kind]int, error) {
	rows, err := r.pool.Query(ctx, `SELECT kind, COUNT(*)::int FROM data_types GROUP BY kind`)
	if err != nil {
		return nil, fmt.Errorf("%s - CountDescriptors failed: %w", repoLogPrefix, err)
	}
	defer rows.Close()

	out := make(map[datatype.Kind]int)
	for rows.Next() {
		var (
			kind  int16
			count int
		)
		if err := rows.Scan(&kind, &count); err != nil {
			return nil, fmt.Errorf("%s - CountDescriptors scan failed: %w", repoLogPrefix, err)
		}
		out[datatype.Kind(kind)] = count
	}
	return out, rows.Err()
}

// Descriptors implements registry.DescriptorSource over the stored catalog.
func (r *Repository) Descriptors(ctx context.Context) ([]datatype.Descriptor, error) {
	rows, err := r.ListDescriptors(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]datatype.Descriptor, len(rows))
	for i, row := range rows {
		out[i] = row.Descriptor()
	}
	return out, nil
}

// Ping checks database connectivity.
func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func scanDataType(row pgx.Row) (*DataTypeRow, error) {
	var (
		out       DataTypeRow
		kind      int16
		id        int32
		signature int64
	)
	err := row.Scan(&kind, &id, &out.FullName, &signature, &out.Definition, &out.Created, &out.Modified)
	if err != nil {
		return nil, err
	}
	out.Kind = datatype.Kind(kind)
	out.ID = datatype.ID(id)
	out.Signature = datatype.Signature(uint64(signature))
	return &out, nil
}
