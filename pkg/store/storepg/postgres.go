package storepg

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/beejcap/lsp-auth/pkg/errx"
	"github.com/beejcap/lsp-auth/pkg/store"
)

// PostgresStore implements store.Store on a single relational table emulating
// the (pk, sk) key scheme, with the record attributes in a jsonb column.
// TransactWrite maps onto a database transaction.
type PostgresStore struct {
	db *sqlx.DB
}

// Schema is the DDL for the backing table.
const Schema = `
CREATE TABLE IF NOT EXISTS auth_records (
	pk   TEXT  NOT NULL,
	sk   TEXT  NOT NULL,
	attr JSONB NOT NULL DEFAULT '{}'::jsonb,
	PRIMARY KEY (pk, sk)
);`

// NewPostgresStore creates a store backed by the given database.
func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the backing table when missing.
func (p *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, Schema); err != nil {
		return errx.Wrap(err, "failed to ensure auth_records schema", errx.TypeInternal)
	}
	return nil
}

type recordRow struct {
	PK   string `db:"pk"`
	SK   string `db:"sk"`
	Attr []byte `db:"attr"`
}

// Get returns the record for key, or (nil, nil) when absent.
func (p *PostgresStore) Get(ctx context.Context, key store.Key) (*store.Record, error) {
	var row recordRow
	err := p.db.GetContext(ctx, &row,
		`SELECT pk, sk, attr FROM auth_records WHERE pk = $1 AND sk = $2`,
		key.PK, key.SK)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, store.ErrUnavailable().WithCause(err).
			WithDetail("pk", key.PK).
			WithDetail("sk", key.SK)
	}
	return rowToRecord(row)
}

// ConditionalUpdate merges set into the jsonb attributes and strips the
// removed keys, upserting unless RequireExists is set.
func (p *PostgresStore) ConditionalUpdate(ctx context.Context, key store.Key, set store.Attributes, remove []string, opts ...store.UpdateOption) error {
	options := store.UpdateOptions{}
	for _, opt := range opts {
		opt(&options)
	}
	return applyUpdate(ctx, p.db, key, set, remove, options.RequireExists)
}

// Delete removes the record; absent records are a no-op.
func (p *PostgresStore) Delete(ctx context.Context, key store.Key) error {
	if _, err := p.db.ExecContext(ctx,
		`DELETE FROM auth_records WHERE pk = $1 AND sk = $2`,
		key.PK, key.SK); err != nil {
		return store.ErrUnavailable().WithCause(err).
			WithDetail("pk", key.PK).
			WithDetail("sk", key.SK)
	}
	return nil
}

// TransactWrite applies all operations inside one database transaction.
func (p *PostgresStore) TransactWrite(ctx context.Context, ops []store.WriteOp) error {
	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return store.ErrUnavailable().WithCause(err)
	}
	defer tx.Rollback()

	for _, op := range ops {
		switch op.Kind {
		case store.OpPut:
			attrJSON, err := json.Marshal(map[string]string(op.Set))
			if err != nil {
				return errx.Wrap(err, "failed to marshal record", errx.TypeInternal)
			}
			_, err = tx.ExecContext(ctx,
				`INSERT INTO auth_records (pk, sk, attr) VALUES ($1, $2, $3)
				 ON CONFLICT (pk, sk) DO UPDATE SET attr = EXCLUDED.attr`,
				op.Key.PK, op.Key.SK, attrJSON)
			if err != nil {
				return store.ErrTransactFailed().WithCause(err).
					WithDetail("pk", op.Key.PK).
					WithDetail("sk", op.Key.SK)
			}

		case store.OpUpdate:
			if err := applyUpdate(ctx, tx, op.Key, op.Set, op.Remove, false); err != nil {
				return store.ErrTransactFailed().WithCause(err).
					WithDetail("pk", op.Key.PK).
					WithDetail("sk", op.Key.SK)
			}

		case store.OpDelete:
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM auth_records WHERE pk = $1 AND sk = $2`,
				op.Key.PK, op.Key.SK); err != nil {
				return store.ErrTransactFailed().WithCause(err).
					WithDetail("pk", op.Key.PK).
					WithDetail("sk", op.Key.SK)
			}

		default:
			return store.ErrTransactFailed().
				WithDetail("reason", "unknown operation kind").
				WithDetail("kind", string(op.Kind))
		}
	}

	if err := tx.Commit(); err != nil {
		return store.ErrTransactFailed().WithCause(err)
	}
	return nil
}

// Query returns records under pk whose sort key begins with skPrefix.
func (p *PostgresStore) Query(ctx context.Context, pk, skPrefix string) ([]store.Record, error) {
	var rows []recordRow
	err := p.db.SelectContext(ctx, &rows,
		`SELECT pk, sk, attr FROM auth_records
		 WHERE pk = $1 AND sk LIKE $2 || '%' ORDER BY sk`,
		pk, skPrefix)
	if err != nil {
		return nil, store.ErrUnavailable().WithCause(err).WithDetail("pk", pk)
	}

	records := make([]store.Record, 0, len(rows))
	for _, row := range rows {
		rec, err := rowToRecord(row)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, nil
}

// execer is satisfied by both *sqlx.DB and *sqlx.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func applyUpdate(ctx context.Context, db execer, key store.Key, set store.Attributes, remove []string, requireExists bool) error {
	if set == nil {
		// nil would marshal to JSON null, which jsonb concatenation rejects.
		set = store.Attributes{}
	}
	setJSON, err := json.Marshal(map[string]string(set))
	if err != nil {
		return errx.Wrap(err, "failed to marshal attributes", errx.TypeInternal)
	}

	if requireExists {
		res, err := db.ExecContext(ctx,
			`UPDATE auth_records
			 SET attr = (attr - $3::text[]) || $4::jsonb
			 WHERE pk = $1 AND sk = $2`,
			key.PK, key.SK, pq.Array(remove), setJSON)
		if err != nil {
			return store.ErrUnavailable().WithCause(err).
				WithDetail("pk", key.PK).
				WithDetail("sk", key.SK)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return errx.Wrap(err, "failed to read rows affected", errx.TypeInternal)
		}
		if affected == 0 {
			return store.ErrConditionFailed().
				WithDetail("pk", key.PK).
				WithDetail("sk", key.SK)
		}
		return nil
	}

	_, err = db.ExecContext(ctx,
		`INSERT INTO auth_records (pk, sk, attr) VALUES ($1, $2, $4::jsonb)
		 ON CONFLICT (pk, sk)
		 DO UPDATE SET attr = (auth_records.attr - $3::text[]) || $4::jsonb`,
		key.PK, key.SK, pq.Array(remove), setJSON)
	if err != nil {
		return store.ErrUnavailable().WithCause(err).
			WithDetail("pk", key.PK).
			WithDetail("sk", key.SK)
	}
	return nil
}

func rowToRecord(row recordRow) (*store.Record, error) {
	var attr map[string]string
	if err := json.Unmarshal(row.Attr, &attr); err != nil {
		return nil, errx.Wrap(err, "failed to unmarshal record attributes", errx.TypeInternal)
	}
	return &store.Record{
		Key:  store.Key{PK: row.PK, SK: row.SK},
		Attr: attr,
	}, nil
}
