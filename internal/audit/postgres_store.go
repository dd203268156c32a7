package audit

import (
	"context"
	"database/sql"

	"github.com/lib/pq"
)

// PostgresStore archives audit records in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed archive.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) Insert(ctx context.Context, r Record) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO audit_records (id, kind, identity, receiver, amount, score, flags, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING`,
		r.ID, string(r.Kind), r.Identity, r.Receiver, r.Amount, r.Score,
		pq.Array(r.Flags), r.Reason, r.Timestamp,
	)
	return err
}

func (p *PostgresStore) Recent(ctx context.Context, kind Kind, limit int) ([]Record, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, kind, identity, receiver, amount, score, flags, reason, created_at
		FROM audit_records
		WHERE kind = $1
		ORDER BY created_at DESC
		LIMIT $2`, string(kind), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []Record
	for rows.Next() {
		var r Record
		var kindStr string
		if err := rows.Scan(&r.ID, &kindStr, &r.Identity, &r.Receiver, &r.Amount,
			&r.Score, pq.Array(&r.Flags), &r.Reason, &r.Timestamp); err != nil {
			return nil, err
		}
		r.Kind = Kind(kindStr)
		recs = append(recs, r)
	}
	return recs, rows.Err()
}

func (p *PostgresStore) Close() error {
	return p.db.Close()
}
