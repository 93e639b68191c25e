package settlement

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"membership-checkout/internal/domain"
	"membership-checkout/internal/domain/model"
)

//go:embed schema.sql
var schema string

var _ Store = (*PgStore)(nil)

// PgStore is the pgx-backed settlement store. The idempotency invariants
// live in the unique indexes of schema.sql; this code only translates
// unique-violation errors into domain.ErrAlreadyExists.
type PgStore struct {
	pool *pgxpool.Pool
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

// EnsureSchema applies schema.sql. Idempotent.
func (s *PgStore) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, schema)
	return err
}

func (s *PgStore) FindResource(ctx context.Context, id string) (*model.PurchasableResource, error) {
	const q = `SELECT id, kind, name, description, price, currency FROM resources WHERE id=$1;`
	r := &model.PurchasableResource{}
	err := s.pool.QueryRow(ctx, q, id).Scan(&r.ID, &r.Kind, &r.Name, &r.Description, &r.Price, &r.Currency)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrResourceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find resource: %w", err)
	}
	return r, nil
}

func (s *PgStore) SaveResource(ctx context.Context, res *model.PurchasableResource) error {
	const q = `
INSERT INTO resources (id, kind, name, description, price, currency)
VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (id) DO UPDATE
SET kind=EXCLUDED.kind, name=EXCLUDED.name, description=EXCLUDED.description,
    price=EXCLUDED.price, currency=EXCLUDED.currency;`
	_, err := s.pool.Exec(ctx, q, res.ID, res.Kind, res.Name, res.Description, res.Price, res.Currency)
	if err != nil {
		return fmt.Errorf("save resource: %w", err)
	}
	return nil
}

const intentColumns = `id, client_secret, user_id, resource_id, kind, amount, currency, status, created_at, updated_at`

func scanIntent(row pgx.Row) (*model.PaymentIntent, error) {
	p := &model.PaymentIntent{}
	err := row.Scan(&p.ID, &p.ClientSecret, &p.UserID, &p.ResourceID, &p.Kind, &p.Amount, &p.Currency, &p.Status, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan intent: %w", err)
	}
	return p, nil
}

func (s *PgStore) FindUnresolvedIntent(ctx context.Context, userID, resourceID string) (*model.PaymentIntent, error) {
	q := `SELECT ` + intentColumns + ` FROM payment_intents
WHERE user_id=$1 AND resource_id=$2 AND status NOT IN ('succeeded','canceled','failed') LIMIT 1;`
	return scanIntent(s.pool.QueryRow(ctx, q, userID, resourceID))
}

func (s *PgStore) ListUnresolvedOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]*model.PaymentIntent, error) {
	q := `SELECT ` + intentColumns + ` FROM payment_intents
WHERE status NOT IN ('succeeded','canceled','failed') AND updated_at < $1
ORDER BY updated_at ASC LIMIT $2;`
	rows, err := s.pool.Query(ctx, q, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("list unresolved intents: %w", err)
	}
	defer rows.Close()

	var out []*model.PaymentIntent
	for rows.Next() {
		p, err := scanIntent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *PgStore) SaveIntent(ctx context.Context, p *model.PaymentIntent) error {
	const q = `
INSERT INTO payment_intents (id, client_secret, user_id, resource_id, kind, amount, currency, status, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10);`
	_, err := s.pool.Exec(ctx, q, p.ID, p.ClientSecret, p.UserID, p.ResourceID, p.Kind, p.Amount, p.Currency, p.Status, p.CreatedAt, p.UpdatedAt)
	if isUniqueViolation(err) {
		return domain.ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("save intent: %w", err)
	}
	return nil
}

func (s *PgStore) FindIntent(ctx context.Context, id string) (*model.PaymentIntent, error) {
	q := `SELECT ` + intentColumns + ` FROM payment_intents WHERE id=$1;`
	return scanIntent(s.pool.QueryRow(ctx, q, id))
}

func (s *PgStore) MarkIntentStatus(ctx context.Context, id string, status model.IntentStatus) error {
	const q = `UPDATE payment_intents SET status=$2, updated_at=NOW() WHERE id=$1;`
	_, err := s.pool.Exec(ctx, q, id, status)
	if err != nil {
		return fmt.Errorf("mark intent: %w", err)
	}
	return nil
}

func (s *PgStore) InsertSettlement(ctx context.Context, rec *model.SettlementRecord) error {
	const q = `
INSERT INTO settlements (id, intent_id, user_id, resource_id, kind, grant_id, amount, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8);`
	_, err := s.pool.Exec(ctx, q, rec.ID, rec.IntentID, rec.UserID, rec.ResourceID, rec.Kind, rec.GrantID, rec.Amount, rec.CreatedAt)
	if isUniqueViolation(err) {
		return domain.ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("insert settlement: %w", err)
	}
	return nil
}

const settlementColumns = `id, intent_id, user_id, resource_id, kind, grant_id, amount, created_at`

func scanSettlement(row pgx.Row) (*model.SettlementRecord, error) {
	r := &model.SettlementRecord{}
	err := row.Scan(&r.ID, &r.IntentID, &r.UserID, &r.ResourceID, &r.Kind, &r.GrantID, &r.Amount, &r.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan settlement: %w", err)
	}
	return r, nil
}

func (s *PgStore) FindSettlementByIntent(ctx context.Context, intentID string) (*model.SettlementRecord, error) {
	q := `SELECT ` + settlementColumns + ` FROM settlements WHERE intent_id=$1;`
	return scanSettlement(s.pool.QueryRow(ctx, q, intentID))
}

func (s *PgStore) FindFreeSettlement(ctx context.Context, userID, resourceID string) (*model.SettlementRecord, error) {
	q := `SELECT ` + settlementColumns + ` FROM settlements WHERE user_id=$1 AND resource_id=$2 AND intent_id='';`
	return scanSettlement(s.pool.QueryRow(ctx, q, userID, resourceID))
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// NewPgxPool opens a pgx pool against the given DSN.
func NewPgxPool(ctx context.Context, dsn string, maxConns int32) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	pool, err := pgxpool.ConnectConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return pool, nil
}
