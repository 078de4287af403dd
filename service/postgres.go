package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/AnTengye/leaseflow/config"
	"github.com/AnTengye/leaseflow/lifecycle"
	"github.com/AnTengye/leaseflow/model"
	"github.com/lib/pq"
)

// Schema creates the tables used by PostgresStore.
const Schema = `
CREATE TABLE IF NOT EXISTS contracts (
	id                   TEXT PRIMARY KEY,
	account              TEXT NOT NULL,
	building_id          TEXT NOT NULL DEFAULT '',
	room_id              TEXT NOT NULL DEFAULT '',
	tenant_name          TEXT NOT NULL DEFAULT '',
	tenant_email         TEXT NOT NULL DEFAULT '',
	landlord_name        TEXT NOT NULL DEFAULT '',
	monthly_rent         BIGINT NOT NULL DEFAULT 0,
	deposit              BIGINT NOT NULL DEFAULT 0,
	terms                TEXT NOT NULL DEFAULT '',
	status               TEXT NOT NULL,
	start_date           TIMESTAMPTZ NOT NULL,
	end_date             TIMESTAMPTZ NOT NULL,
	signature_url        TEXT NOT NULL DEFAULT '',
	move_in_confirmed_at TIMESTAMPTZ,
	termination_request  JSONB,
	renewal_request      JSONB,
	cloned_from          TEXT NOT NULL DEFAULT '',
	version              BIGINT NOT NULL DEFAULT 1,
	created_at           TIMESTAMPTZ NOT NULL,
	updated_at           TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS contracts_account_idx ON contracts (account, created_at DESC);
CREATE TABLE IF NOT EXISTS contract_events (
	id          BIGSERIAL PRIMARY KEY,
	contract_id TEXT NOT NULL REFERENCES contracts (id),
	action      TEXT NOT NULL,
	status      TEXT NOT NULL,
	version     BIGINT NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL
);
`

const contractColumns = `id, account, building_id, room_id, tenant_name, tenant_email, landlord_name,
	monthly_rent, deposit, terms, status, start_date, end_date, signature_url, move_in_confirmed_at,
	termination_request, renewal_request, cloned_from, version, created_at, updated_at`

// OpenPostgres opens and pings a PostgreSQL pool.
func OpenPostgres(cfg *config.StoreConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

// PostgresStore is a ContractRepository backed by PostgreSQL. Sub-requests are
// stored as JSONB and every update appends a row to contract_events.
type PostgresStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, now: time.Now}
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("failed to migrate contracts schema: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanContract(row rowScanner, extra ...any) (*model.Contract, error) {
	var (
		c           model.Contract
		status      string
		movedIn     sql.NullTime
		termination []byte
		renewal     []byte
	)
	dest := []any{
		&c.ID, &c.Account, &c.BuildingID, &c.RoomID, &c.TenantName, &c.TenantEmail, &c.LandlordName,
		&c.MonthlyRent, &c.Deposit, &c.Terms, &status, &c.StartDate, &c.EndDate, &c.SignatureURL, &movedIn,
		&termination, &renewal, &c.ClonedFrom, &c.Version, &c.CreatedAt, &c.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}

	c.Status = model.Status(status)
	if movedIn.Valid {
		t := movedIn.Time
		c.MoveInConfirmedAt = &t
	}
	if len(termination) > 0 {
		c.TerminationRequest = &model.TerminationRequest{}
		if err := json.Unmarshal(termination, c.TerminationRequest); err != nil {
			return nil, fmt.Errorf("decode termination_request: %w", err)
		}
	}
	if len(renewal) > 0 {
		c.RenewalRequest = &model.RenewalRequest{}
		if err := json.Unmarshal(renewal, c.RenewalRequest); err != nil {
			return nil, fmt.Errorf("decode renewal_request: %w", err)
		}
	}
	return &c, nil
}

// jsonbValue returns nil for a nil sub-record so the column stays NULL.
func jsonbValue[T any](v *T) (any, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

// classify keeps integrity violations as they are and reports everything else
// as the database being unavailable.
func classify(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		if pqErr.Code.Name() == "unique_violation" {
			return ErrAlreadyExists
		}
		if pqErr.Code.Class() == "23" {
			return fmt.Errorf("contract rejected by database: %w", err)
		}
	}
	return fmt.Errorf("%w: %v", lifecycle.ErrPersistenceUnavailable, err)
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*model.Contract, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+contractColumns+` FROM contracts WHERE id = $1`, id)
	c, err := scanContract(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, lifecycle.ErrNotFound
	}
	if err != nil {
		return nil, classify(err)
	}
	return c, nil
}

func listWhere(filter ListFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if filter.Account != "" {
		add("account = $%d", filter.Account)
	}
	if filter.BuildingID != "" {
		add("building_id = $%d", filter.BuildingID)
	}
	if filter.Status != "" {
		add("status = $%d", string(filter.Status))
	}

	specific := filter.RequestStatus != "" && filter.RequestStatus != RequestStatusAll
	switch {
	case filter.Workflow == WorkflowTermination && specific:
		add("termination_request->>'status' = $%d", filter.RequestStatus)
	case filter.Workflow == WorkflowRenewal && specific:
		add("renewal_request->>'status' = $%d", filter.RequestStatus)
	case filter.Workflow == WorkflowTermination:
		conds = append(conds, "termination_request IS NOT NULL")
	case filter.Workflow == WorkflowRenewal:
		conds = append(conds, "renewal_request IS NOT NULL")
	case specific:
		args = append(args, filter.RequestStatus)
		n := len(args)
		conds = append(conds, fmt.Sprintf("(termination_request->>'status' = $%d OR renewal_request->>'status' = $%d)", n, n))
	}

	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (s *PostgresStore) List(ctx context.Context, filter ListFilter, page Page) ([]*model.Contract, int, error) {
	page = page.Normalize()
	where, args := listWhere(filter)
	args = append(args, page.Limit, page.Offset())
	query := fmt.Sprintf(`SELECT %s, COUNT(*) OVER() FROM contracts%s ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d`,
		contractColumns, where, len(args)-1, len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, classify(err)
	}
	defer rows.Close()

	var (
		result []*model.Contract
		total  int
	)
	for rows.Next() {
		c, err := scanContract(rows, &total)
		if err != nil {
			return nil, 0, classify(err)
		}
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, classify(err)
	}
	if len(result) == 0 && page.Page > 1 {
		// past the last page COUNT(*) OVER() has no row to ride on
		var n int
		countQuery := `SELECT COUNT(*) FROM contracts` + where
		if err := s.db.QueryRowContext(ctx, countQuery, args[:len(args)-2]...).Scan(&n); err != nil {
			return nil, 0, classify(err)
		}
		total = n
	}
	return result, total, nil
}

func (s *PostgresStore) Create(ctx context.Context, c *model.Contract) (*model.Contract, error) {
	stored := c.Copy()
	now := s.now()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now
	stored.Version = 1

	termination, err := jsonbValue(stored.TerminationRequest)
	if err != nil {
		return nil, err
	}
	renewal, err := jsonbValue(stored.RenewalRequest)
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx, `INSERT INTO contracts (`+contractColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)`,
		stored.ID, stored.Account, stored.BuildingID, stored.RoomID, stored.TenantName, stored.TenantEmail,
		stored.LandlordName, stored.MonthlyRent, stored.Deposit, stored.Terms, string(stored.Status),
		stored.StartDate, stored.EndDate, stored.SignatureURL, nullTime(stored.MoveInConfirmedAt),
		termination, renewal, stored.ClonedFrom, stored.Version, stored.CreatedAt, stored.UpdatedAt)
	if err != nil {
		return nil, classify(err)
	}
	return stored, nil
}

// Update writes the lifecycle-owned columns of c when the stored version
// matches and records the action in contract_events in the same transaction.
func (s *PostgresStore) Update(ctx context.Context, c *model.Contract, action lifecycle.Action) (*model.Contract, error) {
	termination, err := jsonbValue(c.TerminationRequest)
	if err != nil {
		return nil, err
	}
	renewal, err := jsonbValue(c.RenewalRequest)
	if err != nil {
		return nil, err
	}
	now := s.now()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, classify(err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `UPDATE contracts SET status = $2, signature_url = $3, move_in_confirmed_at = $4,
	termination_request = $5, renewal_request = $6, end_date = $7, version = version + 1, updated_at = $8
WHERE id = $1 AND version = $9`,
		c.ID, string(c.Status), c.SignatureURL, nullTime(c.MoveInConfirmedAt),
		termination, renewal, c.EndDate, now, c.Version)
	if err != nil {
		return nil, classify(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, classify(err)
	}
	if affected == 0 {
		var version int64
		err := tx.QueryRowContext(ctx, `SELECT version FROM contracts WHERE id = $1`, c.ID).Scan(&version)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, lifecycle.ErrNotFound
		}
		if err != nil {
			return nil, classify(err)
		}
		return nil, ErrVersionConflict
	}

	if _, err := tx.ExecContext(ctx, `INSERT INTO contract_events (contract_id, action, status, version, created_at)
VALUES ($1, $2, $3, $4, $5)`, c.ID, string(action), string(c.Status), c.Version+1, now); err != nil {
		return nil, classify(err)
	}
	if err := tx.Commit(); err != nil {
		return nil, classify(err)
	}

	stored := c.Copy()
	stored.Version = c.Version + 1
	stored.UpdatedAt = now
	return stored, nil
}
