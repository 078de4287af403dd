package service

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/AnTengye/leaseflow/lifecycle"
	"github.com/AnTengye/leaseflow/model"
	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var contractColumnNames = []string{
	"id", "account", "building_id", "room_id", "tenant_name", "tenant_email", "landlord_name",
	"monthly_rent", "deposit", "terms", "status", "start_date", "end_date", "signature_url", "move_in_confirmed_at",
	"termination_request", "renewal_request", "cloned_from", "version", "created_at", "updated_at",
}

func setupMockContractsDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *PostgresStore) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	store := NewPostgresStore(db)
	store.now = func() time.Time { return fixedNow }
	return db, mock, store
}

var (
	fixedNow  = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	startDate = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	endDate   = time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC)
	movedInAt = time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)
	createdAt = time.Date(2025, 12, 1, 8, 0, 0, 0, time.UTC)
)

func contractRow(id string) []driver.Value {
	return []driver.Value{
		id, "acme", "b-1", "r-101", "Jane Roe", "jane@example.com", "Acme Rentals",
		int64(150000), int64(300000), "standard", "completed", startDate, endDate, "https://sig/1.png", movedInAt,
		[]byte(`{"status":"pending","reason":"relocating","requested_at":"2026-04-01T00:00:00Z"}`), nil,
		"", int64(3), createdAt, createdAt,
	}
}

func TestPostgresGet_Success(t *testing.T) {
	db, mock, store := setupMockContractsDB(t)
	defer db.Close()

	rows := sqlmock.NewRows(contractColumnNames).AddRow(contractRow("c-1")...)
	mock.ExpectQuery(`SELECT .* FROM contracts WHERE id = \$1`).
		WithArgs("c-1").
		WillReturnRows(rows)

	c, err := store.Get(context.Background(), "c-1")
	require.NoError(t, err)

	assert.Equal(t, "c-1", c.ID)
	assert.Equal(t, model.StatusCompleted, c.Status)
	assert.Equal(t, int64(150000), c.MonthlyRent)
	require.NotNil(t, c.MoveInConfirmedAt)
	assert.True(t, c.MoveInConfirmedAt.Equal(movedInAt))
	assert.True(t, c.IsInForce())
	require.NotNil(t, c.TerminationRequest)
	assert.Equal(t, model.RequestPending, c.TerminationRequest.Status)
	assert.Equal(t, "relocating", c.TerminationRequest.Reason)
	assert.Nil(t, c.RenewalRequest)
	assert.Equal(t, int64(3), c.Version)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGet_NotFound(t *testing.T) {
	db, mock, store := setupMockContractsDB(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT .* FROM contracts WHERE id = \$1`).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := store.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, lifecycle.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGet_Unavailable(t *testing.T) {
	db, mock, store := setupMockContractsDB(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT .* FROM contracts WHERE id = \$1`).
		WithArgs("c-1").
		WillReturnError(errors.New("dial tcp: connection refused"))

	_, err := store.Get(context.Background(), "c-1")
	assert.ErrorIs(t, err, lifecycle.ErrPersistenceUnavailable)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresList_FilterAndPage(t *testing.T) {
	db, mock, store := setupMockContractsDB(t)
	defer db.Close()

	rows := sqlmock.NewRows(append(append([]string{}, contractColumnNames...), "count")).
		AddRow(append(contractRow("c-1"), 12)...).
		AddRow(append(contractRow("c-2"), 12)...)

	tail := regexp.QuoteMeta(`FROM contracts WHERE account = $1 AND (termination_request->>'status' = $2 OR renewal_request->>'status' = $2) ORDER BY created_at DESC, id LIMIT $3 OFFSET $4`)
	mock.ExpectQuery(`SELECT .* ` + tail).
		WithArgs("acme", "pending", 10, 10).
		WillReturnRows(rows)

	contracts, total, err := store.List(context.Background(),
		ListFilter{Account: "acme", RequestStatus: "pending"},
		Page{Page: 2, Limit: 10})
	require.NoError(t, err)
	assert.Len(t, contracts, 2)
	assert.Equal(t, 12, total)
	assert.Equal(t, "c-2", contracts[1].ID)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresList_PastLastPage(t *testing.T) {
	db, mock, store := setupMockContractsDB(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT .* FROM contracts WHERE account = \$1 ORDER BY`).
		WithArgs("acme", 20, 80).
		WillReturnRows(sqlmock.NewRows(append(append([]string{}, contractColumnNames...), "count")))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM contracts WHERE account = \$1`).
		WithArgs("acme").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))

	contracts, total, err := store.List(context.Background(), ListFilter{Account: "acme"}, Page{Page: 5})
	require.NoError(t, err)
	assert.Empty(t, contracts)
	assert.Equal(t, 7, total)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListWhere(t *testing.T) {
	tests := []struct {
		name   string
		filter ListFilter
		where  string
		args   []any
	}{
		{"empty", ListFilter{}, "", nil},
		{"all requests", ListFilter{RequestStatus: "all"}, "", nil},
		{"building and status", ListFilter{BuildingID: "b-1", Status: model.StatusDraft},
			" WHERE building_id = $1 AND status = $2", []any{"b-1", "draft"}},
		{"termination approved", ListFilter{Account: "acme", Workflow: WorkflowTermination, RequestStatus: "approved"},
			" WHERE account = $1 AND termination_request->>'status' = $2", []any{"acme", "approved"}},
		{"any renewal", ListFilter{Workflow: WorkflowRenewal, RequestStatus: "all"},
			" WHERE renewal_request IS NOT NULL", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			where, args := listWhere(tt.filter)
			assert.Equal(t, tt.where, where)
			assert.Equal(t, tt.args, args)
		})
	}
}

func TestPostgresCreate(t *testing.T) {
	db, mock, store := setupMockContractsDB(t)
	defer db.Close()

	draft := &model.Contract{
		ID: "c-9", Account: "acme", Status: model.StatusDraft,
		StartDate: startDate, EndDate: endDate,
	}

	mock.ExpectExec(`INSERT INTO contracts`).
		WithArgs("c-9", "acme", "", "", "", "", "", int64(0), int64(0), "", "draft",
			startDate, endDate, "", nil, nil, nil, "", int64(1), fixedNow, fixedNow).
		WillReturnResult(sqlmock.NewResult(1, 1))

	stored, err := store.Create(context.Background(), draft)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.Version)
	assert.True(t, stored.CreatedAt.Equal(fixedNow))
	assert.Zero(t, draft.Version, "input must not be mutated")

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCreate_Duplicate(t *testing.T) {
	db, mock, store := setupMockContractsDB(t)
	defer db.Close()

	mock.ExpectExec(`INSERT INTO contracts`).
		WillReturnError(&pq.Error{Code: "23505"})

	_, err := store.Create(context.Background(), &model.Contract{ID: "c-1", Status: model.StatusDraft})
	assert.ErrorIs(t, err, ErrAlreadyExists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUpdate_Success(t *testing.T) {
	db, mock, store := setupMockContractsDB(t)
	defer db.Close()

	c := &model.Contract{
		ID: "c-1", Account: "acme", Status: model.StatusTerminated,
		StartDate: startDate, EndDate: endDate, SignatureURL: "https://sig/1.png",
		MoveInConfirmedAt:  &movedInAt,
		TerminationRequest: &model.TerminationRequest{Status: model.RequestApproved},
		Version:            3,
	}

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE contracts SET status = \$2`).
		WithArgs("c-1", "terminated", "https://sig/1.png", movedInAt,
			sqlmock.AnyArg(), nil, endDate, fixedNow, int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO contract_events`).
		WithArgs("c-1", "approve-termination", "terminated", int64(4), fixedNow).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	stored, err := store.Update(context.Background(), c, lifecycle.ActionApproveTermination)
	require.NoError(t, err)
	assert.Equal(t, int64(4), stored.Version)
	assert.Equal(t, int64(3), c.Version, "input must not be mutated")
	assert.True(t, stored.UpdatedAt.Equal(fixedNow))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUpdate_VersionConflict(t *testing.T) {
	db, mock, store := setupMockContractsDB(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE contracts SET`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT version FROM contracts WHERE id = \$1`).
		WithArgs("c-1").
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(5))
	mock.ExpectRollback()

	_, err := store.Update(context.Background(),
		&model.Contract{ID: "c-1", Status: model.StatusCompleted, Version: 4},
		lifecycle.ActionConfirmMoveIn)
	assert.ErrorIs(t, err, ErrVersionConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUpdate_NotFound(t *testing.T) {
	db, mock, store := setupMockContractsDB(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE contracts SET`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT version FROM contracts WHERE id = \$1`).
		WithArgs("ghost").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	_, err := store.Update(context.Background(),
		&model.Contract{ID: "ghost", Status: model.StatusVoided, Version: 1},
		lifecycle.ActionDisable)
	assert.ErrorIs(t, err, lifecycle.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUpdate_BeginFails(t *testing.T) {
	db, mock, store := setupMockContractsDB(t)
	defer db.Close()

	mock.ExpectBegin().WillReturnError(errors.New("connection reset by peer"))

	_, err := store.Update(context.Background(),
		&model.Contract{ID: "c-1", Status: model.StatusVoided, Version: 1},
		lifecycle.ActionDisable)
	assert.ErrorIs(t, err, lifecycle.ErrPersistenceUnavailable)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresMigrate(t *testing.T) {
	db, mock, store := setupMockContractsDB(t)
	defer db.Close()

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS contracts`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, store.Migrate(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}
