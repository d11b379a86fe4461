package repository_test

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/aarthurxk/calibrasil-sub001/models"
	"github.com/aarthurxk/calibrasil-sub001/repository"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func setupMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: db}), &gorm.Config{})
	require.NoError(t, err)
	return gormDB, mock
}

func TestLockOrder_UsesRowLock(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	store := repository.NewGormStore(gormDB)

	id := uuid.New()
	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "status", "payment_status", "total", "created_at", "updated_at"}).
		AddRow(id, "pending", "awaiting_payment", 30000, now, now)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "orders" WHERE id = \$1 .*FOR UPDATE`).
		WillReturnRows(rows)
	mock.ExpectCommit()

	var got *models.Order
	err := store.Transaction(context.Background(), func(tx repository.Tx) error {
		var err error
		got, err = tx.LockOrder(context.Background(), id)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPending, got.Status)
	assert.Equal(t, int64(30000), got.Total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLockOrder_NotFound(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	store := repository.NewGormStore(gormDB)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "orders"`).
		WillReturnRows(sqlmock.NewRows([]string{}))
	mock.ExpectRollback()

	err := store.Transaction(context.Background(), func(tx repository.Tx) error {
		_, err := tx.LockOrder(context.Background(), uuid.New())
		return err
	})
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordCharge_Duplicate(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	store := repository.NewGormStore(gormDB)

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "processed_charges" .*ON CONFLICT DO NOTHING`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(uuid.New()))
	mock.ExpectQuery(`INSERT INTO "processed_charges" .*ON CONFLICT DO NOTHING`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectCommit()

	var first, second bool
	err := store.Transaction(context.Background(), func(tx repository.Tx) error {
		var err error
		charge := models.ProcessedCharge{Gateway: "stripe", ExternalChargeID: "pi_1", VerifiedStatus: "paid", OrderID: uuid.New()}
		c1, c2 := charge, charge
		if first, err = tx.RecordCharge(context.Background(), &c1); err != nil {
			return err
		}
		second, err = tx.RecordCharge(context.Background(), &c2)
		return err
	})
	require.NoError(t, err)
	assert.True(t, first)
	assert.False(t, second)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIncrementCouponUsage(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	store := repository.NewGormStore(gormDB)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "coupons" SET "used_count"=used_count + 1 WHERE UPPER(code) = $1`)).
		WithArgs("BEMVINDO10").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "coupons" SET "used_count"=used_count + 1 WHERE UPPER(code) = $1`)).
		WithArgs("MISSING").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	var found, missing bool
	err := store.Transaction(context.Background(), func(tx repository.Tx) error {
		var err error
		if found, err = tx.IncrementCouponUsage(context.Background(), "bemvindo10"); err != nil {
			return err
		}
		missing, err = tx.IncrementCouponUsage(context.Background(), "missing")
		return err
	})
	require.NoError(t, err)
	assert.True(t, found)
	assert.False(t, missing)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSavepoint_RollsBackOnlyNestedScope(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	store := repository.NewGormStore(gormDB)

	mock.ExpectBegin()
	mock.ExpectExec(`^SAVEPOINT sp`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`^ROLLBACK TO SAVEPOINT sp`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	boom := errors.New("variant lookup failed")
	err := store.Transaction(context.Background(), func(tx repository.Tx) error {
		spErr := tx.Savepoint(context.Background(), func(repository.Tx) error { return boom })
		assert.ErrorIs(t, spErr, boom)
		return nil
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditList_FiltersByOrder(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := repository.NewGormAuditRepository(gormDB)

	orderID := uuid.New()
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT count(*) FROM "audit_logs" WHERE order_id = $1`)).
		WithArgs(orderID).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "audit_logs" WHERE order_id = $1 ORDER BY created_at DESC`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "action", "order_id", "outcome", "actor", "created_at"}).
			AddRow(uuid.New(), models.AuditPaymentEvent, orderID, models.OutcomeApplied, "stripe", now))

	logs, total, err := repo.List(context.Background(), models.AuditFilter{OrderID: &orderID})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, logs, 1)
	assert.Equal(t, models.OutcomeApplied, logs[0].Outcome)
	assert.NoError(t, mock.ExpectationsWereMet())
}
