package service

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/publora/publora/internal/models"
	"github.com/publora/publora/internal/repository"
)

func TestCalculateCost(t *testing.T) {
	tests := []struct {
		name      string
		platforms int
		crossPost bool
		want      float64
	}{
		{"single platform", 1, false, 1.00},
		{"two platforms", 2, false, 1.50},
		{"three platforms", 3, false, 2.00},
		{"single with cross-post", 1, true, 1.25},
		{"two with cross-post", 2, true, 1.75},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CalculateCost(OpPublishPost, tt.platforms, tt.crossPost))
		})
	}
}

func TestRound2(t *testing.T) {
	assert.Equal(t, 0.3, Round2(0.1+0.2))
	assert.Equal(t, 1.75, Round2(1.0+0.5+0.25))
	assert.Equal(t, 2.0, Round2(2))
}

func setupLedger(t *testing.T) (*localLedger, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return &localLedger{db: db, cr: repository.NewCreditRepository(db)}, mock
}

func balanceRows(id, userID int64, balance float64) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "user_id", "team_id", "balance", "created_at", "updated_at"}).
		AddRow(id, userID, nil, balance, time.Now(), time.Now())
}

func TestLocalLedger_Deduct(t *testing.T) {
	ledger, mock := setupLedger(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`FROM credit_balances WHERE user_id = $1 AND team_id IS NULL FOR UPDATE`)).
		WithArgs(int64(1)).
		WillReturnRows(balanceRows(10, 1, 5.00))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE credit_balances SET balance = $1`)).
		WithArgs(3.50, sqlmock.AnyArg(), int64(10)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO credit_entries`)).
		WithArgs(int64(1), sqlmock.AnyArg(), models.CreditEntryUsage, 1.50, OpPublishPost).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := ledger.Deduct(ctx, models.UserScope(1), 1.50, OpPublishPost)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLocalLedger_DeductInsufficient(t *testing.T) {
	ledger, mock := setupLedger(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`FROM credit_balances WHERE user_id = $1 AND team_id IS NULL FOR UPDATE`)).
		WithArgs(int64(1)).
		WillReturnRows(balanceRows(10, 1, 0.50))
	mock.ExpectRollback()

	err := ledger.Deduct(ctx, models.UserScope(1), 1.00, OpPublishPost)

	var insufficient *InsufficientCreditsError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, 1.00, insufficient.Required)
	assert.Equal(t, 0.50, insufficient.Available)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLocalLedger_DeductNoBalanceRow(t *testing.T) {
	ledger, mock := setupLedger(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`FROM credit_balances WHERE user_id = $1 AND team_id IS NULL FOR UPDATE`)).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "team_id", "balance", "created_at", "updated_at"}))
	mock.ExpectRollback()

	err := ledger.Deduct(ctx, models.UserScope(1), 1.00, OpPublishPost)

	var insufficient *InsufficientCreditsError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, 0.0, insufficient.Available)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLocalLedger_RefundRestoresDeduction(t *testing.T) {
	ledger, mock := setupLedger(t)
	ctx := context.Background()

	// Deduct 2.00 from 5.00.
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`FROM credit_balances WHERE user_id = $1 AND team_id IS NULL FOR UPDATE`)).
		WithArgs(int64(1)).
		WillReturnRows(balanceRows(10, 1, 5.00))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE credit_balances SET balance = $1`)).
		WithArgs(3.00, sqlmock.AnyArg(), int64(10)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO credit_entries`)).
		WithArgs(int64(1), sqlmock.AnyArg(), models.CreditEntryUsage, 2.00, OpPublishPost).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	// Refund brings the balance back to 5.00 and records a refund entry.
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`FROM credit_balances WHERE user_id = $1 AND team_id IS NULL FOR UPDATE`)).
		WithArgs(int64(1)).
		WillReturnRows(balanceRows(10, 1, 3.00))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE credit_balances SET balance = $1`)).
		WithArgs(5.00, sqlmock.AnyArg(), int64(10)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO credit_entries`)).
		WithArgs(int64(1), sqlmock.AnyArg(), models.CreditEntryRefund, 2.00, "refund: "+OpPublishPost).
		WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()

	require.NoError(t, ledger.Deduct(ctx, models.UserScope(1), 2.00, OpPublishPost))
	ledger.Refund(ctx, models.UserScope(1), 2.00, "refund: "+OpPublishPost)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLocalLedger_Check(t *testing.T) {
	ledger, mock := setupLedger(t)
	ctx := context.Background()

	mock.ExpectQuery(regexp.QuoteMeta(`FROM credit_balances WHERE user_id = $1 AND team_id IS NULL`)).
		WithArgs(int64(1)).
		WillReturnRows(balanceRows(10, 1, 1.75))

	require.NoError(t, ledger.Check(ctx, models.UserScope(1), 1.75))
	assert.NoError(t, mock.ExpectationsWereMet())
}
