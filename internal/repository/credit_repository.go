package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/publora/publora/internal/models"
)

type CreditRepository interface {
	GetBalance(ctx context.Context, scope models.Scope) (*models.CreditBalance, error)
	GetBalanceForUpdate(ctx context.Context, tx *sql.Tx, scope models.Scope) (*models.CreditBalance, error)
	SetBalance(ctx context.Context, tx *sql.Tx, id int64, balance float64) error
	InsertEntry(ctx context.Context, tx *sql.Tx, entry *models.CreditEntry) error
}

type creditRepository struct {
	db *sql.DB
}

func NewCreditRepository(db *sql.DB) CreditRepository {
	return &creditRepository{db: db}
}

const balanceColumns = `id, user_id, team_id, balance, created_at, updated_at`

func scanBalance(row *sql.Row) (*models.CreditBalance, error) {
	var b models.CreditBalance
	err := row.Scan(&b.ID, &b.UserID, &b.TeamID, &b.Balance, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}
	return &b, nil
}

// GetBalance resolves the balance row for a scope: the team row when
// the operation is team-attributed and one exists, else the personal
// row.
func (r *creditRepository) GetBalance(ctx context.Context, scope models.Scope) (*models.CreditBalance, error) {
	if scope.TeamID.Valid {
		query := `SELECT ` + balanceColumns + ` FROM credit_balances WHERE team_id = $1`
		b, err := scanBalance(r.db.QueryRowContext(ctx, query, scope.TeamID.Int64))
		if err != nil {
			return nil, err
		}
		if b != nil {
			return b, nil
		}
	}
	query := `SELECT ` + balanceColumns + ` FROM credit_balances WHERE user_id = $1 AND team_id IS NULL`
	return scanBalance(r.db.QueryRowContext(ctx, query, scope.UserID))
}

// GetBalanceForUpdate locks the scope's balance row for the duration
// of tx. Concurrent deducts on the same scope serialize here.
func (r *creditRepository) GetBalanceForUpdate(ctx context.Context, tx *sql.Tx, scope models.Scope) (*models.CreditBalance, error) {
	if scope.TeamID.Valid {
		query := `SELECT ` + balanceColumns + ` FROM credit_balances WHERE team_id = $1 FOR UPDATE`
		b, err := scanBalance(tx.QueryRowContext(ctx, query, scope.TeamID.Int64))
		if err != nil {
			return nil, err
		}
		if b != nil {
			return b, nil
		}
	}
	query := `SELECT ` + balanceColumns + ` FROM credit_balances WHERE user_id = $1 AND team_id IS NULL FOR UPDATE`
	return scanBalance(tx.QueryRowContext(ctx, query, scope.UserID))
}

func (r *creditRepository) SetBalance(ctx context.Context, tx *sql.Tx, id int64, balance float64) error {
	query := `UPDATE credit_balances SET balance = $1, updated_at = $2 WHERE id = $3`
	_, err := tx.ExecContext(ctx, query, balance, time.Now(), id)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *creditRepository) InsertEntry(ctx context.Context, tx *sql.Tx, entry *models.CreditEntry) error {
	query := `
		INSERT INTO credit_entries (user_id, team_id, entry_type, amount, description)
		VALUES ($1, $2, $3, $4, $5)
	`
	var err error
	if tx != nil {
		_, err = tx.ExecContext(ctx, query, entry.UserID, entry.TeamID, entry.EntryType, entry.Amount, entry.Description)
	} else {
		_, err = r.db.ExecContext(ctx, query, entry.UserID, entry.TeamID, entry.EntryType, entry.Amount, entry.Description)
	}
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}
