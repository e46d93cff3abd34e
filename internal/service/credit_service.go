package service

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	config "github.com/publora/publora/configs"
	"github.com/publora/publora/internal/models"
	"github.com/publora/publora/internal/repository"
	"github.com/publora/publora/internal/transfer"
)

// Operation cost schedule, in credits.
const (
	OpPublishPost = "publish_post"

	basePublishCost       = 1.00
	extraPlatformSurcharge = 0.50
	crossPostSurcharge     = 0.25
)

// CalculateCost prices an operation: base cost, plus a surcharge per
// platform beyond the first, plus a flat cross-post surcharge.
func CalculateCost(operation string, platformCount int, crossPost bool) float64 {
	cost := basePublishCost
	if platformCount > 1 {
		cost += extraPlatformSurcharge * float64(platformCount-1)
	}
	if crossPost {
		cost += crossPostSurcharge
	}
	return Round2(cost)
}

type CreditLedger interface {
	Balance(ctx context.Context, scope models.Scope) (float64, error)
	Check(ctx context.Context, scope models.Scope, amount float64) error
	Deduct(ctx context.Context, scope models.Scope, amount float64, operation string) error
	// Refund is always additive and never fails the caller: errors are
	// logged and swallowed so a refund hiccup cannot block delivery.
	Refund(ctx context.Context, scope models.Scope, amount float64, description string)
}

// NewCreditLedger selects the delegated or local implementation from
// configuration.
func NewCreditLedger(cfg config.Config, db *sql.DB, cr repository.CreditRepository) CreditLedger {
	if cfg.Credits.Delegated {
		return &delegatedLedger{cfg: cfg, client: &http.Client{Timeout: 10 * time.Second}}
	}
	return &localLedger{db: db, cr: cr}
}

// localLedger serializes concurrent deducts with a row lock on the
// scope's balance and keeps an append-only entry per mutation.
type localLedger struct {
	db *sql.DB
	cr repository.CreditRepository
}

func (l *localLedger) Balance(ctx context.Context, scope models.Scope) (float64, error) {
	balance, err := l.cr.GetBalance(ctx, scope)
	if err != nil {
		return 0, fmt.Errorf("reading balance: %w", err)
	}
	if balance == nil {
		return 0, nil
	}
	return Round2(balance.Balance), nil
}

func (l *localLedger) Check(ctx context.Context, scope models.Scope, amount float64) error {
	balance, err := l.cr.GetBalance(ctx, scope)
	if err != nil {
		return fmt.Errorf("checking credits: %w", err)
	}
	if balance == nil {
		return &InsufficientCreditsError{Required: amount, Available: 0}
	}
	if balance.Balance < amount {
		return &InsufficientCreditsError{Required: amount, Available: Round2(balance.Balance)}
	}
	return nil
}

func (l *localLedger) Deduct(ctx context.Context, scope models.Scope, amount float64, operation string) error {
	amount = Round2(amount)

	tx, err := l.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	balance, err := l.cr.GetBalanceForUpdate(ctx, tx, scope)
	if err != nil {
		return fmt.Errorf("locking balance: %w", err)
	}
	if balance == nil {
		err = &InsufficientCreditsError{Required: amount, Available: 0}
		return err
	}
	if balance.Balance < amount {
		err = &InsufficientCreditsError{Required: amount, Available: Round2(balance.Balance)}
		return err
	}

	if err = l.cr.SetBalance(ctx, tx, balance.ID, Round2(balance.Balance-amount)); err != nil {
		return fmt.Errorf("updating balance: %w", err)
	}

	entry := &models.CreditEntry{
		UserID:      balance.UserID,
		TeamID:      balance.TeamID,
		EntryType:   models.CreditEntryUsage,
		Amount:      amount,
		Description: operation,
	}
	if err = l.cr.InsertEntry(ctx, tx, entry); err != nil {
		return fmt.Errorf("recording ledger entry: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (l *localLedger) Refund(ctx context.Context, scope models.Scope, amount float64, description string) {
	amount = Round2(amount)

	tx, err := l.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		slog.Error("refund failed", "error", err, "amount", amount)
		return
	}

	balance, err := l.cr.GetBalanceForUpdate(ctx, tx, scope)
	if err != nil || balance == nil {
		tx.Rollback()
		slog.Error("refund failed: balance unavailable", "user_id", scope.UserID, "amount", amount)
		return
	}

	if err := l.cr.SetBalance(ctx, tx, balance.ID, Round2(balance.Balance+amount)); err != nil {
		tx.Rollback()
		slog.Error("refund failed", "error", err, "amount", amount)
		return
	}

	entry := &models.CreditEntry{
		UserID:      balance.UserID,
		TeamID:      balance.TeamID,
		EntryType:   models.CreditEntryRefund,
		Amount:      amount,
		Description: description,
	}
	if err := l.cr.InsertEntry(ctx, tx, entry); err != nil {
		tx.Rollback()
		slog.Error("refund failed", "error", err, "amount", amount)
		return
	}

	if err := tx.Commit(); err != nil {
		slog.Error("refund failed", "error", err, "amount", amount)
	}
}

// delegatedLedger forwards every operation to the external credit
// service. A delegated failure surfaces as a ledger failure; there is
// no silent local fallback.
type delegatedLedger struct {
	cfg    config.Config
	client *http.Client
}

func (d *delegatedLedger) do(ctx context.Context, scope models.Scope, method, path string, payload interface{}, out interface{}) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewBuffer(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, d.cfg.Credits.ServiceURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+d.cfg.Credits.ServiceToken)
	req.Header.Set("X-User-ID", strconv.FormatInt(scope.UserID, 10))
	if scope.TeamID.Valid {
		req.Header.Set("X-Team-ID", strconv.FormatInt(scope.TeamID.Int64, 10))
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("credit service unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("credit service returned status %d", resp.StatusCode)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decoding credit service response: %w", err)
		}
	}
	return nil
}

func (d *delegatedLedger) Balance(ctx context.Context, scope models.Scope) (float64, error) {
	var result transfer.CreditBalanceResponse
	if err := d.do(ctx, scope, "GET", "/balance", nil, &result); err != nil {
		return 0, err
	}
	return Round2(result.Balance), nil
}

func (d *delegatedLedger) Check(ctx context.Context, scope models.Scope, amount float64) error {
	var result transfer.CreditCheckResponse
	if err := d.do(ctx, scope, "POST", "/check", transfer.CreditCheckRequest{Amount: amount}, &result); err != nil {
		return err
	}
	if !result.Sufficient {
		return &InsufficientCreditsError{Required: amount, Available: result.Available}
	}
	return nil
}

func (d *delegatedLedger) Deduct(ctx context.Context, scope models.Scope, amount float64, operation string) error {
	return d.do(ctx, scope, "POST", "/deduct", transfer.CreditDeductRequest{Amount: Round2(amount), Operation: operation}, nil)
}

func (d *delegatedLedger) Refund(ctx context.Context, scope models.Scope, amount float64, description string) {
	err := d.do(ctx, scope, "POST", "/add", transfer.CreditAddRequest{Amount: Round2(amount), Description: description}, nil)
	if err != nil {
		slog.Error("delegated refund failed", "error", err, "amount", amount)
	}
}
