package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/smartpigdefi/smartpig/logger"
	"github.com/smartpigdefi/smartpig/model"
)

var ErrAlreadyRecorded = errors.New("settlement already recorded")

// ISettlementRepository defines the contract for the settlement journal.
type ISettlementRepository interface {
	Record(ctx context.Context, ev *model.SettlementEvent) (*model.SettlementRecord, error)
	ListByAccount(ctx context.Context, accountKey string, limit int) ([]*model.SettlementRecord, error)
}

// SettlementRepository implements ISettlementRepository on Postgres.
type SettlementRepository struct {
	DB *sql.DB
}

func NewSettlementRepository(db *sql.DB) *SettlementRepository {
	return &SettlementRepository{DB: db}
}

// Record appends ev. A payment is journaled at most once; a repeat returns
// ErrAlreadyRecorded.
func (r *SettlementRepository) Record(ctx context.Context, ev *model.SettlementEvent) (*model.SettlementRecord, error) {
	log := logger.Log.WithFields(logrus.Fields{
		"payment_id": ev.PaymentID.String(),
		"direction":  ev.Direction,
		"amount":     ev.Amount.String(),
	})
	log.Info("Executing query to record settlement")

	rec := &model.SettlementRecord{
		PaymentID:  ev.PaymentID.String(),
		Direction:  ev.Direction,
		AccountKey: ev.AccountKey,
		Amount:     ev.Amount,
		Reference:  ev.Reference,
		SettledAt:  ev.SettledAt,
	}

	query := `
		INSERT INTO settlement_events (payment_id, direction, account_key, amount, reference, settled_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (payment_id) DO NOTHING
		RETURNING id, created_at`
	err := r.DB.QueryRowContext(ctx, query,
		rec.PaymentID, string(rec.Direction), rec.AccountKey, rec.Amount, rec.Reference, rec.SettledAt,
	).Scan(&rec.ID, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAlreadyRecorded
		}
		log.WithError(err).Error("Failed to execute record settlement query")
		return nil, fmt.Errorf("failed to record settlement: %w", err)
	}
	return rec, nil
}

// ListByAccount returns the newest settlements for an account first.
func (r *SettlementRepository) ListByAccount(ctx context.Context, accountKey string, limit int) ([]*model.SettlementRecord, error) {
	log := logger.Log.WithField("account_key", accountKey)

	query := `
		SELECT id, payment_id, direction, account_key, amount, reference, settled_at, created_at
		FROM settlement_events
		WHERE account_key = $1
		ORDER BY settled_at DESC
		LIMIT $2`

	rows, err := r.DB.QueryContext(ctx, query, accountKey, limit)
	if err != nil {
		log.WithError(err).Error("Failed to execute query for settlements by account")
		return nil, err
	}
	defer rows.Close()

	var records []*model.SettlementRecord
	for rows.Next() {
		var rec model.SettlementRecord
		var direction string
		if err := rows.Scan(&rec.ID, &rec.PaymentID, &direction, &rec.AccountKey, &rec.Amount, &rec.Reference, &rec.SettledAt, &rec.CreatedAt); err != nil {
			log.WithError(err).Error("Failed to scan settlement row")
			return nil, err
		}
		rec.Direction = model.Direction(direction)
		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}
