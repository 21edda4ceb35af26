package service

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/smartpigdefi/smartpig/logger"
	"github.com/smartpigdefi/smartpig/model"
	"github.com/smartpigdefi/smartpig/repository"
)

const journalBuffer = 64

// JournalService appends every settlement published on the bus to the
// settlement journal.
type JournalService struct {
	repo repository.ISettlementRepository
	bus  *EventBus
}

func NewJournalService(repo repository.ISettlementRepository, bus *EventBus) *JournalService {
	return &JournalService{repo: repo, bus: bus}
}

// Run records settlements until ctx is done.
func (j *JournalService) Run(ctx context.Context) {
	events, unsubscribe := j.bus.Subscribe(journalBuffer)
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if ev.Type != EventSettled {
				continue
			}
			settled, ok := ev.Data.(model.SettlementEvent)
			if !ok {
				continue
			}
			j.record(ctx, &settled)
		}
	}
}

func (j *JournalService) record(ctx context.Context, ev *model.SettlementEvent) {
	log := logger.Log.WithFields(logrus.Fields{
		"payment_id": ev.PaymentID.String(),
		"direction":  ev.Direction,
	})
	if _, err := j.repo.Record(ctx, ev); err != nil {
		if errors.Is(err, repository.ErrAlreadyRecorded) {
			log.Debug("Settlement already journaled")
			return
		}
		log.WithError(err).Error("Failed to journal settlement")
		return
	}
	log.Info("Settlement journaled")
}

// History lists the newest settlements for accountKey.
func (j *JournalService) History(ctx context.Context, accountKey string, limit int) ([]*model.SettlementRecord, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return j.repo.ListByAccount(ctx, accountKey, limit)
}
