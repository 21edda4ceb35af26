package client

import (
	"context"
	"crypto/rand"
	"net/http"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"

	"github.com/smartpigdefi/smartpig/logger"
)

const (
	demoPixPrefix = "00020126580014br.gov.bcb.pix0136"
	demoExpiry    = 15 * time.Minute
)

type demoDeposit struct {
	accountKey string
	firstPoll  time.Time
	settlement string
}

// DemoSettlement is an in-process rail. Deposits complete once approval
// has elapsed since the first status poll; withdrawals are accepted
// immediately.
type DemoSettlement struct {
	mu       sync.Mutex
	approval time.Duration
	deposits map[string]*demoDeposit
	entropy  *ulid.MonotonicEntropy
	now      func() time.Time
}

func NewDemoSettlement(approval time.Duration) *DemoSettlement {
	return &DemoSettlement{
		approval: approval,
		deposits: make(map[string]*demoDeposit),
		entropy:  ulid.Monotonic(rand.Reader, 0),
		now:      time.Now,
	}
}

// newID must be called with mu held; the monotonic reader is not safe
// for concurrent use.
func (d *DemoSettlement) newID() string {
	return ulid.MustNew(ulid.Timestamp(d.now()), d.entropy).String()
}

func (d *DemoSettlement) CreateDeposit(ctx context.Context, req CreateDepositRequest) (*CreateDepositResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !req.Amount.IsPositive() {
		return nil, &ServiceError{Kind: ErrValidation, StatusCode: http.StatusBadRequest, Message: "amount must be positive"}
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	ref := d.newID()
	d.deposits[ref] = &demoDeposit{accountKey: req.AccountKey}

	code := demoPixPrefix + ref + req.Amount.StringFixed(2)
	scan, err := GenerateQRCode(code)
	if err != nil {
		return nil, &ServiceError{Kind: ErrServiceUnavailable, Message: err.Error()}
	}

	logger.Log.WithFields(logrus.Fields{
		"reference": ref,
		"amount":    req.Amount.String(),
	}).Info("Demo deposit created")

	return &CreateDepositResult{
		Reference:   ref,
		Code:        code,
		ScanPayload: scan,
		ExpiresAt:   d.now().Add(demoExpiry),
	}, nil
}

func (d *DemoSettlement) GetDepositStatus(ctx context.Context, reference string) (*DepositStatusResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	dep, ok := d.deposits[reference]
	if !ok {
		return nil, &ServiceError{Kind: ErrValidation, StatusCode: http.StatusNotFound, Message: "unknown deposit " + reference}
	}

	now := d.now()
	if dep.firstPoll.IsZero() {
		dep.firstPoll = now
	}
	if now.Sub(dep.firstPoll) < d.approval {
		return &DepositStatusResult{Status: StatusPending}, nil
	}
	if dep.settlement == "" {
		dep.settlement = d.newID()
	}
	return &DepositStatusResult{Status: StatusCompleted, SettlementReference: dep.settlement}, nil
}

func (d *DemoSettlement) CreateWithdrawal(ctx context.Context, req CreateWithdrawalRequest) (*CreateWithdrawalResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !req.Amount.IsPositive() {
		return nil, &ServiceError{Kind: ErrValidation, StatusCode: http.StatusBadRequest, Message: "amount must be positive"}
	}
	if req.Destination == "" {
		return nil, &ServiceError{Kind: ErrValidation, StatusCode: http.StatusBadRequest, Message: "pix_key is required"}
	}

	d.mu.Lock()
	ref := d.newID()
	d.mu.Unlock()

	logger.Log.WithFields(logrus.Fields{
		"reference": ref,
		"amount":    req.Amount.String(),
	}).Info("Demo withdrawal accepted")

	return &CreateWithdrawalResult{Reference: ref}, nil
}
