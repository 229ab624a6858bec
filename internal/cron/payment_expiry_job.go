package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/gigbridge/gigbridge-backend/pkg/db/models"
	pkgerrors "github.com/gigbridge/gigbridge-backend/pkg/errors"
	"github.com/gigbridge/gigbridge-backend/pkg/logger"
)

const expiryBatchSize = 100

// stalePendingReader lists pending payments older than a cutoff.
type stalePendingReader interface {
	ListStalePending(ctx context.Context, olderThan time.Time, limit int) ([]models.Payment, error)
}

// paymentCanceller cancels one payment; only pending payments qualify.
type paymentCanceller interface {
	Cancel(ctx context.Context, paymentID uuid.UUID) (*models.Payment, error)
}

// PaymentExpiryJobParams configure the stale payment sweep.
type PaymentExpiryJobParams struct {
	Logger     *logger.Logger
	Reader     stalePendingReader
	Payments   paymentCanceller
	PendingTTL time.Duration
}

// NewPaymentExpiryJob builds the job that cancels payments left pending
// beyond the configured TTL. Payments that started processing are untouched.
func NewPaymentExpiryJob(params PaymentExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Reader == nil {
		return nil, fmt.Errorf("pending payment reader required")
	}
	if params.Payments == nil {
		return nil, fmt.Errorf("payment service required")
	}
	if params.PendingTTL <= 0 {
		return nil, fmt.Errorf("pending ttl must be positive")
	}
	return &paymentExpiryJob{
		logg:       params.Logger,
		reader:     params.Reader,
		payments:   params.Payments,
		pendingTTL: params.PendingTTL,
		now:        time.Now,
	}, nil
}

type paymentExpiryJob struct {
	logg       *logger.Logger
	reader     stalePendingReader
	payments   paymentCanceller
	pendingTTL time.Duration
	now        func() time.Time
}

func (j *paymentExpiryJob) Name() string { return "payment-expiry" }

func (j *paymentExpiryJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.pendingTTL)
	stale, err := j.reader.ListStalePending(ctx, cutoff, expiryBatchSize)
	if err != nil {
		return fmt.Errorf("query stale pending payments: %w", err)
	}

	var errs []error
	cancelled := 0
	for _, payment := range stale {
		if _, err := j.payments.Cancel(ctx, payment.ID); err != nil {
			// A payment that started processing since the query is skipped.
			if pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
				continue
			}
			errs = append(errs, fmt.Errorf("cancel payment %s: %w", payment.ID, err))
			continue
		}
		cancelled++
	}

	if cancelled > 0 {
		ctx := j.logg.WithField(ctx, "count", cancelled)
		j.logg.Info(ctx, "stale pending payments cancelled")
	}
	return multierr.Combine(errs...)
}
