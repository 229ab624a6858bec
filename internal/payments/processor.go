package payments

import (
	"context"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/gigbridge/gigbridge-backend/pkg/config"
	"github.com/gigbridge/gigbridge-backend/pkg/db/models"
	pkgerrors "github.com/gigbridge/gigbridge-backend/pkg/errors"
)

// Processor captures funds for a payment against its method's rails.
// Implementations return a retryable error for transient failures and a
// permanent error for hard declines.
type Processor interface {
	Charge(ctx context.Context, payment *models.Payment) error
}

// WalletProcessor settles wallet and escrow payments. Funds were already
// reserved as a pending ledger entry at process time, so capture is a no-op.
type WalletProcessor struct{}

func (WalletProcessor) Charge(ctx context.Context, payment *models.Payment) error {
	return nil
}

// chargeWithRetry invokes the processor under a capped exponential backoff.
// Permanent (non-retryable) processor errors abort the loop immediately.
func chargeWithRetry(ctx context.Context, processor Processor, cfg config.SettlementConfig, payment *models.Payment) error {
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	initial := cfg.InitialBackoff
	if initial <= 0 {
		initial = 100 * time.Millisecond
	}

	backoff := retry.NewExponential(initial)
	if cfg.MaxBackoff > 0 {
		backoff = retry.WithCappedDuration(cfg.MaxBackoff, backoff)
	}
	backoff = retry.WithMaxRetries(uint64(attempts-1), backoff)

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		chargeErr := processor.Charge(ctx, payment)
		if chargeErr == nil {
			return nil
		}
		// Coded errors marked non-retryable abort the loop immediately.
		if typed := pkgerrors.As(chargeErr); typed != nil && !pkgerrors.MetadataFor(typed.Code()).Retryable {
			return chargeErr
		}
		return retry.RetryableError(chargeErr)
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeSettlementFailure, err, "processor charge failed")
	}
	return nil
}
