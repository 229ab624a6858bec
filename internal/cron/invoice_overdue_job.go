package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/gigbridge/gigbridge-backend/pkg/logger"
)

// overdueAdvancer is the invoice surface this job drives.
type overdueAdvancer interface {
	AdvanceOverdue(ctx context.Context, asOf time.Time) (int64, error)
}

// InvoiceOverdueJobParams configure the overdue invoice sweep.
type InvoiceOverdueJobParams struct {
	Logger   *logger.Logger
	Invoices overdueAdvancer
}

// NewInvoiceOverdueJob builds the job that advances sent and viewed invoices
// past their due date to overdue.
func NewInvoiceOverdueJob(params InvoiceOverdueJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Invoices == nil {
		return nil, fmt.Errorf("invoice service required")
	}
	return &invoiceOverdueJob{
		logg:     params.Logger,
		invoices: params.Invoices,
		now:      time.Now,
	}, nil
}

type invoiceOverdueJob struct {
	logg     *logger.Logger
	invoices overdueAdvancer
	now      func() time.Time
}

func (j *invoiceOverdueJob) Name() string { return "invoice-overdue" }

func (j *invoiceOverdueJob) Run(ctx context.Context) error {
	moved, err := j.invoices.AdvanceOverdue(ctx, j.now().UTC())
	if err != nil {
		return fmt.Errorf("advance overdue invoices: %w", err)
	}
	if moved > 0 {
		ctx = j.logg.WithField(ctx, "count", moved)
		j.logg.Info(ctx, "overdue invoices advanced")
	}
	return nil
}
