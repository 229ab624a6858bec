package cron

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeAdvancer struct {
	moved int64
	err   error
	asOf  time.Time
}

func (f *fakeAdvancer) AdvanceOverdue(ctx context.Context, asOf time.Time) (int64, error) {
	f.asOf = asOf
	return f.moved, f.err
}

func TestInvoiceOverdueJobAdvances(t *testing.T) {
	advancer := &fakeAdvancer{moved: 4}
	job, err := NewInvoiceOverdueJob(InvoiceOverdueJobParams{
		Logger:   cronTestLogger(),
		Invoices: advancer,
	})
	if err != nil {
		t.Fatalf("construct job: %v", err)
	}

	fixed := time.Date(2026, 2, 14, 12, 0, 0, 0, time.UTC)
	job.(*invoiceOverdueJob).now = func() time.Time { return fixed }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !advancer.asOf.Equal(fixed) {
		t.Fatalf("expected sweep at %s, got %s", fixed, advancer.asOf)
	}
}

func TestInvoiceOverdueJobPropagatesErrors(t *testing.T) {
	advancer := &fakeAdvancer{err: errors.New("db down")}
	job, err := NewInvoiceOverdueJob(InvoiceOverdueJobParams{
		Logger:   cronTestLogger(),
		Invoices: advancer,
	})
	if err != nil {
		t.Fatalf("construct job: %v", err)
	}
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error to propagate")
	}
}
