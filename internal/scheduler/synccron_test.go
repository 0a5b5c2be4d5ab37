package scheduler

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
)

func TestNewSyncCronAcceptsSixFieldExpression(t *testing.T) {
	cron, err := NewSyncCron("0 30 21 * * SUN", func(context.Context) error { return nil }, zerolog.Nop())
	if err != nil {
		t.Fatalf("expected the six-field default to parse: %v", err)
	}
	cron.Start()
	cron.Stop()
}

func TestNewSyncCronRejectsBadExpression(t *testing.T) {
	if _, err := NewSyncCron("every sunday", func(context.Context) error { return nil }, zerolog.Nop()); err == nil {
		t.Fatal("expected an error for an invalid expression")
	}
}

func TestNewSyncCronRejectsFiveFieldExpression(t *testing.T) {
	// the parser requires the seconds field
	if _, err := NewSyncCron("30 21 * * SUN", func(context.Context) error { return nil }, zerolog.Nop()); err == nil {
		t.Fatal("expected an error for a five-field expression")
	}
}
