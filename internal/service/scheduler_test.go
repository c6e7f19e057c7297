package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
)

type fakeImporter struct {
	calls int
	err   error
}

func (f *fakeImporter) ImportOrders(context.Context) (ImportSummary, error) {
	f.calls++
	return ImportSummary{}, f.err
}

func TestNewImportSchedulerAppliesDefaults(t *testing.T) {
	t.Parallel()

	if _, err := NewImportScheduler(nil, 0, nil); err == nil {
		t.Fatal("expected error when importer is nil")
	}

	scheduler, err := NewImportScheduler(&fakeImporter{}, 0, nil)
	if err != nil {
		t.Fatalf("NewImportScheduler() error = %v", err)
	}
	if scheduler.interval != 5*time.Minute {
		t.Fatalf("interval = %v, want 5m", scheduler.interval)
	}
	if scheduler.logger == nil {
		t.Fatal("logger should default to nop")
	}
}

func TestImportSchedulerRunOncePropagatesError(t *testing.T) {
	t.Parallel()

	importer := &fakeImporter{err: errors.New("mainframe down")}
	scheduler, err := NewImportScheduler(importer, time.Second, zap.NewNop())
	if err != nil {
		t.Fatalf("NewImportScheduler() error = %v", err)
	}

	if err := scheduler.runOnce(context.Background()); err == nil {
		t.Fatal("expected runOnce() error")
	}
	if importer.calls != 1 {
		t.Fatalf("import calls = %d, want 1", importer.calls)
	}
}

func TestImportSchedulerStartReturnsOnContextCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	importer := &fakeImporter{}
	scheduler, err := NewImportScheduler(importer, time.Second, zap.NewNop())
	if err != nil {
		t.Fatalf("NewImportScheduler() error = %v", err)
	}

	if err := scheduler.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if importer.calls != 1 {
		t.Fatalf("import calls = %d, want the initial run only", importer.calls)
	}
}
