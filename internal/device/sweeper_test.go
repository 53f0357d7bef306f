package device

import (
	"context"
	"testing"
	"time"
)

func TestSweeperRunOnce(t *testing.T) {
	clock := newFakeClock()
	reg := newTestRegistry(clock)

	if _, err := reg.Upsert("cam1", "rear-camera", "10.0.0.1", 8080); err != nil {
		t.Fatalf("register: %v", err)
	}

	var notified []Record
	sweeper := NewSweeper(reg, time.Minute, func(evicted []Record) {
		notified = append(notified, evicted...)
	})

	if got := sweeper.RunOnce(); len(got) != 0 {
		t.Errorf("sweep of fresh registry evicted %+v", got)
	}
	if len(notified) != 0 {
		t.Error("notifier fired on empty sweep")
	}

	clock.Advance(6 * time.Minute)
	if got := sweeper.RunOnce(); len(got) != 1 || got[0].ID != "cam1" {
		t.Errorf("sweep evicted %+v, want cam1", got)
	}
	if len(notified) != 1 || notified[0].ID != "cam1" {
		t.Errorf("notifier received %+v, want cam1", notified)
	}
	if reg.Count() != 0 {
		t.Errorf("registry holds %d records after sweep", reg.Count())
	}
}

func TestSweeperLifecycle(t *testing.T) {
	reg := newTestRegistry(newFakeClock())
	sweeper := NewSweeper(reg, time.Second, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sweeper.Start(ctx)
	sweeper.Close()

	// Close is idempotent.
	sweeper.Close()
}

func TestSweeperMinimumInterval(t *testing.T) {
	reg := newTestRegistry(newFakeClock())
	sweeper := NewSweeper(reg, 10*time.Millisecond, nil)
	if sweeper.interval != time.Second {
		t.Errorf("interval = %v, want clamp to 1s", sweeper.interval)
	}
}
