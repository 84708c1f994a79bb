package events

import (
	"context"
	"errors"
	"testing"

	pgxmock "github.com/pashagolub/pgxmock/v4"
)

func TestProcessedStoreClaim(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	store := newProcessedStoreWithExec(mock)
	ctx := context.Background()

	mock.ExpectExec("INSERT INTO processed_events").WithArgs("stripe", "evt_1").WillReturnResult(pgxmock.NewResult("INSERT", 1))
	claimed, err := store.Claim(ctx, "stripe", "evt_1")
	if err != nil || !claimed {
		t.Fatalf("expected first claim, got %v %v", claimed, err)
	}

	mock.ExpectExec("INSERT INTO processed_events").WithArgs("stripe", "evt_1").WillReturnResult(pgxmock.NewResult("INSERT", 0))
	claimed, err = store.Claim(ctx, "stripe", "evt_1")
	if err != nil || claimed {
		t.Fatalf("expected duplicate, got %v %v", claimed, err)
	}

	mock.ExpectExec("DELETE FROM processed_events").WithArgs("stripe", "evt_1").WillReturnResult(pgxmock.NewResult("DELETE", 1))
	if err := store.Release(ctx, "stripe", "evt_1"); err != nil {
		t.Fatalf("release: %v", err)
	}

	mock.ExpectExec("INSERT INTO processed_events").WithArgs("stripe", "evt_2").WillReturnError(errors.New("conn reset"))
	if _, err := store.Claim(ctx, "stripe", "evt_2"); err == nil {
		t.Fatalf("expected error")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestMemoryDeduper(t *testing.T) {
	d := NewMemoryDeduper()
	ctx := context.Background()
	if ok, _ := d.Claim(ctx, "stripe", "a"); !ok {
		t.Fatalf("expected first claim")
	}
	if ok, _ := d.Claim(ctx, "stripe", "a"); ok {
		t.Fatalf("expected duplicate")
	}
	if ok, _ := d.Claim(ctx, "twilio", "a"); !ok {
		t.Fatalf("expected provider scoping")
	}
	_ = d.Release(ctx, "stripe", "a")
	if ok, _ := d.Claim(ctx, "stripe", "a"); !ok {
		t.Fatalf("expected claim after release")
	}
}
