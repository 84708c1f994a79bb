package conversation

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryStoreStickyColumns(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	conv, created, err := store.GetOrCreate(ctx, testPhone, "", StateGreeting)
	if err != nil || !created {
		t.Fatalf("create: %v %v", created, err)
	}
	if _, _, err := store.GetOrCreate(ctx, testPhone, testCarrier, StateWaitlist); err != nil {
		t.Fatalf("second get: %v", err)
	}
	conv, _ = store.Get(ctx, testPhone)
	if conv.State != StateGreeting || conv.CarrierNumber != testCarrier {
		t.Fatalf("carrier should backfill once and state stay, got %+v", conv)
	}

	conv.CarrierNumber = "+15550002222"
	conv.ContactPhone = "5551112222"
	if err := store.Save(ctx, conv); err != nil {
		t.Fatalf("save: %v", err)
	}
	conv.ContactPhone = "5559999999"
	if err := store.Save(ctx, conv); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, _ := store.Get(ctx, testPhone)
	if got.CarrierNumber != testCarrier || got.ContactPhone != "5551112222" {
		t.Fatalf("sticky columns overwritten: %+v", got)
	}
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	conv, _, _ := store.GetOrCreate(ctx, testPhone, testCarrier, StateAskName)
	conv.State = StateActive

	got, _ := store.Get(ctx, testPhone)
	if got.State != StateAskName {
		t.Fatalf("caller mutation leaked into the store")
	}
	if _, err := store.Get(ctx, "+10000000000"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStoreRecentMessagesWindow(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	for _, body := range []string{"1", "2", "3", "4"} {
		if err := store.AppendMessage(ctx, Message{Phone: testPhone, Direction: DirectionInbound, Body: body}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	msgs, _ := store.RecentMessages(ctx, testPhone, 2)
	if len(msgs) != 2 || msgs[0].Body != "3" || msgs[1].Body != "4" {
		t.Fatalf("expected last two oldest first, got %+v", msgs)
	}
	if err := store.PurgeMessages(ctx, testPhone); err != nil {
		t.Fatalf("purge: %v", err)
	}
	msgs, _ = store.RecentMessages(ctx, testPhone, 10)
	if len(msgs) != 0 {
		t.Fatalf("expected empty log, got %d", len(msgs))
	}
}

func TestMemoryStoreMarkExpired(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	conv, _, _ := store.GetOrCreate(ctx, testPhone, testCarrier, StateAwaitingPayment)
	past := testNow.Add(-time.Minute)
	conv.ExpiresAt = &past
	_ = store.Save(ctx, conv)

	overdue, _ := store.ListExpired(ctx, testNow)
	if len(overdue) != 1 {
		t.Fatalf("expected one overdue conversation, got %d", len(overdue))
	}
	ok, err := store.MarkExpired(ctx, testPhone, testNow)
	if err != nil || !ok {
		t.Fatalf("first mark: %v %v", ok, err)
	}
	ok, _ = store.MarkExpired(ctx, testPhone, testNow)
	if ok {
		t.Fatalf("second mark must not claim")
	}
	overdue, _ = store.ListExpired(ctx, testNow)
	if len(overdue) != 0 {
		t.Fatalf("expired conversation still listed")
	}
}

func TestMemoryStoreSaveRefusesStaleCopy(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	conv, _, _ := store.GetOrCreate(ctx, testPhone, testCarrier, StateAwaitingPayment)
	past := testNow.Add(-time.Minute)
	conv.ExpiresAt = &past
	if err := store.Save(ctx, conv); err != nil {
		t.Fatalf("save: %v", err)
	}
	stale, _ := store.Get(ctx, testPhone)
	if ok, _ := store.MarkExpired(ctx, testPhone, testNow); !ok {
		t.Fatalf("mark expired")
	}

	if err := store.Save(ctx, stale); !errors.Is(err, ErrStale) {
		t.Fatalf("expected ErrStale, got %v", err)
	}
	fresh, _ := store.Get(ctx, testPhone)
	fresh.State = StateAskName
	if err := store.Save(ctx, fresh); err != nil {
		t.Fatalf("copy loaded after expiry should save: %v", err)
	}
}
