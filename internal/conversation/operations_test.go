package conversation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/wolfman30/marco-site-builder/internal/customers"
)

type stubActivationNotifier struct {
	calls []string
}

func (s *stubActivationNotifier) NotifyActivation(_ context.Context, phone, _, source string) error {
	s.calls = append(s.calls, phone+":"+source)
	return nil
}

func newTestOperations(h *testHarness, sender Sender, mirror StatusMirror, opts ...OperationsOption) *Operations {
	opts = append(opts, WithOperationsClock(func() time.Time { return testNow }))
	return NewOperations(h.store, sender, mirror, quietLogger(), opts...)
}

func TestActivateFromAnyState(t *testing.T) {
	h := newHarness(t, nil)
	sender := &recordingSender{}
	mirror := customers.NewMemoryRepository()
	notifier := &stubActivationNotifier{}
	ops := newTestOperations(h, sender, mirror, WithActivationNotifier(notifier))
	expires := testNow.Add(time.Hour)
	h.seed(t, Conversation{State: StateAskPassword, SiteURL: "https://marco-bobs.pages.dev", ExpiresAt: &expires})

	conv, err := ops.Activate(context.Background(), testPhone, SourcePayment)
	if err != nil {
		t.Fatalf("activate: %v", err)
	}
	if conv.State != StateActive || conv.PaidAt == nil || conv.ExpiresAt != nil {
		t.Fatalf("unexpected activation result %+v", conv)
	}
	stored, _ := h.store.Get(context.Background(), testPhone)
	if stored.State != StateActive {
		t.Fatalf("activation not persisted")
	}
	if s := customerStatus(t, mirror, testPhone); s != customers.StatusLaunched {
		t.Fatalf("expected launched, got %s", s)
	}
	if len(sender.sent) != 1 || sender.sent[0].From != testCarrier {
		t.Fatalf("expected activation text from the carrier number, got %+v", sender.sent)
	}
	if len(notifier.calls) != 1 || notifier.calls[0] != testPhone+":payment" {
		t.Fatalf("unexpected notifications %v", notifier.calls)
	}

	if _, err := ops.Activate(context.Background(), testPhone, SourceAdmin); err != nil {
		t.Fatalf("second activate: %v", err)
	}
	if len(sender.sent) != 1 {
		t.Fatalf("re-activation should be a no-op")
	}
}

func TestActivateUnknownPhone(t *testing.T) {
	h := newHarness(t, nil)
	ops := newTestOperations(h, &recordingSender{}, nil)
	if _, err := ops.Activate(context.Background(), "+15550000000", SourceAdmin); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestResetClearsConversation(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	mirror := customers.NewMemoryRepository()
	ops := newTestOperations(h, &recordingSender{}, mirror)
	paid := testNow
	h.seed(t, Conversation{
		State:         StateActive,
		SiteName:      "Bob's",
		ContactPhone:  "5551112222",
		SiteSubdomain: "bobs",
		SiteHTML:      sampleDoc,
		PaidAt:        &paid,
	})
	_ = h.store.AppendMessage(ctx, Message{Phone: testPhone, Direction: DirectionInbound, Body: "hi"})

	if err := ops.Reset(ctx, testPhone); err != nil {
		t.Fatalf("reset: %v", err)
	}
	conv, _ := h.store.Get(ctx, testPhone)
	if conv.State != StateGreeting || conv.SiteName != "" || conv.ContactPhone != "" || conv.SiteHTML != "" || conv.PaidAt != nil {
		t.Fatalf("reset left data behind: %+v", conv)
	}
	if conv.CarrierNumber != testCarrier {
		t.Fatalf("carrier number must survive reset")
	}
	log, _ := h.store.RecentMessages(ctx, testPhone, 0)
	if len(log) != 0 {
		t.Fatalf("message log should be purged, got %d", len(log))
	}
	if s := customerStatus(t, mirror, testPhone); s != customers.StatusNew {
		t.Fatalf("expected new, got %s", s)
	}
}

func TestEnterFromWaitlist(t *testing.T) {
	h := newHarness(t, nil)
	sender := &recordingSender{}
	ops := newTestOperations(h, sender, nil)
	h.seed(t, Conversation{State: StateWaitlist})

	conv, err := ops.Enter(context.Background(), testPhone)
	if err != nil {
		t.Fatalf("enter: %v", err)
	}
	if conv.State != EntryState {
		t.Fatalf("expected %s, got %s", EntryState, conv.State)
	}
	if got := sender.bodies(); len(got) != 1 || got[0] != entryPrompt {
		t.Fatalf("expected entry prompt, got %v", got)
	}

	if _, err := ops.Enter(context.Background(), testPhone); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("entering twice should fail with ErrInvalidState, got %v", err)
	}
}

func TestJoinWaitlist(t *testing.T) {
	h := newHarness(t, nil)
	sender := &recordingSender{}
	mirror := customers.NewMemoryRepository()
	ops := newTestOperations(h, sender, mirror)
	ctx := context.Background()

	conv, created, err := ops.JoinWaitlist(ctx, "+15557654321")
	if err != nil || !created {
		t.Fatalf("join: %v %v", created, err)
	}
	if conv.State != StateWaitlist {
		t.Fatalf("expected waitlist, got %s", conv.State)
	}
	if s := customerStatus(t, mirror, "+15557654321"); s != customers.StatusWaitlist {
		t.Fatalf("expected waitlist status, got %s", s)
	}

	_, created, err = ops.JoinWaitlist(ctx, "+15557654321")
	if err != nil || created {
		t.Fatalf("second join should be a no-op: %v %v", created, err)
	}
	if len(sender.sent) != 1 {
		t.Fatalf("expected one confirmation text, got %d", len(sender.sent))
	}

	if _, _, err := ops.JoinWaitlist(ctx, " "); err == nil {
		t.Fatalf("blank phone should be rejected")
	}
}
