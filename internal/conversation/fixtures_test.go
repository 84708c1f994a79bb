package conversation

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/wolfman30/marco-site-builder/internal/artifacts"
	"github.com/wolfman30/marco-site-builder/internal/customers"
	"github.com/wolfman30/marco-site-builder/internal/deploy"
	"github.com/wolfman30/marco-site-builder/internal/sitegen"
	"github.com/wolfman30/marco-site-builder/pkg/logging"
)

const (
	testPhone   = "+15551234567"
	testCarrier = "+15550001111"
	testBaseURL = "http://localhost:8080"
	testPayLink = "https://pay.example.com/marco"
)

var testNow = time.Date(2026, 5, 4, 15, 0, 0, 0, time.UTC)

func quietLogger() *logging.Logger {
	return logging.NewWithWriter("error", io.Discard)
}

type stubLLM struct {
	mu       sync.Mutex
	replies  []string
	err      error
	requests []LLMRequest
}

func (s *stubLLM) Complete(_ context.Context, req LLMRequest) (LLMResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	if s.err != nil {
		return LLMResponse{}, s.err
	}
	if len(s.replies) == 0 {
		return LLMResponse{Text: "ok"}, nil
	}
	text := s.replies[0]
	if len(s.replies) > 1 {
		s.replies = s.replies[1:]
	}
	return LLMResponse{Text: text}, nil
}

// echoExtractor returns the message unchanged and counts calls.
type echoExtractor struct {
	calls int
	err   error
}

func (e *echoExtractor) Extract(_ context.Context, message string, _ Field) (string, error) {
	e.calls++
	if e.err != nil {
		return "", e.err
	}
	return strings.TrimSpace(message), nil
}

type sentSMS struct {
	To, Body, From string
}

type recordingSender struct {
	mu   sync.Mutex
	sent []sentSMS
	// failFirst fails this many sends before succeeding.
	failFirst int
	err       error
}

func (s *recordingSender) Send(_ context.Context, to, body, from string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	if s.failFirst > 0 {
		s.failFirst--
		return errors.New("carrier unavailable")
	}
	s.sent = append(s.sent, sentSMS{To: to, Body: body, From: from})
	return nil
}

func (s *recordingSender) bodies() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.sent))
	for _, m := range s.sent {
		out = append(out, m.Body)
	}
	return out
}

type countingRecorder struct {
	mu      sync.Mutex
	records []deploy.Record
}

func (r *countingRecorder) Record(_ context.Context, rec deploy.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
	return nil
}

type failingDeployer struct{}

func (failingDeployer) Deploy(context.Context, string, string, string) deploy.Result {
	return deploy.Result{Error: "pages api unavailable"}
}

func (failingDeployer) ListProjects(context.Context) ([]deploy.Project, error) { return nil, nil }

func (failingDeployer) Mode() string { return deploy.ModeCloudflare }

type testHarness struct {
	store     *MemoryStore
	artifacts *artifacts.MemoryStore
	sites     *deploy.Service
	recorder  *countingRecorder
	llm       *stubLLM
	extractor *echoExtractor
	engine    *Engine
}

func newHarness(t *testing.T, deployer deploy.Deployer) *testHarness {
	t.Helper()
	h := &testHarness{
		store:     NewMemoryStore(),
		artifacts: artifacts.NewMemoryStore(),
		recorder:  &countingRecorder{},
		llm:       &stubLLM{},
		extractor: &echoExtractor{},
	}
	h.store.now = func() time.Time { return testNow }
	if deployer == nil {
		deployer = deploy.NewSimulated(h.artifacts, testBaseURL)
	}
	h.sites = deploy.NewService(h.artifacts, deployer, testBaseURL, quietLogger(),
		deploy.WithRecorder(h.recorder),
		deploy.WithManagedHostSuffix(".pages.dev"),
	)
	h.engine = NewEngine(h.store, h.extractor, h.llm, sitegen.NewGenerator(), h.sites, EngineConfig{
		ActivationSecret: "chowder",
		PaymentLink:      testPayLink,
		DraftTTL:         48 * time.Hour,
		ProjectPrefix:    "marco-",
	}, quietLogger(), WithClock(func() time.Time { return testNow }))
	return h
}

// seed stores a conversation for testPhone in the given shape.
func (h *testHarness) seed(t *testing.T, conv Conversation) *Conversation {
	t.Helper()
	ctx := context.Background()
	if conv.Phone == "" {
		conv.Phone = testPhone
	}
	if _, _, err := h.store.GetOrCreate(ctx, conv.Phone, testCarrier, conv.State); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := h.store.Save(ctx, &conv); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := h.store.Get(ctx, conv.Phone)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	return got
}

func customerStatus(t *testing.T, repo *customers.MemoryRepository, phone string) customers.Status {
	t.Helper()
	c, err := repo.Get(context.Background(), phone)
	if err != nil {
		t.Fatalf("customer %s: %v", phone, err)
	}
	return c.Status
}
