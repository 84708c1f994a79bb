package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/wolfman30/marco-site-builder/internal/observability/metrics"
)

type fakeCarrier struct {
	name   string
	number string
	err    error
	sent   []SMS
}

func (f *fakeCarrier) Name() string   { return f.name }
func (f *fakeCarrier) Number() string { return f.number }

func (f *fakeCarrier) Send(_ context.Context, msg SMS) (string, error) {
	f.sent = append(f.sent, msg)
	if f.err != nil {
		return "", f.err
	}
	return "id-1", nil
}

func TestRouterSelectsOriginatingCarrier(t *testing.T) {
	twilio := &fakeCarrier{name: CarrierTwilio, number: "+15550001111"}
	telnyx := &fakeCarrier{name: CarrierTelnyx, number: "+15550002222"}
	router := NewRouter(twilio, []Carrier{twilio, telnyx}, nil, testLogger())

	if err := router.Send(context.Background(), "+15551234567", "hello", "+1 (555) 000-2222"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(telnyx.sent) != 1 || len(twilio.sent) != 0 {
		t.Fatalf("expected telnyx to send, twilio=%d telnyx=%d", len(twilio.sent), len(telnyx.sent))
	}
	if telnyx.sent[0].From != "+15550002222" {
		t.Errorf("expected send from telnyx number, got %s", telnyx.sent[0].From)
	}

	if err := router.Send(context.Background(), "+15551234567", "hello", "+15559999999"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(twilio.sent) != 1 {
		t.Fatalf("expected unknown number to fall back to twilio")
	}
	if twilio.sent[0].From != "+15550001111" {
		t.Errorf("expected fallback to send from its own number, got %s", twilio.sent[0].From)
	}
}

func TestRouterSendFailureIsSingleAttempt(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	telnyx := &fakeCarrier{name: CarrierTelnyx, number: "+15550002222", err: errors.New("503")}
	router := NewRouter(nil, []Carrier{telnyx}, m, testLogger())

	if err := router.Send(context.Background(), "+15551234567", "hello", "+15550002222"); err == nil {
		t.Fatal("expected send error")
	}
	if len(telnyx.sent) != 1 {
		t.Fatalf("expected exactly one attempt, got %d", len(telnyx.sent))
	}
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	var failed float64
	for _, f := range families {
		if f.GetName() != "marco_messaging_outbound_total" {
			continue
		}
		for _, metric := range f.GetMetric() {
			for _, label := range metric.GetLabel() {
				if label.GetName() == "status" && label.GetValue() == "failed" {
					failed += metric.GetCounter().GetValue()
				}
			}
		}
	}
	if failed != 1 {
		t.Fatalf("expected one failed outbound, got %v", failed)
	}
}

func TestRouterWithoutCarriers(t *testing.T) {
	router := NewRouter(nil, nil, nil, testLogger())
	if err := router.Send(context.Background(), "+15551234567", "hi", ""); !errors.Is(err, ErrNoCarrier) {
		t.Fatalf("expected ErrNoCarrier, got %v", err)
	}
}

func TestBuildRouter(t *testing.T) {
	router, reason := BuildRouter(ProviderSelectionConfig{DefaultCarrier: "telnyx"}, nil, testLogger())
	if reason == "" {
		t.Fatal("expected a reason when nothing is configured")
	}
	if router.Select("") != nil {
		t.Fatal("expected no carrier")
	}

	router, reason = BuildRouter(ProviderSelectionConfig{
		DefaultCarrier:   "telnyx",
		TwilioAccountSID: "AC1",
		TwilioAuthToken:  "tok",
		TwilioFromNumber: "+15550001111",
		TelnyxAPIKey:     "key",
		TelnyxFromNumber: "+15550002222",
	}, nil, testLogger())
	if reason != "" {
		t.Fatalf("unexpected reason %q", reason)
	}
	if got := router.Select("+15550001111").Name(); got != CarrierTwilio {
		t.Errorf("expected twilio for its own number, got %s", got)
	}
	if got := router.Select("").Name(); got != CarrierTelnyx {
		t.Errorf("expected default telnyx, got %s", got)
	}
	if len(router.Numbers()) != 2 {
		t.Errorf("expected two numbers, got %v", router.Numbers())
	}
}

func TestTwilioSenderPostsForm(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		if r.URL.Path != "/2010-04-01/Accounts/AC1/Messages.json" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != "AC1" || pass != "tok" {
			t.Errorf("expected basic auth, got %s/%s", user, pass)
		}
		body, _ := io.ReadAll(r.Body)
		form, _ := url.ParseQuery(string(body))
		if form.Get("From") != "+15550001111" || form.Get("To") != "+15551234567" || form.Get("Body") != "hi" {
			t.Errorf("unexpected form %v", form)
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"sid":"SM1","status":"queued"}`))
	}))
	defer srv.Close()

	sender := NewTwilioSender("AC1", "tok", "+15550001111", testLogger())
	sender.baseURL = srv.URL
	id, err := sender.Send(context.Background(), SMS{To: "+15551234567", Body: "hi"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if id != "SM1" {
		t.Errorf("expected SM1, got %s", id)
	}
	if calls != 1 {
		t.Errorf("expected one call, got %d", calls)
	}
}

func TestTwilioSenderNoRetryOnServerError(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"code":20503,"message":"unavailable"}`))
	}))
	defer srv.Close()

	sender := NewTwilioSender("AC1", "tok", "+15550001111", testLogger())
	sender.baseURL = srv.URL
	_, err := sender.Send(context.Background(), SMS{To: "+15551234567", Body: "hi"})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Fatalf("expected a single attempt, got %d", calls)
	}
}

func TestTelnyxSenderPostsJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/messages" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer key" {
			t.Errorf("missing bearer token")
		}
		var payload map[string]string
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode: %v", err)
		}
		if payload["from"] != "+15550002222" || payload["messaging_profile_id"] != "prof" {
			t.Errorf("unexpected payload %v", payload)
		}
		_, _ = w.Write([]byte(`{"data":{"id":"tx-1","status":"queued"}}`))
	}))
	defer srv.Close()

	sender := NewTelnyxSender("key", "prof", "+15550002222", testLogger())
	sender.baseURL = srv.URL
	id, err := sender.Send(context.Background(), SMS{To: "+15551234567", Body: "hi"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if id != "tx-1" {
		t.Errorf("expected tx-1, got %s", id)
	}
}

func TestSenderValidation(t *testing.T) {
	sender := NewTelnyxSender("key", "", "+15550002222", testLogger())
	if _, err := sender.Send(context.Background(), SMS{To: "+15551234567", Body: "  "}); err == nil {
		t.Fatal("expected empty body to be rejected")
	}
	missing := NewTwilioSender("", "", "+15550001111", testLogger())
	if _, err := missing.Send(context.Background(), SMS{To: "+15551234567", Body: "hi"}); err == nil {
		t.Fatal("expected missing credentials to be rejected")
	}
}

func TestNormalizeE164(t *testing.T) {
	cases := map[string]string{
		" +1 (555) 123-4567 ": "+15551234567",
		"+15551234567":        "+15551234567",
		"555-123-4567":        "+15551234567",
		"+44 20 7946 0958":    "+442079460958",
		"":                    "",
		"abc":                 "",
	}
	for in, want := range cases {
		if got := NormalizeE164(in); got != want {
			t.Errorf("NormalizeE164(%q) = %q, want %q", in, got, want)
		}
	}
}
