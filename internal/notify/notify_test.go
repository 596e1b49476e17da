package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/updownhq/updown/internal/crypto"
	"github.com/updownhq/updown/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeSender struct {
	name string
	err  error

	mu     sync.Mutex
	alerts []Alert
}

func (f *fakeSender) Send(_ context.Context, alert Alert) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alerts = append(f.alerts, alert)
	return nil
}

func (f *fakeSender) Name() string { return f.name }

func (f *fakeSender) delivered() []Alert {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Alert(nil), f.alerts...)
}

func TestNotifyFiltersEvents(t *testing.T) {
	sender := &fakeSender{name: "fake"}
	n := NewNotifier([]Sender{sender}, []string{"settle.failed", "market.paused"}, discardLogger())

	if err := n.Notify(context.Background(), "round.settled", "t", "m"); err != nil {
		t.Fatalf("filtered notify: %v", err)
	}
	if got := sender.delivered(); len(got) != 0 {
		t.Errorf("filtered event delivered: %v", got)
	}

	if err := n.Notify(context.Background(), "settle.failed", "t", "m"); err != nil {
		t.Fatalf("allowed notify: %v", err)
	}
	if got := sender.delivered(); len(got) != 1 || got[0].Event != "settle.failed" {
		t.Errorf("delivered = %v, want one settle.failed", got)
	}
}

func TestNotifyEmptyFilterAllowsAll(t *testing.T) {
	sender := &fakeSender{name: "fake"}
	n := NewNotifier([]Sender{sender}, nil, discardLogger())

	if err := n.Notify(context.Background(), "anything", "t", "m"); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if len(sender.delivered()) != 1 {
		t.Error("event not delivered with empty filter")
	}
}

func TestNotifyAllBypassesFilter(t *testing.T) {
	sender := &fakeSender{name: "fake"}
	n := NewNotifier([]Sender{sender}, []string{"settle.failed"}, discardLogger())

	if err := n.NotifyAll(context.Background(), "startup", "started", "serving"); err != nil {
		t.Fatalf("notify all: %v", err)
	}
	got := sender.delivered()
	if len(got) != 1 || got[0].Event != "startup" {
		t.Errorf("delivered = %v, want one startup alert", got)
	}
	if got[0].SentAt.IsZero() {
		t.Error("alert missing sent_at stamp")
	}
}

func TestDispatchSurvivesSenderFailure(t *testing.T) {
	bad := &fakeSender{name: "bad", err: errors.New("boom")}
	good := &fakeSender{name: "good"}
	n := NewNotifier([]Sender{bad, good}, nil, discardLogger())

	err := n.Notify(context.Background(), "round.settled", "t", "m")
	if err == nil {
		t.Fatal("want combined error from the failing sender")
	}
	if !strings.Contains(err.Error(), "bad") {
		t.Errorf("error = %v, want the failing sender named", err)
	}
	if len(good.delivered()) != 1 {
		t.Error("healthy sender skipped because a sibling failed")
	}
}

func TestTelegramSender(t *testing.T) {
	var gotPath string
	var payload map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &payload)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	tg := NewTelegramSender("TOKEN123", "-100200")
	tg.apiBase = srv.URL
	if err := tg.Send(context.Background(), Alert{Title: "market paused", Message: "by owner"}); err != nil {
		t.Fatalf("send: %v", err)
	}

	if gotPath != "/botTOKEN123/sendMessage" {
		t.Errorf("path = %q", gotPath)
	}
	if payload["chat_id"] != "-100200" {
		t.Errorf("chat_id = %q", payload["chat_id"])
	}
	if payload["text"] != "*market paused*\nby owner" {
		t.Errorf("text = %q", payload["text"])
	}
	if payload["parse_mode"] != "Markdown" {
		t.Errorf("parse_mode = %q", payload["parse_mode"])
	}
}

func TestDiscordSender(t *testing.T) {
	var payload map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &payload)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	d := NewDiscordSender(srv.URL)
	if err := d.Send(context.Background(), Alert{Title: "rescue", Message: "500 to vault"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if payload["content"] != "**rescue**\n500 to vault" {
		t.Errorf("content = %q", payload["content"])
	}
}

func TestDiscordSenderSurfacesStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	d := NewDiscordSender(srv.URL)
	err := d.Send(context.Background(), Alert{Title: "t"})
	if err == nil || !strings.Contains(err.Error(), "429") {
		t.Errorf("error = %v, want status 429 surfaced", err)
	}
}

func TestWebhookSenderSignsDeliveries(t *testing.T) {
	var gotBody []byte
	var gotTS, gotSig string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotTS = r.Header.Get("X-Updown-Timestamp")
		gotSig = r.Header.Get("X-Updown-Signature")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	wh := NewWebhookSender(srv.URL, "s3cret")
	alert := Alert{Event: "round.settled", Title: "Round 9 settled", Message: "decided higher"}
	if err := wh.Send(context.Background(), alert); err != nil {
		t.Fatalf("send: %v", err)
	}

	if gotTS == "" || gotSig == "" {
		t.Fatal("signature headers missing")
	}
	if !crypto.NewWebhookSigner("s3cret").Verify(gotBody, gotTS, gotSig) {
		t.Error("delivery signature does not verify")
	}

	var decoded Alert
	if err := json.Unmarshal(gotBody, &decoded); err != nil {
		t.Fatalf("decoding delivery: %v", err)
	}
	if decoded.Event != "round.settled" || decoded.Title != "Round 9 settled" {
		t.Errorf("delivered alert = %+v", decoded)
	}
}

func TestAlertSinkForwardsAdminEvents(t *testing.T) {
	cases := []struct {
		name     string
		ev       domain.Event
		want     bool
		contains string
	}{
		{
			name:     "paused",
			ev:       domain.Event{Type: domain.EventMarketPaused, Data: domain.ParamsUpdated{Field: "paused", Value: "true", Actor: "owner"}},
			want:     true,
			contains: "owner",
		},
		{
			name:     "unpaused",
			ev:       domain.Event{Type: domain.EventMarketUnpaused, Data: domain.ParamsUpdated{Field: "paused", Value: "false", Actor: "owner"}},
			want:     true,
			contains: "resumed",
		},
		{
			name:     "params",
			ev:       domain.Event{Type: domain.EventParamsUpdated, Data: domain.ParamsUpdated{Field: "min_bet", Value: "25", Actor: "owner"}},
			want:     true,
			contains: "min_bet",
		},
		{
			name:     "rescue",
			ev:       domain.Event{Type: domain.EventFundsRescued, Data: domain.FundsRescued{Recipient: "vault", Amount: 500, Actor: "owner"}},
			want:     true,
			contains: "vault",
		},
		{
			name: "bets stay quiet",
			ev:   domain.Event{Type: domain.EventBetPlaced, Data: domain.BetPlaced{Round: 1}},
			want: false,
		},
		{
			name: "claims stay quiet",
			ev:   domain.Event{Type: domain.EventClaimPaid, Data: domain.ClaimPaid{Round: 1}},
			want: false,
		},
		{
			name: "settlement reported by the keeper instead",
			ev:   domain.Event{Type: domain.EventRoundSettled, Data: domain.RoundSettled{Round: 1}},
			want: false,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sender := &fakeSender{name: "fake"}
			sink := NewAlertSink(NewNotifier([]Sender{sender}, nil, discardLogger()))

			if err := sink.Publish(context.Background(), tc.ev); err != nil {
				t.Fatalf("publish: %v", err)
			}

			got := sender.delivered()
			if !tc.want {
				if len(got) != 0 {
					t.Fatalf("unexpected alert: %+v", got)
				}
				return
			}
			if len(got) != 1 {
				t.Fatalf("delivered %d alerts, want 1", len(got))
			}
			if got[0].Event != string(tc.ev.Type) {
				t.Errorf("alert event = %q, want %q", got[0].Event, tc.ev.Type)
			}
			if !strings.Contains(got[0].Message, tc.contains) {
				t.Errorf("message = %q, want %q mentioned", got[0].Message, tc.contains)
			}
		})
	}
}
