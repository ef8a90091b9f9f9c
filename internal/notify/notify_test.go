package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/andresvega/loaderd/internal/config"
)

func TestEventFilters(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.NotifyConfig
		ev   Event
		want bool
	}{
		{
			name: "failures always pass",
			cfg:  config.NotifyConfig{OnlyOnErrors: true},
			ev:   Event{Type: EventLoadFailed},
			want: true,
		},
		{
			name: "clean completion suppressed by only_on_errors",
			cfg:  config.NotifyConfig{OnlyOnErrors: true},
			ev:   Event{Type: EventLoadCompleted, Errors: 0, SuccessRate: 100},
			want: false,
		},
		{
			name: "completion with errors passes only_on_errors",
			cfg:  config.NotifyConfig{OnlyOnErrors: true},
			ev:   Event{Type: EventLoadCompleted, Errors: 3, SuccessRate: 97},
			want: true,
		},
		{
			name: "high success rate suppressed by min_success_rate",
			cfg:  config.NotifyConfig{MinSuccessRate: 95},
			ev:   Event{Type: EventLoadCompleted, SuccessRate: 99},
			want: false,
		},
		{
			name: "low success rate passes min_success_rate",
			cfg:  config.NotifyConfig{MinSuccessRate: 95},
			ev:   Event{Type: EventLoadCompleted, SuccessRate: 80, Errors: 20},
			want: true,
		},
		{
			name: "start event suppressed by only_on_errors",
			cfg:  config.NotifyConfig{OnlyOnErrors: true},
			ev:   Event{Type: EventLoadStarted},
			want: false,
		},
		{
			name: "start event passes by default",
			cfg:  config.NotifyConfig{},
			ev:   Event{Type: EventLoadStarted},
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := New(&tt.cfg)
			if got := n.wants(tt.ev); got != tt.want {
				t.Errorf("wants(%s) = %v, want %v", tt.ev.Type, got, tt.want)
			}
		})
	}
}

func TestWebhookSinkDelivers(t *testing.T) {
	received := make(chan Event, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var ev Event
		if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
			t.Errorf("bad payload: %v", err)
		}
		received <- ev
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sink := NewWebhookSink(srv.URL, 2*time.Second)
	ev := Event{Type: EventLoadCompleted, TargetTable: "people", TotalRows: 10, Timestamp: time.Now()}
	if err := sink.Deliver(context.Background(), ev); err != nil {
		t.Fatalf("deliver failed: %v", err)
	}

	select {
	case got := <-received:
		if got.TargetTable != "people" || got.TotalRows != 10 {
			t.Errorf("payload mismatch: %+v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("webhook never received the event")
	}
}

func TestWebhookSinkSurfacesHTTPErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	sink := NewWebhookSink(srv.URL, 2*time.Second)
	if err := sink.Deliver(context.Background(), Event{Type: EventLoadFailed}); err == nil {
		t.Error("expected HTTP 500 to surface as an error")
	}
}

func TestSlackText(t *testing.T) {
	ev := Event{Type: EventLoadCompleted, TargetTable: "people", TotalRows: 10, Inserted: 9, Errors: 1, SuccessRate: 90}
	text := slackText(ev)
	if text == "" {
		t.Fatal("empty slack text")
	}
	ev.Type = EventLoadFailed
	ev.Message = "boom"
	if slackText(ev) == text {
		t.Error("failure text should differ from completion text")
	}
}
