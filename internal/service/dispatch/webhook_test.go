package dispatch

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"MarketPulse/internal/domain/models"
	xhttp "MarketPulse/pkg/http"
)

func webhookSub(url, secret string) *models.Subscription {
	s := NewWebhookSubscription("hook", url, secret, models.PriorityLow)
	s.ID = "sub_webhook_1"
	return s
}

func whaleEvent() *models.AIEvent {
	return &models.AIEvent{
		ID:        "evt_1",
		Category:  models.CategoryWhaleAlert,
		Priority:  models.PriorityUrgent,
		Symbol:    "BTCUSDT",
		Title:     "whale buy",
		Timestamp: time.Now(),
	}
}

func TestWebhookSignsPayload(t *testing.T) {
	var gotSig string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get("X-Signature")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := NewWebhookProvider(testLogger(t), xhttp.NewClient())
	if err := p.SendEvent(context.Background(), webhookSub(srv.URL, "s3cret"), whaleEvent()); err != nil {
		t.Fatalf("send: %v", err)
	}

	if gotSig == "" {
		t.Fatalf("signature header missing")
	}
	if want := Sign("s3cret", gotBody); gotSig != want {
		t.Fatalf("signature does not cover the delivered bytes")
	}

	var payload webhookEventPayload
	if err := json.Unmarshal(gotBody, &payload); err != nil {
		t.Fatalf("payload not json: %v", err)
	}
	if payload.Kind != "event" || payload.ID != "evt_1" || payload.Priority != "urgent" {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestWebhookNoSecretNoSignature(t *testing.T) {
	var signed bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		signed = r.Header.Get("X-Signature") != ""
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := NewWebhookProvider(testLogger(t), xhttp.NewClient())
	if err := p.SendEvent(context.Background(), webhookSub(srv.URL, ""), whaleEvent()); err != nil {
		t.Fatalf("send: %v", err)
	}
	if signed {
		t.Fatalf("unsigned destination got a signature header")
	}
}

func TestWebhookRetriesServerErrors(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := NewWebhookProvider(testLogger(t), xhttp.NewClient())
	if err := p.SendEvent(context.Background(), webhookSub(srv.URL, ""), whaleEvent()); err != nil {
		t.Fatalf("send should recover on retry: %v", err)
	}
	if calls != 2 {
		t.Fatalf("want 2 attempts, got %d", calls)
	}
}

func TestWebhookClientErrorIsPermanent(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	p := NewWebhookProvider(testLogger(t), xhttp.NewClient())
	if err := p.SendEvent(context.Background(), webhookSub(srv.URL, ""), whaleEvent()); err == nil {
		t.Fatalf("4xx should surface as an error")
	}
	if calls != 1 {
		t.Fatalf("4xx should not be retried, got %d attempts", calls)
	}
}
