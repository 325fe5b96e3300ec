package webhooks

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"apsplan/internal/model"
	"apsplan/internal/store"
)

type recordStore struct {
	*store.Memory
	mu    sync.Mutex
	marks []markRec
	fails []failRec
}

type markRec struct {
	ID      string
	Success bool
	Code    int
	LastErr string
}

type failRec struct {
	ID      string
	Code    int
	LastErr string
}

func (r *recordStore) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
	r.mu.Lock()
	r.marks = append(r.marks, markRec{ID: id, Success: success, Code: responseCode, LastErr: lastError})
	r.mu.Unlock()
	return r.Memory.MarkWebhookDelivery(ctx, id, success, nextAttemptAt, lastError, responseCode, latencyMs)
}

func (r *recordStore) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
	r.mu.Lock()
	r.fails = append(r.fails, failRec{ID: id, Code: responseCode, LastErr: lastError})
	r.mu.Unlock()
	return r.Memory.FailWebhookDelivery(ctx, id, lastError, responseCode, latencyMs)
}

func TestEmitAndDeliverSigned(t *testing.T) {
	var gotSig, gotType string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get(HeaderSignature)
		gotType = r.Header.Get(HeaderEventType)
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	ctx := context.Background()
	rs := &recordStore{Memory: store.NewMemory()}
	_, _ = rs.CreateSubscription(ctx, model.SubscriptionRequest{TenantID: "t1", URL: srv.URL, Events: []string{model.EventScheduleCompleted}, Secret: "secret"})
	_, _ = rs.CreateSubscription(ctx, model.SubscriptionRequest{TenantID: "t1", URL: srv.URL, Events: []string{model.EventScheduleFailed}})

	n, err := NewPublisher(rs).Emit(ctx, "t1", model.EventScheduleCompleted, map[string]any{"runId": "r1"})
	if err != nil || n != 1 {
		t.Fatalf("emit: n=%d err=%v", n, err)
	}

	w := NewWorker(rs, 3)
	w.HTTP = srv.Client()
	if got, err := w.processOnce(ctx); err != nil || got != 1 {
		t.Fatalf("processOnce: %d %v", got, err)
	}
	if gotType != model.EventScheduleCompleted || !VerifyHMAC("secret", gotBody, gotSig) {
		t.Fatalf("bad headers: sig=%q type=%q", gotSig, gotType)
	}
	if len(rs.marks) != 1 || !rs.marks[0].Success || rs.marks[0].Code != http.StatusNoContent {
		t.Fatalf("expected one success mark, got %+v", rs.marks)
	}
}

func TestWorkerRetriesThenFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ctx := context.Background()
	rs := &recordStore{Memory: store.NewMemory()}
	id, _ := rs.Memory.EnqueueWebhook(ctx, "t1", "", model.EventScheduleFailed, srv.URL, "", []byte(`{}`))

	w := NewWorker(rs, 2)
	w.HTTP = srv.Client()
	_, _ = w.processOnce(ctx)
	if len(rs.marks) != 1 || rs.marks[0].Success || rs.marks[0].LastErr == "" {
		t.Fatalf("expected one retry mark, got %+v", rs.marks)
	}
	// make it due again without waiting for the backoff
	if err := rs.RetryWebhookDelivery(ctx, "t1", id); err != nil {
		t.Fatal(err)
	}
	_, _ = w.processOnce(ctx)
	if len(rs.fails) != 1 || rs.fails[0].Code != http.StatusInternalServerError {
		t.Fatalf("expected terminal failure, got %+v", rs.fails)
	}
}

func TestWorkerReusesConnections(t *testing.T) {
	var conns atomic.Int32
	srv := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, strings.Repeat("ok", 2048))
	}))
	srv.Config.ConnState = func(_ net.Conn, st http.ConnState) {
		if st == http.StateNew {
			conns.Add(1)
		}
	}
	srv.Start()
	defer srv.Close()

	ctx := context.Background()
	rs := &recordStore{Memory: store.NewMemory()}
	for _, body := range []string{`{"id":"evt_1"}`, `{"id":"evt_2"}`, `{"id":"evt_3"}`} {
		if _, err := rs.Memory.EnqueueWebhook(ctx, "t1", "", model.EventScheduleCompleted, srv.URL, "", []byte(body)); err != nil {
			t.Fatal(err)
		}
	}
	w := NewWorker(rs, 3)
	w.HTTP = srv.Client()
	if got, err := w.processOnce(ctx); err != nil || got != 3 {
		t.Fatalf("processOnce: %d %v", got, err)
	}
	if n := conns.Load(); n != 1 {
		t.Fatalf("sequential deliveries opened %d connections", n)
	}
}

func TestNextBackoff(t *testing.T) {
	if nextBackoff(-1) != time.Second || nextBackoff(3) != 8*time.Second {
		t.Fatalf("unexpected backoff progression")
	}
	if nextBackoff(100) != time.Hour {
		t.Fatalf("backoff should cap at an hour, got %v", nextBackoff(100))
	}
}

func TestVerifyHMACRejectsGarbage(t *testing.T) {
	if VerifyHMAC("k", []byte("x"), "zz") {
		t.Fatalf("non-hex signature accepted")
	}
	if !VerifyHMAC("k", []byte("x"), SignHMAC("k", []byte("x"))) {
		t.Fatalf("own signature rejected")
	}
}
