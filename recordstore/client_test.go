package recordstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/verdecarbon/biochar_backend/config"
	"github.com/verdecarbon/biochar_backend/utils"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	client, err := NewClient(&config.RecordStoreConfig{
		BaseURL: srv.URL,
		APIKey:  "test-key",
		Tables:  map[string]string{"batches": "Lotes"},
		Timeout: 5 * time.Second,
	}, logger)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client, srv
}

func TestGetRecord_SendsBearerAuth(t *testing.T) {
	var gotAuth string
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode(Record{ID: "rec001", Fields: map[string]any{"Código": "L-001"}})
	}))

	rec, err := client.GetRecord(context.Background(), "batches", "rec001")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.ID != "rec001" {
		t.Fatalf("expected rec001, got %q", rec.ID)
	}
	if gotAuth != "Bearer test-key" {
		t.Fatalf("expected bearer auth, got %q", gotAuth)
	}
}

func TestGetRecord_NotFound(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	_, err := client.GetRecord(context.Background(), "batches", "missing")
	if !errors.Is(err, utils.ErrorRecordNotFound) {
		t.Fatalf("expected record not found, got %v", err)
	}
}

func TestGetRecord_UnknownTable(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("unknown table must not reach the server")
	}))

	_, err := client.GetRecord(context.Background(), "nope", "rec001")
	if !utils.IsAdapterError(err) {
		t.Fatalf("expected adapter error, got %v", err)
	}
}

func TestDo_RetriesOnServerError(t *testing.T) {
	var calls int32
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(Record{ID: "rec001"})
	}))

	rec, err := client.GetRecord(context.Background(), "batches", "rec001")
	if err != nil {
		t.Fatalf("expected success after retry, got %v", err)
	}
	if rec.ID != "rec001" {
		t.Fatalf("expected rec001, got %q", rec.ID)
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Fatalf("expected 2 calls, got %d", calls)
	}
}

func TestDo_ClientErrorIsNotRetried(t *testing.T) {
	var calls int32
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnprocessableEntity)
		fmt.Fprint(w, `{"error":"INVALID_VALUE"}`)
	}))

	_, err := client.CreateRecord(context.Background(), "batches", map[string]any{"Código": "L-001"})
	if !utils.IsAdapterError(err) {
		t.Fatalf("expected adapter error, got %v", err)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("4xx must not retry, got %d calls", calls)
	}
}

func TestListRecords_FollowsPagination(t *testing.T) {
	var calls int32
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch atomic.AddInt32(&calls, 1) {
		case 1:
			if got := r.URL.Query().Get("filterByFormula"); got != "{Estado} = 'Disponible'" {
				t.Errorf("filter not forwarded, got %q", got)
			}
			json.NewEncoder(w).Encode(recordPage{
				Records: []*Record{{ID: "rec001"}, {ID: "rec002"}},
				Offset:  "page2",
			})
		default:
			if got := r.URL.Query().Get("offset"); got != "page2" {
				t.Errorf("offset not forwarded, got %q", got)
			}
			json.NewEncoder(w).Encode(recordPage{Records: []*Record{{ID: "rec003"}}})
		}
	}))

	records, err := client.ListRecords(context.Background(), "batches", ListQuery{
		FilterFormula: "{Estado} = 'Disponible'",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 records across pages, got %d", len(records))
	}
	if records[2].ID != "rec003" {
		t.Fatalf("expected rec003 last, got %q", records[2].ID)
	}
}

func TestUpdateRecord_PatchesOnlyGivenFields(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch {
			t.Errorf("expected PATCH, got %s", r.Method)
		}
		var body struct {
			Fields map[string]any `json:"fields"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if len(body.Fields) != 1 {
			t.Errorf("expected exactly the patched field, got %v", body.Fields)
		}
		json.NewEncoder(w).Encode(Record{ID: "rec001", Fields: body.Fields})
	}))

	_, err := client.UpdateRecord(context.Background(), "batches", "rec001", map[string]any{
		"Biochar Seco Disponible (kg)": 300.0,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDo_MalformedResponseIsAdapterError(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html>not json</html>")
	}))

	_, err := client.GetRecord(context.Background(), "batches", "rec001")
	if !utils.IsAdapterError(err) {
		t.Fatalf("expected adapter error on malformed body, got %v", err)
	}
}
