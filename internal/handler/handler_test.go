package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

type fakeStore struct {
	summaries []SnapshotSummary
	graph     *SnapshotGraph
	err       error
}

func (f *fakeStore) ListSnapshots() ([]SnapshotSummary, error) { return f.summaries, f.err }

func (f *fakeStore) SnapshotGraph(id string) (*SnapshotGraph, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.graph, nil
}

func TestListSnapshots(t *testing.T) {
	store := &fakeStore{summaries: []SnapshotSummary{{SnapshotID: "snap-1", CollectedAt: "2026-01-01T00:00:00Z"}}}
	h := NewStatusHandler(store)

	req := httptest.NewRequest(http.MethodGet, "/api/snapshots", nil)
	rec := httptest.NewRecorder()
	h.ListSnapshots(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var got []SnapshotSummary
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(got) != 1 || got[0].SnapshotID != "snap-1" {
		t.Errorf("got %+v", got)
	}
}

func TestGetSnapshotGraphGenericStoreError(t *testing.T) {
	store := &fakeStore{err: errors.New("no such snapshot")}
	h := NewStatusHandler(store)

	req := httptest.NewRequest(http.MethodGet, "/api/snapshots/missing/graph", nil)
	rec := httptest.NewRecorder()
	h.GetSnapshotGraph(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500 for a generic store error", rec.Code)
	}
}

func TestGetSnapshotGraphMissingID(t *testing.T) {
	store := &fakeStore{}
	h := NewStatusHandler(store)

	req := httptest.NewRequest(http.MethodGet, "/api/snapshots/", nil)
	rec := httptest.NewRecorder()
	h.GetSnapshotGraph(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestChainOrdersOutermostFirst(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	base := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { order = append(order, "base") })
	chained := Chain(base, mark("outer"), mark("inner"))

	chained.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	want := []string{"outer", "inner", "base"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("order[%d] = %q, want %q", i, order[i], want[i])
		}
	}
}

func TestRecoverCatchesPanic(t *testing.T) {
	panicky := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { panic("boom") })
	rec := httptest.NewRecorder()

	Recover(panicky).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500 after recovered panic", rec.Code)
	}
}

func TestCORSHandlesPreflight(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { t.Error("inner handler should not run for OPTIONS") })
	rec := httptest.NewRecorder()

	CORS(inner).ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/", nil))

	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("missing CORS header")
	}
}
