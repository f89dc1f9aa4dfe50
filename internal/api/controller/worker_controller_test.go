package controller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bassista/go_pantry/internal/runtime"
	"github.com/gin-gonic/gin"
)

type fakeStores struct {
	names []string
	err   error
}

func (f fakeStores) Names(ctx context.Context) ([]string, error) { return f.names, f.err }

type fakeUpdater struct {
	calls int
	err   error
}

func (f *fakeUpdater) CheckForUpdate(ctx context.Context) error {
	f.calls++
	return f.err
}

func newWorkerEngine(stores StoreLister, updater *fakeUpdater) *gin.Engine {
	state := func() runtime.State { return runtime.State{Active: "abc123"} }
	wc := NewWorkerController(context.Background(), state, stores, updater)
	r := gin.New()
	r.GET("/worker", wc.Status)
	r.POST("/worker/update", wc.Update)
	return r
}

func TestWorkerController_Status(t *testing.T) {
	r := newWorkerEngine(fakeStores{names: []string{"pages", "precache-abc123"}}, &fakeUpdater{})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/worker", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	var body struct {
		State  runtime.State `json:"state"`
		Stores []string      `json:"stores"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if body.State.Active != "abc123" || len(body.Stores) != 2 {
		t.Errorf("unexpected body: %+v", body)
	}

	r = newWorkerEngine(fakeStores{err: errors.New("closed")}, &fakeUpdater{})
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/worker", nil))
	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected status 500, got %d", w.Code)
	}
}

func TestWorkerController_Update(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"success", nil, http.StatusOK},
		{"install failed", fmt.Errorf("%w: version v2: %w", runtime.ErrInstallFailed, errors.New("404")), http.StatusBadGateway},
		{"manifest unreadable", errors.New("load manifest: no such file"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			updater := &fakeUpdater{err: tt.err}
			r := newWorkerEngine(fakeStores{}, updater)

			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/worker/update", nil))
			if w.Code != tt.want {
				t.Errorf("expected status %d, got %d", tt.want, w.Code)
			}
			if updater.calls != 1 {
				t.Errorf("expected one update check, got %d", updater.calls)
			}
		})
	}
}
