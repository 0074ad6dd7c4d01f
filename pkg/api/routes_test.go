package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRoutes_ServeMuxPatterns(t *testing.T) {
	env := newTestEnv(t, nil)
	mux := http.NewServeMux()
	for _, route := range env.handler.Routes() {
		mux.Handle(route.Method+" "+route.Path, route.Handler)
	}

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, signedRequest(t, testSecret, purchaseJSON))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, BasePath+"/plans", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, BasePath, nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestRunLimiterCleanup_StopsOnCancel(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		env.handler.RunLimiterCleanup(ctx, time.Millisecond)
		close(done)
	}()
	time.Sleep(5 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("cleanup loop did not stop")
	}
}
