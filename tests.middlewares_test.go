package main

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

// TestMiddlewaresStacks ensures we get both public and ops middlewares
// stacks with exact number of elements in those stacks.
func TestMiddlewaresStacks(t *testing.T) {
	api := newTestAPI(nil)
	pub, ops := api.MiddlewaresStacks()
	assert.Equal(t, 7, len(*pub))
	assert.Equal(t, 6, len(*ops))
}

// TestChain ensures each middleware in the stack is called as well the handler.
func TestChain(t *testing.T) {
	var ca, cb, cc, ch bool
	queue := make(chan int, 4)

	middlewareA := func(next httprouter.Handle) httprouter.Handle {
		return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
			queue <- 1
			ca = true
			next(w, r, ps)
		}
	}
	middlewareB := func(next httprouter.Handle) httprouter.Handle {
		return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
			queue <- 2
			cb = true
			next(w, r, ps)
		}
	}
	middlewareC := func(next httprouter.Handle) httprouter.Handle {
		return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
			queue <- 3
			cc = true
			next(w, r, ps)
		}
	}
	middlewares := Middlewares{
		middlewareA,
		middlewareB,
		middlewareC,
	}

	handler := func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		queue <- 4
		ch = true
	}

	chained := (&middlewares).Chain(handler)
	req := httptest.NewRequest("GET", "/book", nil)
	w := httptest.NewRecorder()
	chained(w, req, nil)

	t.Run("check calling", func(t *testing.T) {
		assert.Equal(t, true, ca)
		assert.Equal(t, true, cb)
		assert.Equal(t, true, cc)
		assert.Equal(t, true, ch)
	})

	t.Run("check ordering", func(t *testing.T) {
		assert.Equal(t, 1, <-queue)
		assert.Equal(t, 2, <-queue)
		assert.Equal(t, 3, <-queue)
		assert.Equal(t, 4, <-queue)
	})

	t.Run("empty stack", func(t *testing.T) {
		var called bool
		(&Middlewares{}).Chain(func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
			called = true
		})(httptest.NewRecorder(), req, nil)
		assert.True(t, called)
	})
}

// TestRequestsCounterMiddleware ensures the request counter increment.
func TestRequestsCounterMiddleware(t *testing.T) {
	api := newTestAPI(nil)
	req := httptest.NewRequest("GET", "/book", nil)
	w := httptest.NewRecorder()
	var num uint64
	handler := func(w http.ResponseWriter, req *http.Request, ps httprouter.Params) {
		num = GetRequestNumberFromContext(req.Context())
	}
	wrapped := api.RequestsCounterMiddleware(handler)
	wrapped(w, req, nil)
	wrapped(w, req, nil)
	assert.Equal(t, uint64(2), num)
	assert.Equal(t, uint64(2), api.stats.called)
}

// TestRequestIDMiddleware ensures each request gets an id in context and header.
func TestRequestIDMiddleware(t *testing.T) {
	api := newTestAPI(nil)
	req := httptest.NewRequest("GET", "/book", nil)
	w := httptest.NewRecorder()
	var requestID string
	api.RequestIDMiddleware(func(w http.ResponseWriter, req *http.Request, ps httprouter.Params) {
		requestID = GetValueFromContext(req.Context(), RequestIDContextKey)
	})(w, req, nil)
	assert.Equal(t, "r:abc", requestID)
	assert.Equal(t, "r:abc", w.Header().Get("X-Request-Id"))
}

// TestCoreMiddleware ensures handlers receive the request scoped logger.
func TestCoreMiddleware(t *testing.T) {
	api := newTestAPI(nil)
	req := httptest.NewRequest("GET", "/book", nil)
	w := httptest.NewRecorder()
	var logger *zap.Logger
	api.CoreMiddleware(func(w http.ResponseWriter, req *http.Request, ps httprouter.Params) {
		logger = api.GetLoggerFromContext(req.Context())
	})(w, req, nil)
	assert.NotNil(t, logger)
	assert.NotSame(t, api.logger, logger)
}

// TestCORSMiddleware ensures cors headers are set.
func TestCORSMiddleware(t *testing.T) {
	req := httptest.NewRequest("OPTIONS", "/book", nil)
	w := httptest.NewRecorder()
	CORSMiddleware(func(w http.ResponseWriter, req *http.Request, ps httprouter.Params) {})(w, req, nil)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "PUT")
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "If-Match")
	assert.Contains(t, w.Header().Get("Access-Control-Expose-Headers"), "ETag")
}

// TestStatsMiddleware ensures the response status codes are recorded.
func TestStatsMiddleware(t *testing.T) {
	api := newTestAPI(nil)
	created := api.StatsMiddleware(func(w http.ResponseWriter, req *http.Request, ps httprouter.Params) {
		w.WriteHeader(http.StatusCreated)
	})
	ok := api.StatsMiddleware(func(w http.ResponseWriter, req *http.Request, ps httprouter.Params) {
		_, _ = w.Write([]byte("{}"))
	})
	created(httptest.NewRecorder(), httptest.NewRequest("POST", "/book", nil), nil)
	created(httptest.NewRecorder(), httptest.NewRequest("POST", "/book", nil), nil)
	ok(httptest.NewRecorder(), httptest.NewRequest("GET", "/book", nil), nil)
	assert.Equal(t, map[int]uint64{http.StatusCreated: 2, http.StatusOK: 1}, api.stats.status)
}

// TestPanicRecoveryMiddleware ensures a panicking handler gets a 500 response.
func TestPanicRecoveryMiddleware(t *testing.T) {
	api := newTestAPI(nil)
	req := httptest.NewRequest("GET", "/book", nil)
	w := httptest.NewRecorder()
	assert.NotPanics(t, func() {
		api.PanicRecoveryMiddleware(func(w http.ResponseWriter, req *http.Request, ps httprouter.Params) {
			panic("boom")
		})(w, req, nil)
	})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "failed to process the request.")
}

// TestMaintenanceModeMiddleware ensures requests are blocked during maintenance.
func TestMaintenanceModeMiddleware(t *testing.T) {
	api := newTestAPI(nil)
	var called bool
	handler := api.MaintenanceModeMiddleware(func(w http.ResponseWriter, req *http.Request, ps httprouter.Params) {
		called = true
	})

	w := httptest.NewRecorder()
	handler(w, httptest.NewRequest("GET", "/book", nil), nil)
	assert.True(t, called)
	assert.Equal(t, http.StatusOK, w.Code)

	called = false
	api.mode.enabled.Store(true)
	w = httptest.NewRecorder()
	handler(w, httptest.NewRequest("GET", "/book", nil), nil)
	assert.False(t, called)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
