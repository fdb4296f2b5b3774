package middleware

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllow_BurstCeiling(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{MaxCallsPerMinute: 5, BurstSize: 8})

	for i := 0; i < 5; i++ {
		assert.True(t, rl.Allow("SN-1"), "call %d within the per-minute limit", i+1)
	}
	for i := 5; i < 8; i++ {
		assert.False(t, rl.Allow("SN-1"), "call %d above the per-minute limit", i+1)
	}
	assert.False(t, rl.Allow("SN-1"), "above the burst ceiling")

	assert.True(t, rl.Allow("SN-2"), "keys are independent")
}

func TestAllow_ConcurrentCountersStayExact(t *testing.T) {
	const workers = 8
	const perWorker = 25
	rl := NewRateLimiter(RateLimitConfig{MaxCallsPerMinute: workers * perWorker, BurstSize: workers * perWorker})

	var wg sync.WaitGroup
	allowed := make([]int, workers)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				if rl.Allow("SN-1") {
					allowed[w]++
				}
			}
		}(w)
	}
	wg.Wait()

	total := 0
	for _, n := range allowed {
		total += n
	}
	assert.Equal(t, workers*perWorker, total, "every call under the limit is admitted")
	assert.False(t, rl.Allow("SN-1"), "the very next call overflows")
}

func TestMiddleware_KeysByDeviceSerialAndAnswers429(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{MaxCallsPerMinute: 2, BurstSize: 2})
	handler := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))

	send := func(serial string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/data", nil)
		req.RemoteAddr = "10.0.0.1:5000"
		if serial != "" {
			req.Header.Set("X-Device-Serial", serial)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	require.Equal(t, http.StatusAccepted, send("SN-1").Code)
	require.Equal(t, http.StatusAccepted, send("SN-1").Code)

	rec := send("SN-1")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), "rate limit exceeded")

	// A different serial from the same address has its own window.
	assert.Equal(t, http.StatusAccepted, send("SN-2").Code)
}
