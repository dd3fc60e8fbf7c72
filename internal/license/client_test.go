package license

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"convertercli/internal/config"
)

// fakeClock fires every After immediately and records the requested
// delays so backoff progression can be asserted without real timers.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 8, 15, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	c.sleeps = append(c.sleeps, d)
	c.mu.Unlock()

	ch := make(chan time.Time, 1)
	ch <- c.now
	return ch
}

func (c *fakeClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.sleeps...)
}

// stalledClock cancels the context instead of sleeping, simulating a
// caller that gives up while the client waits out a backoff.
type stalledClock struct {
	cancel context.CancelFunc
}

func (s *stalledClock) Now() time.Time { return time.Now() }

func (s *stalledClock) After(d time.Duration) <-chan time.Time {
	s.cancel()
	return make(chan time.Time)
}

func newTestClient(serverURL string, timeout time.Duration) *Client {
	return NewClient(config.LicenseConfig{
		ServerURL:      serverURL,
		RequestTimeout: timeout,
		GraceWindow:    testGraceWindow,
		AppName:        "material-converter",
		AppVersion:     "1.0.0",
	}, testLogger())
}

func TestClientVerifySuccess(t *testing.T) {
	var gotRequest verifyRequest
	var gotUserAgent, gotContentType string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/verify", r.URL.Path)
		gotUserAgent = r.UserAgent()
		gotContentType = r.Header.Get("Content-Type")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotRequest))

		json.NewEncoder(w).Encode(verifyResponse{
			Success:     true,
			Message:     "license verified",
			ExpiryDate:  "2027-06-01T00:00:00Z",
			LicenseType: "standard",
			UserInfo:    map[string]string{"name": "Test User"},
		})
	}))
	defer server.Close()

	client := newTestClient(server.URL, 5*time.Second).WithClock(newFakeClock())
	outcome := client.Verify(context.Background(), "MACH-0001", "TEST-KEY-0001")

	require.True(t, outcome.Success)
	assert.Equal(t, "license verified", outcome.Message)
	assert.Equal(t, "standard", outcome.LicenseType)
	assert.Equal(t, "Test User", outcome.UserInfo["name"])
	assert.True(t, outcome.ExpiryDate.Equal(time.Date(2027, 6, 1, 0, 0, 0, 0, time.UTC)))

	assert.Equal(t, "TEST-KEY-0001", gotRequest.LicenseKey)
	assert.Equal(t, "MACH-0001", gotRequest.MachineCode)
	assert.Equal(t, "material-converter", gotRequest.AppName)
	assert.Equal(t, "1.0.0", gotRequest.AppVersion)
	assert.Equal(t, "verify", gotRequest.Action)
	assert.Equal(t, "material-converter/1.0.0", gotUserAgent)
	assert.Equal(t, "application/json", gotContentType)
}

func TestClientVerifyRejectionEndsLoop(t *testing.T) {
	var requests atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		json.NewEncoder(w).Encode(verifyResponse{
			Success:   false,
			Message:   "license bound to a different machine",
			ErrorCode: "MACHINE_MISMATCH",
		})
	}))
	defer server.Close()

	clock := newFakeClock()
	client := newTestClient(server.URL, 5*time.Second).WithClock(clock)
	outcome := client.Verify(context.Background(), "MACH-0001", "TEST-KEY-0001")

	assert.False(t, outcome.Success)
	assert.True(t, outcome.Rejected())
	assert.Equal(t, "MACHINE_MISMATCH", outcome.ErrorCode)

	// An authoritative answer must end the loop on the first attempt.
	assert.Equal(t, int32(1), requests.Load())
	assert.Empty(t, clock.Sleeps())
}

func TestClientVerifyDenialWithoutCode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(verifyResponse{
			Success: false,
			Message: "license not found",
		})
	}))
	defer server.Close()

	client := newTestClient(server.URL, 5*time.Second).WithClock(newFakeClock())
	outcome := client.Verify(context.Background(), "MACH-0001", "TEST-KEY-0001")

	assert.Equal(t, "INVALID_LICENSE", outcome.ErrorCode)
	assert.True(t, outcome.Rejected())
	assert.False(t, outcome.Transient())
}

func TestClientVerifyServerErrorRetries(t *testing.T) {
	var requests atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(errorResponse{
			Error:   "internal",
			Message: "authority database unavailable",
		})
	}))
	defer server.Close()

	clock := newFakeClock()
	client := newTestClient(server.URL, 5*time.Second).WithClock(clock)
	outcome := client.Verify(context.Background(), "MACH-0001", "TEST-KEY-0001")

	assert.False(t, outcome.Success)
	assert.Equal(t, CodeServerError, outcome.ErrorCode)
	assert.Equal(t, "authority database unavailable", outcome.Message)
	assert.True(t, outcome.Transient())

	assert.Equal(t, int32(config.MaxVerifyAttempts), requests.Load())
	assert.Equal(t, []time.Duration{1 * time.Second, 2 * time.Second}, clock.Sleeps())
}

func TestClientVerifyRecoversMidRetry(t *testing.T) {
	var requests atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(verifyResponse{Success: true, Message: "license verified"})
	}))
	defer server.Close()

	client := newTestClient(server.URL, 5*time.Second).WithClock(newFakeClock())
	outcome := client.Verify(context.Background(), "MACH-0001", "TEST-KEY-0001")

	assert.True(t, outcome.Success)
	assert.Equal(t, int32(3), requests.Load())
}

func TestClientVerifyNetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // nothing listening

	client := newTestClient(server.URL, time.Second).WithClock(newFakeClock())
	outcome := client.Verify(context.Background(), "MACH-0001", "TEST-KEY-0001")

	assert.False(t, outcome.Success)
	assert.Equal(t, CodeNetworkError, outcome.ErrorCode)
	assert.True(t, outcome.Transient())
}

func TestClientVerifyMalformedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>not json</html>"))
	}))
	defer server.Close()

	client := newTestClient(server.URL, 5*time.Second).WithClock(newFakeClock())
	outcome := client.Verify(context.Background(), "MACH-0001", "TEST-KEY-0001")

	assert.False(t, outcome.Success)
	assert.Equal(t, CodeServerError, outcome.ErrorCode)
	assert.True(t, outcome.Transient())
}

func TestClientVerifyBackoffCappedAtTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	clock := newFakeClock()
	client := newTestClient(server.URL, 1500*time.Millisecond).WithClock(clock)
	client.Verify(context.Background(), "MACH-0001", "TEST-KEY-0001")

	// Second delay would be 2s; the request timeout caps it.
	assert.Equal(t, []time.Duration{1 * time.Second, 1500 * time.Millisecond}, clock.Sleeps())
}

func TestClientVerifyContextCancelDuringBackoff(t *testing.T) {
	var requests atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := newTestClient(server.URL, 5*time.Second).WithClock(&stalledClock{cancel: cancel})

	done := make(chan VerificationOutcome, 1)
	go func() {
		done <- client.Verify(ctx, "MACH-0001", "TEST-KEY-0001")
	}()

	select {
	case outcome := <-done:
		assert.Equal(t, CodeServerError, outcome.ErrorCode)
		assert.Equal(t, int32(1), requests.Load(), "no further attempts after cancellation")
	case <-time.After(5 * time.Second):
		t.Fatal("Verify did not return after context cancellation")
	}
}

func TestParseExpiry(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  time.Time
		ok    bool
	}{
		{"rfc3339", "2027-06-01T12:30:00Z", time.Date(2027, 6, 1, 12, 30, 0, 0, time.UTC), true},
		{"no zone", "2027-06-01T12:30:00", time.Date(2027, 6, 1, 12, 30, 0, 0, time.UTC), true},
		{"date only", "2027-06-01", time.Date(2027, 6, 1, 0, 0, 0, 0, time.UTC), true},
		{"garbage", "next summer", time.Time{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := parseExpiry(tt.value)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.True(t, tt.want.Equal(got))
			}
		})
	}
}
