package screening

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vishesh2305/DAAN/internal/campaign"
	"github.com/vishesh2305/DAAN/pkg/errno"
)

func newServer(t *testing.T, h http.HandlerFunc) (*httptest.Server, *int32) {
	t.Helper()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		h(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func writeVerdict(w http.ResponseWriter, label, message string) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"label": label, "message": message})
}

func TestScreenVerdicts(t *testing.T) {
	tests := []struct {
		name       string
		label      string
		wantLabel  string
		wantPassed bool
	}{
		{"genuine", "Genuine", campaign.LabelGenuine, true},
		{"genuine lowercase", "genuine", campaign.LabelGenuine, true},
		{"suspicious", "Suspicious", campaign.LabelSuspicious, false},
		{"unknown label", "Not Genuine", campaign.LabelRejected, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, calls := newServer(t, func(w http.ResponseWriter, r *http.Request) {
				var req request
				require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
				assert.Equal(t, "Raised beds for the neighbourhood", req.Description)
				writeVerdict(w, tt.label, "model output")
			})

			v, err := NewClient(srv.URL, time.Second).Screen(t.Context(), "Raised beds for the neighbourhood")
			require.NoError(t, err)
			assert.Equal(t, tt.wantLabel, v.Label)
			assert.Equal(t, tt.wantPassed, v.Passed())
			assert.Equal(t, int32(1), atomic.LoadInt32(calls))
		})
	}
}

func TestScreenUnknownLabelKeepsOriginalText(t *testing.T) {
	srv, _ := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeVerdict(w, "Requires Review", "needs a human")
	})

	v, err := NewClient(srv.URL, time.Second).Screen(t.Context(), "text")
	require.NoError(t, err)
	assert.Equal(t, campaign.LabelRejected, v.Label)
	assert.Equal(t, "Requires Review: needs a human", v.Message)
}

func TestScreenTimeoutIsUnavailable(t *testing.T) {
	srv, _ := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
		writeVerdict(w, "Genuine", "")
	})

	_, err := NewClient(srv.URL, 50*time.Millisecond).Screen(t.Context(), "text")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errno.ErrScreeningUnavailable), "got %v", err)
}

func TestScreenRetriesTransientOnce(t *testing.T) {
	var n int32
	srv, calls := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&n, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		writeVerdict(w, "Genuine", "")
	})

	v, err := NewClient(srv.URL, 2*time.Second).Screen(t.Context(), "text")
	require.NoError(t, err)
	assert.True(t, v.Passed())
	assert.Equal(t, int32(2), atomic.LoadInt32(calls))
}

func TestScreenGivesUpAfterOneRetry(t *testing.T) {
	srv, calls := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := NewClient(srv.URL, 2*time.Second).Screen(t.Context(), "text")
	assert.True(t, errors.Is(err, errno.ErrScreeningUnavailable), "got %v", err)
	assert.Equal(t, int32(2), atomic.LoadInt32(calls))
}

func TestScreenDefinitiveFailuresAreNotRetried(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusInternalServerError) }},
		{"malformed body", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("<html>ok</html>")) }},
		{"missing label", func(w http.ResponseWriter, r *http.Request) { writeVerdict(w, "", "no label") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, calls := newServer(t, tt.handler)

			_, err := NewClient(srv.URL, time.Second).Screen(t.Context(), "text")
			assert.True(t, errors.Is(err, errno.ErrScreeningUnavailable), "got %v", err)
			assert.Equal(t, int32(1), atomic.LoadInt32(calls))
		})
	}
}

func TestScreenRejectsEmptyText(t *testing.T) {
	srv, calls := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeVerdict(w, "Genuine", "")
	})

	_, err := NewClient(srv.URL, time.Second).Screen(t.Context(), "   ")
	assert.True(t, errors.Is(err, errno.ErrValidation))
	assert.Equal(t, int32(0), atomic.LoadInt32(calls))
}
