package launcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tsingmao/vidlaunch/internal/config"
)

func TestMarkerDetector(t *testing.T) {
	d := MarkerDetector{Marker: "Running on local URL"}

	ready, err := d.Ready(context.Background(), "Loading pipeline...\n")
	require.NoError(t, err)
	assert.False(t, ready)

	ready, err = d.Ready(context.Background(), "Loading pipeline...\n"+testMarker+"\n")
	require.NoError(t, err)
	assert.True(t, ready)
}

func TestHTTPDetector(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   bool
	}{
		{"ok", http.StatusOK, true},
		{"not found still means bound", http.StatusNotFound, true},
		{"server error", http.StatusServiceUnavailable, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			ready, err := HTTPDetector{URL: srv.URL}.Ready(context.Background(), "")
			require.NoError(t, err)
			assert.Equal(t, tt.want, ready)
		})
	}
}

func TestHTTPDetector_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	ready, err := HTTPDetector{URL: url}.Ready(context.Background(), "")
	require.NoError(t, err)
	assert.False(t, ready)
}

func TestNewDetector(t *testing.T) {
	cfg := config.NewDefaultConfig().Readiness

	d, err := NewDetector(cfg, "http://localhost:7861")
	require.NoError(t, err)
	assert.Equal(t, MarkerDetector{Marker: config.DefaultReadinessMarker}, d)

	cfg.Mode = config.ReadinessModeHTTP
	cfg.HTTPPath = "config"
	d, err = NewDetector(cfg, "http://localhost:7861")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:7861/config", d.(HTTPDetector).URL)

	cfg.Mode = "tcp"
	_, err = NewDetector(cfg, "http://localhost:7861")
	require.Error(t, err)
}
