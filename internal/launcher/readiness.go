package launcher

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/tsingmao/vidlaunch/internal/config"
)

// ReadinessDetector decides whether the web UI is ready.
//
// Ready is called once per poll with the container's accumulated log output.
// An error aborts monitoring; "not ready yet" is (false, nil).
type ReadinessDetector interface {
	Ready(ctx context.Context, logs string) (bool, error)
	String() string
}

// MarkerDetector reports ready once a marker substring appears in the logs.
type MarkerDetector struct {
	Marker string
}

func (d MarkerDetector) Ready(_ context.Context, logs string) (bool, error) {
	return strings.Contains(logs, d.Marker), nil
}

func (d MarkerDetector) String() string {
	return fmt.Sprintf("log marker %q", d.Marker)
}

// HTTPDetector reports ready once the published URL answers. Any response
// below 500 counts: the server has bound its address even if the path is
// not found.
type HTTPDetector struct {
	URL    string
	Client *http.Client
}

func (d HTTPDetector) Ready(ctx context.Context, _ string) (bool, error) {
	client := d.Client
	if client == nil {
		client = &http.Client{Timeout: 2 * time.Second}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.URL, nil)
	if err != nil {
		return false, fmt.Errorf("invalid readiness URL %s: %w", d.URL, err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return false, nil
	}
	resp.Body.Close()
	return resp.StatusCode < http.StatusInternalServerError, nil
}

func (d HTTPDetector) String() string {
	return "HTTP probe of " + d.URL
}

// NewDetector builds the detector selected by cfg.Mode for a web UI
// published at url.
func NewDetector(cfg config.ReadinessConfig, url string) (ReadinessDetector, error) {
	switch cfg.Mode {
	case config.ReadinessModeLog, "":
		return MarkerDetector{Marker: cfg.Marker}, nil
	case config.ReadinessModeHTTP:
		path := cfg.HTTPPath
		if !strings.HasPrefix(path, "/") {
			path = "/" + path
		}
		return HTTPDetector{URL: strings.TrimRight(url, "/") + path}, nil
	default:
		return nil, fmt.Errorf("unknown readiness mode '%s'", cfg.Mode)
	}
}
