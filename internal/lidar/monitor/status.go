package monitor

import (
	"net/http"

	"github.com/banshee-data/rslidar/internal/httputil"
	"github.com/banshee-data/rslidar/internal/version"
)

// Status is the body served by StatusHandler.
type Status struct {
	Version string  `json:"version"`
	Summary Summary `json:"summary"`
}

// StatusHandler serves a JSON snapshot of s on every GET.
func StatusHandler(s *RangeSummary) http.Handler {
	return httputil.ReadOnly(func() interface{} {
		return Status{Version: version.String(), Summary: s.Snapshot()}
	})
}
