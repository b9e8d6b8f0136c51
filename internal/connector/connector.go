// Package connector hosts the per-platform source implementations and the
// small helpers they share. Every connector conforms to the uniform fetch
// capability and reports failures as typed source errors.
package connector

import (
	"fmt"
	"net/http"

	"github.com/jobsonar/jobsonar/internal/discovery"
)

// ClassifyStatus maps HTTP failures to connector error kinds. Access
// refusals (403/429) are blocked; everything else non-2xx is network.
func ClassifyStatus(sourceID string, code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusForbidden || code == http.StatusTooManyRequests:
		return discovery.NewSourceError(sourceID, discovery.SourceErrBlocked,
			fmt.Errorf("http status %d", code))
	default:
		return discovery.NewSourceError(sourceID, discovery.SourceErrNetwork,
			fmt.Errorf("http status %d", code))
	}
}
