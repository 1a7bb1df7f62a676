package worker

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
)

// User-visible failure messages per failure class.
const (
	msgNetwork  = "Unable to reach external services."
	msgTimeout  = "Analysis took too long. Try narrowing your search."
	msgAnalyzer = "AI analysis failed."
	msgGeneric  = "Something went wrong."
)

// errAnalyzer marks an analyzer failure after its own retry budget is
// exhausted.
var errAnalyzer = errors.New("analyzer failed")

// analyzerError wraps err so classify maps it to the analyzer message.
func analyzerError(err error) error {
	return fmt.Errorf("%w: %w", errAnalyzer, err)
}

// classify maps a pipeline error to the user-visible message stored on
// the search row.
func classify(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return msgTimeout
	case errors.Is(err, errAnalyzer):
		return msgAnalyzer
	case isNetworkRefused(err):
		return msgNetwork
	default:
		return msgGeneric
	}
}

// isNetworkRefused reports whether err stems from an unreachable
// external service.
func isNetworkRefused(err error) bool {
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.EHOSTUNREACH) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr)
}
