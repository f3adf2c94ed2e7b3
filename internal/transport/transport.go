// Package transport sends rendered issues to recipients and classifies
// every attempt into a delivery outcome. Classification is total: callers
// never see a raw transport error, only a success, a retryable failure, or
// a terminal one.
package transport

import (
	"context"
	"fmt"
	"net/http"

	"github.com/mailroom-sh/mailroom/internal/delivery"
)

// Message is one rendered email.
type Message struct {
	To       string
	Subject  string
	HTMLBody string
	TextBody string
}

// Sender delivers one message and classifies the result.
type Sender interface {
	Send(ctx context.Context, msg Message) delivery.Outcome
}

// classifyStatus maps an upstream HTTP status to an outcome. Any 2xx is
// success. Timeouts, throttling and server-side errors are worth retrying;
// every other client error means the request itself is bad and a retry
// would fail identically.
func classifyStatus(status int) delivery.Outcome {
	switch {
	case status >= 200 && status < 300:
		return delivery.Succeed()
	case status == http.StatusRequestTimeout, status == http.StatusTooManyRequests, status >= 500:
		return delivery.Transient(fmt.Sprintf("upstream status %d", status))
	default:
		return delivery.Permanent(fmt.Sprintf("upstream status %d", status))
	}
}
