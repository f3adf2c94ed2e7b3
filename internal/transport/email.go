package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/mailroom-sh/mailroom/internal/delivery"
	"github.com/mailroom-sh/mailroom/pkg/log"
)

// EmailClient sends messages through a Postmark-style HTTP email API.
type EmailClient struct {
	httpClient  *http.Client
	endpoint    string
	serverToken string
	from        string
	logger      log.Logger
}

// NewEmailClient builds an EmailClient posting to endpoint with the given
// sender address and server token. The timeout bounds each send end to end.
func NewEmailClient(endpoint, serverToken, from string, timeout time.Duration, logger log.Logger) *EmailClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &EmailClient{
		httpClient:  &http.Client{Timeout: timeout},
		endpoint:    endpoint,
		serverToken: serverToken,
		from:        from,
		logger:      logger.WithComponent("email"),
	}
}

type sendEmailRequest struct {
	From     string `json:"From"`
	To       string `json:"To"`
	Subject  string `json:"Subject"`
	HtmlBody string `json:"HtmlBody"`
	TextBody string `json:"TextBody"`
}

// Send posts the message and classifies the result. Network failures and
// timeouts are transient; the upstream's status code decides the rest.
func (c *EmailClient) Send(ctx context.Context, msg Message) delivery.Outcome {
	body, err := json.Marshal(sendEmailRequest{
		From:     c.from,
		To:       msg.To,
		Subject:  msg.Subject,
		HtmlBody: msg.HTMLBody,
		TextBody: msg.TextBody,
	})
	if err != nil {
		return delivery.Permanent("encode request: " + err.Error())
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return delivery.Permanent("build request: " + err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Server-Token", c.serverToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("email send failed", log.Str("to", msg.To), log.Err(err))
		return delivery.Transient("send: " + err.Error())
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	out := classifyStatus(resp.StatusCode)
	if out.Kind != delivery.Success {
		c.logger.Warn("email rejected upstream",
			log.Str("to", msg.To), log.Int("status", resp.StatusCode), log.Str("kind", out.Kind.String()))
	}
	return out
}

// LogSender pretends to deliver by logging the message. Used when no email
// endpoint is configured, so a fresh checkout runs end to end.
type LogSender struct {
	logger log.Logger
}

// NewLogSender builds a LogSender.
func NewLogSender(logger log.Logger) *LogSender {
	return &LogSender{logger: logger.WithComponent("email")}
}

// Send logs the message and reports success.
func (s *LogSender) Send(_ context.Context, msg Message) delivery.Outcome {
	s.logger.Info("delivered to log only (no email endpoint configured)",
		log.Str("to", msg.To), log.Str("subject", msg.Subject))
	return delivery.Succeed()
}
