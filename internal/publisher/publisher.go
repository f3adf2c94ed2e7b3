// Package publisher implements idempotent issue publication: one accepted
// submission creates the issue, fans out one delivery task per confirmed
// subscriber and records the response, all in a single atomic commit keyed
// by the caller's idempotency key.
package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/mailroom-sh/mailroom/internal/delivery"
	"github.com/mailroom-sh/mailroom/internal/idempotency"
	"github.com/mailroom-sh/mailroom/internal/issue"
	pebblestore "github.com/mailroom-sh/mailroom/internal/storage/pebble"
	"github.com/mailroom-sh/mailroom/internal/subscriber"
	"github.com/mailroom-sh/mailroom/pkg/id"
	"github.com/mailroom-sh/mailroom/pkg/log"
)

// ErrInvalidContent is returned when a submission is missing its title or
// both bodies.
var ErrInvalidContent = errors.New("publisher: invalid issue content")

// Content is the submitted issue body.
type Content struct {
	Title    string `json:"title"`
	HTMLBody string `json:"html_body"`
	TextBody string `json:"text_body"`
}

func (c Content) validate() error {
	if strings.TrimSpace(c.Title) == "" {
		return fmt.Errorf("%w: title is blank", ErrInvalidContent)
	}
	if strings.TrimSpace(c.HTMLBody) == "" && strings.TrimSpace(c.TextBody) == "" {
		return fmt.Errorf("%w: no body", ErrInvalidContent)
	}
	return nil
}

// Response is what the caller saw. It is saved under the idempotency key
// and replayed byte for byte on duplicate submissions.
type Response struct {
	Status int
	Body   []byte
}

type publishResult struct {
	IssueID  string `json:"issue_id"`
	Enqueued int    `json:"enqueued"`
}

// Processor accepts issue submissions.
type Processor struct {
	db     *pebblestore.DB
	issues *issue.Store
	idem   *idempotency.Store
	subs   subscriber.Directory
	queue  *delivery.Queue
	ids    *id.Generator
	logger log.Logger

	// mu covers the check-then-commit window so two concurrent submissions
	// with the same key cannot both publish.
	mu sync.Mutex
}

// NewProcessor wires a Processor over the shared store.
func NewProcessor(db *pebblestore.DB, issues *issue.Store, idem *idempotency.Store, subs subscriber.Directory, queue *delivery.Queue, logger log.Logger) *Processor {
	return &Processor{
		db:     db,
		issues: issues,
		idem:   idem,
		subs:   subs,
		queue:  queue,
		ids:    id.NewGenerator(),
		logger: logger.WithComponent("publisher"),
	}
}

// Submit publishes content under the caller's idempotency key. The first
// submission for (ownerID, key) creates the issue, enqueues one delivery
// task per confirmed subscriber and saves the response; every later
// submission with the same key replays that saved response without side
// effects, whatever its content.
func (p *Processor) Submit(ctx context.Context, ownerID, key string, content Content) (Response, error) {
	if ownerID == "" || key == "" {
		return Response{}, fmt.Errorf("publisher: owner and idempotency key are required")
	}

	// fast path: replay without taking the lock
	if rec, ok, err := p.idem.Get(ctx, ownerID, key); err != nil {
		return Response{}, err
	} else if ok {
		return Response{Status: rec.Status, Body: rec.Body}, nil
	}

	if err := content.validate(); err != nil {
		return Response{}, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	// a concurrent submission may have won the race while we waited
	if rec, ok, err := p.idem.Get(ctx, ownerID, key); err != nil {
		return Response{}, err
	} else if ok {
		return Response{Status: rec.Status, Body: rec.Body}, nil
	}

	subs, err := p.subs.ListConfirmed(ctx)
	if err != nil {
		return Response{}, err
	}

	nowMs := time.Now().UnixMilli()
	issueID := p.ids.Next().String()
	iss := issue.Issue{
		ID:          issueID,
		Title:       content.Title,
		HTMLBody:    content.HTMLBody,
		TextBody:    content.TextBody,
		CreatedAtMs: nowMs,
	}

	body, err := json.Marshal(publishResult{IssueID: issueID, Enqueued: len(subs)})
	if err != nil {
		return Response{}, err
	}
	resp := Response{Status: http.StatusCreated, Body: body}

	b := p.db.NewBatch()
	defer b.Close()
	if err := p.issues.AppendCreate(b, iss); err != nil {
		return Response{}, err
	}
	for _, sub := range subs {
		ref := delivery.Ref{IssueID: issueID, Recipient: sub.Email}
		if err := p.queue.AppendEnqueue(b, ref, nowMs); err != nil {
			return Response{}, err
		}
	}
	rec := idempotency.Record{
		OwnerID:     ownerID,
		Key:         key,
		Status:      resp.Status,
		Body:        resp.Body,
		CreatedAtMs: nowMs,
	}
	if err := p.idem.AppendPut(b, rec); err != nil {
		return Response{}, err
	}
	if err := p.db.CommitBatch(ctx, b); err != nil {
		return Response{}, err
	}

	p.logger.Info("issue published",
		log.Str("issue", issueID), log.Str("owner", ownerID),
		log.Str("title", content.Title), log.Int("enqueued", len(subs)))
	return resp, nil
}
