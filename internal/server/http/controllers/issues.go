package controllers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mailroom-sh/mailroom/internal/issue"
	"github.com/mailroom-sh/mailroom/internal/publisher"
	"github.com/mailroom-sh/mailroom/internal/runtime"
)

// IssuesController handles issue publication and lookup.
//
// Publication is authenticated with Basic auth and keyed by the caller's
// Idempotency-Key header: a retried request replays the original response
// without publishing twice.
type IssuesController struct {
	rt   *runtime.Runtime
	proc *publisher.Processor
}

// NewIssuesController creates a new issues controller.
func NewIssuesController(rt *runtime.Runtime, proc *publisher.Processor) *IssuesController {
	return &IssuesController{rt: rt, proc: proc}
}

// RegisterRoutes registers issue routes with the given mux.
func (c *IssuesController) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/issues/publish", c.handlePublish)
	mux.HandleFunc("/v1/issues/get", c.handleGet)
}

type publishIssueReq struct {
	Title    string `json:"title"`
	HTMLBody string `json:"html_body"`
	TextBody string `json:"text_body"`
}

// handlePublish accepts an issue for delivery.
//
// The publishing user is the idempotency owner, so two operators reusing
// the same key do not collide.
func (c *IssuesController) handlePublish(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	pub := c.rt.Config().Publisher
	if !requireBasicAuth(w, r, pub.Username, pub.Password) {
		return
	}
	key := r.Header.Get("Idempotency-Key")
	if key == "" {
		writeError(w, http.StatusBadRequest, "Idempotency-Key header is required")
		return
	}
	var req publishIssueReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	resp, err := c.proc.Submit(r.Context(), pub.Username, key, publisher.Content{
		Title:    req.Title,
		HTMLBody: req.HTMLBody,
		TextBody: req.TextBody,
	})
	if err != nil {
		if errors.Is(err, publisher.ErrInvalidContent) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to publish issue")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.Status)
	_, _ = w.Write(resp.Body)
}

// handleGet fetches one issue record by id.
func (c *IssuesController) handleGet(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	id := r.URL.Query().Get("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "id is required")
		return
	}
	iss, err := c.rt.Issues().Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, issue.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Issue not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to load issue")
		return
	}
	writeJSON(w, iss)
}
