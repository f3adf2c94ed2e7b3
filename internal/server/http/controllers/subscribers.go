package controllers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mailroom-sh/mailroom/internal/runtime"
	"github.com/mailroom-sh/mailroom/internal/subscriber"
)

// SubscribersController handles signup, confirmation and listing.
type SubscribersController struct {
	rt *runtime.Runtime
}

// NewSubscribersController creates a new subscribers controller.
func NewSubscribersController(rt *runtime.Runtime) *SubscribersController {
	return &SubscribersController{rt: rt}
}

// RegisterRoutes registers subscriber routes with the given mux.
func (c *SubscribersController) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/subscribers", c.handleSubscribers)
	mux.HandleFunc("/v1/subscribers/confirm", c.handleConfirm)
}

type addSubscriberReq struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

func (c *SubscribersController) handleSubscribers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		c.handleAdd(w, r)
	case http.MethodGet:
		c.handleList(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// handleAdd signs up a pending subscriber and returns the confirmation
// token for the caller's confirmation flow.
func (c *SubscribersController) handleAdd(w http.ResponseWriter, r *http.Request) {
	var req addSubscriberReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	token, err := c.rt.Subscribers().Add(r.Context(), req.Email, req.Name)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if token == "" {
		// already confirmed; nothing to do
		writeJSON(w, map[string]string{"status": "confirmed"})
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "pending", "token": token})
}

// handleList lists subscribers. Requires the publisher credentials since it
// exposes the full address book.
func (c *SubscribersController) handleList(w http.ResponseWriter, r *http.Request) {
	pub := c.rt.Config().Publisher
	if !requireBasicAuth(w, r, pub.Username, pub.Password) {
		return
	}
	subs, err := c.rt.Subscribers().List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list subscribers")
		return
	}
	if subs == nil {
		subs = []subscriber.Subscriber{}
	}
	writeJSON(w, map[string]any{"subscribers": subs})
}

// handleConfirm burns a confirmation token.
func (c *SubscribersController) handleConfirm(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	token := r.URL.Query().Get("token")
	sub, err := c.rt.Subscribers().Confirm(r.Context(), token)
	if err != nil {
		if errors.Is(err, subscriber.ErrTokenInvalid) {
			writeError(w, http.StatusUnauthorized, "Invalid confirmation token")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to confirm subscription")
		return
	}
	writeJSON(w, map[string]string{"status": "confirmed", "email": sub.Email})
}
