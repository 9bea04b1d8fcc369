package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"support-chat-router/internal/domain"
	"support-chat-router/internal/domain/model"
	"support-chat-router/internal/domain/ports/repository"
	"support-chat-router/internal/infra/logging"
	"support-chat-router/internal/infra/ws"
	"support-chat-router/internal/usecase"
)

// TicketIssuer hands out and redeems the single-use connect tickets the
// websocket endpoint authenticates with. Browsers cannot set headers on
// an upgrade request, so the ticket rides in the query string instead.
type TicketIssuer interface {
	Issue(ctx context.Context, actor model.Actor) (string, error)
	Redeem(ctx context.Context, id string) (model.Actor, error)
}

type Handler struct {
	router  usecase.SessionRouter
	archive repository.HistoryArchive
	tickets TicketIssuer
	auth    *Authenticator
	hub     *ws.Hub
	submit  func(func(ctx context.Context) error) error

	upgrader websocket.Upgrader
	log      *zerolog.Logger
}

func NewHandler(
	router usecase.SessionRouter,
	archive repository.HistoryArchive,
	tickets TicketIssuer,
	auth *Authenticator,
	hub *ws.Hub,
	submit func(func(ctx context.Context) error) error,
	logger *zerolog.Logger,
) *Handler {
	return &Handler{
		router:  router,
		archive: archive,
		tickets: tickets,
		auth:    auth,
		hub:     hub,
		submit:  submit,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		log: logger,
	}
}

func (h *Handler) issueTicket(w http.ResponseWriter, r *http.Request) {
	actor, err := h.auth.FromRequest(r)
	if err != nil {
		h.httpError(w, err)
		return
	}
	ticket, err := h.tickets.Issue(r.Context(), actor)
	if err != nil {
		h.httpError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"ticket": ticket})
}

func (h *Handler) latestHistory(w http.ResponseWriter, r *http.Request) {
	actor, err := h.auth.FromRequest(r)
	if err != nil {
		h.httpError(w, err)
		return
	}
	msgs, err := h.archive.LatestHistory(r.Context(), actor.ID)
	if err != nil {
		h.httpError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, msgs)
}

// closeSession lets an agent finalize a session they handled: archive
// the transcript and drop the session keys. User sessions close on
// socket disconnect instead.
func (h *Handler) closeSession(w http.ResponseWriter, r *http.Request) {
	actor, err := h.auth.FromRequest(r)
	if err != nil {
		h.httpError(w, err)
		return
	}
	if !actor.IsAgent() {
		h.httpError(w, domain.ErrNotAgent)
		return
	}
	sessionID := chi.URLParam(r, "id")
	if sessionID == "" {
		h.httpError(w, domain.ErrInvalidArgument)
		return
	}
	if err := h.router.SaveAndClear(r.Context(), sessionID); err != nil {
		h.httpError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type sessionView struct {
	ID              string              `json:"id"`
	State           model.SessionState  `json:"state"`
	Messages        []model.ChatMessage `json:"messages"`
	AssignedAgentID string              `json:"assignedAgentId,omitempty"`
	UnansweredCount int                 `json:"unansweredCount"`
	UserID          string              `json:"userId,omitempty"`
	UserEmail       string              `json:"userEmail,omitempty"`
}

// getSession serves the agent dashboard's per-session detail.
func (h *Handler) getSession(w http.ResponseWriter, r *http.Request) {
	actor, err := h.auth.FromRequest(r)
	if err != nil {
		h.httpError(w, err)
		return
	}
	if !actor.IsAgent() {
		h.httpError(w, domain.ErrNotAgent)
		return
	}
	view, err := h.router.SessionView(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.httpError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sessionView{
		ID:              view.ID,
		State:           view.State(),
		Messages:        view.Messages,
		AssignedAgentID: view.AssignedAgentID,
		UnansweredCount: view.UnansweredCount,
		UserID:          view.UserID,
		UserEmail:       view.UserEmail,
	})
}

// supportQueue lists session ids waiting for pickup, oldest first.
func (h *Handler) supportQueue(w http.ResponseWriter, r *http.Request) {
	actor, err := h.auth.FromRequest(r)
	if err != nil {
		h.httpError(w, err)
		return
	}
	if !actor.IsAgent() {
		h.httpError(w, domain.ErrNotAgent)
		return
	}
	queue, err := h.router.PendingSessions(r.Context())
	if err != nil {
		h.httpError(w, err)
		return
	}
	if queue == nil {
		queue = []string{}
	}
	respondJSON(w, http.StatusOK, map[string][]string{"sessions": queue})
}

// wsCommand is the inbound client frame.
type wsCommand struct {
	Action    string `json:"action"`
	SessionID string `json:"sessionId"`
	Content   string `json:"content"`
}

func (h *Handler) serveWS(w http.ResponseWriter, r *http.Request) {
	actor, err := h.tickets.Redeem(r.Context(), r.URL.Query().Get("ticket"))
	if err != nil {
		h.httpError(w, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := h.hub.Register(actor, conn)
	h.log.Info().Str("id", actor.ID).Str("role", string(actor.Role)).Msg("websocket connected")
	go h.readLoop(client, actor)
}

func (h *Handler) readLoop(client *ws.Client, actor model.Actor) {
	var lastSession string
	for {
		var cmd wsCommand
		if err := client.ReadJSON(&cmd); err != nil {
			break
		}
		if cmd.SessionID != "" {
			lastSession = cmd.SessionID
		}
		h.dispatch(actor, cmd)
	}

	h.hub.Unregister(client)
	h.log.Info().Str("id", actor.ID).Msg("websocket disconnected")

	// A user dropping their socket ends the session: archive and clear.
	if actor.Role == model.RoleUser && lastSession != "" {
		sessionID := lastSession
		h.run(actor, sessionID, func(ctx context.Context) error {
			return h.router.SaveAndClear(ctx, sessionID)
		})
	}
}

func (h *Handler) dispatch(actor model.Actor, cmd wsCommand) {
	if cmd.SessionID == "" {
		h.log.Warn().Str("action", cmd.Action).Msg("command without session id")
		return
	}
	switch cmd.Action {
	case "connect":
		h.run(actor, cmd.SessionID, func(ctx context.Context) error {
			return h.router.Connect(ctx, cmd.SessionID, actor)
		})
	case "sendMessage":
		h.run(actor, cmd.SessionID, func(ctx context.Context) error {
			return h.router.Route(ctx, cmd.SessionID, cmd.Content, actor)
		})
	case "getInitialFaq":
		h.run(actor, cmd.SessionID, func(ctx context.Context) error {
			return h.router.InitialFAQ(ctx, cmd.SessionID, actor)
		})
	case "selectFaq":
		h.run(actor, cmd.SessionID, func(ctx context.Context) error {
			return h.router.SelectFAQ(ctx, cmd.SessionID, cmd.Content, actor)
		})
	case "getSuggestions":
		h.run(actor, cmd.SessionID, func(ctx context.Context) error {
			return h.router.Suggestions(ctx, cmd.SessionID, cmd.Content, actor)
		})
	case "requestHumanSupport":
		h.run(actor, cmd.SessionID, func(ctx context.Context) error {
			return h.router.RequestHumanSupport(ctx, cmd.SessionID, actor)
		})
	case "agentJoin":
		h.run(actor, cmd.SessionID, func(ctx context.Context) error {
			return h.router.AgentJoin(ctx, cmd.SessionID, actor)
		})
	default:
		h.log.Warn().Str("action", cmd.Action).Msg("unknown action")
	}
}

// run pushes the command onto the worker pool so a slow pipeline call
// never stalls the socket's read loop. Each task runs under a fresh
// trace id plus the command's session and actor identity, so every log
// line downstream carries them.
func (h *Handler) run(actor model.Actor, sessionID string, task func(ctx context.Context) error) {
	err := h.submit(func(ctx context.Context) error {
		ctx = logging.WithTraceID(ctx, uuid.NewString())
		ctx = logging.WithSessID(ctx, sessionID)
		if actor.IsAgent() {
			ctx = logging.WithAgentID(ctx, actor.ID)
		} else {
			ctx = logging.WithUserID(ctx, actor.ID)
		}
		return task(ctx)
	})
	if err != nil {
		h.log.Warn().Err(err).Msg("command dropped")
	}
}

func (h *Handler) httpError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrUnauthorized), errors.Is(err, domain.ErrTicketInvalid):
		status = http.StatusUnauthorized
	case errors.Is(err, domain.ErrNotAgent):
		status = http.StatusForbidden
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidArgument):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		h.log.Error().Err(err).Msg("request failed")
	}
	respondJSON(w, status, map[string]string{"error": http.StatusText(status)})
}

func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
