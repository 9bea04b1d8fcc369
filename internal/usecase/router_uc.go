package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"support-chat-router/internal/domain"
	"support-chat-router/internal/domain/model"
	"support-chat-router/internal/domain/ports/adapter"
	"support-chat-router/internal/domain/ports/repository"
	"support-chat-router/internal/infra/logging"
	"support-chat-router/internal/infra/metrics"
)

var _ SessionRouter = (*routerUC)(nil)

// SessionRouter is the entry point for every inbound chat action. It
// decides per message whether the bot pipeline or the human-agent relay
// handles it, and owns session handover and teardown.
type SessionRouter interface {
	Connect(ctx context.Context, sessionID string, actor model.Actor) error
	Route(ctx context.Context, sessionID, content string, actor model.Actor) error
	InitialFAQ(ctx context.Context, sessionID string, actor model.Actor) error
	SelectFAQ(ctx context.Context, sessionID, question string, actor model.Actor) error
	Suggestions(ctx context.Context, sessionID, input string, actor model.Actor) error
	RequestHumanSupport(ctx context.Context, sessionID string, actor model.Actor) error
	AgentJoin(ctx context.Context, sessionID string, actor model.Actor) error
	SaveAndClear(ctx context.Context, sessionID string) error
	OnFanoutEvent(topic string, payload []byte)

	// SessionView assembles the read-side aggregate for the agent
	// dashboard; PendingSessions lists the support queue in FIFO order.
	SessionView(ctx context.Context, sessionID string) (model.ChatSession, error)
	PendingSessions(ctx context.Context) ([]string, error)
}

type routerUC struct {
	sessions  repository.SessionRepository
	pipeline  ResponsePipeline
	faqs      FAQSuggester
	bus       adapter.FanoutBus
	transport adapter.Transport
	archive   repository.HistoryArchive

	initialFAQs int
	log         *zerolog.Logger
}

func NewSessionRouter(
	sessions repository.SessionRepository,
	pipeline ResponsePipeline,
	faqs FAQSuggester,
	bus adapter.FanoutBus,
	transport adapter.Transport,
	archive repository.HistoryArchive,
	initialFAQs int,
	logger *zerolog.Logger,
) *routerUC {
	return &routerUC{
		sessions:    sessions,
		pipeline:    pipeline,
		faqs:        faqs,
		bus:         bus,
		transport:   transport,
		archive:     archive,
		initialFAQs: initialFAQs,
		log:         logger,
	}
}

// Connect binds the connecting user's identity to the session. Binding
// is first-write-wins, so a reconnect is a no-op.
func (r *routerUC) Connect(ctx context.Context, sessionID string, actor model.Actor) error {
	if actor.Role != model.RoleUser {
		return nil
	}
	return r.sessions.BindUser(ctx, sessionID, actor.ID, actor.Email)
}

// Route appends the inbound message and forwards it down exactly one of
// two paths: the fanout relay when an agent holds the session, or the
// response pipeline otherwise. A pipeline failure still produces a
// delivered reply, the fixed apology.
func (r *routerUC) Route(ctx context.Context, sessionID, content string, actor model.Actor) error {
	log := logging.With(logging.WithSessID(ctx, sessionID), r.log)
	defer logging.TraceDuration(log, "SessionRouter.Route")()

	handling, err := r.sessions.IsAgentHandling(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("read handling flag: %w", err)
	}

	inbound := model.NewChatMessage(actor.ID, content, model.MessageTypeChat)
	if err := r.sessions.AppendMessage(ctx, sessionID, inbound); err != nil {
		return fmt.Errorf("append message: %w", err)
	}

	if handling {
		inbound.SessionID = sessionID
		payload, err := json.Marshal(inbound)
		if err != nil {
			return fmt.Errorf("encode message: %w", err)
		}
		if err := r.bus.Publish(ctx, adapter.TopicChatPrefix+sessionID, payload); err != nil {
			metrics.IncRouted("agent", false)
			return fmt.Errorf("publish chat event: %w", err)
		}
		metrics.IncRouted("agent", true)
		return nil
	}

	reply, err := r.pipeline.Respond(ctx, sessionID, content)
	if err != nil {
		log.Error().Err(err).Msg("response pipeline failed")
		metrics.IncRouted("bot", false)
		reply = model.NewChatMessage(model.SenderBot, msgGenericFailure, model.MessageTypeChat)
	} else {
		metrics.IncRouted("bot", true)
	}

	if err := r.sessions.AppendMessage(ctx, sessionID, reply); err != nil {
		return fmt.Errorf("append reply: %w", err)
	}
	reply.SessionID = sessionID
	return r.transport.SendToUser(actor.ID, reply)
}

// InitialFAQ sends the conversation-starter questions. Suggestion lists
// follow the same append-then-deliver contract as bot replies.
func (r *routerUC) InitialFAQ(ctx context.Context, sessionID string, actor model.Actor) error {
	questions := r.faqs.Initial(r.initialFAQs)
	msg := model.NewChatMessage(model.SenderBot, strings.Join(questions, "\n"), model.MessageTypeFAQSuggestions)
	if err := r.sessions.AppendMessage(ctx, sessionID, msg); err != nil {
		return fmt.Errorf("append suggestions: %w", err)
	}
	msg.SessionID = sessionID
	return r.transport.SendToUser(actor.ID, msg)
}

// SelectFAQ answers a previously suggested question from the cache. The
// answer is a bot reply and joins the transcript like any other.
func (r *routerUC) SelectFAQ(ctx context.Context, sessionID, question string, actor model.Actor) error {
	asked := model.NewChatMessage(actor.ID, question, model.MessageTypeChat)
	if err := r.sessions.AppendMessage(ctx, sessionID, asked); err != nil {
		return fmt.Errorf("append message: %w", err)
	}

	answer, ok := r.faqs.Select(question)
	if !ok {
		answer = msgFAQFallback
	}
	reply := model.NewChatMessage(model.SenderBot, answer, model.MessageTypeChat)
	if err := r.sessions.AppendMessage(ctx, sessionID, reply); err != nil {
		return fmt.Errorf("append reply: %w", err)
	}
	reply.SessionID = sessionID
	return r.transport.SendToUser(actor.ID, reply)
}

// Suggestions returns up to three partial-match questions for the text
// typed so far. An empty result is still delivered so the client can
// clear its suggestion box.
func (r *routerUC) Suggestions(ctx context.Context, sessionID, input string, actor model.Actor) error {
	questions, err := r.faqs.Suggest(ctx, input)
	if err != nil {
		return fmt.Errorf("suggest: %w", err)
	}
	msg := model.NewChatMessage(model.SenderBot, strings.Join(questions, "\n"), model.MessageTypeSuggestions)
	if err := r.sessions.AppendMessage(ctx, sessionID, msg); err != nil {
		return fmt.Errorf("append suggestions: %w", err)
	}
	msg.SessionID = sessionID
	return r.transport.SendToUser(actor.ID, msg)
}

// RequestHumanSupport enqueues the session for pickup and announces it
// on the escalation topic so every process can alert its local agents.
func (r *routerUC) RequestHumanSupport(ctx context.Context, sessionID string, actor model.Actor) error {
	if err := r.sessions.EnqueueSupport(ctx, sessionID); err != nil {
		return fmt.Errorf("enqueue support: %w", err)
	}
	metrics.IncEscalation()
	if err := r.bus.Publish(ctx, adapter.TopicEscalation, []byte(sessionID)); err != nil {
		return fmt.Errorf("publish escalation: %w", err)
	}

	confirmation := model.NewChatMessage(model.SenderSystem, msgQueueConfirmation, model.MessageTypeRequestAgent)
	if err := r.sessions.AppendMessage(ctx, sessionID, confirmation); err != nil {
		return fmt.Errorf("append confirmation: %w", err)
	}
	confirmation.SessionID = sessionID
	return r.transport.SendToUser(actor.ID, confirmation)
}

// AgentJoin hands the session over to the calling agent: assignment is
// write-once, the handling flag flips, the queue entry is removed, and
// the join plus a handover summary go out over the chat topic. A
// non-agent caller is rejected before any session state changes.
func (r *routerUC) AgentJoin(ctx context.Context, sessionID string, actor model.Actor) error {
	if !actor.IsAgent() {
		return domain.ErrNotAgent
	}
	log := logging.With(logging.WithSessID(ctx, sessionID), r.log)
	defer logging.TraceDuration(log, "SessionRouter.AgentJoin")()

	if err := r.sessions.AssignAgent(ctx, sessionID, actor.ID); err != nil {
		return fmt.Errorf("assign agent: %w", err)
	}
	if err := r.sessions.SetAgentHandling(ctx, sessionID, true); err != nil {
		return fmt.Errorf("set handling: %w", err)
	}
	if err := r.sessions.RemoveSupport(ctx, sessionID); err != nil {
		log.Warn().Err(err).Msg("queue removal failed")
	}

	joined := model.NewChatMessage(model.SenderSystem, msgAgentConnected, model.MessageTypeJoin)
	joined.SessionID = sessionID
	if err := r.publishChat(ctx, sessionID, joined); err != nil {
		return err
	}

	// Best effort: a missing summary must not block the handover.
	summary, err := r.pipeline.HandoverSummary(ctx, sessionID)
	if err != nil {
		log.Warn().Err(err).Msg("handover summary failed")
	} else if summary != "" {
		briefing := model.NewChatMessage(model.SenderBot, summary, model.MessageTypeChat)
		briefing.SessionID = sessionID
		if err := r.publishChat(ctx, sessionID, briefing); err != nil {
			return err
		}
	}

	return r.bus.Publish(ctx, adapter.TopicSwitch, []byte(sessionID))
}

func (r *routerUC) publishChat(ctx context.Context, sessionID string, msg model.ChatMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	if err := r.bus.Publish(ctx, adapter.TopicChatPrefix+sessionID, payload); err != nil {
		return fmt.Errorf("publish chat event: %w", err)
	}
	return nil
}

// SaveAndClear archives the transcript for the bound user, then removes
// every session key. Sessions with no bound user are cleared without
// archiving. Clearing an already-cleared session is a no-op.
func (r *routerUC) SaveAndClear(ctx context.Context, sessionID string) error {
	log := logging.With(logging.WithSessID(ctx, sessionID), r.log)
	defer logging.TraceDuration(log, "SessionRouter.SaveAndClear")()

	userID, _, err := r.sessions.BoundUser(ctx, sessionID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		userID = ""
	case err != nil:
		return fmt.Errorf("bound user: %w", err)
	}

	if userID != "" {
		msgs, err := r.sessions.Messages(ctx, sessionID)
		if err != nil {
			return fmt.Errorf("load transcript: %w", err)
		}
		if len(msgs) > 0 {
			if err := r.archive.SaveHistory(ctx, userID, sessionID, msgs); err != nil {
				return fmt.Errorf("archive transcript: %w", err)
			}
		}
	}
	return r.sessions.Clear(ctx, sessionID)
}

func (r *routerUC) SessionView(ctx context.Context, sessionID string) (model.ChatSession, error) {
	view := model.ChatSession{ID: sessionID}

	msgs, err := r.sessions.Messages(ctx, sessionID)
	if err != nil {
		return model.ChatSession{}, fmt.Errorf("load transcript: %w", err)
	}
	view.Messages = msgs

	if view.IsAgentHandling, err = r.sessions.IsAgentHandling(ctx, sessionID); err != nil {
		return model.ChatSession{}, fmt.Errorf("read handling flag: %w", err)
	}
	if view.UnansweredCount, err = r.sessions.UnansweredCount(ctx, sessionID); err != nil {
		return model.ChatSession{}, fmt.Errorf("unanswered count: %w", err)
	}

	switch agentID, err := r.sessions.AssignedAgent(ctx, sessionID); {
	case err == nil:
		view.AssignedAgentID = agentID
	case !errors.Is(err, domain.ErrNotFound):
		return model.ChatSession{}, fmt.Errorf("assigned agent: %w", err)
	}

	switch userID, email, err := r.sessions.BoundUser(ctx, sessionID); {
	case err == nil:
		view.UserID = userID
		view.UserEmail = email
	case !errors.Is(err, domain.ErrNotFound):
		return model.ChatSession{}, fmt.Errorf("bound user: %w", err)
	}
	return view, nil
}

func (r *routerUC) PendingSessions(ctx context.Context) ([]string, error) {
	return r.sessions.SupportQueue(ctx)
}

// OnFanoutEvent consumes bus events published by any process, including
// this one, and forwards them to locally connected sockets. A recipient
// without a local connection is skipped silently.
func (r *routerUC) OnFanoutEvent(topic string, payload []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	switch {
	case strings.HasPrefix(topic, adapter.TopicChatPrefix):
		metrics.IncFanoutEvent("chat")
		r.relayChat(ctx, strings.TrimPrefix(topic, adapter.TopicChatPrefix), payload)
	case topic == adapter.TopicEscalation:
		metrics.IncFanoutEvent("escalation")
		notice := model.NewChatMessage(model.SenderSystem, string(payload), model.MessageTypeRequestAgent)
		notice.SessionID = string(payload)
		r.transport.BroadcastAgents(notice)
	case topic == adapter.TopicSwitch:
		metrics.IncFanoutEvent("switch")
		r.notifySwitch(ctx, string(payload))
	default:
		r.log.Warn().Str("topic", topic).Msg("unknown fanout topic")
	}
}

func (r *routerUC) relayChat(ctx context.Context, sessionID string, payload []byte) {
	log := logging.With(logging.WithSessID(ctx, sessionID), r.log)

	var msg model.ChatMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		log.Warn().Err(err).Msg("malformed chat event")
		return
	}
	msg.SessionID = sessionID

	agentID, err := r.sessions.AssignedAgent(ctx, sessionID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		// Relay traffic on a session no agent ever joined. The user
		// side is still attempted below.
		log.Warn().Msg("chat event for unassigned session")
	case err != nil:
		log.Warn().Err(err).Msg("assigned agent lookup failed")
	default:
		if err := r.transport.SendToAgent(agentID, msg); err != nil {
			log.Warn().Err(err).Str("agent_id", agentID).Msg("agent delivery failed")
		}
	}

	userID, _, err := r.sessions.BoundUser(ctx, sessionID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			log.Warn().Err(err).Msg("bound user lookup failed")
		}
		return
	}
	if err := r.transport.SendToUser(userID, msg); err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("user delivery failed")
	}
}

func (r *routerUC) notifySwitch(ctx context.Context, sessionID string) {
	log := logging.With(logging.WithSessID(ctx, sessionID), r.log)

	userID, _, err := r.sessions.BoundUser(ctx, sessionID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			log.Warn().Err(err).Msg("bound user lookup failed")
		}
		return
	}
	notice := model.NewChatMessage(model.SenderSystem, msgAgentJoined, model.MessageTypeJoin)
	notice.SessionID = sessionID
	if err := r.transport.SendToUser(userID, notice); err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("user delivery failed")
	}
}
