package model

// ChatSession is a read-side view of the per-session state kept in the
// session store. The store owns the durable fields; router instances
// fetch this aggregate, they never hold it across requests.
type ChatSession struct {
	ID              string
	Messages        []ChatMessage
	IsAgentHandling bool
	AssignedAgentID string
	UnansweredCount int
	UserID          string
	UserEmail       string
}

// State reported for observability; QUEUED_FOR_AGENT is implied by queue
// membership and intentionally not stored.
type SessionState string

const (
	StateBotHandled   SessionState = "BOT_HANDLED"
	StateAgentHandled SessionState = "AGENT_HANDLED"
)

func (s *ChatSession) State() SessionState {
	if s.IsAgentHandling {
		return StateAgentHandled
	}
	return StateBotHandled
}
