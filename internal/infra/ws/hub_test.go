package ws

import (
	"os"
	"testing"

	"github.com/rs/zerolog"

	"support-chat-router/internal/domain/model"
)

func testHub() *Hub {
	l := zerolog.New(os.Stderr).Level(zerolog.Disabled)
	return NewHub(&l)
}

func TestSendToUserReachesRegisteredClient(t *testing.T) {
	h := testHub()
	c := h.Register(model.Actor{ID: "u-1", Role: model.RoleUser}, nil)

	msg := model.NewChatMessage(model.SenderBot, "hello", model.MessageTypeChat)
	if err := h.SendToUser("u-1", msg); err != nil {
		t.Fatal(err)
	}
	select {
	case got := <-c.send:
		if got.Content != "hello" {
			t.Fatalf("got %+v", got)
		}
	default:
		t.Fatal("nothing enqueued")
	}
}

func TestSendToUnknownRecipientIsNotAnError(t *testing.T) {
	h := testHub()
	if err := h.SendToUser("nobody", model.NewChatMessage(model.SenderBot, "x", model.MessageTypeChat)); err != nil {
		t.Fatalf("missing local connection must not error: %v", err)
	}
}

func TestRegisterReplacesStaleConnection(t *testing.T) {
	h := testHub()
	old := h.Register(model.Actor{ID: "u-1", Role: model.RoleUser}, nil)
	cur := h.Register(model.Actor{ID: "u-1", Role: model.RoleUser}, nil)

	if !old.closed {
		t.Fatal("replaced connection not closed")
	}

	// A late unregister from the stale connection must not drop the
	// current one.
	h.Unregister(old)
	_ = h.SendToUser("u-1", model.NewChatMessage(model.SenderBot, "still here", model.MessageTypeChat))
	select {
	case <-cur.send:
	default:
		t.Fatal("current connection lost after stale unregister")
	}
}

func TestUsersAndAgentsAreSeparateRegistries(t *testing.T) {
	h := testHub()
	user := h.Register(model.Actor{ID: "id-1", Role: model.RoleUser}, nil)
	agent := h.Register(model.Actor{ID: "id-1", Role: model.RoleAgent}, nil)

	_ = h.SendToAgent("id-1", model.NewChatMessage(model.SenderSystem, "for agent", model.MessageTypeChat))
	select {
	case <-user.send:
		t.Fatal("agent message delivered to user")
	default:
	}
	select {
	case got := <-agent.send:
		if got.Content != "for agent" {
			t.Fatalf("got %+v", got)
		}
	default:
		t.Fatal("agent did not receive message")
	}
}

func TestBroadcastAgents(t *testing.T) {
	h := testHub()
	a1 := h.Register(model.Actor{ID: "a-1", Role: model.RoleAgent}, nil)
	a2 := h.Register(model.Actor{ID: "a-2", Role: model.RoleAgent}, nil)
	u := h.Register(model.Actor{ID: "u-1", Role: model.RoleUser}, nil)

	h.BroadcastAgents(model.NewChatMessage(model.SenderSystem, "s-9", model.MessageTypeRequestAgent))

	for _, c := range []*Client{a1, a2} {
		select {
		case <-c.send:
		default:
			t.Fatalf("agent %s missed broadcast", c.Actor.ID)
		}
	}
	select {
	case <-u.send:
		t.Fatal("user received agent broadcast")
	default:
	}
}
