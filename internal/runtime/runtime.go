// Package runtime defines the chat-runtime boundary the agent runs against:
// thread identity, message history, reply emission, file artifacts, and a keyed
// persistent store for agent state.
package runtime

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
)

type ThreadInfo struct {
	ID       uuid.UUID
	ParentID *uuid.UUID
	UserName string
}

// StateKey is the key under which a thread's agent state is stored. Replies in
// a child thread share the root session, so the parent id wins when present.
func (t ThreadInfo) StateKey() string {
	if t.ParentID != nil {
		return t.ParentID.String()
	}
	return t.ID.String()
}

type Message struct {
	Role    string
	Content string
}

// Environment is the surface the hosting runtime exposes to an agent for one
// turn. The agent never reaches around it to the underlying storage.
type Environment interface {
	Thread() ThreadInfo

	ListMessages(ctx context.Context) ([]Message, error)

	AddReply(ctx context.Context, text string) error

	WriteFile(ctx context.Context, name string, content []byte) error

	RequestUserInput(ctx context.Context) error

	GetAgentData(ctx context.Context, key string) (json.RawMessage, error)

	SaveAgentData(ctx context.Context, key string, value json.RawMessage) error
}
