package database

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Thread is one conversation with the agent. Child threads reference their
// parent so replies share the root thread's session state.
type Thread struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey"`

	ParentID uuid.NullUUID `gorm:"type:uuid"`
	Parent   *Thread       `gorm:"foreignKey:ParentID"`

	UserName      string
	AwaitingInput bool `gorm:"default:false"`
	CreationTime  time.Time

	Messages []Message `gorm:"foreignKey:ThreadID;constraint:OnDelete:CASCADE"`
}

const (
	RoleUser      string = "user"
	RoleAssistant string = "assistant"
)

type Message struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey"`
	ThreadID uuid.UUID `gorm:"type:uuid;index;not null"`

	Role      string `gorm:"size:20;not null"`
	Content   string
	Timestamp time.Time
}

// AgentData is the keyed state blob the runtime persists on behalf of the
// agent. One row per root thread.
type AgentData struct {
	Key       string `gorm:"primaryKey"`
	Value     datatypes.JSON
	UpdatedAt time.Time
}

const (
	TaskQueued    string = "QUEUED"
	TaskRunning   string = "RUNNING"
	TaskCompleted string = "COMPLETED"
	TaskFailed    string = "FAILED"
)

// TweetTask is a queued tweet post. The worker fills in the tweet id and url
// on completion, or the error on failure.
type TweetTask struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey"`

	Text      string
	MediaPath sql.NullString

	Status string `gorm:"size:20;not null"`

	TweetID  sql.NullString
	TweetURL sql.NullString
	Error    sql.NullString

	CreationTime   time.Time
	CompletionTime sql.NullTime
}
