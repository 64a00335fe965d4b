package message

import "time"

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
)

// Terminal reports whether no further pipeline transition may happen.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

// Record is one submitted message and the outcome of generating a reply to it.
type Record struct {
	ID string `gorm:"primaryKey;size:26" json:"id"` // ULID

	UserID      string `gorm:"type:varchar(128);not null;index:idx_user_msg_user_id,priority:1" json:"user_id"`
	MessageText string `gorm:"type:text;not null" json:"message_text"`

	Status Status `gorm:"type:varchar(16);not null;index:idx_user_msg_status_updated,priority:1" json:"status"`

	// Filled when completed
	ResponseText *string `gorm:"type:text" json:"response_text,omitempty"`

	// Filled when error
	ErrorMessage *string `gorm:"type:text" json:"error_message,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `gorm:"index:idx_user_msg_status_updated,priority:2" json:"updated_at"`
}

func (Record) TableName() string { return "user_messages" }
