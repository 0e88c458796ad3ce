package entity

import "time"

// DefaultConversationID is used when a caller does not name a conversation.
const DefaultConversationID = "default"

// Turn is one utterance in a conversation.
type Turn struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

func NewTurn(role Role, content string) Turn {
	return Turn{Role: role, Content: content, CreatedAt: time.Now()}
}

// StoredTurn is one turn as a relational row. Seq orders turns within a conversation.
type StoredTurn struct {
	ID             int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	ConversationID string    `json:"conversation_id" gorm:"type:varchar(255);not null;index:idx_conversation_turns_seq,priority:1"`
	Seq            int       `json:"seq" gorm:"not null;index:idx_conversation_turns_seq,priority:2"`
	Role           Role      `json:"role" gorm:"type:varchar(16);not null"`
	Content        string    `json:"content" gorm:"type:text;not null"`
	CreatedAt      time.Time `json:"created_at"`
}

func (StoredTurn) TableName() string {
	return "conversation_turns"
}
