package entity

import (
	"time"

	"github.com/google/uuid"
)

type Conversation struct {
	Id        uuid.UUID
	UserId    uuid.UUID
	Title     string
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt *time.Time
}

type Message struct {
	Id             uuid.UUID
	ConversationId uuid.UUID
	SenderType     string     // constant.ChatSenderTypeUser | constant.ChatSenderTypeBot
	SenderId       *uuid.UUID // set only for user messages
	MessageText    string
	ImageUrl       *string
	CreatedAt      time.Time
}
