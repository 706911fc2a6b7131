package model

import (
	"time"

	"github.com/google/uuid"
)

type Message struct {
	Id             uuid.UUID  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	ConversationId uuid.UUID  `gorm:"type:uuid;not null;index"`
	SenderType     string     `gorm:"type:varchar(10);not null"`
	SenderId       *uuid.UUID `gorm:"type:uuid"` // null for bot messages
	MessageText    string     `gorm:"type:text;not null"`
	ImageUrl       *string    `gorm:"type:text"`
	CreatedAt      time.Time  `gorm:"autoCreateTime"`
}

func (Message) TableName() string {
	return "messages"
}
