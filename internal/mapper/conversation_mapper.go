package mapper

import (
	"time"

	"healthcare-assistant-be/internal/entity"
	"healthcare-assistant-be/internal/model"
)

type ConversationMapper struct{}

func NewConversationMapper() *ConversationMapper {
	return &ConversationMapper{}
}

// Conversation mappers

func (m *ConversationMapper) ConversationToEntity(c *model.Conversation) *entity.Conversation {
	if c == nil {
		return nil
	}

	var updatedAt *time.Time
	if !c.UpdatedAt.IsZero() {
		t := c.UpdatedAt
		updatedAt = &t
	}

	return &entity.Conversation{
		Id:        c.Id,
		UserId:    c.UserId,
		Title:     c.Title,
		IsActive:  c.IsActive,
		CreatedAt: c.CreatedAt,
		UpdatedAt: updatedAt,
	}
}

func (m *ConversationMapper) ConversationToModel(c *entity.Conversation) *model.Conversation {
	if c == nil {
		return nil
	}

	var updatedAt time.Time
	if c.UpdatedAt != nil {
		updatedAt = *c.UpdatedAt
	}

	return &model.Conversation{
		Id:        c.Id,
		UserId:    c.UserId,
		Title:     c.Title,
		IsActive:  c.IsActive,
		CreatedAt: c.CreatedAt,
		UpdatedAt: updatedAt,
	}
}

// Message mappers

func (m *ConversationMapper) MessageToEntity(msg *model.Message) *entity.Message {
	if msg == nil {
		return nil
	}

	return &entity.Message{
		Id:             msg.Id,
		ConversationId: msg.ConversationId,
		SenderType:     msg.SenderType,
		SenderId:       msg.SenderId,
		MessageText:    msg.MessageText,
		ImageUrl:       msg.ImageUrl,
		CreatedAt:      msg.CreatedAt,
	}
}

func (m *ConversationMapper) MessageToModel(msg *entity.Message) *model.Message {
	if msg == nil {
		return nil
	}

	return &model.Message{
		Id:             msg.Id,
		ConversationId: msg.ConversationId,
		SenderType:     msg.SenderType,
		SenderId:       msg.SenderId,
		MessageText:    msg.MessageText,
		ImageUrl:       msg.ImageUrl,
		CreatedAt:      msg.CreatedAt,
	}
}

func (m *ConversationMapper) MessagesToEntities(models []*model.Message) []*entity.Message {
	entities := make([]*entity.Message, len(models))
	for i, msg := range models {
		entities[i] = m.MessageToEntity(msg)
	}
	return entities
}
