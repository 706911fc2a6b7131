package service

import (
	"context"
	"strings"
	"time"

	"healthcare-assistant-be/internal/constant"
	"healthcare-assistant-be/internal/dto"
	"healthcare-assistant-be/internal/entity"
	"healthcare-assistant-be/internal/pkg/serverutils"
	"healthcare-assistant-be/internal/repository/specification"
	"healthcare-assistant-be/internal/repository/unitofwork"

	"github.com/google/uuid"
)

// IChatService is the conversation store: creation, single-message appends,
// the one atomic bulk-save path, and the history CRUD around them.
type IChatService interface {
	CreateConversation(ctx context.Context, userId uuid.UUID, title string) (*entity.Conversation, error)
	// ResolveOwned returns the conversation only when it exists AND belongs
	// to userId; (nil, nil) otherwise.
	ResolveOwned(ctx context.Context, userId, conversationId uuid.UUID) (*entity.Conversation, error)
	AppendUserMessage(ctx context.Context, conversationId, userId uuid.UUID, text string, imageUrl *string) error
	AppendAssistantMessage(ctx context.Context, conversationId uuid.UUID, text string) error
	BulkSave(ctx context.Context, userId uuid.UUID, request *dto.SaveChatRequest) (*dto.SaveChatResponse, error)
	GetHistory(ctx context.Context, userId uuid.UUID) ([]*dto.ConversationSummaryResponse, error)
	GetConversation(ctx context.Context, userId, conversationId uuid.UUID) (*dto.ConversationDetailResponse, error)
	DeleteConversation(ctx context.Context, userId, conversationId uuid.UUID) error
	UpdateTitle(ctx context.Context, userId, conversationId uuid.UUID, title string) error
}

type chatService struct {
	uowFactory unitofwork.RepositoryFactory
}

func NewChatService(uowFactory unitofwork.RepositoryFactory) IChatService {
	return &chatService{
		uowFactory: uowFactory,
	}
}

// DeriveTitle builds a conversation title from the first message.
func DeriveTitle(message string) string {
	title := strings.TrimSpace(message)
	runes := []rune(title)
	if len(runes) > constant.ConversationTitleMaxRunes {
		title = string(runes[:constant.ConversationTitleMaxRunes])
	}
	if title == "" {
		title = "New conversation"
	}
	return title
}

func (cs *chatService) CreateConversation(ctx context.Context, userId uuid.UUID, title string) (*entity.Conversation, error) {
	uow := cs.uowFactory.NewUnitOfWork(ctx)

	conversation := &entity.Conversation{
		Id:        uuid.New(),
		UserId:    userId,
		Title:     title,
		IsActive:  true,
		CreatedAt: time.Now(),
	}
	if err := uow.ConversationRepository().Create(ctx, conversation); err != nil {
		return nil, serverutils.NewPersistenceError("failed to create conversation", err)
	}
	return conversation, nil
}

func (cs *chatService) ResolveOwned(ctx context.Context, userId, conversationId uuid.UUID) (*entity.Conversation, error) {
	uow := cs.uowFactory.NewUnitOfWork(ctx)

	conversation, err := uow.ConversationRepository().FindOne(ctx,
		specification.ByID{ID: conversationId},
		specification.UserOwnedBy{UserID: userId},
	)
	if err != nil {
		return nil, serverutils.NewPersistenceError("failed to look up conversation", err)
	}
	return conversation, nil
}

func (cs *chatService) AppendUserMessage(ctx context.Context, conversationId, userId uuid.UUID, text string, imageUrl *string) error {
	uow := cs.uowFactory.NewUnitOfWork(ctx)

	senderId := userId
	message := &entity.Message{
		Id:             uuid.New(),
		ConversationId: conversationId,
		SenderType:     constant.ChatSenderTypeUser,
		SenderId:       &senderId,
		MessageText:    text,
		ImageUrl:       imageUrl,
		CreatedAt:      time.Now(),
	}
	if err := uow.MessageRepository().Create(ctx, message); err != nil {
		return serverutils.NewPersistenceError("failed to append user message", err)
	}
	// Bump updated_at so the history listing reflects activity.
	if err := uow.ConversationRepository().Touch(ctx, conversationId); err != nil {
		return serverutils.NewPersistenceError("failed to touch conversation", err)
	}
	return nil
}

func (cs *chatService) AppendAssistantMessage(ctx context.Context, conversationId uuid.UUID, text string) error {
	uow := cs.uowFactory.NewUnitOfWork(ctx)

	message := &entity.Message{
		Id:             uuid.New(),
		ConversationId: conversationId,
		SenderType:     constant.ChatSenderTypeBot,
		SenderId:       nil,
		MessageText:    text,
		CreatedAt:      time.Now(),
	}
	if err := uow.MessageRepository().Create(ctx, message); err != nil {
		return serverutils.NewPersistenceError("failed to append assistant message", err)
	}
	if err := uow.ConversationRepository().Touch(ctx, conversationId); err != nil {
		return serverutils.NewPersistenceError("failed to touch conversation", err)
	}
	return nil
}

// BulkSave is the only strictly atomic path: one conversation row plus all
// message rows commit together or not at all.
func (cs *chatService) BulkSave(ctx context.Context, userId uuid.UUID, request *dto.SaveChatRequest) (*dto.SaveChatResponse, error) {
	// Preconditions are checked before the transaction is opened.
	if strings.TrimSpace(request.Title) == "" {
		return nil, serverutils.NewValidationError("title must not be empty")
	}
	var hasUser, hasAssistant bool
	for _, msg := range request.Messages {
		if msg.Role == constant.ChatRoleUser {
			hasUser = true
		} else {
			hasAssistant = true
		}
	}
	if !hasUser || !hasAssistant {
		return nil, serverutils.NewValidationError("need at least one user and one assistant message")
	}

	uow := cs.uowFactory.NewUnitOfWork(ctx)
	if err := uow.Begin(ctx); err != nil {
		return nil, serverutils.NewPersistenceError("failed to open transaction", err)
	}
	defer uow.Rollback()

	now := time.Now()
	conversation := &entity.Conversation{
		Id:        uuid.New(),
		UserId:    userId,
		Title:     request.Title,
		IsActive:  true,
		CreatedAt: now,
	}
	if err := uow.ConversationRepository().Create(ctx, conversation); err != nil {
		return nil, serverutils.NewPersistenceError("failed to save conversation", err)
	}

	messages := make([]*entity.Message, len(request.Messages))
	for i, msg := range request.Messages {
		senderType := constant.ChatSenderTypeBot
		var senderId *uuid.UUID
		if msg.Role == constant.ChatRoleUser {
			senderType = constant.ChatSenderTypeUser
			id := userId
			senderId = &id
		}
		messages[i] = &entity.Message{
			Id:             uuid.New(),
			ConversationId: conversation.Id,
			SenderType:     senderType,
			SenderId:       senderId,
			MessageText:    msg.Content,
			// Ordering is carried solely by created_at, so bulk-saved rows
			// get strictly increasing timestamps.
			CreatedAt: now.Add(time.Duration(i) * time.Millisecond),
		}
	}
	if err := uow.MessageRepository().CreateBulk(ctx, messages); err != nil {
		return nil, serverutils.NewPersistenceError("failed to save messages", err)
	}

	if err := uow.Commit(); err != nil {
		return nil, serverutils.NewPersistenceError("failed to commit conversation", err)
	}

	return &dto.SaveChatResponse{
		ConversationId: conversation.Id,
		Title:          conversation.Title,
	}, nil
}

func (cs *chatService) GetHistory(ctx context.Context, userId uuid.UUID) ([]*dto.ConversationSummaryResponse, error) {
	uow := cs.uowFactory.NewUnitOfWork(ctx)

	conversations, err := uow.ConversationRepository().FindAll(ctx,
		specification.UserOwnedBy{UserID: userId},
		specification.OrderBy{Field: "updated_at", Desc: true},
	)
	if err != nil {
		return nil, serverutils.NewPersistenceError("failed to load history", err)
	}

	response := make([]*dto.ConversationSummaryResponse, 0, len(conversations))
	for _, c := range conversations {
		response = append(response, &dto.ConversationSummaryResponse{
			ConversationId: c.Id,
			Title:          c.Title,
			IsActive:       c.IsActive,
			CreatedAt:      c.CreatedAt,
			UpdatedAt:      c.UpdatedAt,
		})
	}
	return response, nil
}

func (cs *chatService) GetConversation(ctx context.Context, userId, conversationId uuid.UUID) (*dto.ConversationDetailResponse, error) {
	conversation, err := cs.ResolveOwned(ctx, userId, conversationId)
	if err != nil {
		return nil, err
	}
	if conversation == nil {
		return nil, serverutils.NewNotFoundError("conversation not found")
	}

	uow := cs.uowFactory.NewUnitOfWork(ctx)
	messages, err := uow.MessageRepository().FindAll(ctx,
		specification.ByConversationID{ConversationID: conversationId},
		specification.OrderBy{Field: "created_at", Desc: false},
	)
	if err != nil {
		return nil, serverutils.NewPersistenceError("failed to load messages", err)
	}

	formatted := make([]dto.FormattedMessage, 0, len(messages))
	for _, msg := range messages {
		role := constant.ChatRoleAssistant
		if msg.SenderType == constant.ChatSenderTypeUser {
			role = constant.ChatRoleUser
		}
		formatted = append(formatted, dto.FormattedMessage{
			Role:      role,
			Content:   msg.MessageText,
			ImageUrl:  msg.ImageUrl,
			Timestamp: msg.CreatedAt,
		})
	}

	return &dto.ConversationDetailResponse{
		ConversationId: conversation.Id,
		Title:          conversation.Title,
		Messages:       formatted,
		CreatedAt:      conversation.CreatedAt,
		UpdatedAt:      conversation.UpdatedAt,
	}, nil
}

func (cs *chatService) DeleteConversation(ctx context.Context, userId, conversationId uuid.UUID) error {
	conversation, err := cs.ResolveOwned(ctx, userId, conversationId)
	if err != nil {
		return err
	}
	if conversation == nil {
		return serverutils.NewNotFoundError("conversation not found")
	}

	uow := cs.uowFactory.NewUnitOfWork(ctx)
	if err := uow.ConversationRepository().Delete(ctx, conversationId); err != nil {
		return serverutils.NewPersistenceError("failed to delete conversation", err)
	}
	return nil
}

func (cs *chatService) UpdateTitle(ctx context.Context, userId, conversationId uuid.UUID, title string) error {
	if strings.TrimSpace(title) == "" {
		return serverutils.NewValidationError("title must not be empty")
	}

	conversation, err := cs.ResolveOwned(ctx, userId, conversationId)
	if err != nil {
		return err
	}
	if conversation == nil {
		return serverutils.NewNotFoundError("conversation not found")
	}

	uow := cs.uowFactory.NewUnitOfWork(ctx)
	if err := uow.ConversationRepository().UpdateTitle(ctx, conversationId, title); err != nil {
		return serverutils.NewPersistenceError("failed to update title", err)
	}
	return nil
}
