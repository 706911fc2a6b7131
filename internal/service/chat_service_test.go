package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"healthcare-assistant-be/internal/constant"
	"healthcare-assistant-be/internal/dto"
	"healthcare-assistant-be/internal/entity"
	"healthcare-assistant-be/internal/pkg/serverutils"
	"healthcare-assistant-be/internal/repository/contract"
	"healthcare-assistant-be/internal/repository/specification"
	"healthcare-assistant-be/internal/repository/unitofwork"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- In-memory fakes ---

type fakeConversationRepo struct {
	conversations map[uuid.UUID]*entity.Conversation
	createErr     error
	touchErr      error
	touched       []uuid.UUID
}

func newFakeConversationRepo() *fakeConversationRepo {
	return &fakeConversationRepo{conversations: make(map[uuid.UUID]*entity.Conversation)}
}

func (r *fakeConversationRepo) Create(ctx context.Context, c *entity.Conversation) error {
	if r.createErr != nil {
		return r.createErr
	}
	r.conversations[c.Id] = c
	return nil
}

func (r *fakeConversationRepo) UpdateTitle(ctx context.Context, id uuid.UUID, title string) error {
	if c, ok := r.conversations[id]; ok {
		c.Title = title
	}
	return nil
}

func (r *fakeConversationRepo) Touch(ctx context.Context, id uuid.UUID) error {
	if r.touchErr != nil {
		return r.touchErr
	}
	r.touched = append(r.touched, id)
	return nil
}

func (r *fakeConversationRepo) Delete(ctx context.Context, id uuid.UUID) error {
	delete(r.conversations, id)
	return nil
}

func (r *fakeConversationRepo) FindOne(ctx context.Context, specs ...specification.Specification) (*entity.Conversation, error) {
	var byID *uuid.UUID
	var byUser *uuid.UUID
	for _, spec := range specs {
		switch s := spec.(type) {
		case specification.ByID:
			id := s.ID
			byID = &id
		case specification.UserOwnedBy:
			id := s.UserID
			byUser = &id
		}
	}
	for _, c := range r.conversations {
		if byID != nil && c.Id != *byID {
			continue
		}
		if byUser != nil && c.UserId != *byUser {
			continue
		}
		return c, nil
	}
	return nil, nil
}

func (r *fakeConversationRepo) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.Conversation, error) {
	var out []*entity.Conversation
	for _, c := range r.conversations {
		out = append(out, c)
	}
	return out, nil
}

func (r *fakeConversationRepo) Count(ctx context.Context, specs ...specification.Specification) (int64, error) {
	return int64(len(r.conversations)), nil
}

type fakeMessageRepo struct {
	messages  []*entity.Message
	createErr error
	bulkErr   error
}

func (r *fakeMessageRepo) Create(ctx context.Context, m *entity.Message) error {
	if r.createErr != nil {
		return r.createErr
	}
	r.messages = append(r.messages, m)
	return nil
}

func (r *fakeMessageRepo) CreateBulk(ctx context.Context, ms []*entity.Message) error {
	if r.bulkErr != nil {
		return r.bulkErr
	}
	r.messages = append(r.messages, ms...)
	return nil
}

func (r *fakeMessageRepo) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.Message, error) {
	return r.messages, nil
}

func (r *fakeMessageRepo) Count(ctx context.Context, specs ...specification.Specification) (int64, error) {
	return int64(len(r.messages)), nil
}

type fakeUow struct {
	conversations *fakeConversationRepo
	messages      *fakeMessageRepo
	begun         bool
	committed     bool
	rolledBack    bool
}

func (u *fakeUow) Begin(ctx context.Context) error { u.begun = true; return nil }
func (u *fakeUow) Commit() error                   { u.committed = true; return nil }
func (u *fakeUow) Rollback() error {
	if !u.committed {
		u.rolledBack = true
	}
	return nil
}
func (u *fakeUow) ConversationRepository() contract.ConversationRepository { return u.conversations }
func (u *fakeUow) MessageRepository() contract.MessageRepository           { return u.messages }

type fakeFactory struct {
	uow *fakeUow
}

func (f *fakeFactory) NewUnitOfWork(ctx context.Context) unitofwork.UnitOfWork { return f.uow }

func newFakeFactory() *fakeFactory {
	return &fakeFactory{uow: &fakeUow{
		conversations: newFakeConversationRepo(),
		messages:      &fakeMessageRepo{},
	}}
}

// --- Tests ---

func TestDeriveTitle(t *testing.T) {
	assert.Equal(t, "What is a migraine?", DeriveTitle("  What is a migraine?  "))
	assert.Equal(t, "New conversation", DeriveTitle("   "))

	long := strings.Repeat("á", 80)
	title := DeriveTitle(long)
	assert.Equal(t, constant.ConversationTitleMaxRunes, len([]rune(title)))
}

func TestBulkSaveRejectsEmptyTitle(t *testing.T) {
	factory := newFakeFactory()
	svc := NewChatService(factory)

	_, err := svc.BulkSave(context.Background(), uuid.New(), &dto.SaveChatRequest{
		Title: "   ",
		Messages: []dto.ChatTurn{
			{Role: "user", Content: "hi"},
			{Role: "assistant", Content: "hello"},
		},
	})

	appErr, ok := serverutils.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, serverutils.KindValidation, appErr.Kind)
	assert.False(t, factory.uow.begun, "validation must happen before the transaction opens")
}

func TestBulkSaveRequiresBothRoles(t *testing.T) {
	factory := newFakeFactory()
	svc := NewChatService(factory)

	_, err := svc.BulkSave(context.Background(), uuid.New(), &dto.SaveChatRequest{
		Title: "One-sided",
		Messages: []dto.ChatTurn{
			{Role: "user", Content: "hi"},
			{Role: "user", Content: "anyone there?"},
		},
	})

	appErr, ok := serverutils.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, serverutils.KindValidation, appErr.Kind)
	assert.False(t, factory.uow.begun)
}

func TestBulkSaveHappyPath(t *testing.T) {
	factory := newFakeFactory()
	svc := NewChatService(factory)
	userId := uuid.New()

	res, err := svc.BulkSave(context.Background(), userId, &dto.SaveChatRequest{
		Title: "Sore throat advice",
		Messages: []dto.ChatTurn{
			{Role: "user", Content: "My throat hurts"},
			{Role: "assistant", Content: "Try warm fluids"},
			{Role: "user", Content: "Thanks"},
		},
	})

	require.NoError(t, err)
	assert.Equal(t, "Sore throat advice", res.Title)
	assert.True(t, factory.uow.committed)
	assert.False(t, factory.uow.rolledBack)

	msgs := factory.uow.messages.messages
	require.Len(t, msgs, 3)
	assert.Equal(t, constant.ChatSenderTypeUser, msgs[0].SenderType)
	assert.Equal(t, constant.ChatSenderTypeBot, msgs[1].SenderType)
	assert.Nil(t, msgs[1].SenderId)
	require.NotNil(t, msgs[0].SenderId)
	assert.Equal(t, userId, *msgs[0].SenderId)

	// Ordering is carried by created_at alone.
	assert.True(t, msgs[0].CreatedAt.Before(msgs[1].CreatedAt))
	assert.True(t, msgs[1].CreatedAt.Before(msgs[2].CreatedAt))
}

func TestBulkSaveRollsBackOnRepoFailure(t *testing.T) {
	factory := newFakeFactory()
	factory.uow.messages.bulkErr = errors.New("insert failed")
	svc := NewChatService(factory)

	_, err := svc.BulkSave(context.Background(), uuid.New(), &dto.SaveChatRequest{
		Title: "Doomed",
		Messages: []dto.ChatTurn{
			{Role: "user", Content: "hi"},
			{Role: "assistant", Content: "hello"},
		},
	})

	appErr, ok := serverutils.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, serverutils.KindPersistence, appErr.Kind)
	assert.False(t, factory.uow.committed)
	assert.True(t, factory.uow.rolledBack)
}

func TestResolveOwnedForeignConversation(t *testing.T) {
	factory := newFakeFactory()
	svc := NewChatService(factory)

	owner := uuid.New()
	conversation, err := svc.CreateConversation(context.Background(), owner, "Mine")
	require.NoError(t, err)

	got, err := svc.ResolveOwned(context.Background(), uuid.New(), conversation.Id)
	require.NoError(t, err)
	assert.Nil(t, got, "foreign conversations must look like missing ones")

	got, err = svc.ResolveOwned(context.Background(), owner, conversation.Id)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, conversation.Id, got.Id)
}

func TestAppendMessagesTouchConversation(t *testing.T) {
	factory := newFakeFactory()
	svc := NewChatService(factory)
	userId := uuid.New()
	conversationId := uuid.New()

	require.NoError(t, svc.AppendUserMessage(context.Background(), conversationId, userId, "hi", nil))
	require.NoError(t, svc.AppendAssistantMessage(context.Background(), conversationId, "hello"))

	assert.Equal(t, []uuid.UUID{conversationId, conversationId}, factory.uow.conversations.touched)
}

func TestAppendMessagesSurfaceTouchFailure(t *testing.T) {
	factory := newFakeFactory()
	factory.uow.conversations.touchErr = errors.New("update failed")
	svc := NewChatService(factory)
	conversationId := uuid.New()

	err := svc.AppendUserMessage(context.Background(), conversationId, uuid.New(), "hi", nil)
	appErr, ok := serverutils.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, serverutils.KindPersistence, appErr.Kind)

	err = svc.AppendAssistantMessage(context.Background(), conversationId, "hello")
	appErr, ok = serverutils.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, serverutils.KindPersistence, appErr.Kind)
}

func TestGetConversationMapsSenderTypesToRoles(t *testing.T) {
	factory := newFakeFactory()
	svc := NewChatService(factory)
	userId := uuid.New()

	conversation, err := svc.CreateConversation(context.Background(), userId, "Roles")
	require.NoError(t, err)
	require.NoError(t, svc.AppendUserMessage(context.Background(), conversation.Id, userId, "question", nil))
	require.NoError(t, svc.AppendAssistantMessage(context.Background(), conversation.Id, "answer"))

	detail, err := svc.GetConversation(context.Background(), userId, conversation.Id)
	require.NoError(t, err)
	require.Len(t, detail.Messages, 2)
	assert.Equal(t, constant.ChatRoleUser, detail.Messages[0].Role)
	assert.Equal(t, constant.ChatRoleAssistant, detail.Messages[1].Role)
}

func TestGetConversationNotFound(t *testing.T) {
	factory := newFakeFactory()
	svc := NewChatService(factory)

	_, err := svc.GetConversation(context.Background(), uuid.New(), uuid.New())

	appErr, ok := serverutils.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, serverutils.KindNotFound, appErr.Kind)
}
