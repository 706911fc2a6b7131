package service

import (
	"context"
	"strings"
	"time"

	"healthcare-assistant-be/internal/constant"
	"healthcare-assistant-be/internal/dto"
	"healthcare-assistant-be/internal/pkg/logger"
	"healthcare-assistant-be/internal/pkg/serverutils"
	"healthcare-assistant-be/pkg/history"
	"healthcare-assistant-be/pkg/llm"

	"github.com/google/uuid"
)

// StreamSession is an opened inference stream, ready to relay. The first
// chunk has already been received, so the caller knows the upstream is
// healthy before committing to a chunked response.
type StreamSession struct {
	ConversationId *uuid.UUID // nil for transient (guest) exchanges
	First          string
	Exhausted      bool // stream ended before producing any chunk
	Chunks         <-chan string
	Errs           <-chan error
	Cancel         context.CancelFunc
}

type IStreamService interface {
	PrepareStream(ctx context.Context, userId *uuid.UUID, request *dto.StreamChatRequest) (*StreamSession, error)
	// FinalizeStream persists the accumulated assistant text, best-effort.
	FinalizeStream(conversationId *uuid.UUID, text string)
	// HealthCheck asks the inference backend for a minimal completion.
	HealthCheck(ctx context.Context) error
}

type streamService struct {
	chatService IChatService
	llmProvider llm.LLMProvider
	log         logger.ILogger
}

func NewStreamService(chatService IChatService, llmProvider llm.LLMProvider, log logger.ILogger) IStreamService {
	return &streamService{
		chatService: chatService,
		llmProvider: llmProvider,
		log:         log,
	}
}

// resolveConversation applies the resolution rule: guests stay transient; an
// authenticated caller without an id gets a fresh conversation; a supplied
// id is used only when it exists and is owned; otherwise the exchange
// degrades to transient instead of failing.
func (ss *streamService) resolveConversation(ctx context.Context, userId *uuid.UUID, request *dto.StreamChatRequest) *uuid.UUID {
	if userId == nil {
		return nil
	}

	if request.ConversationId != nil {
		conversation, err := ss.chatService.ResolveOwned(ctx, *userId, *request.ConversationId)
		if err != nil {
			ss.log.Warn("stream", "conversation lookup failed, continuing transient", map[string]interface{}{
				"error": err.Error(),
			})
			return nil
		}
		if conversation == nil {
			return nil
		}
		return &conversation.Id
	}

	conversation, err := ss.chatService.CreateConversation(ctx, *userId, DeriveTitle(request.Message))
	if err != nil {
		ss.log.Warn("stream", "conversation create failed, continuing transient", map[string]interface{}{
			"error": err.Error(),
		})
		return nil
	}
	return &conversation.Id
}

func (ss *streamService) PrepareStream(ctx context.Context, userId *uuid.UUID, request *dto.StreamChatRequest) (*StreamSession, error) {
	message := strings.TrimSpace(request.Message)
	if message == "" {
		return nil, serverutils.NewValidationError("message is required")
	}

	conversationId := ss.resolveConversation(ctx, userId, request)

	// The user message lands in history before the model is even invoked:
	// "visible in history" is decoupled from "stream succeeds".
	if conversationId != nil {
		if err := ss.chatService.AppendUserMessage(ctx, *conversationId, *userId, message, nil); err != nil {
			ss.log.Error("stream", "failed to persist user message", map[string]interface{}{
				"conversation_id": conversationId.String(),
				"error":           err.Error(),
			})
		}
	}

	turns := make([]history.Turn, len(request.History))
	for i, t := range request.History {
		turns[i] = history.Turn{Role: t.Role, Content: t.Content}
	}
	prompt := history.Format(constant.SystemPrompt, turns, message)

	// Detached from the request context: the relay keeps consuming after
	// the handler returns, and cancels explicitly on client disconnect.
	llmCtx, cancel := context.WithCancel(context.Background())
	chunks, errs := ss.llmProvider.ChatStream(llmCtx, prompt)

	// Await the first chunk before any response byte is committed, so an
	// upstream failure can still produce a clean JSON error.
	first, ok := <-chunks
	if !ok {
		if err := <-errs; err != nil {
			cancel()
			return nil, serverutils.NewUpstreamStreamError("inference backend failed", err)
		}
		// Stream ended without content; relay an empty completion.
		return &StreamSession{
			ConversationId: conversationId,
			Exhausted:      true,
			Chunks:         chunks,
			Errs:           errs,
			Cancel:         cancel,
		}, nil
	}

	return &StreamSession{
		ConversationId: conversationId,
		First:          first,
		Chunks:         chunks,
		Errs:           errs,
		Cancel:         cancel,
	}, nil
}

// HealthCheck asks the backend for a tiny completion under a short timeout,
// so a hung model server reports unhealthy instead of blocking the caller.
func (ss *streamService) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if _, err := ss.llmProvider.Generate(ctx, "Hello", llm.WithMaxTokens(8)); err != nil {
		return serverutils.NewUpstreamStreamError("inference backend unreachable", err)
	}
	return nil
}

func (ss *streamService) FinalizeStream(conversationId *uuid.UUID, text string) {
	if conversationId == nil || text == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := ss.chatService.AppendAssistantMessage(ctx, *conversationId, text); err != nil {
		// Best-effort: the client already has the full stream.
		ss.log.Error("stream", "failed to persist assistant message", map[string]interface{}{
			"conversation_id": conversationId.String(),
			"error":           err.Error(),
		})
	}
}
