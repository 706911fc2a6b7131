package controller

import (
	"bufio"
	"io"
	"strings"
	"time"

	"healthcare-assistant-be/internal/constant"
	"healthcare-assistant-be/internal/dto"
	"healthcare-assistant-be/internal/pkg/logger"
	"healthcare-assistant-be/internal/pkg/serverutils"
	"healthcare-assistant-be/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/valyala/fasthttp"
)

type IChatController interface {
	RegisterRoutes(r fiber.Router)
	Stream(ctx *fiber.Ctx) error
	Save(ctx *fiber.Ctx) error
	Image(ctx *fiber.Ctx) error
	History(ctx *fiber.Ctx) error
	Show(ctx *fiber.Ctx) error
	Delete(ctx *fiber.Ctx) error
	UpdateTitle(ctx *fiber.Ctx) error
	Health(ctx *fiber.Ctx) error
}

type chatController struct {
	chatService      service.IChatService
	streamService    service.IStreamService
	diagnosisService service.IDiagnosisService
	log              logger.ILogger
}

func NewChatController(
	chatService service.IChatService,
	streamService service.IStreamService,
	diagnosisService service.IDiagnosisService,
	log logger.ILogger,
) IChatController {
	return &chatController{
		chatService:      chatService,
		streamService:    streamService,
		diagnosisService: diagnosisService,
		log:              log,
	}
}

func (c *chatController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/chat")

	h.Get("health", c.Health)

	// Streaming and image diagnosis work for guests too; identity only
	// controls whether the exchange is persisted.
	h.Post("stream", serverutils.OptionalJwtMiddleware, c.Stream)
	h.Post("image", serverutils.OptionalJwtMiddleware, c.Image)

	h.Post("save", serverutils.JwtMiddleware, c.Save)
	h.Get("history", serverutils.JwtMiddleware, c.History)
	h.Get(":id", serverutils.JwtMiddleware, c.Show)
	h.Delete(":id", serverutils.JwtMiddleware, c.Delete)
	h.Put(":id/title", serverutils.JwtMiddleware, c.UpdateTitle)
}

func (c *chatController) Stream(ctx *fiber.Ctx) error {
	var req dto.StreamChatRequest
	if err := ctx.BodyParser(&req); err != nil {
		return serverutils.NewValidationError("invalid request body")
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	userId := serverutils.UserIdFromCtx(ctx)

	// The first chunk is awaited before any response byte is written, so
	// upstream failures still surface as a normal JSON error.
	session, err := c.streamService.PrepareStream(ctx.Context(), userId, &req)
	if err != nil {
		return err
	}

	ctx.Set(fiber.HeaderContentType, "text/plain; charset=utf-8")
	ctx.Set(fiber.HeaderCacheControl, "no-cache")
	if session.ConversationId != nil {
		ctx.Set("X-Conversation-Id", session.ConversationId.String())
	}

	if session.Exhausted {
		session.Cancel()
		return ctx.SendString("")
	}

	conversationId := session.ConversationId
	ctx.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		defer session.Cancel()

		var transcript strings.Builder
		relay := func(chunk string) bool {
			if _, err := w.WriteString(chunk); err != nil {
				return false
			}
			if err := w.Flush(); err != nil {
				return false
			}
			transcript.WriteString(chunk)
			return true
		}

		// A failed flush means the client is gone; the partial answer
		// is dropped rather than saved mid-sentence.
		if !relay(session.First) {
			return
		}
		for chunk := range session.Chunks {
			if !relay(chunk) {
				return
			}
		}

		if err := <-session.Errs; err != nil {
			c.log.Warn("chat", "inference stream broke mid-answer", map[string]interface{}{
				"error": err.Error(),
			})
			if relay(constant.StreamApology) {
				c.streamService.FinalizeStream(conversationId, transcript.String())
			}
			return
		}

		c.streamService.FinalizeStream(conversationId, transcript.String())
	}))

	return nil
}

func (c *chatController) Save(ctx *fiber.Ctx) error {
	userId := serverutils.UserIdFromCtx(ctx)
	if userId == nil {
		return serverutils.NewUnauthorizedError("invalid identity claim")
	}

	var req dto.SaveChatRequest
	if err := ctx.BodyParser(&req); err != nil {
		return serverutils.NewValidationError("invalid request body")
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.chatService.BulkSave(ctx.Context(), *userId, &req)
	if err != nil {
		return err
	}

	return ctx.Status(fiber.StatusCreated).JSON(res)
}

func (c *chatController) Image(ctx *fiber.Ctx) error {
	fileHeader, err := ctx.FormFile("image")
	if err != nil {
		return serverutils.NewValidationError("image file is required")
	}

	file, err := fileHeader.Open()
	if err != nil {
		return serverutils.NewValidationError("failed to read image file")
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return serverutils.NewValidationError("failed to read image file")
	}

	input := &dto.ImageDiagnosisInput{
		FileName:    fileHeader.Filename,
		ContentType: fileHeader.Header.Get("Content-Type"),
		Data:        data,
		ProcessMode: ctx.FormValue("processMode"),
	}
	if raw := ctx.FormValue("conversationId"); raw != "" {
		if id, parseErr := uuid.Parse(raw); parseErr == nil {
			input.ConversationId = &id
		}
	}

	userId := serverutils.UserIdFromCtx(ctx)

	res, err := c.diagnosisService.Diagnose(ctx.Context(), userId, input)
	if err != nil {
		return err
	}

	return ctx.JSON(res)
}

func (c *chatController) History(ctx *fiber.Ctx) error {
	userId := serverutils.UserIdFromCtx(ctx)
	if userId == nil {
		return serverutils.NewUnauthorizedError("invalid identity claim")
	}

	res, err := c.chatService.GetHistory(ctx.Context(), *userId)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success get chat history", res))
}

func (c *chatController) Show(ctx *fiber.Ctx) error {
	userId := serverutils.UserIdFromCtx(ctx)
	if userId == nil {
		return serverutils.NewUnauthorizedError("invalid identity claim")
	}

	id, err := uuid.Parse(ctx.Params("id"))
	if err != nil {
		return serverutils.NewNotFoundError("conversation not found")
	}

	res, err := c.chatService.GetConversation(ctx.Context(), *userId, id)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success get conversation", res))
}

func (c *chatController) Delete(ctx *fiber.Ctx) error {
	userId := serverutils.UserIdFromCtx(ctx)
	if userId == nil {
		return serverutils.NewUnauthorizedError("invalid identity claim")
	}

	id, err := uuid.Parse(ctx.Params("id"))
	if err != nil {
		return serverutils.NewNotFoundError("conversation not found")
	}

	if err := c.chatService.DeleteConversation(ctx.Context(), *userId, id); err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse[any]("Success delete conversation", nil))
}

func (c *chatController) UpdateTitle(ctx *fiber.Ctx) error {
	userId := serverutils.UserIdFromCtx(ctx)
	if userId == nil {
		return serverutils.NewUnauthorizedError("invalid identity claim")
	}

	id, err := uuid.Parse(ctx.Params("id"))
	if err != nil {
		return serverutils.NewNotFoundError("conversation not found")
	}

	var req dto.UpdateTitleRequest
	if err := ctx.BodyParser(&req); err != nil {
		return serverutils.NewValidationError("invalid request body")
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	if err := c.chatService.UpdateTitle(ctx.Context(), *userId, id, req.Title); err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse[any]("Success update conversation title", nil))
}

// Health reports whether the inference backend can serve a completion.
// A dead model server surfaces as 503 rather than a static 200.
func (c *chatController) Health(ctx *fiber.Ctx) error {
	if err := c.streamService.HealthCheck(ctx.Context()); err != nil {
		c.log.Warn("chat", "health check failed", map[string]interface{}{
			"error": err.Error(),
		})
		return ctx.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"success":   false,
			"status":    "unhealthy",
			"error":     err.Error(),
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	}
	return ctx.JSON(fiber.Map{
		"success":   true,
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
