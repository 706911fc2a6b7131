package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"healthcare-assistant-be/internal/constant"
	"healthcare-assistant-be/internal/dto"
	"healthcare-assistant-be/internal/pkg/logger"
	"healthcare-assistant-be/internal/pkg/serverutils"
	"healthcare-assistant-be/pkg/classifier"
	"healthcare-assistant-be/pkg/storage"

	"github.com/google/uuid"
)

// allowedImageTypes maps accepted MIME types to the extension used for the
// temp file and the stored object.
var allowedImageTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/gif":  ".gif",
}

type IDiagnosisService interface {
	Diagnose(ctx context.Context, userId *uuid.UUID, input *dto.ImageDiagnosisInput) (*dto.ImageDiagnosisResponse, error)
}

type diagnosisService struct {
	chatService IChatService
	clf         classifier.IClassifier
	store       storage.ObjectStorage
	modes       map[string]struct{}
	stagingDir  string // "" means the system temp dir
	log         logger.ILogger
}

func NewDiagnosisService(
	chatService IChatService,
	clf classifier.IClassifier,
	store storage.ObjectStorage,
	log logger.ILogger,
) IDiagnosisService {
	modes := make(map[string]struct{})
	for _, mode := range clf.Modes() {
		modes[mode] = struct{}{}
	}
	return &diagnosisService{
		chatService: chatService,
		clf:         clf,
		store:       store,
		modes:       modes,
		log:         log,
	}
}

func (ds *diagnosisService) Diagnose(ctx context.Context, userId *uuid.UUID, input *dto.ImageDiagnosisInput) (*dto.ImageDiagnosisResponse, error) {
	mode := input.ProcessMode
	if mode == "" {
		mode = constant.ImageProcessModeSkin
	}
	if _, ok := ds.modes[mode]; !ok {
		return nil, serverutils.NewValidationError("unknown processMode: " + mode)
	}

	ext, ok := allowedImageTypes[input.ContentType]
	if !ok {
		return nil, serverutils.NewValidationError("unsupported image type: " + input.ContentType)
	}

	// The classifier reads from disk; the temp file is removed on every
	// exit path, success or failure.
	tmpFile, err := os.CreateTemp(ds.stagingDir, "diagnosis-*"+ext)
	if err != nil {
		return nil, serverutils.NewExternalProcessError("failed to stage upload", err)
	}
	tmpPath := tmpFile.Name()
	defer os.Remove(tmpPath)

	if _, err := tmpFile.Write(input.Data); err != nil {
		tmpFile.Close()
		return nil, serverutils.NewExternalProcessError("failed to stage upload", err)
	}
	if err := tmpFile.Close(); err != nil {
		return nil, serverutils.NewExternalProcessError("failed to stage upload", err)
	}

	result, err := ds.clf.Classify(ctx, mode, tmpPath)
	if err != nil {
		var procErr *classifier.ProcessError
		if errors.As(err, &procErr) {
			ds.log.Error("diagnosis", "classifier failed", map[string]interface{}{
				"mode":   mode,
				"detail": procErr.Detail,
				"stderr": procErr.Stderr,
			})
			return nil, serverutils.NewExternalProcessError("image classification failed: "+procErr.Detail, err)
		}
		return nil, serverutils.NewExternalProcessError("image classification failed", err)
	}

	// Object storage is a side channel: a failed upload degrades the URL
	// to null, never the diagnosis.
	imageUrl := ds.uploadImage(ctx, input, ext)

	summary := composeSummary(result)
	conversationId := ds.persistDiagnosisTurn(ctx, userId, input.ConversationId, imageUrl, summary)

	return &dto.ImageDiagnosisResponse{
		Success:        true,
		Message:        "Image classified successfully",
		ImageUrl:       imageUrl,
		ConversationId: conversationId,
		Results:        toDiagnosisResults(result),
	}, nil
}

func (ds *diagnosisService) uploadImage(ctx context.Context, input *dto.ImageDiagnosisInput, ext string) *string {
	if ds.store == nil {
		return nil
	}
	fileName := uuid.New().String() + ext
	url, err := ds.store.Upload(ctx, input.Data, fileName, "chatbot")
	if err != nil {
		ds.log.Warn("diagnosis", "image upload failed, continuing without URL", map[string]interface{}{
			"file_name": input.FileName,
			"error":     err.Error(),
		})
		return nil
	}
	return &url
}

// persistDiagnosisTurn writes the two-message turn for authenticated
// callers. Unlike the stream path, an invalid conversation id falls back to
// a fresh conversation: the diagnosis must land in history.
func (ds *diagnosisService) persistDiagnosisTurn(ctx context.Context, userId, conversationId *uuid.UUID, imageUrl *string, summary string) *uuid.UUID {
	if userId == nil {
		return nil
	}

	var target *uuid.UUID
	if conversationId != nil {
		conversation, err := ds.chatService.ResolveOwned(ctx, *userId, *conversationId)
		if err == nil && conversation != nil {
			target = &conversation.Id
		}
	}
	if target == nil {
		conversation, err := ds.chatService.CreateConversation(ctx, *userId, DeriveTitle("Image diagnosis"))
		if err != nil {
			ds.log.Error("diagnosis", "failed to create conversation", map[string]interface{}{
				"error": err.Error(),
			})
			return nil
		}
		target = &conversation.Id
	}

	if err := ds.chatService.AppendUserMessage(ctx, *target, *userId, constant.DiagnosisUserMessage, imageUrl); err != nil {
		ds.log.Error("diagnosis", "failed to persist user message", map[string]interface{}{
			"conversation_id": target.String(),
			"error":           err.Error(),
		})
	}
	if err := ds.chatService.AppendAssistantMessage(ctx, *target, summary); err != nil {
		ds.log.Error("diagnosis", "failed to persist assistant message", map[string]interface{}{
			"conversation_id": target.String(),
			"error":           err.Error(),
		})
	}
	return target
}

// composeSummary renders the top prediction plus up to three alternatives.
func composeSummary(result *classifier.Result) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "The image most likely shows %s (%s) with %.1f%% confidence.",
		result.TopDisease, result.TopDiseaseVietnamese, result.TopProbability)

	alternatives := make([]classifier.Prediction, 0, 3)
	for _, p := range result.AllPredictions {
		if p.Disease == result.TopDisease {
			continue
		}
		alternatives = append(alternatives, p)
		if len(alternatives) == 3 {
			break
		}
	}
	if len(alternatives) > 0 {
		sb.WriteString(" Other possibilities: ")
		for i, p := range alternatives {
			if i > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "%s (%.1f%%)", p.Disease, p.Probability)
		}
		sb.WriteString(".")
	}
	sb.WriteString(" This is not a medical diagnosis; please consult a dermatologist.")
	return sb.String()
}

func toDiagnosisResults(result *classifier.Result) *dto.DiagnosisResults {
	predictions := make([]dto.DiagnosisPrediction, len(result.AllPredictions))
	for i, p := range result.AllPredictions {
		predictions[i] = dto.DiagnosisPrediction{
			Disease:        p.Disease,
			VietnameseName: p.VietnameseName,
			Probability:    p.Probability,
		}
	}
	return &dto.DiagnosisResults{
		TopDisease:           result.TopDisease,
		TopDiseaseVietnamese: result.TopDiseaseVietnamese,
		TopProbability:       result.TopProbability,
		AllPredictions:       predictions,
	}
}
