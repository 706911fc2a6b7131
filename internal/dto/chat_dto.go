package dto

import (
	"time"

	"github.com/google/uuid"
)

// ChatTurn is one prior turn supplied by the client. Role values are
// forwarded to the inference backend as-is.
type ChatTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type StreamChatRequest struct {
	Message        string     `json:"message" validate:"required"`
	History        []ChatTurn `json:"history,omitempty"`
	ConversationId *uuid.UUID `json:"conversationId,omitempty"`
}

type SaveChatRequest struct {
	// Role composition is checked in the service so the caller gets the
	// specific message, not a generic tag failure.
	Messages []ChatTurn `json:"messages" validate:"required"`
	Title    string     `json:"title" validate:"required"`
}

type SaveChatResponse struct {
	ConversationId uuid.UUID `json:"conversationId"`
	Title          string    `json:"title"`
}

type ConversationSummaryResponse struct {
	ConversationId uuid.UUID  `json:"conversationId"`
	Title          string     `json:"title"`
	IsActive       bool       `json:"isActive"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      *time.Time `json:"updatedAt"`
}

type FormattedMessage struct {
	Role      string    `json:"role"` // user | assistant
	Content   string    `json:"content"`
	ImageUrl  *string   `json:"imageUrl,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type ConversationDetailResponse struct {
	ConversationId uuid.UUID          `json:"conversationId"`
	Title          string             `json:"title"`
	Messages       []FormattedMessage `json:"messages"`
	CreatedAt      time.Time          `json:"createdAt"`
	UpdatedAt      *time.Time         `json:"updatedAt"`
}

type UpdateTitleRequest struct {
	Title string `json:"title" validate:"required"`
}

// ImageDiagnosisInput carries the decoded multipart upload into the service.
type ImageDiagnosisInput struct {
	FileName       string
	ContentType    string
	Data           []byte
	ProcessMode    string
	ConversationId *uuid.UUID
}

type DiagnosisPrediction struct {
	Disease        string  `json:"disease"`
	VietnameseName string  `json:"vietnameseName"`
	Probability    float64 `json:"probability"`
}

type DiagnosisResults struct {
	TopDisease           string                `json:"topDisease"`
	TopDiseaseVietnamese string                `json:"topDiseaseVietnamese"`
	TopProbability       float64               `json:"topProbability"`
	AllPredictions       []DiagnosisPrediction `json:"allPredictions"`
}

type ImageDiagnosisResponse struct {
	Success        bool              `json:"success"`
	Message        string            `json:"message"`
	ImageUrl       *string           `json:"imageUrl"`
	ConversationId *uuid.UUID        `json:"conversationId"`
	Results        *DiagnosisResults `json:"results"`
}
