package contract

import (
	"context"

	"healthcare-assistant-be/internal/entity"
	"healthcare-assistant-be/internal/repository/specification"
)

type MessageRepository interface {
	Create(ctx context.Context, message *entity.Message) error
	CreateBulk(ctx context.Context, messages []*entity.Message) error
	FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.Message, error)
	Count(ctx context.Context, specs ...specification.Specification) (int64, error)
}
