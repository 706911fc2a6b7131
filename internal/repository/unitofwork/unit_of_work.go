package unitofwork

import (
	"context"

	"healthcare-assistant-be/internal/repository/contract"
)

// UnitOfWork is a scoped transaction handle. Begin/Commit/Rollback are
// explicit; callers pair Begin with `defer uow.Rollback()` so the
// transaction is released on every exit path. Outside Begin/Commit the
// repositories run as auto-committed single statements.
type UnitOfWork interface {
	Begin(ctx context.Context) error
	Commit() error
	Rollback() error

	ConversationRepository() contract.ConversationRepository
	MessageRepository() contract.MessageRepository
}
