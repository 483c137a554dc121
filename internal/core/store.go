package core

import (
	"context"

	"healthbot/pkg"

	"github.com/google/uuid"
)

// UserStore is the slice of the storage layer the identity resolver needs.
// The backing store must enforce uniqueness of the phone number
// transactionally; the resolver never takes an in-process lock.
type UserStore interface {
	GetUserByPhone(ctx context.Context, phone string) (*pkg.User, error)
	CreateUser(ctx context.Context, u *pkg.User) error
	TouchUser(ctx context.Context, id uuid.UUID) error
}

// MessageStore is the slice of the storage layer the intake pipeline needs.
// The backing store must enforce uniqueness of delivery_id transactionally.
type MessageStore interface {
	GetMessageByDeliveryID(ctx context.Context, deliveryID string) (*pkg.Message, error)
	CreateMessage(ctx context.Context, m *pkg.Message) error
}
