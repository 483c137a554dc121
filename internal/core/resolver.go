package core

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"healthbot/pkg"
	apperrors "healthbot/pkg/errors"
)

// IdentityResolver maps an external contact address (phone number) to a
// durable user identity, creating one on first contact.
type IdentityResolver struct {
	Users           UserStore
	DefaultLanguage string
	Logger          *slog.Logger
}

// NewIdentityResolver constructs a resolver. defaultLanguage is assigned
// to users created on first contact.
func NewIdentityResolver(users UserStore, defaultLanguage string, logger *slog.Logger) *IdentityResolver {
	if defaultLanguage == "" {
		defaultLanguage = "en"
	}
	return &IdentityResolver{Users: users, DefaultLanguage: defaultLanguage, Logger: logger}
}

// Resolve looks up the user for a contact address, creating one with
// default preferences on first contact. When two resolutions race on first
// contact, the store's uniqueness constraint lets exactly one insert win;
// the loser re-reads and returns the winner's row. Every resolution bumps
// the user's last-interaction timestamp.
func (r *IdentityResolver) Resolve(ctx context.Context, contact string) (*pkg.User, error) {
	contact = strings.TrimSpace(contact)
	if contact == "" {
		return nil, apperrors.ErrEmptyContact
	}

	u, err := r.Users.GetUserByPhone(ctx, contact)
	if err == nil {
		if err := r.Users.TouchUser(ctx, u.ID); err != nil {
			return nil, err
		}
		return u, nil
	}
	if !errors.Is(err, apperrors.ErrUserNotFound) {
		return nil, err
	}

	nu := &pkg.User{
		PhoneNumber:          contact,
		PreferredLanguage:    r.DefaultLanguage,
		NotificationsEnabled: true,
		Active:               true,
	}
	err = r.Users.CreateUser(ctx, nu)
	if err == nil {
		r.Logger.Info("registered new contact", "user_id", nu.ID, "phone", contact)
		return nu, nil
	}
	if !apperrors.IsCode(err, apperrors.CodeAlreadyExists) {
		return nil, err
	}

	// Lost the creation race: another resolution inserted this contact
	// first. The winner's row is authoritative.
	winner, err := r.Users.GetUserByPhone(ctx, contact)
	if err != nil {
		return nil, err
	}
	if err := r.Users.TouchUser(ctx, winner.ID); err != nil {
		return nil, err
	}
	return winner, nil
}
