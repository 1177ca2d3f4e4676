// Package identity consumes the platform's identity collaborator: verified
// tokens become an Identity, and account records supply status and the
// display profile.
package identity

import (
	"context"
	"regexp"

	"github.com/pkg/errors"

	"github.com/pelusa-v/pelusa-chat/internal/apperr"
	"github.com/pelusa-v/pelusa-chat/internal/store"
)

type Role string

const (
	RoleCustomer Role = "customer"
	RoleProvider Role = "provider" // answers conversations, never starts them
	RoleAdmin    Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RoleCustomer, RoleProvider, RoleAdmin:
		return true
	}
	return false
}

// Identity is resolved once at authentication time.
type Identity struct {
	UserID                   string
	Role                     Role
	CanOriginateConversation bool
}

func NewIdentity(userID string, role Role) Identity {
	return Identity{
		UserID:                   userID,
		Role:                     role,
		CanOriginateConversation: role != RoleProvider,
	}
}

var userIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

func ValidUserID(id string) bool {
	return userIDPattern.MatchString(id)
}

//go:generate mockgen -source=identity.go -destination=mocks/mock_identity.go -package=mocks

type Verifier interface {
	Verify(token string) (Identity, error)
}

type Profile struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url"`
}

type Accounts interface {
	Status(ctx context.Context, userID string) (store.AccountStatus, error)
	Profile(ctx context.Context, userID string) (Profile, error)
}

// StoreAccounts reads account records from the persistence layer.
type StoreAccounts struct {
	store store.AccountStore
}

func NewStoreAccounts(s store.AccountStore) *StoreAccounts {
	return &StoreAccounts{store: s}
}

func (a *StoreAccounts) Status(ctx context.Context, userID string) (store.AccountStatus, error) {
	acc, err := a.store.GetAccount(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", apperr.ErrUnknownAccount
		}
		return "", apperr.ErrStorage(err)
	}
	return acc.Status, nil
}

// Profile falls back to the bare user id when no account record exists.
func (a *StoreAccounts) Profile(ctx context.Context, userID string) (Profile, error) {
	acc, err := a.store.GetAccount(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Profile{UserID: userID, DisplayName: userID}, nil
		}
		return Profile{}, apperr.ErrStorage(err)
	}
	name := acc.DisplayName
	if name == "" {
		name = userID
	}
	return Profile{UserID: userID, DisplayName: name, AvatarURL: acc.AvatarURL}, nil
}
