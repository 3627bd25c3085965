package identity

import (
	"context"
	"errors"
	"regexp"

	"github.com/google/uuid"
)

var (
	// ErrInvalidIdentifier indicates the identifier matches neither the
	// readable-alias shape nor the canonical id format.
	ErrInvalidIdentifier = errors.New("invalid identifier format")

	// ErrRecipientNotFound indicates a well-formed identifier with no account.
	ErrRecipientNotFound = errors.New("recipient not found")
)

// Readable aliases are one or more digits followed by exactly two uppercase letters.
var readableIDPattern = regexp.MustCompile(`^[0-9]+[A-Z]{2}$`)

// Resolver maps human-facing account identifiers to registered users.
type Resolver struct {
	repo Repository
}

// NewResolver builds an identifier resolver over the user repository.
func NewResolver(repo Repository) *Resolver {
	return &Resolver{repo: repo}
}

// Resolve returns the user behind a readable alias or canonical id.
func (r *Resolver) Resolve(ctx context.Context, identifier string) (User, error) {
	switch {
	case readableIDPattern.MatchString(identifier):
		user, err := r.repo.FindByReadableID(ctx, identifier)
		if err != nil {
			if errors.Is(err, ErrUserNotFound) {
				return User{}, ErrRecipientNotFound
			}
			return User{}, err
		}
		return user, nil
	default:
		if _, err := uuid.Parse(identifier); err != nil {
			return User{}, ErrInvalidIdentifier
		}
		user, err := r.repo.FindByID(ctx, identifier)
		if err != nil {
			if errors.Is(err, ErrUserNotFound) {
				return User{}, ErrRecipientNotFound
			}
			return User{}, err
		}
		return user, nil
	}
}
