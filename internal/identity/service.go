package identity

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jaevor/go-nanoid"
	"golang.org/x/crypto/bcrypt"
)

var (
	newAliasDigits = mustGenerator("0123456789", 6)
	// nanoid sizes a zero-length entropy buffer for lengths under 5 and
	// never terminates, so generate five letters and keep two.
	aliasLetters = mustGenerator("ABCDEFGHIJKLMNOPQRSTUVWXYZ", 5)
)

func newAliasLetters() string {
	return aliasLetters()[:2]
}

func mustGenerator(alphabet string, size int) func() string {
	gen, err := nanoid.CustomASCII(alphabet, size)
	if err != nil {
		panic(err)
	}
	return gen
}

// Service manages identity lifecycle.
type Service struct {
	repo Repository
}

// NewService creates a new identity service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// RegisterInput captures data required to register an account.
type RegisterInput struct {
	Phone    string
	FullName string
	PIN      string
	Role     string
}

// Register creates a new account, hashes the PIN and allocates a readable
// alias of the form digits followed by two uppercase letters.
func (s *Service) Register(ctx context.Context, input RegisterInput) (User, error) {
	if len(input.PIN) < 4 {
		return User{}, errors.New("PIN must be at least 4 digits")
	}
	if input.Phone == "" {
		return User{}, errors.New("phone is required")
	}
	role := input.Role
	if role == "" {
		role = RoleCustomer
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.PIN), bcrypt.DefaultCost)
	if err != nil {
		return User{}, err
	}

	user := User{
		ID:        uuid.NewString(),
		Phone:     input.Phone,
		FullName:  input.FullName,
		Role:      role,
		PINHash:   hash,
		CreatedAt: time.Now().UTC(),
	}

	// Retry only when the freshly drawn alias collides; any other
	// create failure (duplicate phone, storage error) is final.
	for attempt := 0; attempt < 5; attempt++ {
		user.ReadableID = newAliasDigits() + newAliasLetters()
		err = s.repo.Create(ctx, user)
		if err == nil {
			return user, nil
		}
		if !errors.Is(err, ErrAliasTaken) {
			return User{}, err
		}
	}
	return User{}, err
}

// Authenticate verifies phone and PIN.
func (s *Service) Authenticate(ctx context.Context, creds Credentials) (User, error) {
	user, err := s.repo.FindByPhone(ctx, creds.Phone)
	if err != nil {
		return User{}, errors.New("invalid credentials")
	}
	if err := bcrypt.CompareHashAndPassword(user.PINHash, []byte(creds.PIN)); err != nil {
		return User{}, errors.New("invalid credentials")
	}
	return user, nil
}
