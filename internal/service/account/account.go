package account

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/crypto/bcrypt"

	"sitescan/internal/models"
	"sitescan/internal/storage"
)

// Client-facing messages.
const (
	MsgEmailRequired      = "Email is required"
	MsgEmailInvalid       = "Please enter a valid email address"
	MsgPasswordRequired   = "Password is required"
	MsgPasswordPolicy     = "Password must contain minimum 8 characters, one letter, and one number"
	MsgPasswordLength     = "Password should be minimum 8 characters long"
	MsgPasswordTooLong    = "Password must be at most 72 characters long"
	MsgPasswordLetter     = "Password must contain at least one letter"
	MsgPasswordNumber     = "Password must contain at least one number"
	MsgUserExists         = "User already exists"
	MsgInvalidCredentials = "Invalid email or password"
)

var (
	emailPattern  = regexp.MustCompile(`^\w+([\.-]?\w+)*@\w+([\.-]?\w+)*(\.\w{2,})+$`)
	letterPattern = regexp.MustCompile(`[A-Za-z]`)
	digitPattern  = regexp.MustCompile(`\d`)
)

// maxPasswordBytes is the longest input bcrypt will hash.
const maxPasswordBytes = 72

// ValidationError is a rejected request. Message is shown to the client.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return "account: " + e.Message }

func invalid(msg string) error { return &ValidationError{Message: msg} }

// IsValidation reports whether err is a ValidationError and returns its message.
func IsValidation(err error) (string, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Message, true
	}
	return "", false
}

// Users is the persistence the service needs.
type Users interface {
	Create(ctx context.Context, email, passwordHash string) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id int64) (*models.User, error)
}

// Service handles account signup and credential checks.
type Service struct {
	users Users
	cost  int
}

// NewService builds an account service hashing with the given bcrypt cost.
func NewService(users Users, cost int) *Service {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &Service{users: users, cost: cost}
}

// NormalizeEmail lower-cases and trims an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates a user with the supplied credentials.
func (s *Service) Register(ctx context.Context, email, password string) (*models.User, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return nil, invalid(MsgEmailRequired)
	}
	if !emailPattern.MatchString(email) {
		return nil, invalid(MsgEmailInvalid)
	}
	if err := checkPassword(password); err != nil {
		return nil, err
	}

	if _, err := s.users.FindByEmail(ctx, email); err == nil {
		return nil, invalid(MsgUserExists)
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, eris.Wrap(err, "account: lookup user")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return nil, eris.Wrap(err, "account: hash password")
	}
	user, err := s.users.Create(ctx, email, string(hash))
	if err != nil {
		if errors.Is(err, storage.ErrDuplicateEmail) {
			return nil, invalid(MsgUserExists)
		}
		return nil, eris.Wrap(err, "account: create user")
	}
	return user, nil
}

func checkPassword(password string) error {
	switch {
	case password == "":
		return invalid(MsgPasswordPolicy)
	case len(password) < 8:
		return invalid(MsgPasswordLength)
	case len(password) > maxPasswordBytes:
		return invalid(MsgPasswordTooLong)
	case !letterPattern.MatchString(password):
		return invalid(MsgPasswordLetter)
	case !digitPattern.MatchString(password):
		return invalid(MsgPasswordNumber)
	}
	return nil
}

// Login validates credentials and returns the user profile.
func (s *Service) Login(ctx context.Context, email, password string) (*models.User, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return nil, invalid(MsgEmailRequired)
	}
	if !emailPattern.MatchString(email) {
		return nil, invalid(MsgEmailInvalid)
	}
	if password == "" {
		return nil, invalid(MsgPasswordRequired)
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, invalid(MsgInvalidCredentials)
		}
		return nil, eris.Wrap(err, "account: lookup user")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, invalid(MsgInvalidCredentials)
	}
	return user, nil
}

// Profile returns the user for an authenticated id.
func (s *Service) Profile(ctx context.Context, id int64) (*models.User, error) {
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		return nil, eris.Wrap(err, "account: load profile")
	}
	return user, nil
}
