package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"unicode"

	"golang.org/x/crypto/bcrypt"

	"github.com/sitewatch/backend/internal/database"
	"github.com/sitewatch/backend/internal/errs"
)

// bcryptCost is the KDF work factor. 12 keeps a login around ~250 ms on
// current hardware.
const bcryptCost = 12

// Service implements registration, login and credential maintenance.
type Service struct {
	store  *database.Store
	tokens *TokenIssuer
}

// NewService wires the identity service.
func NewService(store *database.Store, tokens *TokenIssuer) *Service {
	return &Service{store: store, tokens: tokens}
}

// Tokens exposes the issuer for the facades' validation paths.
func (s *Service) Tokens() *TokenIssuer { return s.tokens }

// RegisterInput is the registration payload after JSON decoding.
type RegisterInput struct {
	Email      string  `json:"email"`
	Password   string  `json:"password"`
	Name       string  `json:"name"`
	Role       string  `json:"role"`
	Department *string `json:"department,omitempty"`
}

// Register validates the input, hashes the password and creates the account.
// Duplicate email surfaces as Conflict from the store.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*database.User, error) {
	if _, err := mail.ParseAddress(in.Email); err != nil {
		return nil, errs.Invalid("email", "must be a valid email address")
	}
	if err := checkPasswordPolicy(in.Password); err != nil {
		return nil, err
	}
	if in.Role != database.RoleEmployee && in.Role != database.RoleSupervisor {
		return nil, errs.Invalid("role", "must be employee or supervisor")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	return s.store.CreateUser(ctx, in.Email, string(hash), in.Name, in.Role, in.Department)
}

// Login verifies credentials and issues a token pair. Failure is always
// ErrUnauthenticated, whether or not the account exists.
func (s *Service) Login(ctx context.Context, email, password string) (*database.User, *TokenPair, error) {
	user, err := s.store.FindUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			// Burn a comparison so unknown emails cost the same as bad
			// passwords.
			_ = bcrypt.CompareHashAndPassword(
				[]byte("$2a$12$C6UzMDM.H6dfI/f/IKcEeO6C1Gc3qT3l9S4bQ0YbLMNEGoSuXdEwW"),
				[]byte(password))
			return nil, nil, errs.ErrUnauthenticated
		}
		return nil, nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, nil, errs.ErrUnauthenticated
	}

	pair, err := s.tokens.Issue(Identity{UserID: user.ID, Email: user.Email, Role: user.Role})
	if err != nil {
		return nil, nil, err
	}
	return user, pair, nil
}

// Refresh rotates the access token off a valid refresh token. The user must
// still exist; deleted accounts cannot refresh.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	id, err := s.tokens.ValidateRefresh(refreshToken)
	if err != nil {
		return nil, err
	}
	user, err := s.store.FindUserByID(ctx, id.UserID)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return nil, errs.ErrUnauthenticated
		}
		return nil, err
	}
	return s.tokens.Issue(Identity{UserID: user.ID, Email: user.Email, Role: user.Role})
}

// ChangePassword verifies the old password before storing the new digest.
func (s *Service) ChangePassword(ctx context.Context, userID int64, oldPassword, newPassword string) error {
	user, err := s.store.FindUserByID(ctx, userID)
	if err != nil {
		return err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(oldPassword)) != nil {
		return errs.ErrUnauthenticated
	}
	if err := checkPasswordPolicy(newPassword); err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcryptCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	return s.store.UpdateUserPassword(ctx, userID, string(hash))
}

// Authenticate resolves an access token to an identity, rejecting tokens
// whose user no longer exists. Shared by the HTTP middleware and the
// socket handshake.
func (s *Service) Authenticate(ctx context.Context, accessToken string) (*Identity, error) {
	id, err := s.tokens.ValidateAccess(accessToken)
	if err != nil {
		return nil, err
	}
	if _, err := s.store.FindUserByID(ctx, id.UserID); err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return nil, errs.ErrUnauthenticated
		}
		return nil, err
	}
	return id, nil
}

// checkPasswordPolicy enforces ≥8 chars with upper, lower, digit and symbol.
func checkPasswordPolicy(pw string) error {
	if len(pw) < 8 {
		return errs.Invalid("password", "must be at least 8 characters")
	}
	var upper, lower, digit, symbol bool
	for _, r := range pw {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		default:
			symbol = true
		}
	}
	if !upper || !lower || !digit || !symbol {
		return errs.Invalid("password", "must contain upper, lower, digit and symbol")
	}
	return nil
}
