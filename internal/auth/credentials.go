package auth

import (
	"context"
	"errors"
	"strings"

	"navgurukul.org/assistant/internal/logger"
	"navgurukul.org/assistant/internal/store"
)

const (
	msgAccountExists   = "An account with this email already exists."
	msgAccountCreated  = "Account created successfully! Please sign in."
	msgInvalidLogin    = "Invalid email or password. Please try again."
	msgLoginSuccessful = "Login successful!"
	msgUnexpected      = "An unexpected error occurred. Please try again."
)

// Result is what the credential store reports back to the user.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type SessionUser struct {
	Email string `json:"email"`
	Token string `json:"-"`
}

// UserStore is the persistence the credential store needs.
type UserStore interface {
	GetUserByEmail(ctx context.Context, email string) (*store.User, error)
	CreateUser(ctx context.Context, email, passwordHash string) (*store.User, error)
	CreateSession(ctx context.Context, userID int64) (*store.Session, error)
	GetSession(ctx context.Context, token string) (*store.Session, error)
	DeleteSession(ctx context.Context, token string) error
}

// CredentialStore is a local demo user registry. It is not a security boundary.
type CredentialStore struct {
	users UserStore
	log   *logger.Logger
}

func NewCredentialStore(users UserStore, log *logger.Logger) *CredentialStore {
	return &CredentialStore{
		users: users,
		log:   log.With("component", "CredentialStore"),
	}
}

func (c *CredentialStore) SignUp(ctx context.Context, email, password string) Result {
	email = strings.TrimSpace(email)
	if !ValidateEmail(email) {
		return Result{Message: msgInvalidEmail}
	}
	if msg, ok := ValidatePassword(password); !ok {
		return Result{Message: msg}
	}

	existing, err := c.users.GetUserByEmail(ctx, email)
	if err != nil {
		c.log.Error("Failed to look up user for signup", "error", err)
		return Result{Message: msgUnexpected}
	}
	if existing != nil {
		return Result{Message: msgAccountExists}
	}

	hash, err := HashPassword(password)
	if err != nil {
		c.log.Error("Failed to hash password", "error", err)
		return Result{Message: msgUnexpected}
	}

	if _, err := c.users.CreateUser(ctx, email, hash); err != nil {
		if errors.Is(err, store.ErrDuplicateUser) {
			return Result{Message: msgAccountExists}
		}
		c.log.Error("Failed to create user", "error", err)
		return Result{Message: msgUnexpected}
	}

	c.log.Info("User signed up", "email", strings.ToLower(email))
	return Result{Success: true, Message: msgAccountCreated}
}

// Login checks the credentials and, on success, issues a new session marker.
func (c *CredentialStore) Login(ctx context.Context, email, password string) (Result, *SessionUser) {
	email = strings.TrimSpace(email)
	if !ValidateEmail(email) {
		return Result{Message: msgInvalidEmail}, nil
	}

	user, err := c.users.GetUserByEmail(ctx, email)
	if err != nil {
		c.log.Error("Failed to look up user for login", "error", err)
		return Result{Message: msgUnexpected}, nil
	}
	if user == nil || !CheckPasswordHash(password, user.PasswordHash) {
		return Result{Message: msgInvalidLogin}, nil
	}

	sess, err := c.users.CreateSession(ctx, user.ID)
	if err != nil || sess == nil {
		c.log.Error("Failed to create session", "email", user.Email, "error", err)
		return Result{Message: msgUnexpected}, nil
	}

	return Result{Success: true, Message: msgLoginSuccessful}, &SessionUser{Email: user.Email, Token: sess.Token}
}

func (c *CredentialStore) Logout(ctx context.Context, token string) {
	if token == "" {
		return
	}
	if err := c.users.DeleteSession(ctx, token); err != nil {
		c.log.Warn("Failed to delete session", "error", err)
	}
}

// CurrentSession resolves a marker token to its user. Unknown tokens report false.
func (c *CredentialStore) CurrentSession(ctx context.Context, token string) (*SessionUser, bool) {
	if token == "" {
		return nil, false
	}
	sess, err := c.users.GetSession(ctx, token)
	if err != nil {
		c.log.Warn("Failed to resolve session", "error", err)
		return nil, false
	}
	if sess == nil {
		return nil, false
	}
	return &SessionUser{Email: sess.Email, Token: sess.Token}, true
}
