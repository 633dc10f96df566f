package service

import (
	"context"
	"errors"
	"strings"

	"github.com/freewilll/splitledger/currency"
	"github.com/freewilll/splitledger/database"
)

// ErrInvalidCredentials is returned when an email and password don't match a
// user
var ErrInvalidCredentials = errors.New("invalid email or password")

// NewUser is a sign up request. An empty DefaultCurrency means GBP.
type NewUser struct {
	Email           string `json:"email" validate:"required,email"`
	Name            string `json:"name" validate:"required"`
	Password        string `json:"password" validate:"required,min=6"`
	DefaultCurrency string `json:"default_currency"`
}

// Register creates a user and returns its id
func (s *Service) Register(ctx context.Context, n NewUser) (int, error) {
	n.Email = strings.ToLower(strings.TrimSpace(n.Email))
	n.Name = strings.TrimSpace(n.Name)
	if err := s.validate.Struct(n); err != nil {
		return 0, validationErrors(err)
	}

	code := "GBP"
	if n.DefaultCurrency != "" {
		var err error
		if code, err = currency.Normalize(n.DefaultCurrency); err != nil {
			return 0, invalid("default_currency", "%q is not a supported currency", n.DefaultCurrency)
		}
	}

	id, err := s.db.CreateUser(ctx, n.Email, n.Name, n.Password, code)
	if errors.Is(err, database.ErrDuplicate) {
		return 0, invalid("email", "is already registered")
	}
	if err != nil {
		return 0, storeError(err)
	}

	s.log.WithField("func", "Register").WithField("user_id", id).Info("User registered")
	return id, nil
}

// Authenticate returns the id of the user with email and password
func (s *Service) Authenticate(ctx context.Context, email, password string) (int, error) {
	id, err := s.db.AuthenticateUser(ctx, strings.ToLower(strings.TrimSpace(email)), password)
	if errors.Is(err, database.ErrNotFound) || errors.Is(err, database.ErrPasswordMismatch) {
		return 0, ErrInvalidCredentials
	}
	return id, storeError(err)
}

// User returns one user
func (s *Service) User(ctx context.Context, id int) (database.User, error) {
	u, err := s.db.GetUser(ctx, id)
	if err != nil {
		return database.User{}, notFound(err, "user", id)
	}
	return u, nil
}

// Users returns every user, for resolving ids to names
func (s *Service) Users(ctx context.Context) ([]database.User, error) {
	users, err := s.db.GetUsers(ctx)
	return users, storeError(err)
}

// UpdateUser changes a user's name, email or default currency
func (s *Service) UpdateUser(ctx context.Context, id int, patch database.UserPatch) (database.User, error) {
	if patch.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*patch.Email))
		if err := s.validate.Var(email, "required,email"); err != nil {
			return database.User{}, invalid("email", "must be a valid email address")
		}
		patch.Email = &email
	}
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return database.User{}, invalid("name", "must not be empty")
		}
		patch.Name = &name
	}
	if patch.DefaultCurrency != nil {
		code, err := currency.Normalize(*patch.DefaultCurrency)
		if err != nil {
			return database.User{}, invalid("default_currency", "%q is not a supported currency", *patch.DefaultCurrency)
		}
		patch.DefaultCurrency = &code
	}

	err := s.db.UpdateUser(ctx, id, patch)
	if errors.Is(err, database.ErrDuplicate) {
		return database.User{}, invalid("email", "is already registered")
	}
	if err != nil {
		return database.User{}, notFound(err, "user", id)
	}
	return s.User(ctx, id)
}
