package service

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/openbrokerage/sharetrading/internal/auth"
	"github.com/openbrokerage/sharetrading/internal/domain"
	"github.com/openbrokerage/sharetrading/internal/store"
)

var emailRegex = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// RegisterRequest is the input for customer registration.
type RegisterRequest struct {
	Email    string
	Name     string
	Password string
}

// AuthService handles customer registration and login. Registration
// creates the customer together with their cash account in one atomic
// scope.
type AuthService struct {
	store  store.Store
	tokens *auth.TokenManager
}

// NewAuthService creates an AuthService.
func NewAuthService(st store.Store, tokens *auth.TokenManager) *AuthService {
	return &AuthService{store: st, tokens: tokens}
}

// Register creates a customer and their empty cash account. It fails
// with domain.ErrCustomerExists when the email is already registered.
func (s *AuthService) Register(ctx context.Context, req RegisterRequest) (domain.Customer, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if !emailRegex.MatchString(email) {
		return domain.Customer{}, &domain.ValidationError{
			Message: "email must be a valid address",
		}
	}
	name := strings.TrimSpace(req.Name)
	if name == "" || len(name) > 100 {
		return domain.Customer{}, &domain.ValidationError{
			Message: "name must be between 1 and 100 characters",
		}
	}
	if len(req.Password) < 8 {
		return domain.Customer{}, &domain.ValidationError{
			Message: "password must be at least 8 characters",
		}
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return domain.Customer{}, domain.Infra(err)
	}

	now := time.Now()
	customer := domain.Customer{
		ID:           uuid.New().String(),
		Email:        email,
		Name:         name,
		PasswordHash: hash,
		CreatedAt:    now,
	}

	err = s.store.Do(ctx, func(tx store.Tx) error {
		if err := tx.Customers().Create(ctx, customer); err != nil {
			return err
		}
		return tx.Accounts().Create(ctx, domain.Account{
			ID:         uuid.New().String(),
			CustomerID: customer.ID,
			CreatedAt:  now,
		})
	})
	if err != nil {
		return domain.Customer{}, err
	}
	return customer, nil
}

// Login checks the credentials and returns a session token. Unknown
// emails and wrong passwords are indistinguishable to the caller.
func (s *AuthService) Login(ctx context.Context, email, password string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	customer, err := s.store.Customers().GetByEmail(ctx, email)
	if err != nil {
		return "", domain.ErrInvalidCredentials
	}
	if !auth.CheckPassword(customer.PasswordHash, password) {
		return "", domain.ErrInvalidCredentials
	}
	return s.tokens.Issue(customer.ID)
}
