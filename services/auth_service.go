// Package services holds the application services sitting between the
// transport and the repositories.
package services

import (
	"fmt"
	"time"

	"quantum-relay/auth"
	"quantum-relay/errors"
	"quantum-relay/repositories"

	"github.com/google/uuid"
)

type IAuthService interface {
	Login(email, password string) (Token, error)
	Register(email, password string) (Token, error)
}

type Token string

type AuthService struct {
	userRepository repositories.IUserRepository
	secret         []byte
	tokenDuration  time.Duration
}

func NewAuthService(repo repositories.IUserRepository, secret []byte, tokenDuration time.Duration) IAuthService {
	return &AuthService{userRepository: repo, secret: secret, tokenDuration: tokenDuration}
}

func (s *AuthService) Register(email, password string) (Token, error) {
	valReq := auth.RegisterRequest{
		Email:    email,
		Password: password,
	}

	// Validate business rules before any expensive cryptographic operation.
	if err := auth.ValidateRegister(valReq); err != nil {
		return "", fmt.Errorf("%w: %v", errors.ErrInvalidPassword, err)
	}

	// Hashing happens in the service layer to keep the repository unaware of
	// plain passwords.
	hashedPassword, err := auth.HashPassword(password)
	if err != nil {
		return "", fmt.Errorf("hashing failed: %w", err)
	}

	user := repositories.User{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: hashedPassword,
		Roles:        []string{"user"},
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.userRepository.CreateUser(user); err != nil {
		return "", err // Propagates ErrUserAlreadyExists if the email is taken
	}

	token, err := auth.GenerateToken(s.secret, user.ID.String(), user.Roles, s.tokenDuration)
	if err != nil {
		return "", errors.ErrTokenGeneration
	}

	return Token(token), nil
}

func (s *AuthService) Login(email, password string) (Token, error) {
	user, err := s.userRepository.GetUserByEmail(email)
	if err != nil {
		// Generic error to prevent user enumeration attacks
		return "", errors.ErrInvalidCredentials
	}

	match, err := auth.ComparePassword(password, user.PasswordHash)
	if err != nil || !match {
		return "", errors.ErrInvalidCredentials
	}

	token, err := auth.GenerateToken(s.secret, user.ID.String(), user.Roles, s.tokenDuration)
	if err != nil {
		return "", errors.ErrTokenGeneration
	}

	return Token(token), nil
}
