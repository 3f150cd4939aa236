package users

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"golang.org/x/crypto/bcrypt"

	"rentmarket/pkg/models"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmailTaken         = errors.New("user exists with that email")
	ErrInvalidRole        = errors.New("invalid role")
	ErrNoSignature        = errors.New("no signature stored")
	ErrSignatureTooLarge  = errors.New("signature too large")
)

const maxSignatureLen = 512 * 1024

type TokenIssuer interface {
	Issue(userID string) (string, error)
}

type UserService interface {
	Register(ctx context.Context, in RegisterInput) (models.User, error)
	Login(ctx context.Context, email, password string) (LoginResult, error)
	GetUser(ctx context.Context, id string) (models.User, error)
	GetSignature(ctx context.Context, id string) (string, error)
	SetSignature(ctx context.Context, id, signature string) error
}

type userService struct {
	repo   UserRepository
	tokens TokenIssuer
}

func NewUserService(repo UserRepository, tokens TokenIssuer) UserService {
	return &userService{repo: repo, tokens: tokens}
}

func (s *userService) Register(ctx context.Context, in RegisterInput) (models.User, error) {
	if !in.Role.Valid() {
		return models.User{}, ErrInvalidRole
	}
	hashBytes, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return models.User{}, err
	}

	u, err := s.repo.CreateUser(ctx, models.User{
		ID:      uuid.NewString(),
		Name:    strings.TrimSpace(in.Name),
		Email:   strings.ToLower(strings.TrimSpace(in.Email)),
		Role:    in.Role,
		Phone:   in.Phone,
		Address: in.Address,
	}, string(hashBytes))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return models.User{}, ErrEmailTaken
		}
		return models.User{}, err
	}
	return u, nil
}

func (s *userService) Login(ctx context.Context, email, password string) (LoginResult, error) {
	id, hash, err := s.repo.GetUserAuthByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return LoginResult{}, ErrInvalidCredentials
		}
		return LoginResult{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return LoginResult{}, ErrInvalidCredentials
	}

	u, err := s.repo.GetUserByID(ctx, id)
	if err != nil {
		return LoginResult{}, err
	}
	token, err := s.tokens.Issue(u.ID)
	if err != nil {
		return LoginResult{}, err
	}
	return LoginResult{Token: token, User: u}, nil
}

func (s *userService) GetUser(ctx context.Context, id string) (models.User, error) {
	return s.repo.GetUserByID(ctx, id)
}

func (s *userService) GetSignature(ctx context.Context, id string) (string, error) {
	sig, err := s.repo.GetSignature(ctx, id)
	if err != nil {
		return "", err
	}
	if sig == "" {
		return "", ErrNoSignature
	}
	return sig, nil
}

func (s *userService) SetSignature(ctx context.Context, id, signature string) error {
	if len(signature) > maxSignatureLen {
		return ErrSignatureTooLarge
	}
	return s.repo.UpdateSignature(ctx, id, signature)
}
