package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/picshare/picshare/internal/apperr"
	"github.com/picshare/picshare/internal/model"
	"github.com/picshare/picshare/internal/redis"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

type Auth struct {
	secret string
	store  *redis.Client
}

func NewAuth(secret string, store *redis.Client) *Auth {
	return &Auth{secret: secret, store: store}
}

func (a *Auth) Register(ctx context.Context, username, email, password string) (*model.User, error) {
	if username == "" || email == "" || password == "" {
		return nil, fmt.Errorf("%w: username, email and password are required", apperr.ErrValidation)
	}

	existing, err := a.store.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: email already registered", apperr.ErrValidation)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	user := &model.User{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        email,
		PasswordHash: string(hashed),
		CreatedAt:    time.Now(),
	}
	if err := a.store.SaveUser(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (a *Auth) Login(ctx context.Context, email, password string, expiresIn time.Duration) (string, *model.User, error) {
	user, err := a.store.GetUserByEmail(ctx, email)
	if err != nil {
		return "", nil, err
	}
	if user == nil {
		return "", nil, fmt.Errorf("%w: invalid credentials", apperr.ErrUnauthorized)
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return "", nil, fmt.Errorf("%w: invalid credentials", apperr.ErrUnauthorized)
	}
	token, err := a.GenerateToken(user.ID, user.Username, expiresIn)
	if err != nil {
		return "", nil, err
	}
	return token, user, nil
}

func (a *Auth) GenerateToken(userID, username string, expiresIn time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"user_id":  userID,
		"username": username,
		"exp":      time.Now().Add(expiresIn).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(a.secret))
}
