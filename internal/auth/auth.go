package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"papertrade/internal/database"
	"papertrade/internal/models"
)

var (
	ErrWeakInput          = errors.New("username and password are required")
	ErrPasswordMismatch   = errors.New("passwords do not match")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrInvalidToken       = errors.New("invalid or expired token")
)

const (
	accessTTL  = 24 * time.Hour
	refreshTTL = 7 * 24 * time.Hour
)

// StartingCash is the simulated capital granted at registration.
var StartingCash = decimal.NewFromInt(10000)

// Users is the credential-store surface. Implemented by database.Repo.
type Users interface {
	CreateUser(ctx context.Context, username, hash string, startingCash decimal.Decimal) (int64, error)
	UserByUsername(ctx context.Context, username string) (models.User, error)
}

// TokenStore holds issued refresh tokens until they expire or are revoked.
type TokenStore interface {
	SaveRefresh(ctx context.Context, token string, userID int64, ttl time.Duration) error
	UserForRefresh(ctx context.Context, token string) (int64, error)
	DeleteRefresh(ctx context.Context, token string) error
}

type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

type Service struct {
	users  Users
	tokens TokenStore
	secret []byte
	log    *logrus.Logger
}

func NewService(users Users, tokens TokenStore, secret []byte, log *logrus.Logger) *Service {
	return &Service{users: users, tokens: tokens, secret: secret, log: log}
}

// Register stores a bcrypt hash of the password and grants starting cash.
// A duplicate username surfaces as database.ErrUsernameTaken.
func (s *Service) Register(ctx context.Context, username, password, confirmation string) (int64, TokenPair, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return 0, TokenPair{}, ErrWeakInput
	}
	if password != confirmation {
		return 0, TokenPair{}, ErrPasswordMismatch
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return 0, TokenPair{}, err
	}
	id, err := s.users.CreateUser(ctx, username, string(hash), StartingCash)
	if err != nil {
		return 0, TokenPair{}, err
	}
	s.log.Infof("registered user %s (%d)", username, id)

	pair, err := s.issue(ctx, id)
	return id, pair, err
}

// Authenticate yields the user id and a token pair. Missing user and wrong
// password are indistinguishable to the caller; bcrypt does the
// constant-time hash comparison.
func (s *Service) Authenticate(ctx context.Context, username, password string) (int64, TokenPair, error) {
	u, err := s.users.UserByUsername(ctx, strings.TrimSpace(username))
	if errors.Is(err, database.ErrNoUser) {
		return 0, TokenPair{}, ErrInvalidCredentials
	}
	if err != nil {
		return 0, TokenPair{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.Hash), []byte(password)); err != nil {
		return 0, TokenPair{}, ErrInvalidCredentials
	}

	pair, err := s.issue(ctx, u.ID)
	return u.ID, pair, err
}

// Refresh exchanges a stored refresh token for a fresh access token.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (string, error) {
	userID, err := s.tokens.UserForRefresh(ctx, refreshToken)
	if err != nil {
		return "", err
	}
	if _, err := s.verify(refreshToken); err != nil {
		return "", err
	}
	return s.sign(userID, accessTTL)
}

// Logout revokes the refresh token. The access token simply ages out.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	return s.tokens.DeleteRefresh(ctx, refreshToken)
}

// VerifyAccess validates an access token and returns the user id it names.
func (s *Service) VerifyAccess(tokenString string) (int64, error) {
	return s.verify(tokenString)
}

func (s *Service) issue(ctx context.Context, userID int64) (TokenPair, error) {
	access, err := s.sign(userID, accessTTL)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := s.sign(userID, refreshTTL)
	if err != nil {
		return TokenPair{}, err
	}
	if err := s.tokens.SaveRefresh(ctx, refresh, userID, refreshTTL); err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

func (s *Service) sign(userID int64, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"user_id": userID,
		"exp":     time.Now().Add(ttl).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

func (s *Service) verify(tokenString string) (int64, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return 0, ErrInvalidToken
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return 0, ErrInvalidToken
	}
	id, ok := claims["user_id"].(float64)
	if !ok {
		return 0, ErrInvalidToken
	}
	return int64(id), nil
}
