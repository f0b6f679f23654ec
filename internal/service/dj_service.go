package service

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/lucasmnrd/requestline/config"
	"github.com/lucasmnrd/requestline/internal/models"
	repo "github.com/lucasmnrd/requestline/internal/repository/postgres"
	"github.com/lucasmnrd/requestline/pkg/logger"
)

type DJService interface {
	Register(ctx context.Context, name, email, password string) (*models.DJ, string, error)
	Login(ctx context.Context, email, password string) (*models.DJ, string, error)
	// ParseToken validates a bearer token and returns the dj id it names.
	ParseToken(token string) (string, error)
	Get(ctx context.Context, djID string) (*models.DJ, error)
	Dashboard(ctx context.Context, djID string) (*models.DJDashboard, []models.Event, error)
	History(ctx context.Context, djID string) ([]models.Event, error)
}

type djService struct {
	repo      repo.DJRepository
	eventRepo repo.EventRepository
	conf      config.JWTConfig
	l         logger.Logger
}

func NewDJService(djRepo repo.DJRepository, eventRepo repo.EventRepository, conf config.JWTConfig, l logger.Logger) DJService {
	return &djService{
		repo:      djRepo,
		eventRepo: eventRepo,
		conf:      conf,
		l:         l,
	}
}

func (s *djService) Register(ctx context.Context, name, email, password string) (*models.DJ, string, error) {
	existing, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		return nil, "", err
	}
	if existing != nil {
		return nil, "", ErrEmailTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", fmt.Errorf("failed to hash password: %w", err)
	}

	dj := &models.DJ{
		ID:           uuid.New().String(),
		Name:         name,
		Email:        email,
		PasswordHash: string(hash),
	}
	if err := s.repo.Create(ctx, dj); err != nil {
		return nil, "", err
	}

	token, err := s.signToken(dj.ID)
	if err != nil {
		return nil, "", err
	}

	return dj, token, nil
}

func (s *djService) Login(ctx context.Context, email, password string) (*models.DJ, string, error) {
	dj, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		return nil, "", err
	}
	if dj == nil {
		return nil, "", ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(dj.PasswordHash), []byte(password)); err != nil {
		return nil, "", ErrInvalidCredentials
	}

	token, err := s.signToken(dj.ID)
	if err != nil {
		return nil, "", err
	}

	return dj, token, nil
}

func (s *djService) signToken(djID string) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"dj_id": djID,
		"iat":   now.Unix(),
		"exp":   now.Add(s.conf.Expiry).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.conf.Secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return signed, nil
}

func (s *djService) ParseToken(tokenStr string) (string, error) {
	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.conf.Secret), nil
	})
	if err != nil || !token.Valid {
		return "", ErrInvalidCredentials
	}

	djID, ok := claims["dj_id"].(string)
	if !ok || djID == "" {
		return "", ErrInvalidCredentials
	}

	return djID, nil
}

func (s *djService) Get(ctx context.Context, djID string) (*models.DJ, error) {
	dj, err := s.repo.Get(ctx, djID)
	if err != nil {
		return nil, err
	}
	if dj == nil {
		return nil, ErrInvalidCredentials
	}
	return dj, nil
}

func (s *djService) Dashboard(ctx context.Context, djID string) (*models.DJDashboard, []models.Event, error) {
	dash, err := s.repo.Dashboard(ctx, djID)
	if err != nil {
		return nil, nil, err
	}

	dash.MostVotedPlayed, err = s.repo.MostVotedPlayed(ctx, djID, 10)
	if err != nil {
		return nil, nil, err
	}

	events, err := s.eventRepo.ListActiveByDJ(ctx, djID, 20)
	if err != nil {
		return nil, nil, err
	}

	return dash, events, nil
}

func (s *djService) History(ctx context.Context, djID string) ([]models.Event, error) {
	return s.eventRepo.ListEndedByDJ(ctx, djID, 20)
}
