package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/example/campuspoints/internal/models"
	"github.com/example/campuspoints/internal/utils"
)

const resetTTL = time.Hour

// AuthService issues bearer tokens and runs the password reset flow.
type AuthService struct {
	db       *gorm.DB
	secret   string
	tokenTTL time.Duration
}

// NewAuthService constructs an AuthService.
func NewAuthService(db *gorm.DB, secret string, tokenTTL time.Duration) *AuthService {
	return &AuthService{db: db, secret: secret, tokenTTL: tokenTTL}
}

// Login checks credentials and returns a signed token with its expiry.
func (s *AuthService) Login(ctx context.Context, utorid, password string) (string, time.Time, error) {
	utorid = strings.ToLower(strings.TrimSpace(utorid))
	if utorid == "" || password == "" {
		return "", time.Time{}, validationErr("utorid and password are required")
	}

	user, err := s.findByUtorid(ctx, utorid)
	if err != nil {
		return "", time.Time{}, err
	}
	if !utils.CheckPassword(user.PasswordHash, password) {
		return "", time.Time{}, authErr("Invalid credentials")
	}
	return utils.GenerateToken(s.secret, user.Utorid, s.tokenTTL)
}

// Authenticate resolves a bearer token to its user, stamping the first
// activation and the latest login.
func (s *AuthService) Authenticate(ctx context.Context, token string) (*models.User, error) {
	utorid, err := utils.ParseToken(s.secret, token)
	if err != nil {
		return nil, authErr("Invalid token")
	}
	user, err := s.findByUtorid(ctx, utorid)
	if err != nil {
		if KindOf(err) == KindNotFound {
			return nil, authErr("Invalid token")
		}
		return nil, err
	}

	at := now()
	updates := map[string]any{"last_login": at}
	if user.Activated == nil {
		updates["activated"] = at
		user.Activated = &at
	}
	if err := s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", user.ID).
		UpdateColumns(updates).Error; err != nil {
		return nil, err
	}
	user.LastLogin = &at
	return user, nil
}

// RequestReset issues a one-hour reset token for utorid.
func (s *AuthService) RequestReset(ctx context.Context, utorid string) (string, time.Time, error) {
	utorid = strings.ToLower(strings.TrimSpace(utorid))
	if utorid == "" {
		return "", time.Time{}, validationErr("utorid is required")
	}
	user, err := s.findByUtorid(ctx, utorid)
	if err != nil {
		return "", time.Time{}, err
	}

	token := uuid.NewString()
	expires := now().Add(resetTTL)
	if err := s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", user.ID).
		UpdateColumns(map[string]any{
			"reset_token":      token,
			"reset_expires_at": expires,
		}).Error; err != nil {
		return "", time.Time{}, err
	}
	return token, expires, nil
}

// CompleteReset sets a new password using a reset or activation token.
func (s *AuthService) CompleteReset(ctx context.Context, token, utorid, password string) error {
	utorid = strings.ToLower(strings.TrimSpace(utorid))
	if utorid == "" {
		return validationErr("utorid is required")
	}
	if !utils.ValidPassword(password) {
		return validationErr("password must be 8-20 characters with upper, lower, digit and special characters")
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := forUpdate(tx).Where("reset_token = ?", token).First(&user).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFoundErr("Reset token not found")
			}
			return err
		}
		if user.Utorid != utorid {
			return authErr("Reset token does not belong to this user")
		}
		if user.ResetExpiresAt == nil || user.ResetExpiresAt.Before(now()) {
			return goneErr("Reset token has expired")
		}

		hash, err := utils.HashPassword(password)
		if err != nil {
			return err
		}
		return tx.Model(&models.User{}).Where("id = ?", user.ID).UpdateColumns(map[string]any{
			"password_hash":    hash,
			"reset_token":      nil,
			"reset_expires_at": nil,
		}).Error
	})
}

func (s *AuthService) findByUtorid(ctx context.Context, utorid string) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Where("utorid = ?", utorid).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFoundErr("User not found")
		}
		return nil, err
	}
	return &user, nil
}
