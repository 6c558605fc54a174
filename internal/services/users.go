package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/example/campuspoints/internal/access"
	"github.com/example/campuspoints/internal/models"
	"github.com/example/campuspoints/internal/utils"
)

const activationTTL = 7 * 24 * time.Hour

// UserService manages accounts and profiles.
type UserService struct {
	db *gorm.DB
}

// NewUserService constructs a UserService.
func NewUserService(db *gorm.DB) *UserService {
	return &UserService{db: db}
}

// RegisterInput holds the fields of a new account.
type RegisterInput struct {
	Utorid string
	Name   string
	Email  string
}

// Register creates an unverified regular account with an activation token.
func (s *UserService) Register(ctx context.Context, actor *models.User, in RegisterInput) (*models.User, error) {
	if !access.Can(actor.Role, access.Create, access.Users) {
		return nil, permissionErr("Permission denied")
	}
	in.Utorid = strings.ToLower(strings.TrimSpace(in.Utorid))
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Name = strings.TrimSpace(in.Name)
	switch {
	case !utils.ValidUtorid(in.Utorid):
		return nil, validationErr("utorid must be 7-8 lowercase letters or digits")
	case !utils.ValidName(in.Name):
		return nil, validationErr("name must be 1-50 characters")
	case !utils.ValidEmail(in.Email):
		return nil, validationErr("email must be a valid University of Toronto email")
	}

	token := uuid.NewString()
	expires := now().Add(activationTTL)
	user := models.User{
		Utorid:         in.Utorid,
		Name:           in.Name,
		Email:          in.Email,
		Role:           models.RoleRegular,
		ResetToken:     &token,
		ResetExpiresAt: &expires,
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&models.User{}).
			Where("utorid = ? OR email = ?", in.Utorid, in.Email).
			Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return conflictErr("User already exists")
		}
		if err := tx.Create(&user).Error; err != nil {
			return err
		}
		return attachLive(tx, user.ID)
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// CreateSuperuser creates or upgrades a verified superuser with a password.
func (s *UserService) CreateSuperuser(ctx context.Context, utorid, email, password string) (*models.User, error) {
	utorid = strings.ToLower(strings.TrimSpace(utorid))
	email = strings.ToLower(strings.TrimSpace(email))
	if !utils.ValidUtorid(utorid) {
		return nil, validationErr("utorid must be 7-8 lowercase letters or digits")
	}
	if email == "" {
		return nil, validationErr("email is required")
	}
	if !utils.ValidPassword(password) {
		return nil, validationErr("password must be 8-20 characters with upper, lower, digit and special characters")
	}
	hash, err := utils.HashPassword(password)
	if err != nil {
		return nil, err
	}

	var user models.User
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("utorid = ?", utorid).First(&user).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			user = models.User{
				Utorid:       utorid,
				Name:         utorid,
				Email:        email,
				Role:         models.RoleSuperuser,
				Verified:     true,
				PasswordHash: hash,
			}
			if err := tx.Create(&user).Error; err != nil {
				return err
			}
			return attachLive(tx, user.ID)
		case err != nil:
			return err
		}
		user.Role = models.RoleSuperuser
		user.Verified = true
		user.PasswordHash = hash
		return tx.Model(&user).Updates(map[string]any{
			"role":          user.Role,
			"verified":      true,
			"password_hash": hash,
		}).Error
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// UserFilter narrows user listings.
type UserFilter struct {
	Name      string
	Role      models.Role
	Verified  *bool
	Activated *bool
	SortBy    string
	Order     string
	Page      utils.Pagination
}

var userSortColumns = map[string]string{
	"id":     "id",
	"points": "points",
	"name":   "name",
	"utorid": "utorid",
}

// List returns one page of users and the total match count.
func (s *UserService) List(ctx context.Context, f UserFilter) ([]models.User, int64, error) {
	if f.Role != "" && !f.Role.Valid() {
		return nil, 0, validationErr("invalid role")
	}
	sortColumn := "id"
	if f.SortBy != "" {
		col, ok := userSortColumns[f.SortBy]
		if !ok {
			return nil, 0, validationErr("invalid sortBy")
		}
		sortColumn = col
	}
	order, err := sortOrder(f.Order)
	if err != nil {
		return nil, 0, err
	}

	query := s.db.WithContext(ctx).Model(&models.User{})
	if f.Name != "" {
		like := "%" + strings.ToLower(f.Name) + "%"
		query = query.Where("LOWER(utorid) LIKE ? OR LOWER(name) LIKE ?", like, like)
	}
	if f.Role != "" {
		query = query.Where("role = ?", f.Role)
	}
	if f.Verified != nil {
		query = query.Where("verified = ?", *f.Verified)
	}
	if f.Activated != nil {
		if *f.Activated {
			query = query.Where("activated IS NOT NULL")
		} else {
			query = query.Where("activated IS NULL")
		}
	}
	query = query.Session(&gorm.Session{})

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return nil, 0, err
	}
	var users []models.User
	if err := query.Order(sortColumn + " " + order).
		Limit(f.Page.Limit).
		Offset(f.Page.Offset).
		Find(&users).Error; err != nil {
		return nil, 0, err
	}
	return users, count, nil
}

// Get loads a user with the promotions still available to them.
func (s *UserService) Get(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Preload("Promotions").First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFoundErr("User not found")
		}
		return nil, err
	}
	return &user, nil
}

// Profile loads the caller's own record with available promotions and the
// events they organize.
func (s *UserService) Profile(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).
		Preload("Promotions", "end_time >= ?", now()).
		Preload("EventsOrganized").
		First(&user, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFoundErr("User not found")
		}
		return nil, err
	}
	return &user, nil
}

// UserPatch holds staff-editable account fields.
type UserPatch struct {
	Email      *string
	Verified   *bool
	Suspicious *bool
	Role       *models.Role
}

// Update applies staff changes to another account and returns the names of
// the fields that changed.
func (s *UserService) Update(ctx context.Context, actor *models.User, id uint, p UserPatch) (*models.User, []string, error) {
	if !access.Can(actor.Role, access.Update, access.Users) {
		return nil, nil, permissionErr("Permission denied")
	}
	if p.Verified != nil && !*p.Verified {
		return nil, nil, validationErr("verified can only be set to true")
	}
	if p.Role != nil && !p.Role.Valid() {
		return nil, nil, validationErr("invalid role")
	}
	if p.Role != nil && !access.CanAssign(actor.Role, *p.Role) {
		return nil, nil, permissionErr("Cannot assign role %s", *p.Role)
	}

	var user *models.User
	var changed []string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if user, err = lockUserByID(tx, id); err != nil {
			return err
		}
		updates := map[string]any{}
		if p.Email != nil {
			email := strings.ToLower(strings.TrimSpace(*p.Email))
			if err := s.checkEmail(tx, email, user.ID); err != nil {
				return err
			}
			user.Email = email
			updates["email"] = email
			changed = append(changed, "email")
		}
		if p.Verified != nil {
			user.Verified = true
			updates["verified"] = true
			changed = append(changed, "verified")
		}
		if p.Suspicious != nil {
			user.Suspicious = *p.Suspicious
			updates["suspicious"] = *p.Suspicious
			changed = append(changed, "suspicious")
		}
		if p.Role != nil {
			user.Role = *p.Role
			updates["role"] = *p.Role
			changed = append(changed, "role")
		}
		if len(updates) == 0 {
			return validationErr("no fields to update")
		}
		return tx.Model(user).Updates(updates).Error
	})
	if err != nil {
		return nil, nil, err
	}
	return user, changed, nil
}

// ProfilePatch holds self-editable profile fields.
type ProfilePatch struct {
	Name      *string
	Email     *string
	Birthday  *string
	AvatarURL *string
}

// UpdateProfile applies the caller's own profile changes.
func (s *UserService) UpdateProfile(ctx context.Context, user *models.User, p ProfilePatch) (*models.User, error) {
	updates := map[string]any{}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if p.Name != nil {
			name := strings.TrimSpace(*p.Name)
			if !utils.ValidName(name) {
				return validationErr("name must be 1-50 characters")
			}
			updates["name"] = name
		}
		if p.Email != nil {
			email := strings.ToLower(strings.TrimSpace(*p.Email))
			if err := s.checkEmail(tx, email, user.ID); err != nil {
				return err
			}
			updates["email"] = email
		}
		if p.Birthday != nil {
			day, ok := utils.ParseBirthday(*p.Birthday)
			if !ok {
				return validationErr("birthday must be a valid date in YYYY-MM-DD format")
			}
			updates["birthday"] = datatypes.Date(day)
		}
		if p.AvatarURL != nil {
			updates["avatar_url"] = *p.AvatarURL
		}
		if len(updates) == 0 {
			return validationErr("no fields to update")
		}
		return tx.Model(&models.User{}).Where("id = ?", user.ID).Updates(updates).Error
	})
	if err != nil {
		return nil, err
	}
	return s.Profile(ctx, user.ID)
}

// ChangePassword replaces the caller's password after checking the old one.
func (s *UserService) ChangePassword(ctx context.Context, user *models.User, oldPassword, newPassword string) error {
	if !utils.CheckPassword(user.PasswordHash, oldPassword) {
		return permissionErr("Incorrect current password")
	}
	if !utils.ValidPassword(newPassword) {
		return validationErr("password must be 8-20 characters with upper, lower, digit and special characters")
	}
	hash, err := utils.HashPassword(newPassword)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", user.ID).
		Update("password_hash", hash).Error
}

// UtoridsByID maps user ids to utorids for the ids that exist.
func (s *UserService) UtoridsByID(ctx context.Context, ids []uint) (map[uint]string, error) {
	out := make(map[uint]string, len(ids))
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return out, nil
	}
	var users []models.User
	if err := s.db.WithContext(ctx).Select("id", "utorid").Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, err
	}
	for _, u := range users {
		out[u.ID] = u.Utorid
	}
	return out, nil
}

// SetCalendarToken stores the user's calendar refresh credential.
func (s *UserService) SetCalendarToken(ctx context.Context, userID uint, refreshToken string) error {
	return s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		Update("google_refresh_token", refreshToken).Error
}

func (s *UserService) checkEmail(tx *gorm.DB, email string, selfID uint) error {
	if !utils.ValidEmail(email) {
		return validationErr("email must be a valid University of Toronto email")
	}
	var n int64
	if err := tx.Model(&models.User{}).Where("email = ? AND id <> ?", email, selfID).Count(&n).Error; err != nil {
		return err
	}
	if n > 0 {
		return conflictErr("Email is already in use")
	}
	return nil
}
