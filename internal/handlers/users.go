package handlers

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/example/campuspoints/internal/access"
	"github.com/example/campuspoints/internal/config"
	"github.com/example/campuspoints/internal/models"
	"github.com/example/campuspoints/internal/services"
	"github.com/example/campuspoints/internal/utils"
)

var avatarExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".webp": true,
}

// UserHandler serves account and profile endpoints.
type UserHandler struct {
	users  *services.UserService
	ledger *services.LedgerService
	upload config.UploadConfig
}

// NewUserHandler constructs a UserHandler.
func NewUserHandler(users *services.UserService, ledger *services.LedgerService, upload config.UploadConfig) *UserHandler {
	return &UserHandler{users: users, ledger: ledger, upload: upload}
}

type registerRequest struct {
	Utorid string `json:"utorid"`
	Name   string `json:"name"`
	Email  string `json:"email"`
}

// Register creates a new account on behalf of a cashier or above.
func (h *UserHandler) Register(c *fiber.Ctx) error {
	actor, err := currentUser(c)
	if err != nil {
		return err
	}
	var req registerRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	user, err := h.users.Register(c.UserContext(), actor, services.RegisterInput{
		Utorid: req.Utorid,
		Name:   req.Name,
		Email:  req.Email,
	})
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"id":         user.ID,
		"utorid":     user.Utorid,
		"name":       user.Name,
		"email":      user.Email,
		"verified":   user.Verified,
		"expiresAt":  user.ResetExpiresAt,
		"resetToken": user.ResetToken,
	})
}

// List returns a filtered page of users.
func (h *UserHandler) List(c *fiber.Ctx) error {
	verified, err := queryBool(c, "verified")
	if err != nil {
		return err
	}
	activated, err := queryBool(c, "activated")
	if err != nil {
		return err
	}

	users, count, err := h.users.List(c.UserContext(), services.UserFilter{
		Name:      c.Query("name"),
		Role:      models.Role(c.Query("role")),
		Verified:  verified,
		Activated: activated,
		SortBy:    c.Query("sortBy"),
		Order:     c.Query("order"),
		Page:      utils.ParsePagination(c),
	})
	if err != nil {
		return err
	}

	results := make([]fiber.Map, 0, len(users))
	for i := range users {
		results = append(results, userListView(&users[i]))
	}
	return listResponse(c, count, results)
}

// Get returns one user. Cashiers see a reduced record.
func (h *UserHandler) Get(c *fiber.Ctx) error {
	actor, err := currentUser(c)
	if err != nil {
		return err
	}
	id, err := paramID(c, "userId")
	if err != nil {
		return err
	}

	user, err := h.users.Get(c.UserContext(), id)
	if err != nil {
		return err
	}
	if !access.Can(actor.Role, access.List, access.Users) {
		return c.JSON(cashierUserView(user))
	}
	return c.JSON(userView(user))
}

type updateUserRequest struct {
	Email      *string      `json:"email"`
	Verified   *bool        `json:"verified"`
	Suspicious *bool        `json:"suspicious"`
	Role       *models.Role `json:"role"`
}

// Update applies staff changes and echoes the changed fields.
func (h *UserHandler) Update(c *fiber.Ctx) error {
	actor, err := currentUser(c)
	if err != nil {
		return err
	}
	id, err := paramID(c, "userId")
	if err != nil {
		return err
	}
	var req updateUserRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	user, changed, err := h.users.Update(c.UserContext(), actor, id, services.UserPatch{
		Email:      req.Email,
		Verified:   req.Verified,
		Suspicious: req.Suspicious,
		Role:       req.Role,
	})
	if err != nil {
		return err
	}

	full := userView(user)
	out := fiber.Map{
		"id":     user.ID,
		"utorid": user.Utorid,
		"name":   user.Name,
	}
	for _, field := range changed {
		out[field] = full[field]
	}
	return c.JSON(out)
}

// Me returns the caller's own profile.
func (h *UserHandler) Me(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	profile, err := h.users.Profile(c.UserContext(), user.ID)
	if err != nil {
		return err
	}
	return c.JSON(profileView(profile))
}

type updateMeRequest struct {
	Name     *string `json:"name" form:"name"`
	Email    *string `json:"email" form:"email"`
	Birthday *string `json:"birthday" form:"birthday"`
}

// UpdateMe edits the caller's profile. Multipart requests may carry an
// avatar file.
func (h *UserHandler) UpdateMe(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	var req updateMeRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	patch := services.ProfilePatch{
		Name:     req.Name,
		Email:    req.Email,
		Birthday: req.Birthday,
	}

	var avatarPath string
	if strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEMultipartForm) {
		url, path, err := h.saveAvatar(c, user)
		if err != nil {
			return err
		}
		if url != "" {
			patch.AvatarURL = &url
			avatarPath = path
		}
	}

	profile, err := h.users.UpdateProfile(c.UserContext(), user, patch)
	if err != nil {
		if avatarPath != "" {
			if rmErr := os.Remove(avatarPath); rmErr != nil {
				log.Printf("[Users] remove unused avatar %s: %v", avatarPath, rmErr)
			}
		}
		return err
	}
	return c.JSON(profileView(profile))
}

func (h *UserHandler) saveAvatar(c *fiber.Ctx, user *models.User) (string, string, error) {
	file, err := c.FormFile("avatar")
	if err != nil {
		// no avatar part
		return "", "", nil
	}
	if h.upload.MaxSize > 0 && file.Size > int64(h.upload.MaxSize) {
		return "", "", fiber.NewError(fiber.StatusBadRequest, "avatar is too large")
	}
	ext := strings.ToLower(filepath.Ext(file.Filename))
	if !avatarExtensions[ext] {
		return "", "", fiber.NewError(fiber.StatusBadRequest, "avatar must be an image")
	}

	dir := filepath.Join(h.upload.Dir, "avatars")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", fmt.Errorf("create avatar dir: %w", err)
	}
	name := fmt.Sprintf("%s-%s%s", user.Utorid, uuid.NewString(), ext)
	path := filepath.Join(dir, name)
	if err := c.SaveFile(file, path); err != nil {
		return "", "", fmt.Errorf("save avatar: %w", err)
	}
	return "/uploads/avatars/" + name, path, nil
}

type changePasswordRequest struct {
	Old string `json:"old"`
	New string `json:"new"`
}

// ChangePassword replaces the caller's password.
func (h *UserHandler) ChangePassword(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	var req changePasswordRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if err := h.users.ChangePassword(c.UserContext(), user, req.Old, req.New); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "password updated"})
}

type selfTransactionRequest struct {
	Type   models.TransactionType `json:"type"`
	Amount int                    `json:"amount"`
	Remark string                 `json:"remark"`
}

// Redeem files a redemption request against the caller's balance.
func (h *UserHandler) Redeem(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	var req selfTransactionRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if req.Type != models.TransactionRedemption {
		return fiber.NewError(fiber.StatusBadRequest, "type must be redemption")
	}

	tx, err := h.ledger.Redeem(c.UserContext(), user, req.Amount, req.Remark)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"id":          tx.ID,
		"utorid":      tx.Utorid,
		"type":        tx.Type,
		"processedBy": nil,
		"amount":      -tx.Amount,
		"remark":      tx.Remark,
		"createdBy":   tx.CreatedBy,
	})
}

// MyTransactions lists the caller's own history. Transfer and redemption
// rows carry the utorid of the counterparty or processing cashier.
func (h *UserHandler) MyTransactions(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	filter, err := transactionFilter(c)
	if err != nil {
		return err
	}
	filter.UserID = user.ID
	filter.Name, filter.CreatedBy, filter.Suspicious = "", "", nil

	rows, count, err := h.ledger.List(c.UserContext(), filter)
	if err != nil {
		return err
	}

	var related []uint
	for _, t := range rows {
		if t.RelatedID != nil && (t.Type == models.TransactionTransfer || t.Type == models.TransactionRedemption) {
			related = append(related, *t.RelatedID)
		}
	}
	utorids, err := h.users.UtoridsByID(c.UserContext(), related)
	if err != nil {
		return err
	}

	results := make([]fiber.Map, 0, len(rows))
	for i := range rows {
		view := transactionView(&rows[i])
		delete(view, "suspicious")
		if id := rows[i].RelatedID; id != nil {
			if utorid, ok := utorids[*id]; ok {
				view["relatedUtorid"] = utorid
			}
		}
		results = append(results, view)
	}
	return listResponse(c, count, results)
}

type transferRequest struct {
	Type   models.TransactionType `json:"type"`
	Amount int                    `json:"amount"`
	Remark string                 `json:"remark"`
}

// Transfer sends points from the caller to the user in the path.
func (h *UserHandler) Transfer(c *fiber.Ctx) error {
	sender, err := currentUser(c)
	if err != nil {
		return err
	}
	recipientID, err := paramID(c, "userId")
	if err != nil {
		return err
	}
	var req transferRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if req.Type != models.TransactionTransfer {
		return fiber.NewError(fiber.StatusBadRequest, "type must be transfer")
	}

	result, err := h.ledger.Transfer(c.UserContext(), sender, recipientID, req.Amount, req.Remark)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"id":        result.Sent.ID,
		"sender":    result.Sent.Utorid,
		"recipient": result.Recipient,
		"type":      result.Sent.Type,
		"sent":      -result.Sent.Amount,
		"remark":    result.Sent.Remark,
		"createdBy": result.Sent.CreatedBy,
	})
}
