package api

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"nestmail/models"
	"nestmail/storage"
	"nestmail/utils"
)

// AuthHandler handles registration, login and token issuance.
type AuthHandler struct {
	users  *storage.UserStore
	secret string
	expiry time.Duration
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(users *storage.UserStore, secret string, expiry time.Duration) *AuthHandler {
	return &AuthHandler{
		users:  users,
		secret: secret,
		expiry: expiry,
	}
}

// Register creates a new user and returns a signed token
func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req struct {
		Username    string `json:"username"`
		Email       string `json:"email"`
		Password    string `json:"password"`
		DisplayName string `json:"display_name"`
	}

	if err := c.BodyParser(&req); err != nil {
		return utils.BadRequestError("Invalid request", err)
	}

	if req.Username == "" || req.Email == "" || req.Password == "" {
		return utils.BadRequestError("Username, Email and Password are required", nil)
	}
	if len(req.Password) < 8 {
		return utils.BadRequestError("Password must be at least 8 characters", nil)
	}

	user := &models.User{
		Username:    req.Username,
		Email:       req.Email,
		DisplayName: req.DisplayName,
	}

	if err := h.users.CreateUser(user, req.Password); err != nil {
		if errors.Is(err, storage.ErrUsernameTaken) {
			return utils.ConflictError("Username already taken", err)
		}
		return utils.InternalServerError("Failed to create user", err)
	}

	token, err := h.issueToken(user)
	if err != nil {
		return utils.InternalServerError("Failed to issue token", err)
	}

	utils.Log.Info("registered user %s (id=%d)", user.Username, user.ID)

	return c.Status(201).JSON(fiber.Map{
		"success": true,
		"token":   token,
		"user":    user,
	})
}

// Login verifies credentials and returns a signed token
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}

	if err := c.BodyParser(&req); err != nil {
		return utils.BadRequestError("Invalid request", err)
	}

	user, err := h.users.Authenticate(req.Username, req.Password)
	if err != nil {
		return utils.UnauthorizedError("Invalid username or password", err)
	}

	token, err := h.issueToken(user)
	if err != nil {
		return utils.InternalServerError("Failed to issue token", err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"token":   token,
		"user":    user,
	})
}

// Me returns the authenticated user's profile
func (h *AuthHandler) Me(c *fiber.Ctx) error {
	userID, err := CurrentUserID(c)
	if err != nil {
		return err
	}

	user, err := h.users.GetUser(userID)
	if err != nil {
		return utils.NotFoundError("User not found", err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"user":    user,
	})
}

func (h *AuthHandler) issueToken(user *models.User) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":     user.Username,
		"user_id": user.ID,
		"email":   user.Email,
		"iat":     now.Unix(),
		"exp":     now.Add(h.expiry).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(h.secret))
}
