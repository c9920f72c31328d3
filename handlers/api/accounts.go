package api

import (
	"github.com/gofiber/fiber/v2"

	"nestmail/config"
	"nestmail/models"
	"nestmail/storage"
	"nestmail/utils"
)

// AccountHandler manages the external IMAP accounts a user syncs.
type AccountHandler struct {
	accounts     *storage.AccountStore
	imapDefaults config.IMAPConfig
}

// NewAccountHandler creates an account handler. The configured IMAP
// server and port fill in for accounts created without their own.
func NewAccountHandler(accounts *storage.AccountStore, imapDefaults config.IMAPConfig) *AccountHandler {
	return &AccountHandler{accounts: accounts, imapDefaults: imapDefaults}
}

// applyIMAPDefaults resolves the server and port for a new account,
// falling back to the configured defaults.
func applyIMAPDefaults(server string, port int, defaults config.IMAPConfig) (string, int) {
	if server == "" {
		server = defaults.Server
	}
	if port == 0 {
		port = defaults.Port
	}
	if port == 0 {
		port = 993
	}
	return server, port
}

// Create registers a new IMAP account for syncing
func (h *AccountHandler) Create(c *fiber.Ctx) error {
	userID, err := CurrentUserID(c)
	if err != nil {
		return err
	}

	var req struct {
		Email      string   `json:"email"`
		IMAPServer string   `json:"imap_server"`
		IMAPPort   int      `json:"imap_port"`
		Username   string   `json:"username"`
		Password   string   `json:"password"`
		Folders    []string `json:"folders"`
	}
	if err := c.BodyParser(&req); err != nil {
		return utils.BadRequestError("Invalid request", err)
	}

	if req.Email == "" || req.Username == "" || req.Password == "" {
		return utils.BadRequestError("Email, username and password are required", nil)
	}

	server, port := applyIMAPDefaults(req.IMAPServer, req.IMAPPort, h.imapDefaults)
	if server == "" {
		return utils.BadRequestError("IMAP server required (none configured as default)", nil)
	}

	account := &models.Account{
		UserID:     userID,
		Email:      req.Email,
		IMAPServer: server,
		IMAPPort:   port,
		Username:   req.Username,
		Password:   req.Password,
		Folders:    req.Folders,
	}

	if err := h.accounts.CreateAccount(account); err != nil {
		return utils.InternalServerError("Failed to create account", err)
	}

	utils.Log.Info("added sync account %s for user %d", account.Email, userID)

	return c.Status(201).JSON(fiber.Map{
		"success": true,
		"account": account,
	})
}

// List returns the user's synced accounts
func (h *AccountHandler) List(c *fiber.Ctx) error {
	userID, err := CurrentUserID(c)
	if err != nil {
		return err
	}

	accounts, err := h.accounts.ListAccounts(userID)
	if err != nil {
		return utils.InternalServerError("Failed to list accounts", err)
	}

	return c.JSON(fiber.Map{
		"success":  true,
		"accounts": accounts,
	})
}

// Delete removes a synced account
func (h *AccountHandler) Delete(c *fiber.Ctx) error {
	userID, err := CurrentUserID(c)
	if err != nil {
		return err
	}

	accountID := c.Params("id")
	if accountID == "" {
		return utils.BadRequestError("Account ID required", nil)
	}

	account, err := h.accounts.GetAccount(accountID)
	if err != nil {
		return utils.NotFoundError("Account not found", err)
	}
	if account.UserID != userID {
		return utils.ForbiddenError("Access denied", nil)
	}

	if err := h.accounts.DeleteAccount(accountID); err != nil {
		return utils.InternalServerError("Failed to delete account", err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Account deleted",
	})
}
