package auth

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/madina-market/madina_pay/internal/identity"
)

// Handler exposes registration and login endpoints.
type Handler struct {
	tokens *Service
	users  *identity.Service
}

// NewHandler constructs an auth handler.
func NewHandler(tokens *Service, users *identity.Service) *Handler {
	return &Handler{tokens: tokens, users: users}
}

type registerRequest struct {
	Phone    string `json:"phone"`
	FullName string `json:"full_name"`
	PIN      string `json:"pin"`
	Role     string `json:"role"`
}

type loginRequest struct {
	Phone string `json:"phone"`
	PIN   string `json:"pin"`
}

// Register creates an account and returns its readable id with a token.
func (h *Handler) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	user, err := h.users.Register(c.UserContext(), identity.RegisterInput{
		Phone:    req.Phone,
		FullName: req.FullName,
		PIN:      req.PIN,
		Role:     req.Role,
	})
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	token, err := h.tokens.Issue(user)
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"user_id":     user.ID,
		"readable_id": user.ReadableID,
		"role":        user.Role,
		"token":       token,
	})
}

// Login authenticates credentials and returns a token.
func (h *Handler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	user, err := h.users.Authenticate(c.UserContext(), identity.Credentials{Phone: req.Phone, PIN: req.PIN})
	if err != nil {
		return fiber.NewError(http.StatusUnauthorized, err.Error())
	}
	token, err := h.tokens.Issue(user)
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(fiber.Map{
		"user_id":     user.ID,
		"readable_id": user.ReadableID,
		"role":        user.Role,
		"token":       token,
	})
}
