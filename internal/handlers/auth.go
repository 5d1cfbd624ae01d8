package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/BradenHooton/bookswap/internal/auth"
	"github.com/BradenHooton/bookswap/internal/models"
	"github.com/BradenHooton/bookswap/internal/services"
	pkghttp "github.com/BradenHooton/bookswap/pkg/http"
)

// AuthServiceInterface defines the interface for auth business logic
type AuthServiceInterface interface {
	Register(ctx context.Context, email, password, name string) (*services.AuthResult, error)
	Login(ctx context.Context, email, password string) (*services.AuthResult, error)
	Me(ctx context.Context, identity *models.Identity) (*models.User, error)
	Logout(ctx context.Context, claims *models.TokenClaims) error
}

// AuthHandler handles authentication-related HTTP requests
type AuthHandler struct {
	service AuthServiceInterface
	cookies auth.CookieConfig
	logger  *slog.Logger
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(service AuthServiceInterface, cookies auth.CookieConfig, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		service: service,
		cookies: cookies,
		logger:  logger,
	}
}

// Request DTOs

// LoginRequest represents the request body for login
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// RegisterRequest represents the request body for registration. Name is
// optional and defaults to the local part of the email.
type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
	Name     string `json:"name" validate:"max=100"`
}

// Register handles account creation and signs the new user in
// @Summary Register a user
// @Accept json
// @Param request body RegisterRequest true "Register request"
// @Produce json
// @Success 201 {object} pkghttp.Envelope
// @Failure 400 {object} pkghttp.Envelope
// @Failure 409 {object} pkghttp.Envelope
// @Router /auth/register [post]
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	result, err := h.service.Register(r.Context(), strings.ToLower(strings.TrimSpace(req.Email)), req.Password, req.Name)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	h.startSession(w, http.StatusCreated, result)
}

// Login handles user login
// @Summary User login
// @Accept json
// @Param request body LoginRequest true "Login request"
// @Produce json
// @Success 200 {object} pkghttp.Envelope
// @Failure 401 {object} pkghttp.Envelope
// @Failure 423 {object} pkghttp.Envelope
// @Router /auth/login [post]
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	result, err := h.service.Login(r.Context(), strings.ToLower(strings.TrimSpace(req.Email)), req.Password)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	h.startSession(w, http.StatusOK, result)
}

// startSession sets the session and CSRF cookies and returns the token for
// clients that prefer the Authorization header.
func (h *AuthHandler) startSession(w http.ResponseWriter, status int, result *services.AuthResult) {
	csrfToken, err := auth.GenerateCSRFToken()
	if err != nil {
		h.logger.Error("failed to generate csrf token", slog.Any("error", err))
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	ttl := result.Claims.ExpiresAt.Sub(result.Claims.IssuedAt.Time)
	auth.SetSessionCookies(w, result.Token, csrfToken, ttl, h.cookies)

	pkghttp.WriteJSON(w, status, pkghttp.Envelope{
		"token":     result.Token,
		"csrfToken": csrfToken,
		"expiresAt": result.Claims.ExpiresAt.Time,
		"user":      toUserResponse(result.User),
	})
}

// Me returns the caller's profile
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := h.service.Me(r.Context(), auth.IdentityFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	pkghttp.WriteOK(w, pkghttp.Envelope{"user": toUserResponse(user)})
}

// Logout revokes the current token and clears the session cookies
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	session := auth.SessionFromContext(r.Context())
	if session == nil {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}
	if err := h.service.Logout(r.Context(), session.Claims); err != nil {
		writeServiceError(w, err)
		return
	}
	auth.ClearSessionCookies(w, h.cookies)
	pkghttp.WriteOK(w, pkghttp.Envelope{"message": "logged out"})
}
