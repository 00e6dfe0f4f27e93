package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"rapidride/internal/domain"
	"rapidride/internal/middleware"
	"rapidride/internal/service"
)

// UserHandler handles account and profile requests.
type UserHandler struct {
	authService    *service.AuthService
	profileService *service.ProfileService
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(authService *service.AuthService, profileService *service.ProfileService) *UserHandler {
	return &UserHandler{
		authService:    authService,
		profileService: profileService,
	}
}

// SignupRequest is the HTTP request body for creating an account.
type SignupRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Phone    string `json:"phone"`
	Role     string `json:"role"`
}

// LoginRequest is the HTTP request body for logging in.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

// LoginResponse is the HTTP response for a successful login.
type LoginResponse struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expiresAt"`
	User      UserResponse `json:"user"`
}

// UpdateProfileRequest is the HTTP request body for editing a profile.
type UpdateProfileRequest struct {
	Name    *string         `json:"name"`
	Phone   *string         `json:"phone"`
	Avatar  *string         `json:"avatar"`
	Vehicle *domain.Vehicle `json:"vehicle"`
}

// Signup handles POST /auth/signup
func (h *UserHandler) Signup(c *gin.Context) {
	var req SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body")
		return
	}

	user, err := h.authService.Signup(c.Request.Context(), service.SignupInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Phone:    req.Phone,
		Role:     req.Role,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusCreated, "account created", toUserResponse(user))
}

// Login handles POST /auth/login
func (h *UserHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body")
		return
	}

	session, err := h.authService.Login(c.Request.Context(), service.LoginInput{
		Email:    req.Email,
		Password: req.Password,
		Role:     req.Role,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, "login successful", LoginResponse{
		Token:     session.Token,
		ExpiresAt: session.ExpiresAt,
		User:      toUserResponse(session.User),
	})
}

// Me handles GET /auth/me
func (h *UserHandler) Me(c *gin.Context) {
	user, err := h.authService.Me(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, "", toUserResponse(user))
}

// GetProfile handles GET /api/user/profile and GET /api/driver/profile
func (h *UserHandler) GetProfile(c *gin.Context) {
	user, err := h.profileService.Get(c.Request.Context(), actor(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, "", toUserResponse(user))
}

// UpdateProfile handles PUT /api/user/profile and PUT /api/driver/profile
func (h *UserHandler) UpdateProfile(c *gin.Context) {
	var req UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body")
		return
	}

	user, err := h.profileService.Update(c.Request.Context(), actor(c), service.ProfileUpdate{
		Name:    req.Name,
		Phone:   req.Phone,
		Avatar:  req.Avatar,
		Vehicle: req.Vehicle,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, "profile updated", toUserResponse(user))
}
