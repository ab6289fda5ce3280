package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tobylas-w/ThaiTable-sub000/auth"
	"github.com/tobylas-w/ThaiTable-sub000/middleware"
	"github.com/tobylas-w/ThaiTable-sub000/models"
)

type RegisterRequest struct {
	Email        string          `json:"email" binding:"required,email"`
	Password     string          `json:"password" binding:"required,min=8,max=72"`
	NameTH       string          `json:"name_th" binding:"required"`
	NameEN       string          `json:"name_en"`
	Role         models.UserRole `json:"role" binding:"omitempty,oneof=OWNER ADMIN MANAGER STAFF"`
	RestaurantID uint            `json:"restaurant_id" binding:"required"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

type LogoutRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type EmailRequest struct {
	Email string `json:"email" binding:"required,email"`
}

type ResetPasswordRequest struct {
	Token       string `json:"token" binding:"required"`
	NewPassword string `json:"newPassword" binding:"required,min=8,max=72"`
}

type TokenRequest struct {
	Token string `json:"token" binding:"required"`
}

func sessionBody(message string, s *auth.Session) gin.H {
	return gin.H{
		"success":      true,
		"message":      message,
		"user":         newUserView(s.User),
		"accessToken":  s.AccessToken,
		"refreshToken": s.RefreshToken,
	}
}

// Register creates a staff account in an existing restaurant
func (h *Handler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, err)
		return
	}
	session, err := h.Auth.Register(c.Request.Context(), auth.RegisterInput{
		Email:        req.Email,
		Password:     req.Password,
		NameTH:       req.NameTH,
		NameEN:       req.NameEN,
		Role:         req.Role,
		RestaurantID: req.RestaurantID,
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, sessionBody("Account created, please verify your email", session))
}

// Login authenticates a user and returns a token pair
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, err)
		return
	}
	session, err := h.Auth.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sessionBody("Login successful", session))
}

func (h *Handler) Refresh(c *gin.Context) {
	var req RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, err)
		return
	}
	pair, err := h.Auth.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"accessToken":  pair.AccessToken,
		"refreshToken": pair.RefreshToken,
	})
}

// Logout revokes the presented refresh token. It always succeeds for an
// authenticated caller.
func (h *Handler) Logout(c *gin.Context) {
	var req LogoutRequest
	// An empty or malformed body still logs out.
	_ = c.ShouldBindJSON(&req)
	if err := h.Auth.Logout(c.Request.Context(), middleware.CurrentIdentity(c).UserID(), req.RefreshToken); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Logged out"})
}

// ForgotPassword answers identically whether or not the account exists.
func (h *Handler) ForgotPassword(c *gin.Context) {
	var req EmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, err)
		return
	}
	h.Auth.ForgotPassword(c.Request.Context(), req.Email)
	c.JSON(http.StatusOK, gin.H{"success": true, "message": auth.ForgotPasswordMessage})
}

func (h *Handler) ResetPassword(c *gin.Context) {
	var req ResetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, err)
		return
	}
	if err := h.Auth.ResetPassword(c.Request.Context(), req.Token, req.NewPassword); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Password has been reset"})
}

func (h *Handler) VerifyEmail(c *gin.Context) {
	var req TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, err)
		return
	}
	if err := h.Auth.VerifyEmail(c.Request.Context(), req.Token); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Email verified"})
}

// ResendVerification answers identically whether or not the account exists.
func (h *Handler) ResendVerification(c *gin.Context) {
	var req EmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, err)
		return
	}
	h.Auth.ResendVerification(c.Request.Context(), req.Email)
	c.JSON(http.StatusOK, gin.H{"success": true, "message": auth.ResendVerificationMessage})
}

// Me returns the authenticated user's profile
func (h *Handler) Me(c *gin.Context) {
	user, _ := middleware.CurrentIdentity(c).User()
	c.JSON(http.StatusOK, gin.H{"success": true, "user": newUserView(user)})
}
