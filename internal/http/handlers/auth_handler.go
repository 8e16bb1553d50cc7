// README: Auth handlers: signup with email OTP, login, login OTP and the current user.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"ridebook/internal/http/middleware"
	"ridebook/internal/modules/auth"
	"ridebook/internal/types"
)

type AuthService interface {
	StartSignup(ctx context.Context, email string) error
	CompleteSignup(ctx context.Context, cmd auth.SignupCommand) (*auth.Session, error)
	Login(ctx context.Context, cmd auth.LoginCommand) (*auth.Session, error)
	RequestLoginOTP(ctx context.Context, email string) error
	Me(ctx context.Context, id types.ID) (*auth.Profile, error)
}

type AuthHandler struct {
	auth AuthService
}

func NewAuthHandler(svc AuthService) *AuthHandler {
	return &AuthHandler{auth: svc}
}

type emailReq struct {
	Email string `json:"email" binding:"required,email"`
}

type verifySignupReq struct {
	Name     string     `json:"name" binding:"required"`
	Email    string     `json:"email" binding:"required,email"`
	Mobile   string     `json:"mobile"`
	Password string     `json:"password" binding:"required"`
	Role     types.Role `json:"role" binding:"required,oneof=client driver"`
	OTP      string     `json:"otp" binding:"required"`
}

type loginReq struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required_without=OTP"`
	OTP      string `json:"otp"`
}

func (h *AuthHandler) Signup(c *gin.Context) {
	var req emailReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}
	if err := h.auth.StartSignup(c.Request.Context(), req.Email); err != nil {
		writeAuthError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, "OTP sent to email", nil)
}

func (h *AuthHandler) VerifySignup(c *gin.Context) {
	var req verifySignupReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}
	sess, err := h.auth.CompleteSignup(c.Request.Context(), auth.SignupCommand{
		Name:     req.Name,
		Email:    req.Email,
		Mobile:   req.Mobile,
		Password: req.Password,
		Role:     req.Role,
		OTP:      req.OTP,
	})
	if err != nil {
		writeAuthError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, "Signup successful", sess)
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req loginReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}
	sess, err := h.auth.Login(c.Request.Context(), auth.LoginCommand{Email: req.Email, Password: req.Password, OTP: req.OTP})
	if err != nil {
		writeAuthError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, "Login successful", sess)
}

func (h *AuthHandler) LoginOTP(c *gin.Context) {
	var req emailReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}
	if err := h.auth.RequestLoginOTP(c.Request.Context(), req.Email); err != nil {
		writeAuthError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, "OTP sent to email", nil)
}

func (h *AuthHandler) Me(c *gin.Context) {
	p, err := h.auth.Me(c.Request.Context(), types.ID(middleware.CallerUID(c)))
	if err != nil {
		writeAuthError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, "", p)
}
