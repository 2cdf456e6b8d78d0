package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/mediagallery/backend/internal/middleware"
	"github.com/mediagallery/backend/internal/models"
	"github.com/mediagallery/backend/internal/services"
	"github.com/mediagallery/backend/pkg/logger"
	"github.com/mediagallery/backend/pkg/utils"
	"gorm.io/gorm"
)

const oauthStateCookie = "oauth_state"

type AuthHandler struct {
	DB          *gorm.DB
	OTP         *services.OTPService
	Google      services.GoogleAuthenticator
	FrontendURL string
}

func NewAuthHandler(db *gorm.DB, otp *services.OTPService, google services.GoogleAuthenticator, frontendURL string) *AuthHandler {
	return &AuthHandler{DB: db, OTP: otp, Google: google, FrontendURL: frontendURL}
}

type registerRequest struct {
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Name = strings.TrimSpace(req.Name)

	if err := validate.Struct(req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "name, a valid email and a password of at least 8 characters are required")
	}

	var existing models.User
	if err := h.DB.First(&existing, "email = ?", req.Email).Error; err == nil {
		return utils.Error(c, fiber.StatusConflict, "email already registered")
	} else if err != gorm.ErrRecordNotFound {
		return utils.Error(c, fiber.StatusInternalServerError, "failed checking existing user")
	}

	passwordHash, err := utils.HashPassword(req.Password)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to hash password")
	}

	user := models.User{
		Name:         req.Name,
		Email:        req.Email,
		PasswordHash: passwordHash,
		Role:         models.UserRoleUser,
		IsActive:     true,
	}

	if err := h.DB.Create(&user).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed creating user")
	}

	logger.Info("user_registered", map[string]interface{}{
		"user_id": user.ID.String(),
		"email":   user.Email,
	})

	if err := h.OTP.Issue(user.Email, models.OTPPurposeVerifyEmail); err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed sending verification email")
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"message": "verification code sent to email",
	})
}

type verifyOTPRequest struct {
	Email string `json:"email" validate:"required,email"`
	OTP   string `json:"otp" validate:"required"`
}

func (h *AuthHandler) VerifyOTP(c *fiber.Ctx) error {
	var req verifyOTPRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	if err := validate.Struct(req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "email and otp are required")
	}

	if err := h.OTP.Verify(req.Email, models.OTPPurposeVerifyEmail, req.OTP); err != nil {
		if err == services.ErrOTPInvalid {
			return utils.Error(c, fiber.StatusBadRequest, "invalid or expired code")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed verifying code")
	}

	if err := h.DB.Model(&models.User{}).Where("email = ?", req.Email).Update("is_email_verified", true).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed updating user")
	}

	logger.Info("email_verified", map[string]interface{}{"email": req.Email})

	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "email verified"})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	if req.Email == "" || req.Password == "" {
		return utils.Error(c, fiber.StatusBadRequest, "email and password are required")
	}

	var user models.User
	if err := h.DB.First(&user, "email = ?", req.Email).Error; err != nil {
		logger.Warn("login_failed_user_not_found", map[string]interface{}{
			"email": req.Email,
			"ip":    c.IP(),
		})
		return utils.Error(c, fiber.StatusUnauthorized, "invalid credentials")
	}

	if !user.IsActive {
		logger.WarnWithUser(user.ID.String(), "login_failed_inactive", map[string]interface{}{
			"email": req.Email,
			"ip":    c.IP(),
		})
		return utils.Error(c, fiber.StatusUnauthorized, "invalid credentials")
	}

	if !utils.CheckPassword(req.Password, user.PasswordHash) {
		logger.WarnWithUser(user.ID.String(), "login_failed_invalid_password", map[string]interface{}{
			"email": req.Email,
			"ip":    c.IP(),
		})
		return utils.Error(c, fiber.StatusUnauthorized, "invalid credentials")
	}

	if !user.IsEmailVerified {
		return utils.Error(c, fiber.StatusUnauthorized, "email not verified")
	}

	token, err := utils.GenerateToken(&user)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed generating token")
	}

	logger.InfoWithUser(user.ID.String(), "user_login", map[string]interface{}{
		"email": user.Email,
		"ip":    c.IP(),
	})

	return utils.Success(c, fiber.StatusOK, fiber.Map{"token": token, "user": user})
}

type googleLoginRequest struct {
	Token string `json:"token"`
}

func (h *AuthHandler) GoogleLogin(c *fiber.Ctx) error {
	if h.Google == nil {
		return utils.Error(c, fiber.StatusInternalServerError, "google login is not configured")
	}

	var req googleLoginRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Token) == "" {
		return utils.Error(c, fiber.StatusBadRequest, "token is required")
	}

	profile, err := h.Google.VerifyIDToken(c.Context(), req.Token)
	if err != nil {
		logger.Error("google_token_verification_failed", err, map[string]interface{}{
			"ip": c.IP(),
		})
		return utils.Error(c, fiber.StatusInternalServerError, "google login failed")
	}

	return h.finishGoogleLogin(c, profile, func(token string, user models.User) error {
		return utils.Success(c, fiber.StatusOK, fiber.Map{"token": token, "user": user})
	})
}

func (h *AuthHandler) GoogleRedirect(c *fiber.Ctx) error {
	if h.Google == nil {
		return utils.Error(c, fiber.StatusInternalServerError, "google login is not configured")
	}

	state := uuid.New().String()
	c.Cookie(&fiber.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		HTTPOnly: true,
		SameSite: "Lax",
		MaxAge:   300,
	})

	return c.Redirect(h.Google.AuthCodeURL(state), fiber.StatusTemporaryRedirect)
}

func (h *AuthHandler) GoogleCallback(c *fiber.Ctx) error {
	if h.Google == nil {
		return utils.Error(c, fiber.StatusInternalServerError, "google login is not configured")
	}

	state := c.Query("state")
	if state == "" || state != c.Cookies(oauthStateCookie) {
		return utils.Error(c, fiber.StatusBadRequest, "invalid oauth state")
	}
	c.ClearCookie(oauthStateCookie)

	code := c.Query("code")
	if code == "" {
		return utils.Error(c, fiber.StatusBadRequest, "missing authorization code")
	}

	profile, err := h.Google.Exchange(c.Context(), code)
	if err != nil {
		logger.Error("google_code_exchange_failed", err, nil)
		return utils.Error(c, fiber.StatusInternalServerError, "google login failed")
	}

	return h.finishGoogleLogin(c, profile, func(token string, user models.User) error {
		return c.Redirect(h.FrontendURL+"/oauth/callback?token="+token, fiber.StatusTemporaryRedirect)
	})
}

// finishGoogleLogin creates the user on first sight and issues a session
// token; a deactivated account is rejected even with a valid Google identity.
func (h *AuthHandler) finishGoogleLogin(c *fiber.Ctx, profile *services.GoogleProfile, respond func(token string, user models.User) error) error {
	email := strings.ToLower(strings.TrimSpace(profile.Email))
	provider := "google"

	var user models.User
	err := h.DB.First(&user, "email = ?", email).Error
	if err == gorm.ErrRecordNotFound {
		user = models.User{
			Name:            profile.Name,
			Email:           email,
			Role:            models.UserRoleUser,
			IsActive:        true,
			IsEmailVerified: true,
			AuthProvider:    &provider,
		}
		if user.Name == "" {
			user.Name = email
		}
		if err := h.DB.Create(&user).Error; err != nil {
			return utils.Error(c, fiber.StatusInternalServerError, "failed creating user")
		}
		logger.Info("user_created_via_google", map[string]interface{}{
			"user_id": user.ID.String(),
			"email":   user.Email,
		})
	} else if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading user")
	}

	if !user.IsActive {
		return utils.Error(c, fiber.StatusBadRequest, "account deactivated")
	}

	token, err := utils.GenerateToken(&user)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed generating token")
	}

	logger.InfoWithUser(user.ID.String(), "user_login_google", map[string]interface{}{
		"email": user.Email,
		"ip":    c.IP(),
	})

	return respond(token, user)
}

type forgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

func (h *AuthHandler) ForgotPassword(c *fiber.Ctx) error {
	var req forgotPasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	if err := validate.Struct(req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "a valid email is required")
	}

	var user models.User
	if err := h.DB.First(&user, "email = ?", req.Email).Error; err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "user not found")
	}

	if err := h.OTP.Issue(user.Email, models.OTPPurposeResetPassword); err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed sending password reset email")
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"message": "password reset code sent to email",
	})
}

type resetPasswordRequest struct {
	Email       string `json:"email" validate:"required,email"`
	OTP         string `json:"otp" validate:"required"`
	NewPassword string `json:"newPassword" validate:"required,min=8"`
}

func (h *AuthHandler) ResetPassword(c *fiber.Ctx) error {
	var req resetPasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	if err := validate.Struct(req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "email, otp and a newPassword of at least 8 characters are required")
	}

	var user models.User
	if err := h.DB.First(&user, "email = ?", req.Email).Error; err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "user not found")
	}

	if err := h.OTP.Verify(req.Email, models.OTPPurposeResetPassword, req.OTP); err != nil {
		if err == services.ErrOTPInvalid {
			return utils.Error(c, fiber.StatusBadRequest, "invalid or expired code")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed verifying code")
	}

	hash, err := utils.HashPassword(req.NewPassword)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed hashing password")
	}

	if err := h.DB.Model(&models.User{}).Where("id = ?", user.ID).Update("password_hash", hash).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed updating password")
	}

	logger.InfoWithUser(user.ID.String(), "password_reset", map[string]interface{}{
		"email": user.Email,
	})

	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "password reset successful"})
}

func (h *AuthHandler) Me(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}
	return utils.Success(c, fiber.StatusOK, user)
}
