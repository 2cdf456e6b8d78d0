package services

import (
	"crypto/rand"
	"encoding/base32"
	"errors"
	"fmt"
	"time"

	"github.com/mediagallery/backend/internal/models"
	"github.com/mediagallery/backend/pkg/logger"
	"github.com/pquerna/otp/hotp"
	"gorm.io/gorm"
)

const otpChallengeTTL = 10 * time.Minute

var (
	ErrOTPInvalid = errors.New("invalid or expired code")
)

// OTPService issues and verifies emailed one-time codes. Each challenge gets
// its own random hotp secret persisted server side; the derived code is
// mailed and never stored or echoed in a response.
type OTPService struct {
	DB     *gorm.DB
	Mailer Mailer
}

func NewOTPService(db *gorm.DB, mailer Mailer) *OTPService {
	return &OTPService{DB: db, Mailer: mailer}
}

func (s *OTPService) Issue(email string, purpose models.OTPPurpose) error {
	secretBytes := make([]byte, 20)
	if _, err := rand.Read(secretBytes); err != nil {
		return err
	}
	secret := base32.StdEncoding.EncodeToString(secretBytes)

	challenge := models.OTPChallenge{
		Email:     email,
		Purpose:   purpose,
		Secret:    secret,
		Counter:   1,
		ExpiresAt: time.Now().UTC().Add(otpChallengeTTL),
	}

	code, err := hotp.GenerateCode(secret, challenge.Counter)
	if err != nil {
		return err
	}

	// Supersede any earlier open challenge for the same email and purpose.
	if err := s.DB.Model(&models.OTPChallenge{}).
		Where("email = ? AND purpose = ? AND consumed_at IS NULL", email, purpose).
		Update("consumed_at", time.Now().UTC()).Error; err != nil {
		return err
	}

	if err := s.DB.Create(&challenge).Error; err != nil {
		return err
	}

	subject, intro := mailTextForPurpose(purpose)
	body := fmt.Sprintf("%s\n\nYour one-time code is: %s\n\nIt expires in %d minutes.", intro, code, int(otpChallengeTTL.Minutes()))
	if err := s.Mailer.Send(email, subject, body); err != nil {
		return err
	}

	logger.Info("otp_challenge_issued", map[string]interface{}{
		"email":   email,
		"purpose": string(purpose),
	})
	return nil
}

// Verify consumes the newest open challenge for the email/purpose pair. A
// challenge is single-use whether or not the code matched.
func (s *OTPService) Verify(email string, purpose models.OTPPurpose, code string) error {
	var challenge models.OTPChallenge
	err := s.DB.
		Where("email = ? AND purpose = ? AND consumed_at IS NULL", email, purpose).
		Order("created_at DESC").
		First(&challenge).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrOTPInvalid
		}
		return err
	}

	now := time.Now().UTC()
	if err := s.DB.Model(&models.OTPChallenge{}).
		Where("id = ?", challenge.ID).
		Update("consumed_at", now).Error; err != nil {
		return err
	}

	if now.After(challenge.ExpiresAt) {
		logger.Warn("otp_challenge_expired", map[string]interface{}{
			"email":   email,
			"purpose": string(purpose),
		})
		return ErrOTPInvalid
	}

	if !hotp.Validate(code, challenge.Counter, challenge.Secret) {
		logger.Warn("otp_code_mismatch", map[string]interface{}{
			"email":   email,
			"purpose": string(purpose),
		})
		return ErrOTPInvalid
	}

	return nil
}

func mailTextForPurpose(purpose models.OTPPurpose) (subject, intro string) {
	switch purpose {
	case models.OTPPurposeResetPassword:
		return "Password Reset - Media Gallery", "We received a request to reset your password."
	default:
		return "Verify Your Email - Media Gallery", "Welcome to Media Gallery. Please verify your email address."
	}
}
