package models

import "time"

type OTPPurpose string

const (
	OTPPurposeVerifyEmail   OTPPurpose = "verify_email"
	OTPPurposeResetPassword OTPPurpose = "reset_password"
)

// OTPChallenge holds the server side of an emailed one-time code. The code
// itself is never stored or returned; it is derived from Secret and Counter
// and travels only by email.
type OTPChallenge struct {
	BaseModel
	Email      string     `json:"email" gorm:"type:varchar(255);not null;index"`
	Purpose    OTPPurpose `json:"purpose" gorm:"type:varchar(30);not null;index"`
	Secret     string     `json:"-" gorm:"type:text;not null"`
	Counter    uint64     `json:"-" gorm:"not null;default:1"`
	ExpiresAt  time.Time  `json:"expiresAt" gorm:"not null"`
	ConsumedAt *time.Time `json:"consumedAt,omitempty"`
}
