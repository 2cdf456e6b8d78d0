package services

import (
	"regexp"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/mediagallery/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type captureMailer struct {
	bodies []string
}

func (m *captureMailer) Send(_, _, body string) error {
	m.bodies = append(m.bodies, body)
	return nil
}

var codePattern = regexp.MustCompile(`one-time code is: (\d{6})`)

func (m *captureMailer) lastCode(t *testing.T) string {
	t.Helper()
	require.NotEmpty(t, m.bodies, "no mail captured")
	match := codePattern.FindStringSubmatch(m.bodies[len(m.bodies)-1])
	require.NotNil(t, match, "mail body carries no code: %q", m.bodies[len(m.bodies)-1])
	return match[1]
}

func setupOTPTest(t *testing.T) (*OTPService, *captureMailer, *gorm.DB) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(&models.OTPChallenge{}))

	mailer := &captureMailer{}
	return NewOTPService(db, mailer), mailer, db
}

func TestOTPIssueAndVerify(t *testing.T) {
	service, mailer, db := setupOTPTest(t)

	require.NoError(t, service.Issue("user@test.com", models.OTPPurposeVerifyEmail))
	code := mailer.lastCode(t)

	t.Run("the secret is persisted, the code is not", func(t *testing.T) {
		var challenge models.OTPChallenge
		require.NoError(t, db.First(&challenge, "email = ?", "user@test.com").Error)
		assert.NotEmpty(t, challenge.Secret)
		assert.NotEqual(t, code, challenge.Secret)
		assert.Nil(t, challenge.ConsumedAt)
	})

	t.Run("the mailed code verifies once", func(t *testing.T) {
		require.NoError(t, service.Verify("user@test.com", models.OTPPurposeVerifyEmail, code))
	})

	t.Run("a consumed challenge cannot be replayed", func(t *testing.T) {
		assert.ErrorIs(t, service.Verify("user@test.com", models.OTPPurposeVerifyEmail, code), ErrOTPInvalid)
	})
}

func TestOTPWrongCodeBurnsChallenge(t *testing.T) {
	service, mailer, _ := setupOTPTest(t)

	require.NoError(t, service.Issue("user@test.com", models.OTPPurposeVerifyEmail))
	code := mailer.lastCode(t)

	assert.ErrorIs(t, service.Verify("user@test.com", models.OTPPurposeVerifyEmail, "000000"), ErrOTPInvalid)

	// The challenge is single-use even after a mismatch.
	assert.ErrorIs(t, service.Verify("user@test.com", models.OTPPurposeVerifyEmail, code), ErrOTPInvalid)
}

func TestOTPExpiry(t *testing.T) {
	service, mailer, db := setupOTPTest(t)

	require.NoError(t, service.Issue("user@test.com", models.OTPPurposeResetPassword))
	code := mailer.lastCode(t)

	require.NoError(t, db.Model(&models.OTPChallenge{}).
		Where("email = ?", "user@test.com").
		Update("expires_at", time.Now().UTC().Add(-time.Minute)).Error)

	assert.ErrorIs(t, service.Verify("user@test.com", models.OTPPurposeResetPassword, code), ErrOTPInvalid)
}

func TestOTPNewIssueSupersedesOldChallenge(t *testing.T) {
	service, mailer, _ := setupOTPTest(t)

	require.NoError(t, service.Issue("user@test.com", models.OTPPurposeVerifyEmail))
	firstCode := mailer.lastCode(t)

	require.NoError(t, service.Issue("user@test.com", models.OTPPurposeVerifyEmail))
	secondCode := mailer.lastCode(t)

	if firstCode != secondCode {
		assert.ErrorIs(t, service.Verify("user@test.com", models.OTPPurposeVerifyEmail, firstCode), ErrOTPInvalid)
		require.NoError(t, service.Issue("user@test.com", models.OTPPurposeVerifyEmail))
		secondCode = mailer.lastCode(t)
	}

	require.NoError(t, service.Verify("user@test.com", models.OTPPurposeVerifyEmail, secondCode))
}

func TestOTPPurposesAreIsolated(t *testing.T) {
	service, mailer, _ := setupOTPTest(t)

	require.NoError(t, service.Issue("user@test.com", models.OTPPurposeVerifyEmail))
	verifyCode := mailer.lastCode(t)

	assert.ErrorIs(t, service.Verify("user@test.com", models.OTPPurposeResetPassword, verifyCode), ErrOTPInvalid)
}

func TestOTPUnknownEmail(t *testing.T) {
	service, _, _ := setupOTPTest(t)

	assert.ErrorIs(t, service.Verify("nobody@test.com", models.OTPPurposeVerifyEmail, "123456"), ErrOTPInvalid)
}
