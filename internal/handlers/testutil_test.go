package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/mediagallery/backend/internal/database"
	"github.com/mediagallery/backend/internal/middleware"
	"github.com/mediagallery/backend/internal/models"
	"github.com/mediagallery/backend/internal/services"
	"github.com/mediagallery/backend/internal/storage"
	"github.com/mediagallery/backend/pkg/logger"
	"github.com/mediagallery/backend/pkg/utils"
	"gorm.io/gorm"
)

type testEnv struct {
	app    *fiber.App
	db     *gorm.DB
	store  *memoryStore
	mailer *recordingMailer
	google *stubGoogle
}

var testSetupOnce sync.Once

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()

	testSetupOnce.Do(func() {
		logger.Init()
		utils.ConfigureJWT("test-secret", 24)
	})

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed opening in-memory sqlite database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed getting sql.DB from gorm: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	if err := database.Migrate(db); err != nil {
		t.Fatalf("failed migrating models: %v", err)
	}

	store := newMemoryStore()
	mailer := &recordingMailer{}
	google := &stubGoogle{}

	otpService := services.NewOTPService(db, mailer)
	exportService := services.NewExportService(db, store)

	authHandler := NewAuthHandler(db, otpService, google, "http://localhost:3001")
	mediaHandler := NewMediaHandler(db, store, exportService)
	contactHandler := NewContactHandler(db)
	usersHandler := NewUsersHandler(db)
	authMiddleware := middleware.NewAuthMiddleware(db)

	app := fiber.New(fiber.Config{BodyLimit: 100 * 1024 * 1024})
	app.Use(recover.New(recover.Config{EnableStackTrace: true}))
	app.Use(middleware.CORS("http://localhost:3001"))
	app.Use(middleware.RequestLogger())
	app.Use(middleware.SecurityLogger())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api")

	authRoutes := api.Group("/auth")
	authRoutes.Post("/register", authHandler.Register)
	authRoutes.Post("/verify-otp", authHandler.VerifyOTP)
	authRoutes.Post("/login", authHandler.Login)
	authRoutes.Post("/google", authHandler.GoogleLogin)
	authRoutes.Get("/google/redirect", authHandler.GoogleRedirect)
	authRoutes.Get("/google/callback", authHandler.GoogleCallback)
	authRoutes.Post("/forgot-password", authHandler.ForgotPassword)
	authRoutes.Post("/reset-password", authHandler.ResetPassword)
	authRoutes.Get("/me", authMiddleware.RequireAuth, authHandler.Me)

	mediaRoutes := api.Group("/media", authMiddleware.RequireAuth)
	mediaRoutes.Post("/upload", mediaHandler.Upload)
	mediaRoutes.Get("/personal", mediaHandler.ListPersonal)
	mediaRoutes.Get("/shared", mediaHandler.ListShared)
	mediaRoutes.Get("/search", mediaHandler.Search)
	mediaRoutes.Post("/download-zip", mediaHandler.DownloadZip)
	mediaRoutes.Get("/:id/files/:fileID/download", mediaHandler.DownloadFile)
	mediaRoutes.Put("/:id", mediaHandler.Update)
	mediaRoutes.Delete("/:id", mediaHandler.Delete)

	contactRoutes := api.Group("/contact", authMiddleware.RequireAuth)
	contactRoutes.Get("/admin/all", middleware.AdminOnly, contactHandler.AdminListAll)
	contactRoutes.Delete("/admin/:id", middleware.AdminOnly, contactHandler.Delete)
	contactRoutes.Post("/", contactHandler.Create)
	contactRoutes.Get("/", contactHandler.ListOwn)
	contactRoutes.Put("/:id", contactHandler.Update)
	contactRoutes.Delete("/:id", contactHandler.Delete)

	adminUserRoutes := api.Group("/admin/users", authMiddleware.RequireAuth, middleware.AdminOnly)
	adminUserRoutes.Get("/", usersHandler.List)
	adminUserRoutes.Get("/:id", usersHandler.Get)
	adminUserRoutes.Put("/:id/deactivate", usersHandler.Deactivate)
	adminUserRoutes.Put("/:id", usersHandler.Update)

	return &testEnv{app: app, db: db, store: store, mailer: mailer, google: google}
}

type memoryObject struct {
	data        []byte
	contentType string
}

// memoryStore is the in-process stand-in for the MinIO object store.
type memoryStore struct {
	mu      sync.Mutex
	objects map[string]memoryObject
}

func newMemoryStore() *memoryStore {
	return &memoryStore{objects: map[string]memoryObject{}}
}

func (s *memoryStore) Upload(_ context.Context, objectName string, reader io.Reader, _ int64, contentType string) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[objectName] = memoryObject{data: data, contentType: contentType}
	return nil
}

func (s *memoryStore) Download(_ context.Context, objectName string) (io.ReadCloser, storage.ObjectInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.objects[objectName]
	if !ok {
		return nil, storage.ObjectInfo{}, storage.ErrObjectNotFound
	}
	info := storage.ObjectInfo{Size: int64(len(obj.data)), ContentType: obj.contentType}
	return io.NopCloser(bytes.NewReader(obj.data)), info, nil
}

func (s *memoryStore) Delete(_ context.Context, objectName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, objectName)
	return nil
}

func (s *memoryStore) objectCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}

func (s *memoryStore) remove(objectName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, objectName)
}

type sentMail struct {
	To      string
	Subject string
	Body    string
}

// recordingMailer captures outgoing mail so tests can read emailed codes.
type recordingMailer struct {
	mu   sync.Mutex
	sent []sentMail
}

func (m *recordingMailer) Send(to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMail{To: to, Subject: subject, Body: body})
	return nil
}

var otpCodePattern = regexp.MustCompile(`one-time code is: (\d{6})`)

// lastCodeFor returns the code from the most recent mail sent to the address.
func (m *recordingMailer) lastCodeFor(t *testing.T, email string) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := len(m.sent) - 1; i >= 0; i-- {
		if m.sent[i].To != email {
			continue
		}
		match := otpCodePattern.FindStringSubmatch(m.sent[i].Body)
		if match == nil {
			t.Fatalf("mail to %s carries no code: %q", email, m.sent[i].Body)
		}
		return match[1]
	}

	t.Fatalf("no mail sent to %s", email)
	return ""
}

// stubGoogle satisfies services.GoogleAuthenticator without network access.
type stubGoogle struct {
	profile *services.GoogleProfile
	err     error
}

func (g *stubGoogle) VerifyIDToken(_ context.Context, _ string) (*services.GoogleProfile, error) {
	if g.err != nil {
		return nil, g.err
	}
	if g.profile == nil {
		return nil, errors.New("no stub profile configured")
	}
	return g.profile, nil
}

func (g *stubGoogle) AuthCodeURL(state string) string {
	return "https://accounts.google.com/o/oauth2/auth?state=" + state
}

func (g *stubGoogle) Exchange(_ context.Context, _ string) (*services.GoogleProfile, error) {
	if g.err != nil {
		return nil, g.err
	}
	if g.profile == nil {
		return nil, errors.New("no stub profile configured")
	}
	return g.profile, nil
}

func createTestUser(t *testing.T, db *gorm.DB, email, password string, role models.UserRole) (*models.User, string) {
	t.Helper()

	hash, err := utils.HashPassword(password)
	if err != nil {
		t.Fatalf("failed hashing password: %v", err)
	}

	user := &models.User{
		Name:            "Test User",
		Email:           email,
		PasswordHash:    hash,
		Role:            role,
		IsActive:        true,
		IsEmailVerified: true,
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("failed creating test user: %v", err)
	}

	token, err := utils.GenerateToken(user)
	if err != nil {
		t.Fatalf("failed generating auth token: %v", err)
	}

	return user, token
}

func authHeaders(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func performRequest(t *testing.T, app *fiber.App, method, path string, body io.Reader, headers map[string]string) *http.Response {
	t.Helper()

	req := httptest.NewRequest(method, path, body)
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := app.Test(req, int((10 * time.Second).Milliseconds()))
	if err != nil {
		t.Fatalf("request %s %s failed: %v", method, path, err)
	}

	return resp
}

func performJSONRequest(t *testing.T, app *fiber.App, method, path string, payload any, headers map[string]string) *http.Response {
	t.Helper()

	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("failed to marshal payload: %v", err)
		}
		body = bytes.NewReader(encoded)
	}

	requestHeaders := map[string]string{}
	for key, value := range headers {
		requestHeaders[key] = value
	}
	if payload != nil {
		requestHeaders["Content-Type"] = "application/json"
	}

	return performRequest(t, app, method, path, body, requestHeaders)
}

func decodeJSONMap(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed reading response body: %v", err)
	}

	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		t.Fatalf("failed decoding JSON response: %v body=%q", err, string(raw))
	}

	return payload
}

func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Fatalf("expected status %d, got %d", expected, resp.StatusCode)
	}
}

func assertEnvelopeError(t *testing.T, body map[string]any, expected string) {
	t.Helper()
	if success, _ := body["success"].(bool); success {
		t.Fatalf("expected success=false, got %+v", body)
	}
	if got, _ := body["message"].(string); got != expected {
		t.Fatalf("expected message %q, got %q", expected, got)
	}
}
