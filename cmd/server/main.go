package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/mediagallery/backend/internal/config"
	"github.com/mediagallery/backend/internal/database"
	"github.com/mediagallery/backend/internal/handlers"
	"github.com/mediagallery/backend/internal/middleware"
	"github.com/mediagallery/backend/internal/services"
	"github.com/mediagallery/backend/internal/storage"
	"github.com/mediagallery/backend/pkg/logger"
	"github.com/mediagallery/backend/pkg/utils"
)

func main() {
	logger.Init()

	cfg := config.Load()
	utils.ConfigureJWT(cfg.JWT.Secret, cfg.JWT.ExpirationHours)

	db, err := database.Connect(cfg.DB)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}

	storageClient, err := storage.NewMinIOClient(cfg.MinIO)
	if err != nil {
		log.Fatalf("minio initialization failed: %v", err)
	}
	if err := storageClient.EnsureBucket(context.Background()); err != nil {
		log.Fatalf("failed ensuring minio bucket: %v", err)
	}

	var mailer services.Mailer
	if cfg.SMTP.Host != "" {
		mailer = services.NewSMTPMailer(cfg.SMTP)
	} else {
		mailer = services.NewLogMailer()
	}

	var google services.GoogleAuthenticator
	if cfg.Google.ClientID != "" {
		googleService, err := services.NewGoogleService(context.Background(), cfg.Google)
		if err != nil {
			log.Fatalf("google oauth initialization failed: %v", err)
		}
		google = googleService
	}

	otpService := services.NewOTPService(db, mailer)
	exportService := services.NewExportService(db, storageClient)

	authHandler := handlers.NewAuthHandler(db, otpService, google, cfg.Server.FrontendURL)
	mediaHandler := handlers.NewMediaHandler(db, storageClient, exportService)
	contactHandler := handlers.NewContactHandler(db)
	usersHandler := handlers.NewUsersHandler(db)

	authMiddleware := middleware.NewAuthMiddleware(db)

	app := fiber.New(fiber.Config{BodyLimit: cfg.Server.BodyLimitMB * 1024 * 1024})
	app.Use(recover.New(recover.Config{EnableStackTrace: true}))
	app.Use(middleware.CORS(cfg.Server.FrontendURL))
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

	listenAddr := fmt.Sprintf(":%s", cfg.Server.Port)

	logger.Info("server_starting", map[string]interface{}{
		"port":    cfg.Server.Port,
		"address": listenAddr,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Listen(listenAddr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Printf("shutting down server due to signal: %s", sig)
		shutdownDone := make(chan struct{})
		go func() {
			_ = app.Shutdown()
			close(shutdownDone)
		}()
		select {
		case <-shutdownDone:
		case <-time.After(10 * time.Second):
			log.Print("forced shutdown timeout reached")
		}
	case err := <-errCh:
		if err != nil {
			log.Fatalf("server error: %v", err)
		}
	}
}
