package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bapaynter/commtrack/internal/config"
	"github.com/bapaynter/commtrack/internal/handlers"
	"github.com/bapaynter/commtrack/internal/store"
	"github.com/bapaynter/commtrack/internal/uploads"
	"github.com/gorilla/csrf"
	"github.com/gorilla/sessions"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	// 2. Init storage
	db, err := store.NewFileDB(cfg.DataPath)
	if err != nil {
		slog.Error("Failed to initialize data file", "path", cfg.DataPath, "error", err)
		os.Exit(1)
	}
	uploadStore, err := uploads.NewStore(cfg.UploadDir, cfg.MaxUploadBytes, cfg.ThumbnailWidth)
	if err != nil {
		slog.Error("Failed to initialize upload directory", "dir", cfg.UploadDir, "error", err)
		os.Exit(1)
	}
	repo := store.NewRepository(db, uploadStore)

	// 3. Session Setup
	sessionStore := sessions.NewCookieStore(cfg.SessionKey)
	sessionStore.Options.HttpOnly = true
	sessionStore.Options.Secure = cfg.CookieSecure
	sessionStore.Options.SameSite = http.SameSiteLaxMode
	sessionStore.Options.Path = "/"
	sessionStore.Options.MaxAge = handlers.SessionMaxAge
	if cfg.CookieDomain != "" {
		sessionStore.Options.Domain = cfg.CookieDomain
	}

	// 4. Init Templates
	templates := handlers.NewTemplateCache()
	if err := templates.Load(cfg.TemplatesDir); err != nil {
		slog.Error("Failed to load templates", "dir", cfg.TemplatesDir, "error", err)
		os.Exit(1)
	}

	// 5. Setup Handlers
	adminHandler := &handlers.AdminHandler{
		Store:        repo,
		Uploads:      uploadStore,
		SessionStore: sessionStore,
		Templates:    templates,
		Password:     cfg.AdminPassword,
		PasswordHash: cfg.AdminPasswordHash,
	}
	loginLimiter := handlers.NewRateLimiter(cfg.LoginRateWindow)
	defer loginLimiter.Stop()
	mux := adminHandler.Routes(cfg.StaticDir, loginLimiter)

	// 6. Middleware Setup
	CSRF := csrf.Protect(
		cfg.CSRFKey,
		csrf.Secure(cfg.CookieSecure),
		csrf.Path("/"),
		csrf.TrustedOrigins([]string{"localhost:" + cfg.Port, "127.0.0.1:" + cfg.Port, "localhost", "127.0.0.1"}),
	)

	// Chain: Logger -> Security Headers -> CSRF -> Mux
	handler := handlers.LoggingMiddleware(
		handlers.SecurityHeadersMiddleware(
			plaintext(cfg.CookieSecure, CSRF(mux)),
		),
	)

	// 7. Start Server with Graceful Shutdown
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("Server starting", "port", cfg.Port, "data", cfg.DataPath, "uploads", uploadStore.Dir)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Server failed to listen and serve", "error", err)
			os.Exit(1)
		}
	}()

	<-stop

	slog.Info("Shutting down server gracefully...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		slog.Error("Server shutdown failed", "error", err)
		os.Exit(1)
	}

	slog.Info("Server exited gracefully.")
}

// plaintext marks requests as plain HTTP for the CSRF origin check when the
// server is not behind TLS.
func plaintext(secure bool, next http.Handler) http.Handler {
	if secure {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, csrf.PlaintextHTTPRequest(r))
	})
}
