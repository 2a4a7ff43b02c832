// Package server is the ragdesk HTTP surface: sign-in, the chat proxy and
// the admin console API, served by echo.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/ragdesk/ragdesk/internal/docsync"
	"github.com/ragdesk/ragdesk/internal/ratelimit"
	"github.com/ragdesk/ragdesk/internal/store"
	"github.com/ragdesk/ragdesk/internal/tokens"
)

// loginStateTTL bounds how long a sign-in may take between /auth/login and
// the callback.
const loginStateTTL = 10 * time.Minute

// Store is the persistence the handlers need.
type Store interface {
	Ping(ctx context.Context) error

	UpsertUserByEmail(ctx context.Context, email, name string) (*store.User, error)
	GetUser(ctx context.Context, id string) (*store.User, error)
	ListUsers(ctx context.Context) ([]store.User, error)
	UpdateRoles(ctx context.Context, changes []store.RoleChange) (int, error)
	DeleteUsers(ctx context.Context, ids []string) (int, error)

	UpsertAccount(ctx context.Context, a store.Account) error

	TouchSession(ctx context.Context, sessionID, userID string) error
	ListSessions(ctx context.Context) ([]store.SessionSummary, error)
	GetSession(ctx context.Context, sessionID string) (*store.SessionDetail, error)
	ListMessages(ctx context.Context, sessionID string) ([]store.ChatMessage, error)
	AppendMessage(ctx context.Context, sessionID, msgType, content string) error
	DeleteSessions(ctx context.Context, ids []string) (int, error)

	ListDocuments(ctx context.Context) ([]store.DocumentMetadata, error)
}

// TokenResolver yields Graph access tokens for a signed-in account.
type TokenResolver interface {
	Resolve(ctx context.Context, accountID string) tokens.Result
}

// DocSync runs knowledge-base uploads and deletes.
type DocSync interface {
	Delete(ctx context.Context, accessToken string, ids []string) (*docsync.DeleteReport, error)
	Upload(ctx context.Context, accessToken, folderID string, files []docsync.EncryptedFile) (*docsync.UploadReport, error)
}

// ChatSender forwards a message to the chat workflow.
type ChatSender interface {
	Send(ctx context.Context, sessionID, input string) (string, error)
}

// Limiter decides whether a key may make another request.
type Limiter interface {
	Allow(key string) ratelimit.Decision
}

// TokenEncrypter encrypts tokens before they are stored.
type TokenEncrypter interface {
	Encrypt(plaintext string) (string, error)
}

// Deps are the collaborators a Server is built from. Logger may be nil.
type Deps struct {
	Store    Store
	Tokens   TokenResolver
	Docs     DocSync
	Drive    Drive
	Chat     ChatSender
	Limiter  Limiter
	Auth     Authenticator
	Codec    TokenEncrypter
	Sessions *SessionManager
	Logger   *slog.Logger
}

// Options are the behavioral settings of a Server.
type Options struct {
	FolderID      string // knowledge-base root; resolved from FolderName when empty
	FolderName    string
	RecordHistory bool // write chat exchanges to chat_history
}

// Server wires handlers onto an echo instance.
type Server struct {
	echo     *echo.Echo
	store    Store
	tokens   TokenResolver
	docs     DocSync
	drive    Drive
	chat     ChatSender
	limiter  Limiter
	auth     Authenticator
	codec    TokenEncrypter
	sessions *SessionManager
	logger   *slog.Logger
	opts     Options

	// loginStates maps an OAuth state to its PKCE verifier.
	loginStates *ttlcache.Cache[string, string]

	// rootIDs caches the looked-up knowledge-base folder per Microsoft
	// account, since each account sees the shared folder under its own ID.
	rootMu  sync.Mutex
	rootIDs map[string]string

	nowFunc func() time.Time
}

// New builds a Server and registers every route. Call Close when done.
func New(deps Deps, opts Options) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	states := ttlcache.New(
		ttlcache.WithTTL[string, string](loginStateTTL),
		ttlcache.WithDisableTouchOnHit[string, string](),
	)
	go states.Start()

	s := &Server{
		echo:        echo.New(),
		store:       deps.Store,
		tokens:      deps.Tokens,
		docs:        deps.Docs,
		drive:       deps.Drive,
		chat:        deps.Chat,
		limiter:     deps.Limiter,
		auth:        deps.Auth,
		codec:       deps.Codec,
		sessions:    deps.Sessions,
		logger:      logger,
		opts:        opts,
		loginStates: states,
		rootIDs:     make(map[string]string),
		nowFunc:     time.Now,
	}

	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.HTTPErrorHandler = s.httpErrorHandler

	s.routes()

	return s
}

func (s *Server) routes() {
	e := s.echo

	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{Generator: newRequestID}))
	e.Use(s.requestLogger())
	e.Use(middleware.Recover())
	e.Use(observeRequests)
	e.Use(s.loadSession)

	e.GET("/healthz", s.handleHealth)
	e.GET("/metrics", echo.WrapHandler(metricsHandler()))

	e.GET("/auth/login", s.handleLogin)
	e.GET("/auth/callback", s.handleCallback)
	e.POST("/auth/logout", s.handleLogout)

	e.GET("/", s.handleChatPage)

	admin := e.Group("/admin", s.adminPageGate)
	admin.GET("", s.handleAdminIndex)
	admin.GET("/", s.handleAdminIndex)
	admin.GET("/users", s.handleAdminPage("Users"))
	admin.GET("/docs", s.handleAdminPage("Documents"))
	admin.GET("/chats", s.handleAdminPage("Chats"))

	api := e.Group("/api", requireSession)
	modOrAdmin := requireRole(store.RoleMod, store.RoleAdmin)
	adminOnly := requireRole(store.RoleAdmin)

	api.POST("/chat", s.handleChat)
	api.GET("/chat", s.handleListChats, modOrAdmin)
	api.DELETE("/chat", s.handleDeleteChats, adminOnly)
	api.GET("/chat/:id", s.handleGetChat, modOrAdmin)
	api.DELETE("/chat/reset/:id", s.handleResetChat)

	api.GET("/users", s.handleListUsers, adminOnly)
	api.PATCH("/users", s.handleUpdateRoles, adminOnly)
	api.DELETE("/users", s.handleDeleteUsers, adminOnly)

	api.GET("/docs", s.handleListDocs, modOrAdmin)
	api.POST("/docs", s.handleUploadDocs, modOrAdmin)
	api.DELETE("/docs", s.handleDeleteDocs, modOrAdmin)

	api.GET("/graph/debug", s.handleGraphDebug, adminOnly)
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Close stops background goroutines. It does not stop a running listener;
// cancel the context passed to Run for that.
func (s *Server) Close() {
	s.loginStates.Stop()
}

// Run serves on addr until ctx is canceled, then drains in-flight requests
// for at most shutdownTimeout.
func (s *Server) Run(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.echo,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("http server listening", slog.String("addr", addr))

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}

		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server: listening on %s: %w", addr, err)
		}

		return nil
	case <-ctx.Done():
	}

	s.logger.Info("http server shutting down", slog.Duration("timeout", shutdownTimeout))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}

	return nil
}

// rootFolder returns the knowledge-base root folder ID for accountID. A
// configured folder ID is used as-is; otherwise the folder is looked up by
// name once per account.
func (s *Server) rootFolder(ctx context.Context, accountID, accessToken string) (string, error) {
	if s.opts.FolderID != "" {
		return s.opts.FolderID, nil
	}

	s.rootMu.Lock()
	defer s.rootMu.Unlock()

	if id, ok := s.rootIDs[accountID]; ok {
		return id, nil
	}

	item, err := s.drive.ItemByPath(ctx, accessToken, s.opts.FolderName)
	if err != nil {
		return "", fmt.Errorf("server: resolving folder %q: %w", s.opts.FolderName, err)
	}

	s.rootIDs[accountID] = item.ID
	s.logger.Info("resolved knowledge base folder",
		slog.String("account_id", accountID),
		slog.String("folder_name", s.opts.FolderName),
		slog.String("folder_id", item.ID),
	)

	return item.ID, nil
}
