// Package devserver is an in-process implementation of the poll service's
// REST and WebSocket contract. pollctl uses it for local development
// (`pollctl devserver`) and as the collaborator in client tests.
package devserver

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"pollctl/internal/auth"
	"pollctl/pkg/protocol"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

const userIDKey = "user_id"

type Server struct {
	db     *gorm.DB
	issuer *auth.Issuer
	hub    *Hub

	// serializes vote writes; SQLite does not take concurrent writers well
	voteMu sync.Mutex

	// DefaultWindow is the voting window used when a poll is created
	// without ends_at.
	DefaultWindow time.Duration
	Now           func() time.Time
	Logging       bool
}

func New(db *gorm.DB, secret []byte) *Server {
	return &Server{
		db:            db,
		issuer:        auth.NewIssuer(secret),
		hub:           NewHub(),
		DefaultWindow: 7 * 24 * time.Hour,
		Now:           time.Now,
	}
}

// Issuer exposes the token issuer, mainly so tests can shorten TTLs.
func (s *Server) Issuer() *auth.Issuer {
	return s.issuer
}

// Hub exposes the live results hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if s.Logging {
		r.Use(gin.Logger())
	}

	r.Use(cors.New(cors.Config{
		AllowOrigins:  []string{"*"},
		AllowMethods:  []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Accept", "Authorization", "Content-Type"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}))

	api := r.Group("/api")
	{
		api.POST("/auth/register/", s.Register)
		api.POST("/auth/login/", s.Login)
		api.POST("/auth/token/refresh/", s.RefreshToken)
		api.POST("/auth/logout/", s.Logout)

		api.GET("/polls/", s.optionalAuth(), s.ListPolls)
		api.POST("/polls/create/", s.requireAuth(), s.CreatePoll)
		api.GET("/polls/:id/", s.optionalAuth(), s.GetPoll)
		api.POST("/polls/:id/vote/", s.optionalAuth(), s.Vote)
		api.POST("/polls/:id/tokens/", s.requireAuth(), s.GenerateTokens)
		api.GET("/polls/:id/get-tokens/", s.requireAuth(), s.GetTokens)
		api.POST("/polls/:id/finalize/", s.requireAuth(), s.FinalizePoll)
		api.DELETE("/polls/:id/delete/", s.requireAuth(), s.DeletePoll)
	}

	r.GET("/ws/polls/:id/", s.hub.Serve)

	return r
}

// Run serves on addr until ctx is canceled.
func (s *Server) Run(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.hub.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	log.Printf("Dev server listening on %s (API under /api, live results under /ws/polls/)", addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) optionalAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if id, ok := s.bearerUser(c); ok {
			c.Set(userIDKey, id)
		}
		c.Next()
	}
}

func (s *Server) requireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := s.bearerUser(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, protocol.ErrorResponse{
				Detail:    "Authentication credentials were not provided or are invalid.",
				ErrorCode: protocol.ErrorCodeUnauthorized,
			})
			return
		}
		c.Set(userIDKey, id)
		c.Next()
	}
}

func (s *Server) bearerUser(c *gin.Context) (uint, bool) {
	header := c.GetHeader("Authorization")
	token, found := strings.CutPrefix(header, "Bearer ")
	if !found || token == "" {
		return 0, false
	}
	id, err := s.issuer.ParseAccess(token)
	if err != nil {
		return 0, false
	}
	return id, true
}

func currentUser(c *gin.Context) (uint, bool) {
	v, ok := c.Get(userIDKey)
	if !ok {
		return 0, false
	}
	id, ok := v.(uint)
	return id, ok
}

func abortError(c *gin.Context, status int, code protocol.ErrorCode, msg string) {
	c.AbortWithStatusJSON(status, protocol.ErrorResponse{Error: msg, ErrorCode: code})
}
