package web

import (
	"errors"
	"net/http"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"kitefeed/internal/application/port"
	"kitefeed/internal/application/service"
	"kitefeed/internal/application/usecase/stream"
	"kitefeed/internal/domain/model"
)

const (
	sessionCookie = "kitefeed_session"
	cookieMaxAge  = 86400
)

// SessionFactory builds a fresh streaming session for one client. The
// web layer never constructs sessions itself; wiring lives in main.
type SessionFactory func(id string, cred model.Credential, sink port.EventSink) *stream.Session

type Server struct {
	addr       string
	staticDir  string
	manager    *service.SessionManager
	newSession SessionFactory
	engine     *gin.Engine
	upgrader   websocket.Upgrader
}

func NewServer(addr, staticDir string, manager *service.SessionManager, factory SessionFactory) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		addr:       addr,
		staticDir:  staticDir,
		manager:    manager,
		newSession: factory,
		engine:     gin.New(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
	s.engine.Use(gin.Recovery())
	s.routes()
	return s
}

func (s *Server) routes() {
	s.engine.POST("/api/register", s.handleRegister)
	s.engine.POST("/api/exchange", s.handleExchange)
	s.engine.POST("/api/logout", s.handleLogout)
	s.engine.GET("/healthz", s.handleHealth)
	s.engine.GET("/ws", s.handleWS)

	if s.staticDir != "" {
		s.engine.StaticFile("/", filepath.Join(s.staticDir, "index.html"))
		s.engine.Static("/assets", s.staticDir)
	}
}

// Handler exposes the router, mainly for tests and for the http.Server
// in main.
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) Addr() string { return s.addr }

// sessionID returns the client's session id, minting a cookie when the
// client doesn't have one yet.
func (s *Server) sessionID(c *gin.Context) string {
	if id, err := c.Cookie(sessionCookie); err == nil && id != "" {
		return id
	}
	id := uuid.NewString()
	c.SetCookie(sessionCookie, id, cookieMaxAge, "/", "", false, true)
	return id
}

func (s *Server) handleRegister(c *gin.Context) {
	var req struct {
		APIKey    string `json:"api_key"`
		APISecret string `json:"api_secret"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.APIKey == "" || req.APISecret == "" {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "api_key and api_secret are required"})
		return
	}

	id := s.sessionID(c)
	loginURL := s.manager.Register(id, req.APIKey, req.APISecret)
	c.JSON(http.StatusOK, gin.H{"status": "success", "login_url": loginURL})
}

func (s *Server) handleExchange(c *gin.Context) {
	id, err := c.Cookie(sessionCookie)
	if err != nil || id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "no session; register first"})
		return
	}

	var req struct {
		RequestToken string `json:"request_token"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.RequestToken == "" {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "request_token is required"})
		return
	}

	_, err = s.manager.Exchange(c.Request.Context(), id, req.RequestToken)
	if err != nil {
		var authErr *model.AuthError
		if errors.As(err, &authErr) {
			c.JSON(http.StatusUnauthorized, gin.H{"status": "error", "message": authErr.Reason})
			return
		}
		log.Error().Err(err).Str("session", id).Msg("token exchange failed")
		c.JSON(http.StatusBadGateway, gin.H{"status": "error", "message": "token exchange failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "success", "has_access_token": true})
}

func (s *Server) handleLogout(c *gin.Context) {
	if id, err := c.Cookie(sessionCookie); err == nil && id != "" {
		s.manager.Drop(id)
	}
	c.SetCookie(sessionCookie, "", -1, "/", "", false, true)
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleWS(c *gin.Context) {
	id, err := c.Cookie(sessionCookie)
	if err != nil || id == "" {
		// A socket without prior registration still gets a session id; it
		// can only start a stream with inline credentials.
		id = uuid.NewString()
	}

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := newClient(s, conn, id)
	go client.writePump()
	go client.readPump()
}
