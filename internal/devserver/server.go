package devserver

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// Server is the local ledger authority stub.
type Server struct {
	store  Store
	tokens *TokenService
	log    zerolog.Logger
}

// New creates a Server over the given store.
func New(store Store, tokens *TokenService, log zerolog.Logger) *Server {
	return &Server{store: store, tokens: tokens, log: log}
}

// Router builds the gin engine with all routes and middleware.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(Recovery(s.log))
	r.Use(RequestLogger(s.log))
	r.Use(MaxBodySize(1 << 20)) // 1 MB request body limit

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	auth := r.Group("/auth")
	{
		auth.POST("/register", s.register)
		auth.POST("/login", s.login)
		auth.GET("/profile", BearerAuth(s.tokens), s.profile)
		auth.POST("/changePassword", BearerAuth(s.tokens), s.changePassword)
	}

	cards := r.Group("/cards", BearerAuth(s.tokens))
	{
		cards.GET("", s.listCards)
		cards.POST("", s.createCard)
		cards.DELETE("/:id", s.deleteCard)
		cards.POST("/:id/topup", s.topUp)
		cards.POST("/:id/spend", s.spend)
		cards.GET("/:id/transactions", s.transactions)
		cards.GET("/:id/summary", s.summary)
	}

	return r
}
