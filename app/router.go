package app

import (
	"time"

	"github.com/sfkse/rewriteit/app/logging"
	"github.com/sfkse/rewriteit/auth"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// NewRouter builds the shared HTTP router for both local and Lambda execution.
func NewRouter(s *Server) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), logging.GinLogger())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization"},
		MaxAge:       12 * time.Hour,
	}))

	router.GET("/health", s.Health)
	router.GET("/signin-oidc", s.SignIn)

	slack := router.Group("/")
	slack.Use(auth.SlackMiddleware(s.verifier))
	slack.POST("/rephrase", s.Rephrase)
	slack.POST("/rephrase_action", s.RephraseAction)

	billing := router.Group("/subscription")
	billing.POST("/webhook", s.StripeWebhook)
	billing.POST("/create-portal-session", s.CreatePortalSession)
	billing.POST("/create-checkout-session",
		auth.SessionMiddleware(s.sessions, auth.SessionConfig{Optional: true}),
		s.CreateCheckoutSession,
	)

	protected := router.Group("/api")
	protected.Use(auth.SessionMiddleware(s.sessions, auth.SessionConfig{}))
	protected.GET("/me", s.Me)

	return router
}
