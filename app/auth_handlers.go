package app

import (
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/sfkse/rewriteit/app/models"
	"github.com/sfkse/rewriteit/app/store"
	"github.com/sfkse/rewriteit/auth"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// Health is a public health check endpoint.
func (s *Server) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
	})
}

// SignIn completes the Slack OAuth flow, records the user and sends the
// browser back to the client with a session token.
func (s *Server) SignIn(c *gin.Context) {
	code := c.Query("code")
	if code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing code"})
		return
	}

	ctx := c.Request.Context()
	redirectURI := s.cfg.HTTP.APIBaseURL + "/signin-oidc"

	identity, err := s.slack.ExchangeCode(ctx, code, redirectURI)
	if err != nil {
		log.Warn().Err(err).Str("redirect_uri", redirectURI).Msg("slack oauth exchange failed")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	profile, err := s.slack.UserInfo(ctx, identity.AccessToken, identity.UserID)
	if err != nil {
		log.Warn().Err(err).Str("slack_user_id", identity.UserID).Msg("slack users.info failed")
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to get user information"})
		return
	}

	user, err := s.store.GetOrCreateUser(ctx, identity.UserID, profile.Name, models.Metadata(profile.Raw))
	if err != nil {
		log.Error().Err(err).Str("slack_user_id", identity.UserID).Msg("failed to upsert user")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "database error occurred"})
		return
	}
	log.Info().Str("slack_user_id", user.SlackUserID).Msg("user signed in")

	target := s.cfg.HTTP.ClientBaseURL + "/success"
	if s.sessions != nil {
		token, err := s.sessions.Issue(user.SlackUserID, user.Name())
		if err != nil {
			log.Error().Err(err).Msg("failed to issue session")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to issue session"})
			return
		}
		target += "?token=" + url.QueryEscape(token)
	}
	c.Redirect(http.StatusTemporaryRedirect, target)
}

type rewriteView struct {
	OriginalText    string  `json:"original_text"`
	ParaphrasedText string  `json:"paraphrased_text"`
	Tone            *string `json:"tone,omitempty"`
	CreatedAt       string  `json:"created_at"`
}

// Me returns plan, credits and recent rewrites for the signed-in user.
func (s *Server) Me(c *gin.Context) {
	claims, ok := auth.ClaimsFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing auth context"})
		return
	}

	user, err := s.store.GetUserBySlackID(c.Request.Context(), claims.Subject)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		log.Error().Err(err).Str("slack_user_id", claims.Subject).Msg("failed to load user")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load user"})
		return
	}

	history, err := s.store.LatestRewrites(c.Request.Context(), user.ID, store.HistoryLimit)
	if err != nil {
		log.Error().Err(err).Str("slack_user_id", claims.Subject).Msg("failed to load history")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load history"})
		return
	}

	rewrites := make([]rewriteView, 0, len(history))
	for _, p := range history {
		rewrites = append(rewrites, rewriteView{
			OriginalText:    p.OriginalText,
			ParaphrasedText: p.ParaphrasedText,
			Tone:            p.Tone,
			CreatedAt:       p.CreatedAt.UTC().Format(time.RFC3339),
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"slack_user_id":     user.SlackUserID,
		"name":              user.Name(),
		"plan":              user.Plan,
		"credits_assigned":  user.CreditsAssigned,
		"credits_used":      user.CreditsUsed,
		"credits_remaining": user.CreditsRemaining(),
		"rewrites":          rewrites,
	})
}
