package auth

import (
	"bytes"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const (
	HeaderSignature = "X-Slack-Signature"
	HeaderTimestamp = "X-Slack-Request-Timestamp"

	maxBodyBytes = int64(1 << 20)
)

// SlackMiddleware rejects requests whose Slack signature does not verify.
// It reads the raw body before anything parses it and puts it back for
// the handler.
func SlackMiddleware(verifier *Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes))
		if err != nil {
			log.Warn().Err(err).Str("path", c.Request.URL.Path).Msg("auth failure: unreadable body")
			respondUnauthorized(c, "invalid request body")
			return
		}

		if !verifier.Verify(body, c.GetHeader(HeaderTimestamp), c.GetHeader(HeaderSignature)) {
			log.Warn().Str("path", c.Request.URL.Path).Msg("auth failure: slack signature rejected")
			respondUnauthorized(c, "invalid signature")
			return
		}

		c.Request.Body = io.NopCloser(bytes.NewReader(body))
		c.Next()
	}
}

// SessionConfig controls session token enforcement.
type SessionConfig struct {
	// Optional lets requests without a token through; claims are attached
	// only when a valid token is presented.
	Optional bool
}

// SessionMiddleware validates "Authorization: Bearer <session token>" and
// injects the claims into the request context.
func SessionMiddleware(issuer *SessionIssuer, cfg SessionConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			if cfg.Optional {
				c.Next()
				return
			}
			respondUnauthorized(c, "missing authorization header")
			return
		}

		token, ok := extractBearerToken(authHeader)
		if !ok {
			respondUnauthorized(c, "invalid authorization header")
			return
		}

		if issuer == nil {
			respondUnauthorized(c, "sessions not configured")
			return
		}

		claims, err := issuer.Verify(token)
		if err != nil {
			log.Warn().Err(err).Str("path", c.Request.URL.Path).Msg("auth failure: session token invalid")
			respondUnauthorized(c, "invalid token")
			return
		}

		c.Request = c.Request.WithContext(WithClaims(c.Request.Context(), claims))
		c.Next()
	}
}

func extractBearerToken(header string) (string, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 {
		return "", false
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", false
	}
	return token, true
}

func respondUnauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"error": message,
	})
}
