package app

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/sfkse/rewriteit/app/models"
	"github.com/sfkse/rewriteit/app/store"
	"github.com/sfkse/rewriteit/auth"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/stripe/stripe-go/v79"
	portal "github.com/stripe/stripe-go/v79/billingportal/session"
	"github.com/stripe/stripe-go/v79/checkout/session"
	"github.com/stripe/stripe-go/v79/webhook"
)

type checkoutRequest struct {
	Plan string `json:"plan"`
}

// CreateCheckoutSession starts a Stripe Checkout subscription for the
// requested plan. A session token, when present, ties the checkout to the
// Slack user.
func (s *Server) CreateCheckoutSession(c *gin.Context) {
	var req checkoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	item, ok := s.lineItem(req.Plan)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid plan"})
		return
	}

	clientURL := s.cfg.HTTP.ClientBaseURL
	if clientURL == "" {
		log.Error().Msg("missing CLIENT_BASE_URL for checkout")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "billing not configured"})
		return
	}

	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems:  []*stripe.CheckoutSessionLineItemParams{item},
		SuccessURL: stripe.String(clientURL + "/checkout?success=true&session_id={CHECKOUT_SESSION_ID}"),
		CancelURL:  stripe.String(clientURL + "/checkout?canceled=true"),
		Metadata: map[string]string{
			"plan": req.Plan,
		},
	}

	if claims, ok := auth.ClaimsFromContext(c.Request.Context()); ok {
		customerID, err := s.ensureStripeCustomer(c.Request.Context(), claims.Subject, claims.Name)
		if err != nil {
			log.Error().Err(err).Str("slack_user_id", claims.Subject).Msg("ensureStripeCustomer failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to prepare billing"})
			return
		}
		params.ClientReferenceID = stripe.String(claims.Subject)
		params.Customer = stripe.String(customerID)
	}
	params.Context = c.Request.Context()

	sess, err := session.New(params)
	if err != nil {
		log.Error().Err(err).Str("plan", req.Plan).Msg("stripe checkout session failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"url": sess.URL})
}

type portalRequest struct {
	SessionID string `json:"session_id"`
}

// CreatePortalSession opens the billing portal for the customer behind a
// completed checkout session.
func (s *Server) CreatePortalSession(c *gin.Context) {
	var req portalRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.SessionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	getParams := &stripe.CheckoutSessionParams{}
	getParams.Context = c.Request.Context()
	checkout, err := session.Get(req.SessionID, getParams)
	if err != nil {
		respondStripeError(c, "stripe checkout lookup failed", err)
		return
	}
	if checkout.Customer == nil || checkout.Customer.ID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "checkout session has no customer"})
		return
	}

	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(checkout.Customer.ID),
		ReturnURL: stripe.String(s.cfg.HTTP.ClientBaseURL),
	}
	params.Context = c.Request.Context()

	sess, err := portal.New(params)
	if err != nil {
		respondStripeError(c, "stripe portal session failed", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"url": sess.URL})
}

func respondStripeError(c *gin.Context, msg string, err error) {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		log.Warn().Err(err).Msg(msg)
		c.JSON(http.StatusBadRequest, gin.H{"error": stripeErr.Msg})
		return
	}
	log.Error().Err(err).Msg(msg)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "server error"})
}

// StripeWebhook verifies Stripe events and keeps user plans in sync.
func (s *Server) StripeWebhook(c *gin.Context) {
	const maxBodyBytes = int64(65536)
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes))
	if err != nil {
		log.Error().Err(err).Msg("stripe webhook read failed")
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	endpointSecret := s.cfg.Stripe.WebhookSecret
	if endpointSecret == "" {
		log.Error().Msg("stripe webhook secret missing")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "webhook not configured"})
		return
	}

	event, err := webhook.ConstructEventWithOptions(
		body,
		c.GetHeader("Stripe-Signature"),
		endpointSecret,
		webhook.ConstructEventOptions{
			IgnoreAPIVersionMismatch: true,
		},
	)
	if err != nil {
		log.Warn().Err(err).Msg("stripe webhook signature failed")
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid signature"})
		return
	}

	ctx := c.Request.Context()
	switch event.Type {
	case "checkout.session.completed":
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			log.Error().Err(err).Msg("stripe session unmarshal failed")
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session payload"})
			return
		}
		customerID := ""
		if sess.Customer != nil {
			customerID = sess.Customer.ID
		}
		log.Info().Str("session_id", sess.ID).Str("customer_id", customerID).Msg("payment succeeded")

		switch {
		case sess.ClientReferenceID != "":
			err = s.store.UpdatePlanBySlackID(ctx, sess.ClientReferenceID, models.PlanPaid, s.cfg.Credits.Paid, customerID)
		case customerID != "":
			err = s.store.UpdatePlanByStripeCustomer(ctx, customerID, models.PlanPaid, s.cfg.Credits.Paid)
		default:
			err = store.ErrNotFound
		}
		if !s.planUpdated(c, err, sess.ClientReferenceID, customerID) {
			return
		}
	case "customer.subscription.created", "customer.subscription.updated":
		log.Info().Str("type", string(event.Type)).Str("event_id", event.ID).Msg("subscription changed")
	case "customer.subscription.deleted":
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			log.Error().Err(err).Msg("stripe subscription unmarshal failed")
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid subscription payload"})
			return
		}
		customerID := ""
		if sub.Customer != nil {
			customerID = sub.Customer.ID
		}
		log.Info().Str("subscription_id", sub.ID).Str("customer_id", customerID).Msg("subscription canceled")
		if customerID == "" {
			break
		}
		err := s.store.UpdatePlanByStripeCustomer(ctx, customerID, models.PlanFree, s.cfg.Credits.Free)
		if !s.planUpdated(c, err, "", customerID) {
			return
		}
	default:
		log.Debug().Str("type", string(event.Type)).Msg("stripe webhook ignored (unhandled type)")
	}

	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

// planUpdated reports whether the handler should carry on. An unknown user
// is logged and acknowledged so Stripe stops retrying.
func (s *Server) planUpdated(c *gin.Context, err error, slackUserID, customerID string) bool {
	if err == nil {
		log.Info().Str("slack_user_id", slackUserID).Str("customer_id", customerID).Msg("plan updated")
		return true
	}
	if errors.Is(err, store.ErrNotFound) {
		log.Warn().Str("slack_user_id", slackUserID).Str("customer_id", customerID).Msg("no user for stripe event")
		return true
	}
	log.Error().Err(err).Str("slack_user_id", slackUserID).Str("customer_id", customerID).Msg("stripe plan update failed")
	c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update user"})
	return false
}
