package app

import (
	"context"
	"errors"

	"github.com/sfkse/rewriteit/app/store"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/customer"
)

type planPrice struct {
	ProductName string
	Amount      int64 // cents
	Currency    string
	Interval    string
}

var subscriptionPrices = map[string]planPrice{
	"monthly": {ProductName: "RewordIt Monthly Plan", Amount: 999, Currency: "usd", Interval: "month"},
	"yearly":  {ProductName: "RewordIt Yearly Plan", Amount: 8999, Currency: "usd", Interval: "year"},
}

// lineItem prefers a configured Stripe price and falls back to inline
// price data from the table above.
func (s *Server) lineItem(plan string) (*stripe.CheckoutSessionLineItemParams, bool) {
	price, ok := subscriptionPrices[plan]
	if !ok {
		return nil, false
	}

	priceID := s.cfg.Stripe.PriceIDMonthly
	if plan == "yearly" {
		priceID = s.cfg.Stripe.PriceIDYearly
	}
	if priceID != "" {
		return &stripe.CheckoutSessionLineItemParams{
			Price:    stripe.String(priceID),
			Quantity: stripe.Int64(1),
		}, true
	}

	return &stripe.CheckoutSessionLineItemParams{
		PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
			Currency:   stripe.String(price.Currency),
			UnitAmount: stripe.Int64(price.Amount),
			ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
				Name: stripe.String(price.ProductName),
			},
			Recurring: &stripe.CheckoutSessionLineItemPriceDataRecurringParams{
				Interval: stripe.String(price.Interval),
			},
		},
		Quantity: stripe.Int64(1),
	}, true
}

// ensureStripeCustomer finds or creates a Stripe Customer for the Slack user.
// It uses users.stripe_customer_id when present, otherwise creates a new
// customer with metadata slack_user_id and stores its id.
func (s *Server) ensureStripeCustomer(ctx context.Context, slackUserID, name string) (string, error) {
	if slackUserID == "" {
		return "", errors.New("missing slack user id")
	}

	user, err := s.store.GetUserBySlackID(ctx, slackUserID)
	if errors.Is(err, store.ErrNotFound) {
		user, err = s.store.GetOrCreateUser(ctx, slackUserID, name, nil)
	}
	if err != nil {
		return "", err
	}

	if user.StripeCustomerID != nil && *user.StripeCustomerID != "" {
		return *user.StripeCustomerID, nil
	}

	params := &stripe.CustomerParams{
		Name: stripe.String(user.Name()),
		Metadata: map[string]string{
			"slack_user_id": slackUserID,
		},
	}
	params.Context = ctx
	cust, err := customer.New(params)
	if err != nil {
		return "", err
	}

	if err := s.store.SetStripeCustomer(ctx, user.ID, cust.ID); err != nil {
		return "", err
	}
	return cust.ID, nil
}
