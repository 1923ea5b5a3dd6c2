// Package models defines users, plans and the rewrite history.
package models

import (
	"database/sql/driver"
	"fmt"
	"time"
)

type Plan string

const (
	PlanFree Plan = "free"
	PlanPaid Plan = "paid"
)

type User struct {
	ID               string    `db:"id" json:"id"`
	SlackUserID      string    `db:"slack_user_id" json:"slack_user_id"`
	UserName         *string   `db:"user_name" json:"user_name,omitempty"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
	Plan             Plan      `db:"plan" json:"plan"`
	CreditsAssigned  int       `db:"credits_assigned" json:"credits_assigned"`
	CreditsUsed      int       `db:"credits_used" json:"credits_used"`
	UserInfo         Metadata  `db:"user_info" json:"user_info,omitempty"`
	StripeCustomerID *string   `db:"stripe_customer_id" json:"-"`
}

// Name returns the display name or the Slack id when no name is known.
func (u *User) Name() string {
	if u.UserName != nil && *u.UserName != "" {
		return *u.UserName
	}
	return u.SlackUserID
}

// CreditsRemaining never goes below zero.
func (u *User) CreditsRemaining() int {
	if u.CreditsUsed >= u.CreditsAssigned {
		return 0
	}
	return u.CreditsAssigned - u.CreditsUsed
}

// Metadata is an open-ended JSON blob stored as JSONB (Postgres) or TEXT (SQLite).
type Metadata []byte

// Scan implements sql.Scanner.
func (m *Metadata) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*m = nil
	case []byte:
		*m = append(Metadata(nil), v...)
	case string:
		*m = Metadata(v)
	default:
		return fmt.Errorf("metadata: unsupported scan type %T", src)
	}
	return nil
}

// Value implements driver.Valuer. JSON goes over the wire as text so that
// lib/pq does not encode it as bytea.
func (m Metadata) Value() (driver.Value, error) {
	if len(m) == 0 {
		return nil, nil
	}
	return string(m), nil
}

func (m Metadata) MarshalJSON() ([]byte, error) {
	if len(m) == 0 {
		return []byte("null"), nil
	}
	return m, nil
}

func (m *Metadata) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*m = nil
		return nil
	}
	*m = append(Metadata(nil), data...)
	return nil
}
