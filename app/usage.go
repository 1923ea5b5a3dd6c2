// Package app runs the rewrite workflow behind the Slack endpoints.
package app

import (
	"fmt"

	"github.com/sfkse/rewriteit/app/models"
)

type quotaError struct {
	Assigned int
	Used     int
}

func (e quotaError) Error() string {
	return fmt.Sprintf("credits exhausted: used %d of %d", e.Used, e.Assigned)
}

// Allow reports whether the user has at least one credit left.
func Allow(user *models.User) bool {
	return user != nil && user.CreditsAssigned > user.CreditsUsed
}

func checkQuota(user *models.User) error {
	if Allow(user) {
		return nil
	}
	if user == nil {
		return quotaError{}
	}
	return quotaError{Assigned: user.CreditsAssigned, Used: user.CreditsUsed}
}
