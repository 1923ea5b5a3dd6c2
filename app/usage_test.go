package app

import (
	"errors"
	"testing"

	"github.com/sfkse/rewriteit/app/models"
)

func TestAllow(t *testing.T) {
	cases := []struct {
		name string
		user *models.User
		want bool
	}{
		{"nil user", nil, false},
		{"exhausted", &models.User{CreditsAssigned: 25, CreditsUsed: 25}, false},
		{"overdrawn", &models.User{CreditsAssigned: 25, CreditsUsed: 30}, false},
		{"one left", &models.User{CreditsAssigned: 25, CreditsUsed: 24}, true},
		{"fresh", &models.User{CreditsAssigned: 25}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Allow(tc.user); got != tc.want {
				t.Fatalf("Allow = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestCheckQuotaError(t *testing.T) {
	err := checkQuota(&models.User{CreditsAssigned: 25, CreditsUsed: 25})
	var qe quotaError
	if !errors.As(err, &qe) || qe.Used != 25 || qe.Assigned != 25 {
		t.Fatalf("expected quotaError, got %v", err)
	}
}
