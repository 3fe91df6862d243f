package service

import (
	"strings"

	"github.com/rl1809/campus-orders/internal/core/domain"
)

// AdminPolicy decides who may run admin operations: principals flagged as admin
// by the token issuer, plus an allow-list of emails from configuration.
type AdminPolicy struct {
	emails map[string]struct{}
}

func NewAdminPolicy(emails []string) AdminPolicy {
	set := make(map[string]struct{}, len(emails))
	for _, e := range emails {
		e = strings.ToLower(strings.TrimSpace(e))
		if e != "" {
			set[e] = struct{}{}
		}
	}
	return AdminPolicy{emails: set}
}

func (a AdminPolicy) IsAdmin(p domain.Principal) bool {
	if p.IsAdmin {
		return true
	}
	_, ok := a.emails[strings.ToLower(p.Email)]
	return ok
}

func (a AdminPolicy) Require(p domain.Principal) error {
	if !a.IsAdmin(p) {
		return ErrAdminRequired
	}
	return nil
}
