// File: internal/testdata/testdata.go

// Package testdata synthesizes registration inputs. Every attempt gets its
// own registrant; the decision step chooses whether the next attempt rotates
// just the email or starts from a fresh identity.
package testdata

import (
	"strings"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"

	"github.com/xkilldash9x/regsmoke-cli/internal/report"
)

const passwordLength = 14

// Registrant is one set of registration inputs.
type Registrant struct {
	Name     string
	Email    string
	Password string
}

// New generates a complete synthetic registrant. Emails are uuid-derived so
// collisions across attempts and runs are practically impossible.
func New() Registrant {
	return Registrant{
		Name:     gofakeit.Name(),
		Email:    newEmail(),
		Password: gofakeit.Password(true, true, true, true, false, passwordLength),
	}
}

// newEmail builds a tagged test address from a fresh uuid.
func newEmail() string {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "test+" + hex[:10] + "@example.com"
}

// RotateEmail keeps the identity but swaps in a new address. Used after a
// duplicate-email failure.
func (r Registrant) RotateEmail() Registrant {
	next := r
	for {
		next.Email = newEmail()
		if next.Email != r.Email {
			return next
		}
	}
}

// Summary strips the password for reporting.
func (r Registrant) Summary() report.RegistrantSummary {
	return report.RegistrantSummary{Name: r.Name, Email: r.Email}
}
