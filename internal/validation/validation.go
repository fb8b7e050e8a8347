// Package validation checks raw signup/login input before it ever reaches
// the service layer. It returns either a typed, already-valid value or a
// list of field issues.
package validation

import (
	"regexp"
	"strings"
	"unicode"
)

var emailRegexp = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

const specialChars = "@$!%*?&"

const (
	emailMessage    = "Please enter a valid email address"
	passwordMessage = "Password must contain at least one uppercase letter, one lowercase letter, numeric character, one special character. Minimum length: 8"
)

type Issue struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Credentials is a validated email/password pair.
type Credentials struct {
	Email    string
	Password string
}

func ValidateEmail(email string) *Issue {
	if !emailRegexp.MatchString(email) {
		return &Issue{Field: "email", Message: emailMessage}
	}
	return nil
}

func ValidatePassword(password string) *Issue {
	if len(password) < 8 {
		return &Issue{Field: "password", Message: passwordMessage}
	}

	var upper, lower, digit, special bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case strings.ContainsRune(specialChars, r):
			special = true
		default:
			return &Issue{Field: "password", Message: passwordMessage}
		}
	}

	if !upper || !lower || !digit || !special {
		return &Issue{Field: "password", Message: passwordMessage}
	}
	return nil
}

// ParseCredentials validates both fields and returns every issue found, not
// just the first.
func ParseCredentials(email, password string) (Credentials, []Issue) {
	var issues []Issue

	if issue := ValidateEmail(email); issue != nil {
		issues = append(issues, *issue)
	}
	if issue := ValidatePassword(password); issue != nil {
		issues = append(issues, *issue)
	}
	if len(issues) > 0 {
		return Credentials{}, issues
	}

	return Credentials{Email: email, Password: password}, nil
}
