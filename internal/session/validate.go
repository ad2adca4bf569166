package session

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	nameRegexp  = regexp.MustCompile(`^[a-z0-9_-]{1,64}$`)
	phoneRegexp = regexp.MustCompile(`^\+[1-9][0-9]{6,14}$`)
)

// ValidateName checks that name conforms to session naming rules.
func ValidateName(name string) error {
	if !nameRegexp.MatchString(name) {
		return fmt.Errorf("invalid session name %q: must match ^[a-z0-9_-]{1,64}$", name)
	}
	return nil
}

// NormalizePhone strips spaces, dashes and parentheses and checks the result
// is an international number with a leading '+'.
func NormalizePhone(phone string) (string, error) {
	p := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '(', ')':
			return -1
		}
		return r
	}, phone)
	if !phoneRegexp.MatchString(p) {
		return "", fmt.Errorf("invalid phone number %q: use international format, e.g. +15551234567", phone)
	}
	return p, nil
}
