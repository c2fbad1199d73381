package auth

import (
	"fmt"
	"regexp"
	"strings"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

const (
	MinPasswordLength = 8

	msgInvalidEmail = "Please enter a valid email address."
)

func ValidateEmail(email string) bool {
	return emailPattern.MatchString(email)
}

// PasswordProblems lists the unmet password rules, in display order.
func PasswordProblems(password string) []string {
	var problems []string
	if len([]rune(password)) < MinPasswordLength {
		problems = append(problems, fmt.Sprintf("at least %d characters", MinPasswordLength))
	}
	if !strings.ContainsFunc(password, isASCIIDigit) {
		problems = append(problems, "a number")
	}
	if !strings.ContainsFunc(password, isASCIILetter) {
		problems = append(problems, "a letter")
	}
	return problems
}

// ValidatePassword returns a user-facing message when the password breaks the policy.
func ValidatePassword(password string) (string, bool) {
	problems := PasswordProblems(password)
	if len(problems) == 0 {
		return "", true
	}
	return fmt.Sprintf("Password must contain %s.", strings.Join(problems, ", ")), false
}

func isASCIIDigit(r rune) bool {
	return r >= '0' && r <= '9'
}

func isASCIILetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}
