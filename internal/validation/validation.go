// Package validation provides input validation utilities
package validation

import (
	"errors"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	MinPasswordLength = 6
	MaxPasswordLength = 128
	MaxUsernameLength = 30
	MaxNameLength     = 60
	MaxBioLength      = 280
	MaxCaptionLength  = 2200
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// Registration holds the fields of the signup form.
type Registration struct {
	Name            string
	Username        string
	Password        string
	ConfirmPassword string
}

// ValidateRegistration checks the signup form in the order the form reports errors.
func ValidateRegistration(r Registration) error {
	if strings.TrimSpace(r.Name) == "" || r.Username == "" || r.Password == "" || r.ConfirmPassword == "" {
		return errors.New("please fill in all fields")
	}
	if r.Password != r.ConfirmPassword {
		return errors.New("passwords do not match")
	}
	if err := ValidatePassword(r.Password); err != nil {
		return err
	}
	if err := ValidateName(r.Name); err != nil {
		return err
	}
	return ValidateUsername(r.Username)
}

// ValidatePassword checks if a password meets length requirements
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return errors.New("password must be at least 6 characters long")
	}
	if len(password) > MaxPasswordLength {
		return errors.New("password must not exceed 128 characters")
	}
	return nil
}

// ValidateUsername checks if a username is usable as a document key
func ValidateUsername(username string) error {
	if username == "" {
		return errors.New("username is required")
	}
	if len(username) > MaxUsernameLength {
		return errors.New("username must not exceed 30 characters")
	}
	if !usernamePattern.MatchString(username) {
		return errors.New("username can only contain letters, numbers, and underscores")
	}
	return nil
}

// ValidateName checks the display name
func ValidateName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("name is required")
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return errors.New("name must not exceed 60 characters")
	}
	return nil
}

// ValidateBio checks the profile bio
func ValidateBio(bio string) error {
	if utf8.RuneCountInString(bio) > MaxBioLength {
		return errors.New("bio must not exceed 280 characters")
	}
	return nil
}

// ValidateCaption checks a post or story caption
func ValidateCaption(caption string) error {
	if utf8.RuneCountInString(caption) > MaxCaptionLength {
		return errors.New("caption must not exceed 2200 characters")
	}
	return nil
}

// ValidateHTTPSURL checks that raw is an absolute https URL
func ValidateHTTPSURL(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return err
	}
	if u.Scheme != "https" || u.Host == "" {
		return errors.New("url must be an absolute https URL")
	}
	return nil
}
