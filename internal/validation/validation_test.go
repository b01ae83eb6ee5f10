package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidatePassword(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		password string
		wantErr  bool
	}{
		{"Valid", "secret1", false},
		{"Exactly Min Length", "abcdef", false},
		{"Exactly Max Length", strings.Repeat("a", 128), false},
		{"Too Short", "abcde", true},
		{"Too Long", strings.Repeat("a", 129), true},
		{"Empty", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePassword(tt.password)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateUsername(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		username string
		wantErr  bool
	}{
		{"Valid", "test_user123", false},
		{"Single Char", "a", false},
		{"Leading Underscore", "_abc", false},
		{"Hyphen", "test-user", true},
		{"Space", "test user", true},
		{"Illegal Chars", "user@123", true},
		{"Path Separator", "../etc", true},
		{"Non ASCII", "ünïcode", true},
		{"Too Long", strings.Repeat("a", 31), true},
		{"Empty", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateUsername(tt.username)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateRegistration(t *testing.T) {
	t.Parallel()
	valid := Registration{Name: "Alice", Username: "alice", Password: "secret1", ConfirmPassword: "secret1"}

	tests := []struct {
		name    string
		mutate  func(r *Registration)
		wantMsg string
	}{
		{"Valid", func(r *Registration) {}, ""},
		{"Missing Name", func(r *Registration) { r.Name = "  " }, "please fill in all fields"},
		{"Missing Confirm", func(r *Registration) { r.ConfirmPassword = "" }, "please fill in all fields"},
		{"Mismatch Before Length", func(r *Registration) {
			r.Password = "abc"
			r.ConfirmPassword = "abd"
		}, "passwords do not match"},
		{"Short Password", func(r *Registration) {
			r.Password = "abc"
			r.ConfirmPassword = "abc"
		}, "password must be at least 6 characters long"},
		{"Bad Username", func(r *Registration) { r.Username = "al ice" }, "username can only contain letters, numbers, and underscores"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := valid
			tt.mutate(&r)
			err := ValidateRegistration(r)
			if tt.wantMsg == "" {
				assert.NoError(t, err)
				return
			}
			assert.EqualError(t, err, tt.wantMsg)
		})
	}
}

func TestValidateHTTPSURL(t *testing.T) {
	t.Parallel()

	assert.NoError(t, ValidateHTTPSURL("https://files.catbox.moe/abc.png"))
	assert.NoError(t, ValidateHTTPSURL("  https://files.catbox.moe/abc.png\n"))
	assert.Error(t, ValidateHTTPSURL("http://files.catbox.moe/abc.png"))
	assert.Error(t, ValidateHTTPSURL("Error: file too large"))
	assert.Error(t, ValidateHTTPSURL("https:///nohost"))
}
