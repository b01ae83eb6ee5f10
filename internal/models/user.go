// Package models contains the documents stored on the repo host and mirrored locally.
package models

import "time"

// UserStats holds the counters shown on a profile.
type UserStats struct {
	Posts     int `json:"posts"`
	Followers int `json:"followers"`
	Following int `json:"following"`
}

// User is the full account document stored at users/{username}.json.
type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"passwordHash,omitempty"`
	ProfilePic   string    `json:"profilePic"`
	Verified     bool      `json:"verified"`
	Bio          string    `json:"bio"`
	JoinDate     string    `json:"joinDate"`
	Stats        UserStats `json:"stats"`
}

// Public returns a copy without credentials, safe for responses and sessions.
func (u User) Public() User {
	u.PasswordHash = ""
	return u
}

// Author builds the snapshot embedded in posts, stories and comments.
func (u User) Author() Author {
	return Author{
		ID:         u.ID,
		Username:   u.Username,
		Name:       u.Name,
		ProfilePic: u.ProfilePic,
		Verified:   u.Verified,
	}
}

// Author is a denormalized copy of the user taken at creation time.
type Author struct {
	ID         string `json:"id"`
	Username   string `json:"username"`
	Name       string `json:"name"`
	ProfilePic string `json:"profilePic"`
	Verified   bool   `json:"verified"`
}

// UserIndex is the projection kept in users/index.json.
type UserIndex struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name"`
	Verified bool   `json:"verified"`
	JoinDate string `json:"joinDate"`
}

// IndexRecord projects the user for the users index.
func (u User) IndexRecord() UserIndex {
	return UserIndex{
		ID:       u.ID,
		Username: u.Username,
		Name:     u.Name,
		Verified: u.Verified,
		JoinDate: u.JoinDate,
	}
}

// SortTimestamp implements docstore.Rankable using the join date.
func (u UserIndex) SortTimestamp() int64 {
	t, err := time.Parse(time.RFC3339, u.JoinDate)
	if err != nil {
		return 0
	}
	return t.UnixMilli()
}

// Score implements docstore.Rankable.
func (u UserIndex) Score() int { return 0 }
