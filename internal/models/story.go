package models

import (
	"slices"
	"time"
)

// StoryLifetime is how long a story stays visible after creation.
const StoryLifetime = 24 * time.Hour

// Story is the full story document stored at stories/{id}.json.
type Story struct {
	ID        string    `json:"id"`
	Author    Author    `json:"author"`
	Media     MediaItem `json:"media"`
	Caption   string    `json:"caption"`
	Timestamp int64     `json:"timestamp"`
	Views     []string  `json:"views"`
	LikedBy   []string  `json:"likedBy"`
	Likes     int       `json:"likes"`
	Liked     bool      `json:"liked"`
}

// Expired reports whether the story has left its visibility window at now.
// A story is visible while now - timestamp < StoryLifetime.
func (s *Story) Expired(now time.Time) bool {
	return !StoryVisible(s.Timestamp, now)
}

// AddView records username as a viewer. It reports whether the set changed.
func (s *Story) AddView(username string) bool {
	if username == "" || slices.Contains(s.Views, username) {
		return false
	}
	s.Views = append(slices.Clone(s.Views), username)
	return true
}

// ToggleLike flips the viewer's like and returns the new state.
func (s *Story) ToggleLike(username string) bool {
	s.LikedBy, s.Likes = toggleMember(s.LikedBy, username)
	return slices.Contains(s.LikedBy, username)
}

// ForViewer returns a copy with Liked computed for username.
func (s Story) ForViewer(username string) Story {
	s.Liked = username != "" && slices.Contains(s.LikedBy, username)
	return s
}

// StoryIndex is the projection kept in stories/index.json. It carries enough
// to render the story tray without fetching each document.
type StoryIndex struct {
	ID         string `json:"id"`
	Timestamp  int64  `json:"timestamp"`
	Author     string `json:"author"`
	Name       string `json:"name"`
	ProfilePic string `json:"profilePic"`
	Verified   bool   `json:"verified"`
	MediaURL   string `json:"mediaUrl"`
	MediaType  string `json:"mediaType"`
	Caption    string `json:"caption"`
}

// IndexRecord projects the story for the stories index.
func (s Story) IndexRecord() StoryIndex {
	return StoryIndex{
		ID:         s.ID,
		Timestamp:  s.Timestamp,
		Author:     s.Author.Username,
		Name:       s.Author.Name,
		ProfilePic: s.Author.ProfilePic,
		Verified:   s.Author.Verified,
		MediaURL:   s.Media.URL,
		MediaType:  s.Media.Type,
		Caption:    s.Caption,
	}
}

// SortTimestamp implements docstore.Rankable.
func (s StoryIndex) SortTimestamp() int64 { return s.Timestamp }

// Score implements docstore.Rankable. Stories have no popularity score.
func (s StoryIndex) Score() int { return 0 }

// StoryVisible reports whether a story created at timestamp (unix ms) is still
// inside its window at now.
func StoryVisible(timestamp int64, now time.Time) bool {
	age := now.UnixMilli() - timestamp
	return age < StoryLifetime.Milliseconds()
}
