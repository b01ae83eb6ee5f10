package models

import "slices"

// PostType selects how a post is rendered.
type PostType string

const (
	PostTypeText  PostType = "text"
	PostTypeImage PostType = "image"
	PostTypeVideo PostType = "video"
)

// Valid reports whether t is a known post type.
func (t PostType) Valid() bool {
	switch t {
	case PostTypeText, PostTypeImage, PostTypeVideo:
		return true
	}
	return false
}

// MediaItem references an uploaded blob.
type MediaItem struct {
	URL  string `json:"url"`
	Type string `json:"type"`
	Size int64  `json:"size"`
	// Thumbnail is the poster image of a video.
	Thumbnail string `json:"thumbnail,omitempty"`
}

// PostSettings toggles interactions on a post.
type PostSettings struct {
	AllowComments bool `json:"allowComments"`
	AllowLikes    bool `json:"allowLikes"`
}

// Post is the full post document stored at posts/{id}.json.
type Post struct {
	ID       string      `json:"id"`
	Author   Author      `json:"author"`
	Caption  string      `json:"caption"`
	Type     PostType    `json:"type"`
	Media    []MediaItem `json:"media"`
	LikedBy  []string    `json:"likedBy"`
	Likes    int         `json:"likes"`
	Comments int         `json:"comments"`
	// Liked is computed per viewer on read; stored documents keep it false
	Liked     bool         `json:"liked"`
	Timestamp int64        `json:"timestamp"`
	Settings  PostSettings `json:"settings"`
}

// LikedByViewer reports whether username is in the post's like set.
func (p *Post) LikedByViewer(username string) bool {
	return username != "" && slices.Contains(p.LikedBy, username)
}

// ToggleLike flips the viewer's membership in the like set and keeps Likes derived.
// It returns the new liked state.
func (p *Post) ToggleLike(username string) bool {
	p.LikedBy, p.Likes = toggleMember(p.LikedBy, username)
	return p.LikedByViewer(username)
}

// ForViewer returns a copy with Liked computed for username.
func (p Post) ForViewer(username string) Post {
	p.Liked = p.LikedByViewer(username)
	return p
}

// PostIndex is the projection kept in posts/index.json.
type PostIndex struct {
	ID        string   `json:"id"`
	Timestamp int64    `json:"timestamp"`
	Author    string   `json:"author"`
	Type      PostType `json:"type"`
	HasMedia  bool     `json:"hasMedia"`
	Likes     int      `json:"likes"`
	Comments  int      `json:"comments"`
	Liked     bool     `json:"liked,omitempty"`
}

// IndexRecord projects the post for the posts index.
func (p Post) IndexRecord() PostIndex {
	return PostIndex{
		ID:        p.ID,
		Timestamp: p.Timestamp,
		Author:    p.Author.Username,
		Type:      p.Type,
		HasMedia:  len(p.Media) > 0,
		Likes:     p.Likes,
		Comments:  p.Comments,
	}
}

// SortTimestamp implements docstore.Rankable.
func (p PostIndex) SortTimestamp() int64 { return p.Timestamp }

// Score implements docstore.Rankable.
func (p PostIndex) Score() int { return p.Likes + p.Comments }

func toggleMember(set []string, member string) ([]string, int) {
	if i := slices.Index(set, member); i >= 0 {
		set = slices.Delete(slices.Clone(set), i, i+1)
	} else {
		set = append(slices.Clone(set), member)
	}
	return set, len(set)
}
