package models

// MaxCommentLength bounds the text of a single comment.
const MaxCommentLength = 500

// Comment is one entry of comments/{postId}.json.
type Comment struct {
	ID        string `json:"id"`
	PostID    string `json:"postId"`
	Author    Author `json:"author"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
}
