package server

import (
	"vortexx/internal/middleware"

	"github.com/gofiber/fiber/v2"
)

// GetComments handles GET /api/comments?postId=
func (s *Server) GetComments(c *fiber.Ctx) error {
	comments, err := s.commentService.ListComments(c.UserContext(), c.Query("postId"))
	if err != nil {
		return respond(c, err)
	}
	return c.JSON(comments)
}

// CreateComment handles POST /api/comments?postId=
func (s *Server) CreateComment(c *fiber.Ctx) error {
	var req struct {
		Text string `json:"text" form:"text"`
	}
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	comment, err := s.commentService.AddComment(c.UserContext(), middleware.CurrentSession(c), c.Query("postId"), req.Text)
	if err != nil {
		return respond(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(comment)
}
