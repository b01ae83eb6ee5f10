package server

import (
	"vortexx/internal/middleware"
	"vortexx/internal/models"
	"vortexx/internal/service"

	"github.com/gofiber/fiber/v2"
)

// GetPosts handles GET /api/posts?sort=latest|popular
func (s *Server) GetPosts(c *fiber.Ctx) error {
	posts := s.postService.ListPosts(c.UserContext(), middleware.CurrentSession(c), c.Query("sort"))
	return c.JSON(posts)
}

// CreatePost handles POST /api/posts (multipart with optional media files)
func (s *Server) CreatePost(c *fiber.Ctx) error {
	var req struct {
		Caption       string `json:"caption" form:"caption"`
		Type          string `json:"type" form:"type"`
		AllowComments string `json:"allowComments" form:"allowComments"`
		AllowLikes    string `json:"allowLikes" form:"allowLikes"`
	}
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	allowComments, err := parseOptionalBool(req.AllowComments)
	if err != nil {
		return respond(c, err)
	}
	allowLikes, err := parseOptionalBool(req.AllowLikes)
	if err != nil {
		return respond(c, err)
	}

	form, err := multipartForm(c)
	if err != nil {
		return respond(c, err)
	}
	files, err := formFiles(form, "media")
	if err != nil {
		return respond(c, err)
	}

	post, err := s.postService.CreatePost(c.UserContext(), middleware.CurrentSession(c), service.CreatePostInput{
		Caption:       req.Caption,
		Type:          models.PostType(req.Type),
		Media:         files,
		AllowComments: allowComments,
		AllowLikes:    allowLikes,
	})
	if err != nil {
		return respond(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(post)
}

// GetPost handles GET /api/posts/:id
func (s *Server) GetPost(c *fiber.Ctx) error {
	post, err := s.postService.GetPost(c.UserContext(), middleware.CurrentSession(c), c.Params("id"))
	if err != nil {
		return respond(c, err)
	}
	return c.JSON(post)
}

// GetMyPosts handles GET /api/posts/mine
func (s *Server) GetMyPosts(c *fiber.Ctx) error {
	posts, err := s.postService.MyPosts(c.UserContext(), middleware.CurrentSession(c))
	if err != nil {
		return respond(c, err)
	}
	return c.JSON(posts)
}

// GetSavedPosts handles GET /api/posts/saved
func (s *Server) GetSavedPosts(c *fiber.Ctx) error {
	posts, err := s.postService.SavedPosts(c.UserContext(), middleware.CurrentSession(c))
	if err != nil {
		return respond(c, err)
	}
	return c.JSON(posts)
}

// LikePost handles POST /api/posts/:id/like. The like is toggled.
func (s *Server) LikePost(c *fiber.Ctx) error {
	post, err := s.postService.ToggleLike(c.UserContext(), middleware.CurrentSession(c), c.Params("id"))
	if err != nil {
		return respond(c, err)
	}
	return c.JSON(post)
}

// SavePost handles POST /api/posts/:id/save
func (s *Server) SavePost(c *fiber.Ctx) error {
	added, err := s.postService.SavePost(c.UserContext(), middleware.CurrentSession(c), c.Params("id"))
	if err != nil {
		return respond(c, err)
	}
	return c.JSON(fiber.Map{"saved": true, "added": added})
}

// DeletePost handles DELETE /api/posts/:id
func (s *Server) DeletePost(c *fiber.Ctx) error {
	if err := s.postService.DeletePost(c.UserContext(), middleware.CurrentSession(c), c.Params("id")); err != nil {
		return respond(c, err)
	}
	return c.JSON(fiber.Map{"message": "Post deleted"})
}
