package server

import (
	"vortexx/internal/middleware"
	"vortexx/internal/service"

	"github.com/gofiber/fiber/v2"
)

// GetStories handles GET /api/stories
func (s *Server) GetStories(c *fiber.Ctx) error {
	return c.JSON(s.storyService.Feed(c.UserContext()))
}

// CreateStory handles POST /api/stories (multipart, media required)
func (s *Server) CreateStory(c *fiber.Ctx) error {
	form, err := multipartForm(c)
	if err != nil {
		return respond(c, err)
	}
	file, err := formFile(form, "media")
	if err != nil {
		return respond(c, err)
	}

	story, err := s.storyService.CreateStory(c.UserContext(), middleware.CurrentSession(c), service.CreateStoryInput{
		Caption: stringValue(formValue(form, "caption")),
		Media:   file,
	})
	if err != nil {
		return respond(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(story)
}

// ViewStory handles POST /api/stories/:id/view
func (s *Server) ViewStory(c *fiber.Ctx) error {
	view, err := s.storyService.ViewStory(c.UserContext(), middleware.CurrentSession(c), c.Params("id"))
	if err != nil {
		return respond(c, err)
	}
	return c.JSON(view)
}

// LikeStory handles POST /api/stories/:id/like. The like is toggled.
func (s *Server) LikeStory(c *fiber.Ctx) error {
	story, err := s.storyService.ToggleLike(c.UserContext(), middleware.CurrentSession(c), c.Params("id"))
	if err != nil {
		return respond(c, err)
	}
	return c.JSON(story)
}
