package server

import (
	"vortexx/internal/middleware"
	"vortexx/internal/service"

	"github.com/gofiber/fiber/v2"
)

// GetAllUsers handles GET /api/users
func (s *Server) GetAllUsers(c *fiber.Ctx) error {
	return c.JSON(s.userService.ListUsers(c.UserContext()))
}

// GetUserProfile handles GET /api/users/:username
func (s *Server) GetUserProfile(c *fiber.Ctx) error {
	user, err := s.userService.GetProfile(c.UserContext(), c.Params("username"))
	if err != nil {
		return respond(c, err)
	}
	return c.JSON(user)
}

// UpdateMyProfile handles PATCH /api/users/me. Fields left out of the request
// keep their current value.
func (s *Server) UpdateMyProfile(c *fiber.Ctx) error {
	var in service.UpdateProfileInput

	if isMultipart(c) {
		form, err := multipartForm(c)
		if err != nil {
			return respond(c, err)
		}
		in.Name = formValue(form, "name")
		in.Bio = formValue(form, "bio")
		if in.ProfilePic, err = formFile(form, "profilePic"); err != nil {
			return respond(c, err)
		}
	} else if len(c.Body()) > 0 {
		var req struct {
			Name *string `json:"name"`
			Bio  *string `json:"bio"`
		}
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "Invalid request body")
		}
		in.Name, in.Bio = req.Name, req.Bio
	}

	user, err := s.userService.UpdateProfile(c.UserContext(), middleware.CurrentSession(c), in)
	if err != nil {
		return respond(c, err)
	}
	return c.JSON(user)
}
