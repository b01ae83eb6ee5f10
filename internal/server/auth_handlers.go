package server

import (
	"vortexx/internal/middleware"
	"vortexx/internal/service"

	"github.com/gofiber/fiber/v2"
)

// Register handles POST /api/auth/register. It accepts multipart (with an
// optional profilePic upload) or JSON.
func (s *Server) Register(c *fiber.Ctx) error {
	var req struct {
		Name            string `json:"name" form:"name"`
		Username        string `json:"username" form:"username"`
		Password        string `json:"password" form:"password"`
		ConfirmPassword string `json:"confirmPassword" form:"confirmPassword"`
	}
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	form, err := multipartForm(c)
	if err != nil {
		return respond(c, err)
	}
	pic, err := formFile(form, "profilePic")
	if err != nil {
		return respond(c, err)
	}

	res, err := s.authService.Register(c.UserContext(), service.RegisterInput{
		Name:            req.Name,
		Username:        req.Username,
		Password:        req.Password,
		ConfirmPassword: req.ConfirmPassword,
		ProfilePic:      pic,
	})
	if err != nil {
		return respond(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(res)
}

// Login handles POST /api/auth/login
func (s *Server) Login(c *fiber.Ctx) error {
	var req struct {
		Username string `json:"username" form:"username"`
		Password string `json:"password" form:"password"`
	}
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	res, err := s.authService.Login(c.UserContext(), req.Username, req.Password)
	if err != nil {
		return respond(c, err)
	}
	return c.JSON(res)
}

// Logout handles POST /api/auth/logout
func (s *Server) Logout(c *fiber.Ctx) error {
	if err := s.authService.Logout(c.UserContext(), middleware.CurrentSession(c)); err != nil {
		return respond(c, err)
	}
	return c.JSON(fiber.Map{"message": "Logged out"})
}

// Me handles GET /api/auth/me
func (s *Server) Me(c *fiber.Ctx) error {
	sess := middleware.CurrentSession(c)
	stats, err := s.userService.Stats(c.UserContext(), sess)
	if err != nil {
		return respond(c, err)
	}
	return c.JSON(fiber.Map{
		"user":  sess.User,
		"stats": stats,
	})
}
