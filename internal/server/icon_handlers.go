package server

import (
	"slices"
	"strings"

	"vortexx/internal/format"
	"vortexx/internal/models"

	"github.com/gofiber/fiber/v2"
)

// ListIcons handles GET /api/icons
func (s *Server) ListIcons(c *fiber.Ctx) error {
	names := format.IconNames()
	slices.Sort(names)
	return c.JSON(names)
}

// GetIcon handles GET /api/icons/:name, with or without a .svg suffix
func (s *Server) GetIcon(c *fiber.Ctx) error {
	name := strings.TrimSuffix(c.Params("name"), ".svg")
	svg := format.Icon(name)
	if svg == "" {
		return respond(c, models.NewNotFoundError("Icon", name))
	}
	c.Set(fiber.HeaderContentType, "image/svg+xml")
	c.Set(fiber.HeaderCacheControl, "public, max-age=86400")
	return c.SendString(svg)
}

// GetUserAvatar handles GET /api/users/:username/avatar. Users with a
// profile picture are redirected to it.
func (s *Server) GetUserAvatar(c *fiber.Ctx) error {
	user, err := s.userService.GetProfile(c.UserContext(), c.Params("username"))
	if err != nil {
		return respond(c, err)
	}
	if user.ProfilePic != "" {
		return c.Redirect(user.ProfilePic, fiber.StatusFound)
	}
	c.Set(fiber.HeaderContentType, "image/svg+xml")
	c.Set(fiber.HeaderCacheControl, "public, max-age=300")
	return c.SendString(format.Avatar(user.Username, user.Name))
}
