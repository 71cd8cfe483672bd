package server

import (
	"github.com/gofiber/fiber/v2"
)

// SearchUsers handles GET /api/users
// @Summary Discover users
// @Description Lists users other than the caller, optionally filtered by q
// @Tags users
// @Produce json
// @Security BearerAuth
// @Param q query string false "Username or display name fragment"
// @Param limit query int false "Max results (default 20)"
// @Success 200 {array} models.User
// @Router /users [get]
func (s *Server) SearchUsers(c *fiber.Ctx) error {
	users, err := s.userService.SearchUsers(c.UserContext(), viewerID(c), c.Query("q"), c.QueryInt("limit", 20))
	if err != nil {
		return respondWithError(c, err)
	}
	return c.JSON(users)
}

// GetUser handles GET /api/users/:id
// @Summary Get a user
// @Tags users
// @Produce json
// @Security BearerAuth
// @Param id path int true "User ID"
// @Success 200 {object} models.User
// @Failure 404 {object} models.ErrorResponse
// @Router /users/{id} [get]
func (s *Server) GetUser(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	user, err := s.userService.GetUserByID(c.UserContext(), id)
	if err != nil {
		return respondWithError(c, err)
	}
	return c.JSON(user)
}
