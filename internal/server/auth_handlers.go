package server

import (
	"proconnect/internal/middleware"
	"proconnect/internal/models"

	"github.com/gofiber/fiber/v2"
)

// Login handles POST /api/auth/login
// @Summary Log in
// @Description Exchange username and password for a bearer token
// @Tags auth
// @Accept json
// @Produce json
// @Param request body models.LoginRequest true "Credentials"
// @Success 200 {object} models.LoginResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 401 {object} models.ErrorResponse
// @Router /auth/login [post]
func (s *Server) Login(c *fiber.Ctx) error {
	var req models.LoginRequest
	if err := parseBody(c, &req); err != nil {
		return nil
	}

	user, err := s.userService.Authenticate(c.UserContext(), req.Username, req.Password)
	if err != nil {
		return respondWithError(c, err)
	}

	token, err := middleware.GenerateToken(s.config.JWTSecret, user.ID, s.config.TokenTTL())
	if err != nil {
		return respondWithError(c, models.NewInternalError(err))
	}

	return c.JSON(models.LoginResponse{Token: token, User: *user})
}

// Me handles GET /api/auth/me
// @Summary Current user
// @Tags auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} models.User
// @Failure 401 {object} models.ErrorResponse
// @Router /auth/me [get]
func (s *Server) Me(c *fiber.Ctx) error {
	user, err := s.userService.GetUserByID(c.UserContext(), viewerID(c))
	if err != nil {
		return respondWithError(c, err)
	}
	return c.JSON(user)
}
