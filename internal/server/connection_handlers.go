package server

import (
	"proconnect/internal/models"

	"github.com/gofiber/fiber/v2"
)

// ConnectionStatusResponse is the viewer's derived status toward another user.
type ConnectionStatusResponse struct {
	UserID uint                           `json:"userId"`
	Status models.DerivedConnectionStatus `json:"status"`
	Edge   *models.ConnectionEdge         `json:"edge,omitempty"`
}

// GetConnections handles GET /api/connections
// @Summary List connections
// @Description Accepted connections involving the caller
// @Tags connections
// @Produce json
// @Security BearerAuth
// @Success 200 {array} models.ConnectionEdge
// @Router /connections [get]
func (s *Server) GetConnections(c *fiber.Ctx) error {
	edges, err := s.connectionService.ListConnections(c.UserContext(), viewerID(c))
	if err != nil {
		return respondWithError(c, err)
	}
	return c.JSON(edges)
}

// GetPendingConnections handles GET /api/connections/pending
// @Summary Received requests
// @Description Pending requests the caller may accept or reject
// @Tags connections
// @Produce json
// @Security BearerAuth
// @Success 200 {array} models.ConnectionEdge
// @Router /connections/pending [get]
func (s *Server) GetPendingConnections(c *fiber.Ctx) error {
	edges, err := s.connectionService.ListPendingReceived(c.UserContext(), viewerID(c))
	if err != nil {
		return respondWithError(c, err)
	}
	return c.JSON(edges)
}

// GetSentPendingConnections handles GET /api/connections/sent-pending
// @Summary Sent requests
// @Description Pending requests the caller sent and may cancel
// @Tags connections
// @Produce json
// @Security BearerAuth
// @Success 200 {array} models.ConnectionEdge
// @Router /connections/sent-pending [get]
func (s *Server) GetSentPendingConnections(c *fiber.Ctx) error {
	edges, err := s.connectionService.ListPendingSent(c.UserContext(), viewerID(c))
	if err != nil {
		return respondWithError(c, err)
	}
	return c.JSON(edges)
}

// GetConnectionStatus handles GET /api/connections/status/:userId
// @Summary Status toward a user
// @Tags connections
// @Produce json
// @Security BearerAuth
// @Param userId path int true "Other user ID"
// @Success 200 {object} ConnectionStatusResponse
// @Router /connections/status/{userId} [get]
func (s *Server) GetConnectionStatus(c *fiber.Ctx) error {
	otherID, err := parseID(c, "userId")
	if err != nil {
		return nil
	}

	status, edge, err := s.connectionService.StatusWith(c.UserContext(), viewerID(c), otherID)
	if err != nil {
		return respondWithError(c, err)
	}
	return c.JSON(ConnectionStatusResponse{UserID: otherID, Status: status, Edge: edge})
}

// CreateConnection handles POST /api/connections
// @Summary Send a connection request
// @Tags connections
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body models.CreateConnectionRequest true "Receiver and optional note"
// @Success 201 {object} models.ConnectionEdge
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Router /connections [post]
func (s *Server) CreateConnection(c *fiber.Ctx) error {
	var req models.CreateConnectionRequest
	if err := parseBody(c, &req); err != nil {
		return nil
	}

	edge, err := s.connectionService.SendRequest(c.UserContext(), viewerID(c), req.ReceiverID, req.Message)
	if err != nil {
		return respondWithError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(edge)
}

// AcceptConnection handles POST /api/connections/:id/accept
// @Summary Accept a received request
// @Tags connections
// @Produce json
// @Security BearerAuth
// @Param id path int true "Connection ID"
// @Success 200 {object} models.ConnectionEdge
// @Failure 404 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Router /connections/{id}/accept [post]
func (s *Server) AcceptConnection(c *fiber.Ctx) error {
	edgeID, err := parseID(c, "id")
	if err != nil {
		return nil
	}

	edge, err := s.connectionService.AcceptRequest(c.UserContext(), viewerID(c), edgeID)
	if err != nil {
		return respondWithError(c, err)
	}
	return c.JSON(edge)
}

// RejectConnection handles POST /api/connections/:id/reject
// The receiver rejects; the requester cancels. Both delete the pending edge.
// @Summary Reject or cancel a pending request
// @Tags connections
// @Security BearerAuth
// @Param id path int true "Connection ID"
// @Success 204
// @Failure 404 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Router /connections/{id}/reject [post]
func (s *Server) RejectConnection(c *fiber.Ctx) error {
	edgeID, err := parseID(c, "id")
	if err != nil {
		return nil
	}

	if _, _, err := s.connectionService.ResolveRequest(c.UserContext(), viewerID(c), edgeID); err != nil {
		return respondWithError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// UpdateConnection handles PATCH /api/connections/:id
// @Summary Transition a pending request
// @Description status=accepted returns the edge; status=rejected deletes it and returns 204
// @Tags connections
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Connection ID"
// @Param request body models.UpdateConnectionRequest true "Target status"
// @Success 200 {object} models.ConnectionEdge
// @Success 204
// @Failure 400 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Router /connections/{id} [patch]
func (s *Server) UpdateConnection(c *fiber.Ctx) error {
	edgeID, err := parseID(c, "id")
	if err != nil {
		return nil
	}

	var req models.UpdateConnectionRequest
	if err := parseBody(c, &req); err != nil {
		return nil
	}

	edge, err := s.connectionService.UpdateStatus(c.UserContext(), viewerID(c), edgeID, req.Status)
	if err != nil {
		return respondWithError(c, err)
	}
	if req.Status == models.ConnectionStatusRejected {
		return c.SendStatus(fiber.StatusNoContent)
	}
	return c.JSON(edge)
}
