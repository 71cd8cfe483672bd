// Package models contains data structures for the application's domain models.
package models

import (
	"time"

	"gorm.io/gorm"
)

// ConnectionStatus represents the stored status of a connection edge.
// Rejected edges are deleted, so only pending and accepted are ever persisted.
type ConnectionStatus string

const (
	// ConnectionStatusPending indicates a request awaiting the receiver's decision.
	ConnectionStatusPending ConnectionStatus = "pending"
	// ConnectionStatusAccepted indicates an established connection.
	ConnectionStatusAccepted ConnectionStatus = "accepted"
	// ConnectionStatusRejected is only used as a transition target on the wire.
	ConnectionStatusRejected ConnectionStatus = "rejected"
)

// ConnectionEdge represents a connection relationship between two users.
// Direction matters while pending: RequesterID sent it, ReceiverID may accept it.
type ConnectionEdge struct {
	ID          uint             `gorm:"primaryKey" json:"id"`
	RequesterID uint             `gorm:"not null;index:idx_connection_requester" json:"requesterId"`
	ReceiverID  uint             `gorm:"not null;index:idx_connection_receiver" json:"receiverId"`
	PairLow     uint             `gorm:"not null;uniqueIndex:idx_connection_pair" json:"-"`
	PairHigh    uint             `gorm:"not null;uniqueIndex:idx_connection_pair" json:"-"`
	Status      ConnectionStatus `gorm:"type:varchar(20);default:'pending';index:idx_connections_status" json:"status"`
	Message     string           `gorm:"type:text" json:"message,omitempty"`
	CreatedAt   time.Time        `json:"createdAt"`
	UpdatedAt   time.Time        `json:"updatedAt"`
}

// TableName specifies the table name for GORM
func (ConnectionEdge) TableName() string {
	return "connections"
}

// BeforeCreate fills the unordered pair key. Direction itself is preserved.
func (e *ConnectionEdge) BeforeCreate(_ *gorm.DB) error {
	e.PairLow, e.PairHigh = OrderedPair(e.RequesterID, e.ReceiverID)
	return nil
}

// Counterpart returns the other participant of the edge from viewerID's perspective.
func (e *ConnectionEdge) Counterpart(viewerID uint) uint {
	if e.RequesterID == viewerID {
		return e.ReceiverID
	}
	return e.RequesterID
}

// Involves reports whether userID is one of the two participants.
func (e *ConnectionEdge) Involves(userID uint) bool {
	return e.RequesterID == userID || e.ReceiverID == userID
}

// OrderedPair returns the two ids sorted ascending.
func OrderedPair(a, b uint) (uint, uint) {
	if a > b {
		return b, a
	}
	return a, b
}

// DerivedConnectionStatus is the per-counterpart status seen by one viewer.
type DerivedConnectionStatus string

const (
	StatusNone            DerivedConnectionStatus = "none"
	StatusPendingSent     DerivedConnectionStatus = "pendingSent"
	StatusPendingReceived DerivedConnectionStatus = "pendingReceived"
	StatusConnected       DerivedConnectionStatus = "connected"
)

// DeriveStatus computes the viewer's status for an edge. A nil edge means none.
func DeriveStatus(viewerID uint, edge *ConnectionEdge) DerivedConnectionStatus {
	if edge == nil || !edge.Involves(viewerID) {
		return StatusNone
	}
	switch edge.Status {
	case ConnectionStatusAccepted:
		return StatusConnected
	case ConnectionStatusPending:
		if edge.RequesterID == viewerID {
			return StatusPendingSent
		}
		return StatusPendingReceived
	}
	return StatusNone
}

// ConnectionRole says which side of a pending edge is acting on it.
type ConnectionRole string

const (
	// RoleReceiver declines a request it received (reject).
	RoleReceiver ConnectionRole = "receiver"
	// RoleRequester withdraws a request it sent (cancel).
	RoleRequester ConnectionRole = "requester"
)

// RoleOf returns the viewer's role on the edge and whether the viewer participates at all.
func RoleOf(viewerID uint, edge *ConnectionEdge) (ConnectionRole, bool) {
	switch viewerID {
	case edge.ReceiverID:
		return RoleReceiver, true
	case edge.RequesterID:
		return RoleRequester, true
	}
	return "", false
}

// CreateConnectionRequest is the body of POST /connections.
type CreateConnectionRequest struct {
	ReceiverID uint   `json:"receiverId"`
	Message    string `json:"message,omitempty"`
}

// UpdateConnectionRequest is the body of PATCH /connections/:id.
type UpdateConnectionRequest struct {
	Status ConnectionStatus `json:"status"`
}
