package models

import "time"

// User is an account that can connect and exchange messages.
type User struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Username     string    `gorm:"uniqueIndex;not null;size:64" json:"username"`
	DisplayName  string    `gorm:"size:128" json:"displayName"`
	Headline     string    `gorm:"size:255" json:"headline,omitempty"`
	PasswordHash string    `gorm:"not null" json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// TableName specifies the table name for GORM
func (User) TableName() string {
	return "users"
}

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse carries the bearer token for subsequent calls.
type LoginResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

// Notice is a benign, user-visible event produced by reconciliation,
// e.g. a connection request that the other side already handled.
type Notice struct {
	Kind          NoticeKind `json:"kind"`
	CounterpartID uint       `json:"counterpartId,omitempty"`
	EdgeID        uint       `json:"edgeId,omitempty"`
	CorrelationID string     `json:"correlationId,omitempty"`
	Text          string     `json:"text"`
}

// NoticeKind classifies a Notice.
type NoticeKind string

const (
	NoticeAlreadyHandled NoticeKind = "already_handled"
	NoticeSendFailed     NoticeKind = "send_failed"
	NoticeResynced       NoticeKind = "resynced"
)
