// internal/models/connection.go
package models

import "time"

// ConnectionStatus is the lifecycle state of a connection.
type ConnectionStatus string

const (
	ConnectionPending  ConnectionStatus = "pending"
	ConnectionAccepted ConnectionStatus = "accepted"
	ConnectionRejected ConnectionStatus = "rejected"
	ConnectionBlocked  ConnectionStatus = "blocked"
	ConnectionExpired  ConnectionStatus = "expired"
)

// ConnectionType classifies what a connection was proposed for.
type ConnectionType string

const (
	ConnectionLendingInquiry   ConnectionType = "lending_inquiry"
	ConnectionBorrowingRequest ConnectionType = "borrowing_request"
	ConnectionGeneral          ConnectionType = "general"
	ConnectionReferral         ConnectionType = "referral"
)

// IsValid reports whether the type is one of the known values.
func (t ConnectionType) IsValid() bool {
	switch t {
	case ConnectionLendingInquiry, ConnectionBorrowingRequest, ConnectionGeneral, ConnectionReferral:
		return true
	}
	return false
}

// ProposedTerms are the optional loan terms attached to a proposal.
type ProposedTerms struct {
	Amount       int64   `json:"amount"`
	InterestRate float64 `json:"interestRate"`
	Purpose      string  `json:"purpose"`
}

// Connection is the durable relationship record between two users. The pair
// is unordered for uniqueness purposes, but direction matters: RequesterID
// proposed, ReceiverID decides. At most one active (pending or accepted)
// connection may exist per pair.
type Connection struct {
	ID              string           `json:"id"`
	RequesterID     string           `json:"requesterId"`
	ReceiverID      string           `json:"receiverId"`
	Type            ConnectionType   `json:"type"`
	Status          ConnectionStatus `json:"status"`
	Terms           *ProposedTerms   `json:"terms,omitempty"`
	Message         string           `json:"message,omitempty"`
	ResponseMessage string           `json:"responseMessage,omitempty"`
	IsMutual        bool             `json:"isMutual"`
	MessageCount    int              `json:"messageCount"`
	BlockedBy       string           `json:"blockedBy,omitempty"` // user id that blocked, when Status == blocked
	Version         int              `json:"version"`
	CreatedAt       time.Time        `json:"createdAt"`
	RespondedAt     *time.Time       `json:"respondedAt,omitempty"`
}

// IsActive reports whether the connection excludes its pair from new
// proposals and from each other's candidate pools.
func (c *Connection) IsActive() bool {
	return c.Status == ConnectionPending || c.Status == ConnectionAccepted
}

// Involves reports whether userID is one of the two parties.
func (c *Connection) Involves(userID string) bool {
	return c.RequesterID == userID || c.ReceiverID == userID
}

// Counterparty returns the other party's id, or "" if userID is not a party.
func (c *Connection) Counterparty(userID string) string {
	switch userID {
	case c.RequesterID:
		return c.ReceiverID
	case c.ReceiverID:
		return c.RequesterID
	}
	return ""
}

// DaysSinceCreated is the whole number of days since the proposal was made.
func (c *Connection) DaysSinceCreated(now time.Time) int {
	d := now.Sub(c.CreatedAt)
	if d < 0 {
		return 0
	}
	return int(d.Hours() / 24)
}

// EffectiveStatus applies lazy expiry: a pending connection older than
// pendingTTL reads as expired without a background sweep ever touching the
// row.
func (c *Connection) EffectiveStatus(now time.Time, pendingTTL time.Duration) ConnectionStatus {
	if c.Status == ConnectionPending && now.Sub(c.CreatedAt) > pendingTTL {
		return ConnectionExpired
	}
	return c.Status
}
