// internal/models/ticket.go
package models

import "time"

// TicketRole identifies which side of a loan a ticket represents.
type TicketRole string

const (
	RoleBorrower TicketRole = "borrower"
	RoleLender   TicketRole = "lender"
)

// Complement returns the opposite role, i.e. the role a ticket is matched against.
func (r TicketRole) Complement() TicketRole {
	if r == RoleBorrower {
		return RoleLender
	}
	return RoleBorrower
}

// IsValid reports whether the role is one of the known values.
func (r TicketRole) IsValid() bool {
	return r == RoleBorrower || r == RoleLender
}

// TicketStatus is the publication state of a ticket.
type TicketStatus string

const (
	TicketDraft     TicketStatus = "draft"
	TicketActive    TicketStatus = "active"
	TicketMatched   TicketStatus = "matched"
	TicketFunded    TicketStatus = "funded"
	TicketCompleted TicketStatus = "completed"
	TicketCancelled TicketStatus = "cancelled"
	TicketExpired   TicketStatus = "expired"
)

// Ticket is a published loan request (borrower) or lending offer (lender).
//
// AmountMin and AmountMax bound the principal: a loan request carries a single
// amount (min == max), a lending offer carries a range. InterestRate is the
// offered annual rate on a lender ticket and the maximum acceptable rate on a
// borrower ticket. TermMonths is the set of acceptable term lengths.
type Ticket struct {
	ID           string       `json:"id"`
	OwnerID      string       `json:"ownerId"`
	Role         TicketRole   `json:"role"`
	AmountMin    int64        `json:"amountMin"`
	AmountMax    int64        `json:"amountMax"`
	InterestRate float64      `json:"interestRate"`
	TermMonths   []int        `json:"termMonths"`
	Purpose      string       `json:"purpose"`
	Status       TicketStatus `json:"status"`
	CreatedAt    time.Time    `json:"createdAt"`
	UpdatedAt    time.Time    `json:"updatedAt"`
}

// IsActive reports whether the ticket participates in matching.
func (t *Ticket) IsActive() bool {
	return t.Status == TicketActive
}

// RequestedAmount is the principal a borrower ticket asks for. For a range
// (which a borrower ticket normally does not carry) it falls back to the
// midpoint.
func (t *Ticket) RequestedAmount() int64 {
	return (t.AmountMin + t.AmountMax) / 2
}
