// internal/matching/eligibility/filter.go
package eligibility

import (
	"context"
	"fmt"

	"cooin-core/internal/common/logger"
	"cooin-core/internal/models"
)

// TicketSource is the slice of the ticket store the filter reads.
type TicketSource interface {
	ActiveTicketsByRole(ctx context.Context, role models.TicketRole, excludeOwner string) ([]models.Ticket, error)
	TicketsByIDs(ctx context.Context, ids []string) (map[string]models.Ticket, error)
	GetProfileSummaries(ctx context.Context, userIDs []string) (map[string]models.ProfileSummary, error)
}

// ConnectionReader answers which counterparties a user can no longer be
// matched with. Blocks exclude in both directions; pending and accepted
// connections exclude the pair while they stay active. Rejected and expired
// connections do not exclude anything.
type ConnectionReader interface {
	BlockedCounterparties(ctx context.Context, userID string) ([]string, error)
	ActiveCounterparties(ctx context.Context, userID string) ([]string, error)
}

// Prefilter optionally narrows the candidate pool through a search index
// before the store is consulted. A failing prefilter degrades to a full
// store scan.
type Prefilter interface {
	ActiveTicketIDs(ctx context.Context, role models.TicketRole, excludeOwner string, size int) ([]string, error)
}

// prefilterSize caps how many candidates the search index may hand back.
const prefilterSize = 500

// Filter assembles the eligible candidate pool for a subject ticket.
type Filter struct {
	tickets     TicketSource
	connections ConnectionReader
	prefilter   Prefilter // nil disables the search index
	logger      logger.Logger
}

func NewFilter(tickets TicketSource, connections ConnectionReader, prefilter Prefilter, log logger.Logger) *Filter {
	return &Filter{
		tickets:     tickets,
		connections: connections,
		prefilter:   prefilter,
		logger:      log,
	}
}

// CandidatePool returns every candidate the subject may be matched against:
// active tickets of the complementary role whose owners are not excluded by
// a block or an active connection. Profiles and distance buckets are
// attached so the pool can be scored directly.
func (f *Filter) CandidatePool(ctx context.Context, subject models.Ticket, subjectProfile models.ProfileSummary) ([]models.Candidate, error) {
	pool, err := f.loadPool(ctx, subject)
	if err != nil {
		return nil, err
	}
	if len(pool) == 0 {
		return nil, nil
	}

	excluded, err := f.excludedCounterparties(ctx, subject.OwnerID)
	if err != nil {
		return nil, err
	}

	eligible := pool[:0]
	owners := make([]string, 0, len(pool))
	for _, ticket := range pool {
		if !ticket.IsActive() || ticket.Role != subject.Role.Complement() {
			continue
		}
		if ticket.OwnerID == subject.OwnerID || excluded[ticket.OwnerID] {
			continue
		}
		eligible = append(eligible, ticket)
		owners = append(owners, ticket.OwnerID)
	}
	if len(eligible) == 0 {
		return nil, nil
	}

	profiles, err := f.tickets.GetProfileSummaries(ctx, owners)
	if err != nil {
		return nil, fmt.Errorf("failed to load candidate profiles: %w", err)
	}

	candidates := make([]models.Candidate, 0, len(eligible))
	for _, ticket := range eligible {
		profile, ok := profiles[ticket.OwnerID]
		if !ok {
			// A ticket without a profile cannot be scored. Skip it
			// rather than failing the whole pool.
			f.logger.Warn("candidate ticket has no profile summary", map[string]interface{}{
				"ticketId": ticket.ID,
				"ownerId":  ticket.OwnerID,
			})
			continue
		}
		candidates = append(candidates, models.Candidate{
			Ticket:   ticket,
			Profile:  profile,
			Distance: models.DistanceBetween(subjectProfile, profile),
		})
	}
	return candidates, nil
}

func (f *Filter) loadPool(ctx context.Context, subject models.Ticket) ([]models.Ticket, error) {
	role := subject.Role.Complement()

	if f.prefilter != nil {
		ids, err := f.prefilter.ActiveTicketIDs(ctx, role, subject.OwnerID, prefilterSize)
		if err == nil {
			byID, err := f.tickets.TicketsByIDs(ctx, ids)
			if err != nil {
				return nil, fmt.Errorf("failed to load prefiltered tickets: %w", err)
			}
			pool := make([]models.Ticket, 0, len(byID))
			for _, id := range ids {
				if t, ok := byID[id]; ok {
					pool = append(pool, t)
				}
			}
			return pool, nil
		}
		// The index is an optimization. Fall back to the store.
		f.logger.Warn("candidate prefilter failed, scanning store", map[string]interface{}{
			"error": err.Error(),
		})
	}

	pool, err := f.tickets.ActiveTicketsByRole(ctx, role, subject.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load candidate pool: %w", err)
	}
	return pool, nil
}

// excludedCounterparties merges blocks (either direction) with active
// pending/accepted pairs into one exclusion set.
func (f *Filter) excludedCounterparties(ctx context.Context, userID string) (map[string]bool, error) {
	blocked, err := f.connections.BlockedCounterparties(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load blocked counterparties: %w", err)
	}
	active, err := f.connections.ActiveCounterparties(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load active counterparties: %w", err)
	}

	excluded := make(map[string]bool, len(blocked)+len(active))
	for _, id := range blocked {
		excluded[id] = true
	}
	for _, id := range active {
		excluded[id] = true
	}
	return excluded, nil
}
