// internal/store/tickets.go
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"

	"cooin-core/internal/common/database"
	"cooin-core/internal/common/errors"
	"cooin-core/internal/common/logger"
	"cooin-core/internal/models"
)

// TicketStore reads tickets and profile summaries from Postgres. The
// matching core only ever reads here; ticket and profile writes belong to
// other services.
type TicketStore struct {
	db     *database.PostgresClient
	logger logger.Logger
}

func NewTicketStore(db *database.PostgresClient, log logger.Logger) *TicketStore {
	return &TicketStore{db: db, logger: log}
}

const ticketColumns = `id, owner_id, role, amount_min, amount_max,
	interest_rate, term_months, purpose, status, created_at, updated_at`

// GetTicket loads one ticket by id.
func (s *TicketStore) GetTicket(ctx context.Context, id string) (models.Ticket, error) {
	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE id = $1`, ticketColumns)

	ticket, err := scanTicket(s.db.QueryRow(ctx, query, id))
	if err == sql.ErrNoRows {
		return models.Ticket{}, errors.NewNotFoundError("ticket", id)
	}
	if err != nil {
		return models.Ticket{}, fmt.Errorf("failed to get ticket %s: %w", id, err)
	}
	return ticket, nil
}

// ActiveTicketsByRole returns every active ticket of the given role,
// excluding tickets owned by excludeOwner. This is the raw candidate pool
// before eligibility filtering.
func (s *TicketStore) ActiveTicketsByRole(ctx context.Context, role models.TicketRole, excludeOwner string) ([]models.Ticket, error) {
	query := fmt.Sprintf(`SELECT %s FROM tickets
		WHERE role = $1 AND status = $2 AND owner_id <> $3
		ORDER BY id`, ticketColumns)

	rows, err := s.db.Query(ctx, query, string(role), string(models.TicketActive), excludeOwner)
	if err != nil {
		return nil, fmt.Errorf("failed to query active tickets: %w", err)
	}
	defer rows.Close()

	var tickets []models.Ticket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ticket row: %w", err)
		}
		tickets = append(tickets, ticket)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ticket rows iteration failed: %w", err)
	}

	s.logger.Debug("loaded candidate tickets", map[string]interface{}{
		"role":  string(role),
		"count": len(tickets),
	})
	return tickets, nil
}

// TicketsByIDs loads the given tickets in one round trip. Missing ids are
// silently absent from the result, the caller decides whether that matters.
func (s *TicketStore) TicketsByIDs(ctx context.Context, ids []string) (map[string]models.Ticket, error) {
	if len(ids) == 0 {
		return map[string]models.Ticket{}, nil
	}
	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE id = ANY($1)`, ticketColumns)

	rows, err := s.db.Query(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to query tickets by ids: %w", err)
	}
	defer rows.Close()

	tickets := make(map[string]models.Ticket, len(ids))
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ticket row: %w", err)
		}
		tickets[ticket.ID] = ticket
	}
	return tickets, rows.Err()
}

const profileColumns = `user_id, email, city, region, country, rating,
	rating_count, credit_bucket, completed_purposes, response_rate, risk_profile`

// GetProfileSummary loads the matching-relevant slice of one user profile.
func (s *TicketStore) GetProfileSummary(ctx context.Context, userID string) (models.ProfileSummary, error) {
	query := fmt.Sprintf(`SELECT %s FROM profile_summaries WHERE user_id = $1`, profileColumns)

	profile, err := scanProfile(s.db.QueryRow(ctx, query, userID))
	if err == sql.ErrNoRows {
		return models.ProfileSummary{}, errors.NewNotFoundError("profile", userID)
	}
	if err != nil {
		return models.ProfileSummary{}, fmt.Errorf("failed to get profile %s: %w", userID, err)
	}
	return profile, nil
}

// GetProfileSummaries loads many profiles keyed by user id.
func (s *TicketStore) GetProfileSummaries(ctx context.Context, userIDs []string) (map[string]models.ProfileSummary, error) {
	if len(userIDs) == 0 {
		return map[string]models.ProfileSummary{}, nil
	}
	query := fmt.Sprintf(`SELECT %s FROM profile_summaries WHERE user_id = ANY($1)`, profileColumns)

	rows, err := s.db.Query(ctx, query, pq.Array(userIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to query profiles: %w", err)
	}
	defer rows.Close()

	profiles := make(map[string]models.ProfileSummary, len(userIDs))
	for rows.Next() {
		profile, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan profile row: %w", err)
		}
		profiles[profile.UserID] = profile
	}
	return profiles, rows.Err()
}

// EmailFor resolves a user's notification address from their profile.
func (s *TicketStore) EmailFor(ctx context.Context, userID string) (string, error) {
	profile, err := s.GetProfileSummary(ctx, userID)
	if err != nil {
		return "", err
	}
	if profile.Email == "" {
		return "", errors.NewNotFoundError("email for user", userID)
	}
	return profile.Email, nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanTicket(row scanner) (models.Ticket, error) {
	var (
		ticket    models.Ticket
		termsJSON []byte
	)
	err := row.Scan(
		&ticket.ID,
		&ticket.OwnerID,
		&ticket.Role,
		&ticket.AmountMin,
		&ticket.AmountMax,
		&ticket.InterestRate,
		&termsJSON,
		&ticket.Purpose,
		&ticket.Status,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
	)
	if err != nil {
		return models.Ticket{}, err
	}
	if len(termsJSON) > 0 {
		if err := json.Unmarshal(termsJSON, &ticket.TermMonths); err != nil {
			return models.Ticket{}, fmt.Errorf("failed to unmarshal term_months: %w", err)
		}
	}
	return ticket, nil
}

func scanProfile(row scanner) (models.ProfileSummary, error) {
	var (
		profile      models.ProfileSummary
		purposesJSON []byte
	)
	err := row.Scan(
		&profile.UserID,
		&profile.Email,
		&profile.City,
		&profile.Region,
		&profile.Country,
		&profile.Rating,
		&profile.RatingCount,
		&profile.CreditBucket,
		&purposesJSON,
		&profile.ResponseRate,
		&profile.RiskProfile,
	)
	if err != nil {
		return models.ProfileSummary{}, err
	}
	if len(purposesJSON) > 0 {
		if err := json.Unmarshal(purposesJSON, &profile.CompletedPurposes); err != nil {
			return models.ProfileSummary{}, fmt.Errorf("failed to unmarshal completed_purposes: %w", err)
		}
	}
	return profile, nil
}
