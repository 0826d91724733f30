// internal/lifecycle/store.go
package lifecycle

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"cooin-core/internal/common/database"
	"cooin-core/internal/common/errors"
	"cooin-core/internal/models"
)

// Store is the persistence contract of the lifecycle manager. Every method
// that changes state does its concurrency check inside the database, never
// with in-process locks: the manager may run in many processes at once.
type Store interface {
	GetConnection(ctx context.Context, id string) (models.Connection, error)
	ListForUser(ctx context.Context, userID string) ([]models.Connection, error)

	// CreateIfNoActive inserts a pending connection only if the pair has
	// no pending (younger than pendingCutoff) or accepted connection.
	// Returns DuplicateActiveConnectionError when the insert loses.
	CreateIfNoActive(ctx context.Context, conn models.Connection, pendingCutoff time.Time) (models.Connection, error)

	// CASRespond finalizes a pending connection iff the stored version
	// still matches. ok=false means the row was already decided or has
	// lapsed past pendingCutoff.
	CASRespond(ctx context.Context, id string, expectedVersion int, status models.ConnectionStatus, responseMessage string, isMutual bool, respondedAt time.Time, pendingCutoff time.Time) (models.Connection, bool, error)

	// MarkExpired persists lazy expiry of a pending connection. ok=false
	// means a concurrent writer got there first.
	MarkExpired(ctx context.Context, id string, expectedVersion int) (models.Connection, bool, error)

	// Block records the directional block and transitions any active
	// connection of the pair to blocked, atomically. alreadyBlocked
	// reports an idempotent repeat from the same side; oldStatus is the
	// state the pair's connection held before the call ("" when the
	// block materialized a brand-new row).
	Block(ctx context.Context, blockerID, targetID string, now time.Time) (conn models.Connection, oldStatus models.ConnectionStatus, alreadyBlocked bool, err error)

	HasBlock(ctx context.Context, userA, userB string) (bool, error)
	BlockedCounterparties(ctx context.Context, userID string) ([]string, error)
	ActiveCounterparties(ctx context.Context, userID string, pendingCutoff time.Time) ([]string, error)
}

// PostgresStore implements Store on the shared Postgres client.
type PostgresStore struct {
	db *database.PostgresClient
}

func NewPostgresStore(db *database.PostgresClient) *PostgresStore {
	return &PostgresStore{db: db}
}

const connectionColumns = `id, requester_id, receiver_id, type, status, terms,
	message, response_message, is_mutual, message_count, blocked_by,
	version, created_at, responded_at`

func (s *PostgresStore) GetConnection(ctx context.Context, id string) (models.Connection, error) {
	query := fmt.Sprintf(`SELECT %s FROM connections WHERE id = $1`, connectionColumns)

	conn, err := scanConnection(s.db.QueryRow(ctx, query, id))
	if err == sql.ErrNoRows {
		return models.Connection{}, errors.NewNotFoundError("connection", id)
	}
	if err != nil {
		return models.Connection{}, fmt.Errorf("failed to get connection %s: %w", id, err)
	}
	return conn, nil
}

func (s *PostgresStore) ListForUser(ctx context.Context, userID string) ([]models.Connection, error) {
	query := fmt.Sprintf(`SELECT %s FROM connections
		WHERE requester_id = $1 OR receiver_id = $1
		ORDER BY created_at DESC`, connectionColumns)

	rows, err := s.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list connections: %w", err)
	}
	defer rows.Close()

	var conns []models.Connection
	for rows.Next() {
		conn, err := scanConnection(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan connection row: %w", err)
		}
		conns = append(conns, conn)
	}
	return conns, rows.Err()
}

// CreateIfNoActive is the atomic check-then-insert guarding the one-active-
// connection-per-pair invariant. The existence check and the insert run in a
// single statement so two concurrent proposals cannot both pass the check.
func (s *PostgresStore) CreateIfNoActive(ctx context.Context, conn models.Connection, pendingCutoff time.Time) (models.Connection, error) {
	termsJSON, err := marshalTerms(conn.Terms)
	if err != nil {
		return models.Connection{}, err
	}

	query := fmt.Sprintf(`INSERT INTO connections
		(id, requester_id, receiver_id, type, status, terms, message,
		 is_mutual, message_count, version, created_at)
		SELECT $1, $2, $3, $4, $5, $6, $7, FALSE, 0, 1, $8
		WHERE NOT EXISTS (
			SELECT 1 FROM connections
			WHERE ((requester_id = $2 AND receiver_id = $3)
			    OR (requester_id = $3 AND receiver_id = $2))
			  AND (status = 'accepted'
			    OR (status = 'pending' AND created_at > $9))
		)
		RETURNING %s`, connectionColumns)

	created, err := scanConnection(s.db.QueryRow(ctx, query,
		conn.ID, conn.RequesterID, conn.ReceiverID, string(conn.Type),
		string(models.ConnectionPending), termsJSON, conn.Message,
		conn.CreatedAt, pendingCutoff))
	if err == sql.ErrNoRows {
		return models.Connection{}, errors.NewDuplicateActiveConnectionError(conn.RequesterID, conn.ReceiverID)
	}
	if err != nil {
		return models.Connection{}, fmt.Errorf("failed to create connection: %w", err)
	}
	return created, nil
}

// CASRespond is the optimistic-concurrency write behind respond: the version
// predicate guarantees exactly one of two racing responders wins.
func (s *PostgresStore) CASRespond(ctx context.Context, id string, expectedVersion int, status models.ConnectionStatus, responseMessage string, isMutual bool, respondedAt time.Time, pendingCutoff time.Time) (models.Connection, bool, error) {
	query := fmt.Sprintf(`UPDATE connections
		SET status = $2, response_message = $3, is_mutual = $4,
		    responded_at = $5, version = version + 1
		WHERE id = $1
		  AND status = 'pending'
		  AND version = $6
		  AND created_at > $7
		RETURNING %s`, connectionColumns)

	conn, err := scanConnection(s.db.QueryRow(ctx, query,
		id, string(status), responseMessage, isMutual, respondedAt,
		expectedVersion, pendingCutoff))
	if err == sql.ErrNoRows {
		return models.Connection{}, false, nil
	}
	if err != nil {
		return models.Connection{}, false, fmt.Errorf("failed to respond to connection %s: %w", id, err)
	}
	return conn, true, nil
}

func (s *PostgresStore) MarkExpired(ctx context.Context, id string, expectedVersion int) (models.Connection, bool, error) {
	query := fmt.Sprintf(`UPDATE connections
		SET status = 'expired', version = version + 1
		WHERE id = $1 AND status = 'pending' AND version = $2
		RETURNING %s`, connectionColumns)

	conn, err := scanConnection(s.db.QueryRow(ctx, query, id, expectedVersion))
	if err == sql.ErrNoRows {
		return models.Connection{}, false, nil
	}
	if err != nil {
		return models.Connection{}, false, fmt.Errorf("failed to expire connection %s: %w", id, err)
	}
	return conn, true, nil
}

// Block runs in one transaction: record the directional block, push any
// active connection of the pair to blocked, and when the pair never had a
// connection at all, materialize a blocked one so callers always get a row
// back.
func (s *PostgresStore) Block(ctx context.Context, blockerID, targetID string, now time.Time) (models.Connection, models.ConnectionStatus, bool, error) {
	var oldStatus models.ConnectionStatus

	tx, err := s.db.DB.BeginTx(ctx, nil)
	if err != nil {
		return models.Connection{}, oldStatus, false, fmt.Errorf("failed to begin block transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO blocks (blocker_id, blocked_id, created_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (blocker_id, blocked_id) DO NOTHING`,
		blockerID, targetID, now)
	if err != nil {
		return models.Connection{}, oldStatus, false, fmt.Errorf("failed to record block: %w", err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return models.Connection{}, oldStatus, false, fmt.Errorf("failed to read block insert result: %w", err)
	}
	alreadyBlocked := inserted == 0

	// Latest connection of the pair, whatever its state.
	query := fmt.Sprintf(`SELECT %s FROM connections
		WHERE (requester_id = $1 AND receiver_id = $2)
		   OR (requester_id = $2 AND receiver_id = $1)
		ORDER BY created_at DESC
		LIMIT 1
		FOR UPDATE`, connectionColumns)

	conn, err := scanConnection(tx.QueryRowContext(ctx, query, blockerID, targetID))
	switch {
	case err != nil && err != sql.ErrNoRows:
		return models.Connection{}, oldStatus, false, fmt.Errorf("failed to load pair connection: %w", err)
	case err == nil && conn.IsActive():
		oldStatus = conn.Status
		updated := fmt.Sprintf(`UPDATE connections
			SET status = 'blocked', blocked_by = $2, version = version + 1
			WHERE id = $1
			RETURNING %s`, connectionColumns)
		conn, err = scanConnection(tx.QueryRowContext(ctx, updated, conn.ID, blockerID))
		if err != nil {
			return models.Connection{}, oldStatus, false, fmt.Errorf("failed to block active connection: %w", err)
		}
	case err == nil && conn.Status == models.ConnectionBlocked:
		oldStatus = models.ConnectionBlocked
	default:
		// No connection, or only rejected/expired history. Materialize a
		// blocked row so the caller always gets the block back as a
		// Connection.
		conn = models.Connection{
			ID:          newConnectionID(),
			RequesterID: blockerID,
			ReceiverID:  targetID,
			Type:        models.ConnectionGeneral,
			Status:      models.ConnectionBlocked,
			BlockedBy:   blockerID,
			Version:     1,
			CreatedAt:   now,
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO connections
			 (id, requester_id, receiver_id, type, status, blocked_by,
			  is_mutual, message_count, version, created_at)
			 VALUES ($1, $2, $3, $4, 'blocked', $5, FALSE, 0, 1, $6)`,
			conn.ID, conn.RequesterID, conn.ReceiverID, string(conn.Type),
			blockerID, now)
		if err != nil {
			return models.Connection{}, oldStatus, false, fmt.Errorf("failed to materialize block: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return models.Connection{}, oldStatus, false, fmt.Errorf("failed to commit block: %w", err)
	}
	return conn, oldStatus, alreadyBlocked, nil
}

func (s *PostgresStore) HasBlock(ctx context.Context, userA, userB string) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM blocks
			WHERE (blocker_id = $1 AND blocked_id = $2)
			   OR (blocker_id = $2 AND blocked_id = $1)
		)`, userA, userB).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check block: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) BlockedCounterparties(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.db.Query(ctx,
		`SELECT CASE WHEN blocker_id = $1 THEN blocked_id ELSE blocker_id END
		 FROM blocks
		 WHERE blocker_id = $1 OR blocked_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load blocked counterparties: %w", err)
	}
	defer rows.Close()
	return scanIDs(rows)
}

// ActiveCounterparties honors lazy expiry: pending rows older than the
// cutoff no longer count as active even though no writer has touched them.
func (s *PostgresStore) ActiveCounterparties(ctx context.Context, userID string, pendingCutoff time.Time) ([]string, error) {
	rows, err := s.db.Query(ctx,
		`SELECT CASE WHEN requester_id = $1 THEN receiver_id ELSE requester_id END
		 FROM connections
		 WHERE (requester_id = $1 OR receiver_id = $1)
		   AND (status = 'accepted'
		     OR (status = 'pending' AND created_at > $2))`, userID, pendingCutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to load active counterparties: %w", err)
	}
	defer rows.Close()
	return scanIDs(rows)
}

func scanIDs(rows *sql.Rows) ([]string, error) {
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanConnection(row scanner) (models.Connection, error) {
	var (
		conn        models.Connection
		termsJSON   []byte
		blockedBy   sql.NullString
		respondedAt sql.NullTime
	)
	err := row.Scan(
		&conn.ID,
		&conn.RequesterID,
		&conn.ReceiverID,
		&conn.Type,
		&conn.Status,
		&termsJSON,
		&conn.Message,
		&conn.ResponseMessage,
		&conn.IsMutual,
		&conn.MessageCount,
		&blockedBy,
		&conn.Version,
		&conn.CreatedAt,
		&respondedAt,
	)
	if err != nil {
		return models.Connection{}, err
	}
	if len(termsJSON) > 0 {
		var terms models.ProposedTerms
		if err := json.Unmarshal(termsJSON, &terms); err != nil {
			return models.Connection{}, fmt.Errorf("failed to unmarshal terms: %w", err)
		}
		conn.Terms = &terms
	}
	if blockedBy.Valid {
		conn.BlockedBy = blockedBy.String
	}
	if respondedAt.Valid {
		t := respondedAt.Time
		conn.RespondedAt = &t
	}
	return conn, nil
}

// marshalTerms returns an untyped nil (not a nil []byte) when there are no
// terms so the driver receives a plain SQL NULL.
func marshalTerms(terms *models.ProposedTerms) (interface{}, error) {
	if terms == nil {
		return nil, nil
	}
	data, err := json.Marshal(terms)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal terms: %w", err)
	}
	return data, nil
}
