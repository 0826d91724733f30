// internal/lifecycle/manager.go
package lifecycle

import (
	"context"
	"time"

	"github.com/google/uuid"

	"cooin-core/internal/common/errors"
	"cooin-core/internal/common/logger"
	"cooin-core/internal/common/metrics"
	"cooin-core/internal/models"
	"cooin-core/internal/notification"
)

func newConnectionID() string {
	return uuid.NewString()
}

// CacheInvalidator drops a user's cached match results. A failing
// invalidation is logged and absorbed: TTL bounds the staleness.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, ownerID string) error
}

// Manager drives the connection state machine. All concurrency control
// lives in the Store; the manager adds authorization, lazy expiry, cache
// invalidation, and notification fan-out around each transition.
type Manager struct {
	store      Store
	cache      CacheInvalidator
	notifier   notification.Dispatcher
	pendingTTL time.Duration
	logger     logger.Logger
	now        func() time.Time
}

func NewManager(store Store, cache CacheInvalidator, notifier notification.Dispatcher, pendingTTL time.Duration, log logger.Logger) *Manager {
	return &Manager{
		store:      store,
		cache:      cache,
		notifier:   notifier,
		pendingTTL: pendingTTL,
		logger:     log,
		now:        time.Now,
	}
}

func (m *Manager) pendingCutoff() time.Time {
	return m.now().Add(-m.pendingTTL)
}

// Propose creates a pending connection between actor and receiver. The
// one-active-connection-per-pair check happens atomically in the store, so
// two racing proposals produce exactly one row.
func (m *Manager) Propose(ctx context.Context, actorID, receiverID string, connType models.ConnectionType, terms *models.ProposedTerms, message string) (models.Connection, error) {
	if receiverID == "" || receiverID == actorID {
		return models.Connection{}, errors.NewInvalidParameterError("receiver_id", "must identify another user")
	}
	if !connType.IsValid() {
		return models.Connection{}, errors.NewInvalidParameterError("type", "unknown connection type")
	}

	blocked, err := m.store.HasBlock(ctx, actorID, receiverID)
	if err != nil {
		return models.Connection{}, err
	}
	if blocked {
		return models.Connection{}, errors.NewBlockedError("a block exists between these users")
	}

	conn := models.Connection{
		ID:          newConnectionID(),
		RequesterID: actorID,
		ReceiverID:  receiverID,
		Type:        connType,
		Status:      models.ConnectionPending,
		Terms:       terms,
		Message:     message,
		Version:     1,
		CreatedAt:   m.now().UTC(),
	}

	created, err := m.store.CreateIfNoActive(ctx, conn, m.pendingCutoff())
	if err != nil {
		return models.Connection{}, err
	}

	m.afterTransition(ctx, created, "")
	return created, nil
}

// Respond finalizes a pending connection. Only the receiver may respond, and
// the store-side version check guarantees one winner between two racing
// responders; the loser sees InvalidStateError.
func (m *Manager) Respond(ctx context.Context, actorID, connectionID, decision, message string) (models.Connection, error) {
	var status models.ConnectionStatus
	switch decision {
	case "accept":
		status = models.ConnectionAccepted
	case "reject":
		status = models.ConnectionRejected
	default:
		return models.Connection{}, errors.NewInvalidParameterError("decision", "must be accept or reject")
	}

	conn, err := m.store.GetConnection(ctx, connectionID)
	if err != nil {
		return models.Connection{}, err
	}
	if conn.ReceiverID != actorID {
		return models.Connection{}, errors.NewNotAuthorizedError("only the receiver may respond to a connection")
	}

	conn = m.expireIfStale(ctx, conn)
	if conn.Status != models.ConnectionPending {
		return models.Connection{}, errors.NewInvalidStateError(connectionID,
			"connection is "+string(conn.Status)+", not pending")
	}

	updated, ok, err := m.store.CASRespond(ctx, connectionID, conn.Version,
		status, message, status == models.ConnectionAccepted, m.now().UTC(), m.pendingCutoff())
	if err != nil {
		return models.Connection{}, err
	}
	if !ok {
		// Lost the race or lapsed between read and write.
		return models.Connection{}, errors.NewInvalidStateError(connectionID, "connection is no longer pending")
	}

	m.afterTransition(ctx, updated, models.ConnectionPending)
	return updated, nil
}

// Block severs the pair from the actor's side. Either party may block at any
// time; repeating the call is a no-op success and fires no second round of
// side effects.
func (m *Manager) Block(ctx context.Context, actorID, targetID string) (models.Connection, error) {
	if targetID == "" || targetID == actorID {
		return models.Connection{}, errors.NewInvalidParameterError("target_id", "must identify another user")
	}

	conn, oldStatus, alreadyBlocked, err := m.store.Block(ctx, actorID, targetID, m.now().UTC())
	if err != nil {
		return models.Connection{}, err
	}
	if alreadyBlocked {
		return conn, nil
	}

	m.afterTransition(ctx, conn, oldStatus)
	return conn, nil
}

// BlockConnection blocks via a connection id instead of a user pair.
func (m *Manager) BlockConnection(ctx context.Context, actorID, connectionID string) (models.Connection, error) {
	conn, err := m.store.GetConnection(ctx, connectionID)
	if err != nil {
		return models.Connection{}, err
	}
	if !conn.Involves(actorID) {
		return models.Connection{}, errors.NewNotAuthorizedError("only a party to the connection may block it")
	}
	return m.Block(ctx, actorID, conn.Counterparty(actorID))
}

// Get returns one connection, expiring it lazily if its pending window has
// lapsed. Only the two parties may read it.
func (m *Manager) Get(ctx context.Context, actorID, connectionID string) (models.Connection, error) {
	conn, err := m.store.GetConnection(ctx, connectionID)
	if err != nil {
		return models.Connection{}, err
	}
	if !conn.Involves(actorID) {
		return models.Connection{}, errors.NewNotAuthorizedError("only a party to the connection may view it")
	}
	return m.expireIfStale(ctx, conn), nil
}

// List returns the actor's connections, newest first, with lazy expiry
// applied to each stale pending row.
func (m *Manager) List(ctx context.Context, actorID string) ([]models.Connection, error) {
	conns, err := m.store.ListForUser(ctx, actorID)
	if err != nil {
		return nil, err
	}
	for i, conn := range conns {
		conns[i] = m.expireIfStale(ctx, conn)
	}
	return conns, nil
}

// expireIfStale persists lazy expiry for a pending connection whose window
// has lapsed. A lost CAS means someone else transitioned the row first; the
// fresh row wins either way.
func (m *Manager) expireIfStale(ctx context.Context, conn models.Connection) models.Connection {
	if conn.EffectiveStatus(m.now(), m.pendingTTL) != models.ConnectionExpired ||
		conn.Status != models.ConnectionPending {
		return conn
	}

	expired, ok, err := m.store.MarkExpired(ctx, conn.ID, conn.Version)
	if err != nil {
		m.logger.Warn("failed to persist lazy expiry", map[string]interface{}{
			"connectionId": conn.ID,
			"error":        err.Error(),
		})
		conn.Status = models.ConnectionExpired
		return conn
	}
	if !ok {
		if fresh, err := m.store.GetConnection(ctx, conn.ID); err == nil {
			return fresh
		}
		conn.Status = models.ConnectionExpired
		return conn
	}

	m.afterTransition(ctx, expired, models.ConnectionPending)
	return expired
}

// afterTransition runs the side effects of a committed transition: metrics,
// cache invalidation for both parties, and the notification event. None of
// these may fail the transition, which is already durable.
func (m *Manager) afterTransition(ctx context.Context, conn models.Connection, oldStatus models.ConnectionStatus) {
	event := notification.Event{
		ConnectionID: conn.ID,
		RequesterID:  conn.RequesterID,
		ReceiverID:   conn.ReceiverID,
		OldStatus:    oldStatus,
		NewStatus:    conn.Status,
		OccurredAt:   m.now().UTC(),
	}
	metrics.ConnectionTransitionsTotal.WithLabelValues(event.Transition()).Inc()

	for _, ownerID := range []string{conn.RequesterID, conn.ReceiverID} {
		if err := m.cache.Invalidate(ctx, ownerID); err != nil {
			m.logger.Warn("failed to invalidate match cache", map[string]interface{}{
				"ownerId": ownerID,
				"error":   err.Error(),
			})
		}
	}

	if err := m.notifier.Dispatch(ctx, event); err != nil {
		m.logger.Warn("notification dispatch failed", map[string]interface{}{
			"connectionId": conn.ID,
			"transition":   event.Transition(),
			"error":        err.Error(),
		})
	}
}
