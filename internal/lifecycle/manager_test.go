// internal/lifecycle/manager_test.go
package lifecycle

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cooin-core/internal/common/errors"
	"cooin-core/internal/common/logger"
	"cooin-core/internal/models"
	"cooin-core/internal/notification"
)

// memStore mirrors the PostgresStore semantics, including the atomicity of
// check-then-insert and the version compare-and-swap, behind one mutex.
type memStore struct {
	mu     sync.Mutex
	conns  map[string]models.Connection
	blocks map[[2]string]bool
}

func newMemStore() *memStore {
	return &memStore{
		conns:  map[string]models.Connection{},
		blocks: map[[2]string]bool{},
	}
}

func (s *memStore) GetConnection(_ context.Context, id string) (models.Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conn, ok := s.conns[id]
	if !ok {
		return models.Connection{}, errors.NewNotFoundError("connection", id)
	}
	return conn, nil
}

func (s *memStore) ListForUser(_ context.Context, userID string) ([]models.Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Connection
	for _, c := range s.conns {
		if c.Involves(userID) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *memStore) CreateIfNoActive(_ context.Context, conn models.Connection, pendingCutoff time.Time) (models.Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.conns {
		samePair := (c.RequesterID == conn.RequesterID && c.ReceiverID == conn.ReceiverID) ||
			(c.RequesterID == conn.ReceiverID && c.ReceiverID == conn.RequesterID)
		if !samePair {
			continue
		}
		if c.Status == models.ConnectionAccepted ||
			(c.Status == models.ConnectionPending && c.CreatedAt.After(pendingCutoff)) {
			return models.Connection{}, errors.NewDuplicateActiveConnectionError(conn.RequesterID, conn.ReceiverID)
		}
	}
	s.conns[conn.ID] = conn
	return conn, nil
}

func (s *memStore) CASRespond(_ context.Context, id string, expectedVersion int, status models.ConnectionStatus, responseMessage string, isMutual bool, respondedAt time.Time, pendingCutoff time.Time) (models.Connection, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conns[id]
	if !ok || c.Status != models.ConnectionPending || c.Version != expectedVersion || !c.CreatedAt.After(pendingCutoff) {
		return models.Connection{}, false, nil
	}
	c.Status = status
	c.ResponseMessage = responseMessage
	c.IsMutual = isMutual
	c.RespondedAt = &respondedAt
	c.Version++
	s.conns[id] = c
	return c, true, nil
}

func (s *memStore) MarkExpired(_ context.Context, id string, expectedVersion int) (models.Connection, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conns[id]
	if !ok || c.Status != models.ConnectionPending || c.Version != expectedVersion {
		return models.Connection{}, false, nil
	}
	c.Status = models.ConnectionExpired
	c.Version++
	s.conns[id] = c
	return c, true, nil
}

func (s *memStore) Block(_ context.Context, blockerID, targetID string, now time.Time) (models.Connection, models.ConnectionStatus, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := [2]string{blockerID, targetID}
	alreadyBlocked := s.blocks[key]
	s.blocks[key] = true

	var latest *models.Connection
	for id := range s.conns {
		c := s.conns[id]
		if !c.Involves(blockerID) || c.Counterparty(blockerID) != targetID {
			continue
		}
		if latest == nil || c.CreatedAt.After(latest.CreatedAt) {
			latest = &c
		}
	}

	var oldStatus models.ConnectionStatus
	switch {
	case latest != nil && latest.IsActive():
		oldStatus = latest.Status
		latest.Status = models.ConnectionBlocked
		latest.BlockedBy = blockerID
		latest.Version++
		s.conns[latest.ID] = *latest
		return *latest, oldStatus, alreadyBlocked, nil
	case latest != nil && latest.Status == models.ConnectionBlocked:
		return *latest, models.ConnectionBlocked, alreadyBlocked, nil
	default:
		conn := models.Connection{
			ID:          newConnectionID(),
			RequesterID: blockerID,
			ReceiverID:  targetID,
			Type:        models.ConnectionGeneral,
			Status:      models.ConnectionBlocked,
			BlockedBy:   blockerID,
			Version:     1,
			CreatedAt:   now,
		}
		s.conns[conn.ID] = conn
		return conn, "", alreadyBlocked, nil
	}
}

func (s *memStore) HasBlock(_ context.Context, userA, userB string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.blocks[[2]string{userA, userB}] || s.blocks[[2]string{userB, userA}], nil
}

func (s *memStore) BlockedCounterparties(_ context.Context, userID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for pair := range s.blocks {
		if pair[0] == userID {
			out = append(out, pair[1])
		} else if pair[1] == userID {
			out = append(out, pair[0])
		}
	}
	return out, nil
}

func (s *memStore) ActiveCounterparties(_ context.Context, userID string, pendingCutoff time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, c := range s.conns {
		if !c.Involves(userID) {
			continue
		}
		if c.Status == models.ConnectionAccepted ||
			(c.Status == models.ConnectionPending && c.CreatedAt.After(pendingCutoff)) {
			out = append(out, c.Counterparty(userID))
		}
	}
	return out, nil
}

type recordingCache struct {
	mu          sync.Mutex
	invalidated []string
}

func (c *recordingCache) Invalidate(_ context.Context, ownerID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidated = append(c.invalidated, ownerID)
	return nil
}

func (c *recordingCache) owners() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.invalidated...)
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notification.Event
	fail   bool
}

func (n *recordingNotifier) Dispatch(_ context.Context, event notification.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail {
		return stderrors.New("delivery channel down")
	}
	n.events = append(n.events, event)
	return nil
}

func (n *recordingNotifier) transitions() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.events))
	for i, e := range n.events {
		out[i] = e.Transition()
	}
	return out
}

const pendingTTL = 30 * 24 * time.Hour

func newTestManager(t *testing.T) (*Manager, *memStore, *recordingCache, *recordingNotifier) {
	t.Helper()
	store := newMemStore()
	cache := &recordingCache{}
	notifier := &recordingNotifier{}
	m := NewManager(store, cache, notifier, pendingTTL, logger.NewNoOpLogger())
	return m, store, cache, notifier
}

func TestProposeCreatesPendingConnection(t *testing.T) {
	m, _, cache, notifier := newTestManager(t)

	terms := &models.ProposedTerms{Amount: 25000, InterestRate: 7.5, Purpose: "home_improvement"}
	conn, err := m.Propose(context.Background(), "user-a", "user-b", models.ConnectionLendingInquiry, terms, "interested in your offer")
	require.NoError(t, err)

	assert.Equal(t, models.ConnectionPending, conn.Status)
	assert.Equal(t, "user-a", conn.RequesterID)
	assert.Equal(t, "user-b", conn.ReceiverID)
	assert.Equal(t, 1, conn.Version)
	assert.False(t, conn.IsMutual)
	require.NotNil(t, conn.Terms)
	assert.Equal(t, int64(25000), conn.Terms.Amount)

	assert.ElementsMatch(t, []string{"user-a", "user-b"}, cache.owners())
	assert.Equal(t, []string{"->pending"}, notifier.transitions())
}

func TestProposeValidation(t *testing.T) {
	m, _, _, _ := newTestManager(t)
	ctx := context.Background()

	_, err := m.Propose(ctx, "user-a", "user-a", models.ConnectionGeneral, nil, "")
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidParameter))

	_, err = m.Propose(ctx, "user-a", "", models.ConnectionGeneral, nil, "")
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidParameter))

	_, err = m.Propose(ctx, "user-a", "user-b", "friendship", nil, "")
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidParameter))
}

func TestProposeDuplicateActiveConnection(t *testing.T) {
	m, _, _, _ := newTestManager(t)
	ctx := context.Background()

	_, err := m.Propose(ctx, "user-a", "user-b", models.ConnectionGeneral, nil, "")
	require.NoError(t, err)

	// Same direction.
	_, err = m.Propose(ctx, "user-a", "user-b", models.ConnectionGeneral, nil, "")
	assert.True(t, errors.IsCode(err, errors.ErrCodeDuplicateActiveConnection))

	// Opposite direction: the pair is unordered for uniqueness.
	_, err = m.Propose(ctx, "user-b", "user-a", models.ConnectionGeneral, nil, "")
	assert.True(t, errors.IsCode(err, errors.ErrCodeDuplicateActiveConnection))
}

func TestProposeAfterRejectionSucceeds(t *testing.T) {
	m, _, _, _ := newTestManager(t)
	ctx := context.Background()

	first, err := m.Propose(ctx, "user-a", "user-b", models.ConnectionGeneral, nil, "")
	require.NoError(t, err)
	_, err = m.Respond(ctx, "user-b", first.ID, "reject", "not right now")
	require.NoError(t, err)

	second, err := m.Propose(ctx, "user-a", "user-b", models.ConnectionGeneral, nil, "trying again")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, models.ConnectionPending, second.Status)
}

func TestRespondAccept(t *testing.T) {
	m, _, cache, notifier := newTestManager(t)
	ctx := context.Background()

	conn, err := m.Propose(ctx, "user-a", "user-b", models.ConnectionGeneral, nil, "")
	require.NoError(t, err)

	accepted, err := m.Respond(ctx, "user-b", conn.ID, "accept", "happy to connect")
	require.NoError(t, err)

	assert.Equal(t, models.ConnectionAccepted, accepted.Status)
	assert.True(t, accepted.IsMutual)
	assert.Equal(t, "happy to connect", accepted.ResponseMessage)
	assert.NotNil(t, accepted.RespondedAt)
	assert.Equal(t, 2, accepted.Version)

	assert.Contains(t, notifier.transitions(), "pending->accepted")
	// Both parties' caches invalidated for the propose and the accept.
	assert.Len(t, cache.owners(), 4)
}

func TestRespondReject(t *testing.T) {
	m, _, _, _ := newTestManager(t)
	ctx := context.Background()

	conn, err := m.Propose(ctx, "user-a", "user-b", models.ConnectionGeneral, nil, "")
	require.NoError(t, err)

	rejected, err := m.Respond(ctx, "user-b", conn.ID, "reject", "no thanks")
	require.NoError(t, err)
	assert.Equal(t, models.ConnectionRejected, rejected.Status)
	assert.False(t, rejected.IsMutual)
	assert.Equal(t, "no thanks", rejected.ResponseMessage)
}

func TestRespondAuthorization(t *testing.T) {
	m, _, _, _ := newTestManager(t)
	ctx := context.Background()

	conn, err := m.Propose(ctx, "user-a", "user-b", models.ConnectionGeneral, nil, "")
	require.NoError(t, err)

	_, err = m.Respond(ctx, "user-a", conn.ID, "accept", "")
	assert.True(t, errors.IsCode(err, errors.ErrCodeNotAuthorized), "requester may not respond")

	_, err = m.Respond(ctx, "user-z", conn.ID, "accept", "")
	assert.True(t, errors.IsCode(err, errors.ErrCodeNotAuthorized), "strangers may not respond")
}

func TestRespondInvalidInputs(t *testing.T) {
	m, _, _, _ := newTestManager(t)
	ctx := context.Background()

	conn, err := m.Propose(ctx, "user-a", "user-b", models.ConnectionGeneral, nil, "")
	require.NoError(t, err)

	_, err = m.Respond(ctx, "user-b", conn.ID, "maybe", "")
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidParameter))

	_, err = m.Respond(ctx, "user-b", "no-such-id", "accept", "")
	assert.True(t, errors.IsCode(err, errors.ErrCodeNotFound))
}

func TestRespondNonPendingIsInvalidState(t *testing.T) {
	m, _, _, _ := newTestManager(t)
	ctx := context.Background()

	conn, err := m.Propose(ctx, "user-a", "user-b", models.ConnectionGeneral, nil, "")
	require.NoError(t, err)
	_, err = m.Respond(ctx, "user-b", conn.ID, "accept", "")
	require.NoError(t, err)

	_, err = m.Respond(ctx, "user-b", conn.ID, "reject", "changed my mind")
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidState))
}

func TestRespondConcurrentOneWinner(t *testing.T) {
	m, store, _, _ := newTestManager(t)
	ctx := context.Background()

	conn, err := m.Propose(ctx, "user-a", "user-b", models.ConnectionGeneral, nil, "")
	require.NoError(t, err)

	decisions := []string{"accept", "reject"}
	results := make([]error, len(decisions))
	var wg sync.WaitGroup
	wg.Add(len(decisions))
	for i, d := range decisions {
		go func(i int, decision string) {
			defer wg.Done()
			_, results[i] = m.Respond(ctx, "user-b", conn.ID, decision, "")
		}(i, d)
	}
	wg.Wait()

	var wins, losses int
	for _, err := range results {
		if err == nil {
			wins++
		} else if errors.IsCode(err, errors.ErrCodeInvalidState) {
			losses++
		}
	}
	assert.Equal(t, 1, wins, "exactly one responder must win")
	assert.Equal(t, 1, losses, "the loser must observe InvalidStateError")

	final, err := store.GetConnection(ctx, conn.ID)
	require.NoError(t, err)
	assert.Contains(t, []models.ConnectionStatus{models.ConnectionAccepted, models.ConnectionRejected}, final.Status)
	assert.Equal(t, 2, final.Version, "exactly one transition applied")
}

func TestNotificationFailureDoesNotRollBackTransition(t *testing.T) {
	store := newMemStore()
	cache := &recordingCache{}
	notifier := &recordingNotifier{fail: true}
	m := NewManager(store, cache, notifier, pendingTTL, logger.NewNoOpLogger())
	ctx := context.Background()

	conn, err := m.Propose(ctx, "user-a", "user-b", models.ConnectionGeneral, nil, "")
	require.NoError(t, err, "propose must survive a dead notification channel")

	accepted, err := m.Respond(ctx, "user-b", conn.ID, "accept", "")
	require.NoError(t, err)
	assert.Equal(t, models.ConnectionAccepted, accepted.Status)

	persisted, err := store.GetConnection(ctx, conn.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ConnectionAccepted, persisted.Status)
}

func TestBlockTransitionsActiveConnection(t *testing.T) {
	m, _, _, notifier := newTestManager(t)
	ctx := context.Background()

	conn, err := m.Propose(ctx, "user-a", "user-b", models.ConnectionGeneral, nil, "")
	require.NoError(t, err)

	blocked, err := m.Block(ctx, "user-b", "user-a")
	require.NoError(t, err)
	assert.Equal(t, models.ConnectionBlocked, blocked.Status)
	assert.Equal(t, "user-b", blocked.BlockedBy)
	assert.Equal(t, conn.ID, blocked.ID)
	assert.Contains(t, notifier.transitions(), "pending->blocked")
}

func TestBlockIsIdempotent(t *testing.T) {
	m, _, cache, notifier := newTestManager(t)
	ctx := context.Background()

	first, err := m.Block(ctx, "user-a", "user-b")
	require.NoError(t, err)
	assert.Equal(t, models.ConnectionBlocked, first.Status)

	invalidationsAfterFirst := len(cache.owners())
	eventsAfterFirst := len(notifier.transitions())

	second, err := m.Block(ctx, "user-a", "user-b")
	require.NoError(t, err, "repeat block is a no-op success")
	assert.Equal(t, models.ConnectionBlocked, second.Status)

	assert.Equal(t, invalidationsAfterFirst, len(cache.owners()), "no-op block fires no invalidation")
	assert.Equal(t, eventsAfterFirst, len(notifier.transitions()), "no-op block fires no event")
}

func TestBlockPreventsFutureProposals(t *testing.T) {
	m, _, _, _ := newTestManager(t)
	ctx := context.Background()

	_, err := m.Block(ctx, "user-a", "user-b")
	require.NoError(t, err)

	_, err = m.Propose(ctx, "user-a", "user-b", models.ConnectionGeneral, nil, "")
	assert.True(t, errors.IsCode(err, errors.ErrCodeBlocked))

	// Blocks exclude in both directions.
	_, err = m.Propose(ctx, "user-b", "user-a", models.ConnectionGeneral, nil, "")
	assert.True(t, errors.IsCode(err, errors.ErrCodeBlocked))
}

func TestBlockConnectionRequiresParty(t *testing.T) {
	m, _, _, _ := newTestManager(t)
	ctx := context.Background()

	conn, err := m.Propose(ctx, "user-a", "user-b", models.ConnectionGeneral, nil, "")
	require.NoError(t, err)

	_, err = m.BlockConnection(ctx, "user-z", conn.ID)
	assert.True(t, errors.IsCode(err, errors.ErrCodeNotAuthorized))

	blocked, err := m.BlockConnection(ctx, "user-a", conn.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ConnectionBlocked, blocked.Status)
}

func TestLazyExpiryOnRead(t *testing.T) {
	m, store, _, notifier := newTestManager(t)
	ctx := context.Background()

	base := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	current := base
	m.now = func() time.Time { return current }

	conn, err := m.Propose(ctx, "user-a", "user-b", models.ConnectionGeneral, nil, "")
	require.NoError(t, err)

	// Just inside the window: still pending.
	current = base.Add(pendingTTL - time.Hour)
	got, err := m.Get(ctx, "user-a", conn.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ConnectionPending, got.Status)

	// Past the window: the read itself performs the transition.
	current = base.Add(pendingTTL + time.Hour)
	got, err = m.Get(ctx, "user-a", conn.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ConnectionExpired, got.Status)
	assert.Contains(t, notifier.transitions(), "pending->expired")

	persisted, err := store.GetConnection(ctx, conn.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ConnectionExpired, persisted.Status)

	// Responding to the lapsed connection fails cleanly.
	_, err = m.Respond(ctx, "user-b", conn.ID, "accept", "")
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidState))

	// The expired pair may be proposed to again.
	_, err = m.Propose(ctx, "user-a", "user-b", models.ConnectionGeneral, nil, "second try")
	assert.NoError(t, err)
}

func TestGetAndListAuthorization(t *testing.T) {
	m, _, _, _ := newTestManager(t)
	ctx := context.Background()

	conn, err := m.Propose(ctx, "user-a", "user-b", models.ConnectionGeneral, nil, "")
	require.NoError(t, err)

	_, err = m.Get(ctx, "user-z", conn.ID)
	assert.True(t, errors.IsCode(err, errors.ErrCodeNotAuthorized))

	list, err := m.List(ctx, "user-a")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, conn.ID, list[0].ID)

	empty, err := m.List(ctx, "user-z")
	require.NoError(t, err)
	assert.Empty(t, empty)
}
