// internal/matching/ranker/ranker.go
package ranker

import (
	"context"
	"fmt"
	"sort"
	"time"

	"cooin-core/internal/common/errors"
	"cooin-core/internal/common/logger"
	"cooin-core/internal/common/metrics"
	"cooin-core/internal/matching/matchcache"
	"cooin-core/internal/matching/scorer"
	"cooin-core/internal/models"
)

// TicketReader loads the subject side of a ranking request.
type TicketReader interface {
	GetTicket(ctx context.Context, id string) (models.Ticket, error)
	GetProfileSummary(ctx context.Context, userID string) (models.ProfileSummary, error)
}

// CandidateSource yields the eligible, profile-enriched candidate pool.
type CandidateSource interface {
	CandidatePool(ctx context.Context, subject models.Ticket, subjectProfile models.ProfileSummary) ([]models.Candidate, error)
}

// ResultCache is the cache-through layer in front of the scoring pipeline.
type ResultCache interface {
	GetOrCompute(ctx context.Context, ownerID, key string, compute func(ctx context.Context) (*matchcache.CachedResult, error)) (*matchcache.CachedResult, bool, error)
}

// Ranker scores, thresholds, orders, and paginates match candidates for a
// subject ticket.
type Ranker struct {
	scorer  *scorer.Scorer
	tickets TicketReader
	pool    CandidateSource
	cache   ResultCache
	logger  logger.Logger
}

func New(s *scorer.Scorer, tickets TicketReader, pool CandidateSource, cache ResultCache, log logger.Logger) *Ranker {
	return &Ranker{
		scorer:  s,
		tickets: tickets,
		pool:    pool,
		cache:   cache,
		logger:  log,
	}
}

// ValidateParams rejects out-of-range pagination and threshold values.
// Defaults are the caller's job; by the time params arrive here every field
// must be explicit.
func ValidateParams(p models.RankParams) error {
	if p.Limit < models.RankLimitMin || p.Limit > models.RankLimitMax {
		return errors.NewInvalidParameterError("limit",
			fmt.Sprintf("must be between %d and %d", models.RankLimitMin, models.RankLimitMax))
	}
	if p.Offset < 0 {
		return errors.NewInvalidParameterError("offset", "must not be negative")
	}
	if p.MinScore < 0 || p.MinScore > 1 {
		return errors.NewInvalidParameterError("min_score", "must be between 0 and 1")
	}
	return nil
}

// Rank returns one page of ranked matches for the actor's ticket. The full
// post-threshold list is computed (or served from cache) first; pagination
// never changes what gets cached.
func (r *Ranker) Rank(ctx context.Context, actorID, ticketID string, params models.RankParams) (*models.MatchResult, error) {
	if err := ValidateParams(params); err != nil {
		return nil, err
	}

	subject, err := r.tickets.GetTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if subject.OwnerID != actorID {
		return nil, errors.NewNotAuthorizedError("only the ticket owner may request matches")
	}
	if !subject.IsActive() {
		return nil, errors.NewIneligibleTicketError(ticketID, "ticket is not active")
	}

	candidateRole := subject.Role.Complement()
	key := matchcache.Key(ticketID, candidateRole, params.MinScore, r.scorer.Weights().Fingerprint())

	cached, hit, err := r.cache.GetOrCompute(ctx, subject.OwnerID, key, func(ctx context.Context) (*matchcache.CachedResult, error) {
		return r.compute(ctx, subject, params.MinScore)
	})
	if err != nil {
		return nil, err
	}

	r.logger.Debug("ranked matches", map[string]interface{}{
		"ticketId": ticketID,
		"cacheHit": hit,
		"matches":  len(cached.Entries),
	})

	return &models.MatchResult{
		SubjectTicketID: ticketID,
		CandidateRole:   candidateRole,
		Matches:         paginate(cached.Entries, params.Offset, params.Limit),
		TotalEligible:   cached.TotalEligible,
		AvgScore:        cached.AvgScore,
		TopScore:        cached.TopScore,
		Params:          params,
		ComputedAt:      cached.ComputedAt,
	}, nil
}

// compute runs the full scoring pipeline for one subject ticket: score the
// eligible pool, drop everything under minScore, order the rest, and
// aggregate the statistics that describe the post-threshold set.
func (r *Ranker) compute(ctx context.Context, subject models.Ticket, minScore float64) (*matchcache.CachedResult, error) {
	started := time.Now()
	defer func() {
		metrics.MatchComputeDuration.Observe(time.Since(started).Seconds())
	}()

	subjectProfile, err := r.tickets.GetProfileSummary(ctx, subject.OwnerID)
	if err != nil {
		return nil, err
	}

	candidates, err := r.pool.CandidatePool(ctx, subject, subjectProfile)
	if err != nil {
		return nil, err
	}

	scores := make([]models.CompatibilityScore, 0, len(candidates))
	for _, cand := range candidates {
		score, err := r.scorer.Score(scorer.Input{
			RequesterTicket:  subject,
			RequesterProfile: subjectProfile,
			CandidateTicket:  cand.Ticket,
			CandidateProfile: cand.Profile,
			Distance:         cand.Distance,
		})
		if err != nil {
			// The filter should have removed ineligible pairs; a
			// straggler is skipped, not fatal.
			if errors.IsCode(err, errors.ErrCodeIneligibleTicket) {
				continue
			}
			return nil, err
		}
		if score.Score < minScore {
			continue
		}
		scores = append(scores, score)
	}

	sortScores(scores)

	result := &matchcache.CachedResult{
		Entries:       scores,
		TotalEligible: len(candidates),
		ComputedAt:    time.Now().UTC(),
	}
	if len(scores) > 0 {
		total := 0.0
		for _, s := range scores {
			total += s.Score
		}
		result.AvgScore = total / float64(len(scores))
		result.TopScore = scores[0].Score
	}
	return result, nil
}

// sortScores orders by score descending, then candidate rating descending,
// then candidate ticket id ascending. The last key makes the order total,
// which stable pagination depends on.
func sortScores(scores []models.CompatibilityScore) {
	sort.Slice(scores, func(i, j int) bool {
		if scores[i].Score != scores[j].Score {
			return scores[i].Score > scores[j].Score
		}
		if scores[i].CandidateRating != scores[j].CandidateRating {
			return scores[i].CandidateRating > scores[j].CandidateRating
		}
		return scores[i].CandidateTicketID < scores[j].CandidateTicketID
	})
}

func paginate(entries []models.CompatibilityScore, offset, limit int) []models.CompatibilityScore {
	if offset >= len(entries) {
		return []models.CompatibilityScore{}
	}
	end := offset + limit
	if end > len(entries) {
		end = len(entries)
	}
	page := make([]models.CompatibilityScore, end-offset)
	copy(page, entries[offset:end])
	return page
}
