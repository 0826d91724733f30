// internal/matching/scorer/scorer.go
package scorer

import (
	"fmt"
	"math"

	"cooin-core/internal/common/errors"
	"cooin-core/internal/models"
	"cooin-core/pkg/criteria"
)

// ==========================
// SCORING INPUT
// ==========================

// Input is the read-only tuple the scorer evaluates. It is derived by the
// ranker, never stored.
type Input struct {
	RequesterTicket  models.Ticket
	RequesterProfile models.ProfileSummary
	CandidateTicket  models.Ticket
	CandidateProfile models.ProfileSummary
	Distance         models.DistanceBucket
}

// borrowerLender splits the pair into its borrower and lender sides. The
// scorer is direction-agnostic: amount, rate, and term criteria always
// compare the borrower's ask against the lender's offer, no matter which
// side initiated the query.
func (in Input) borrowerLender() (borrower, lender models.Ticket) {
	if in.RequesterTicket.Role == models.RoleBorrower {
		return in.RequesterTicket, in.CandidateTicket
	}
	return in.CandidateTicket, in.RequesterTicket
}

// ==========================
// SCORER
// ==========================

// Scorer computes compatibility scores between complementary tickets. It is
// a pure function of its input and the injected weight table: identical
// inputs always yield bit-identical output.
type Scorer struct {
	weights Weights
}

// New builds a Scorer, rejecting weight tables that violate the sum
// invariant.
func New(w Weights) (*Scorer, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	return &Scorer{weights: w}, nil
}

// Weights returns the weight table the scorer was built with.
func (s *Scorer) Weights() Weights {
	return s.weights
}

// Score evaluates one requester/candidate pair. Pairs that cannot be matched
// at all (same owner, non-complementary roles, inactive tickets) return an
// IneligibleTicketError rather than a zero score.
func (s *Scorer) Score(in Input) (models.CompatibilityScore, error) {
	if err := checkEligible(in); err != nil {
		return models.CompatibilityScore{}, err
	}

	borrower, lender := in.borrowerLender()

	subScores := []struct {
		criterion string
		weight    float64
		value     float64
		explain   string
	}{
		{criteria.AmountFit, s.weights.AmountFit, amountFit(borrower, lender),
			fmt.Sprintf("requested amount %d against offered range %d-%d", borrower.RequestedAmount(), lender.AmountMin, lender.AmountMax)},
		{criteria.InterestRate, s.weights.InterestRate, interestRateFit(borrower, lender),
			fmt.Sprintf("offered rate %.2f%% against maximum %.2f%%", lender.InterestRate, borrower.InterestRate)},
		{criteria.TermCompatibility, s.weights.TermCompatibility, termFit(borrower.TermMonths, lender.TermMonths),
			"overlap between acceptable repayment terms"},
		{criteria.GeographicProximity, s.weights.GeographicProximity, in.Distance.Score(),
			fmt.Sprintf("parties are %s", in.Distance)},
		{criteria.CreditSignal, s.weights.CreditSignal, creditSignal(in.CandidateProfile),
			fmt.Sprintf("declared credit bucket %d of %d", in.CandidateProfile.CreditBucket, models.MaxCreditBucket)},
		{criteria.UserRating, s.weights.UserRating, ratingFit(in.CandidateProfile),
			fmt.Sprintf("community rating %.1f of 5.0", in.CandidateProfile.Rating)},
		{criteria.ExperienceMatch, s.weights.ExperienceMatch, experienceMatch(in.CandidateProfile, in.RequesterTicket.Purpose),
			fmt.Sprintf("completed deals with purpose %q", in.RequesterTicket.Purpose)},
		{criteria.RiskAlignment, s.weights.RiskAlignment, riskAlignment(in.CandidateProfile),
			fmt.Sprintf("declared risk profile %s", in.CandidateProfile.RiskProfile)},
		{criteria.ResponseHistory, s.weights.ResponseHistory, responseHistory(in.CandidateProfile),
			fmt.Sprintf("historical response rate %.0f%%", in.CandidateProfile.ResponseRate*100)},
	}

	total := 0.0
	reasons := make([]models.ScoreReason, 0, len(subScores))
	for _, ss := range subScores {
		contribution := ss.weight * ss.value
		total += contribution
		// Reasons are emitted only for strong sub-scores, in fixed
		// criterion order so the output stays deterministic.
		if ss.value >= 0.6 {
			reasons = append(reasons, models.ScoreReason{
				Criterion:    ss.criterion,
				Weight:       ss.weight,
				Contribution: contribution,
				Explanation:  ss.explain,
			})
		}
	}

	return models.CompatibilityScore{
		CandidateTicketID: in.CandidateTicket.ID,
		CandidateOwnerID:  in.CandidateTicket.OwnerID,
		CandidateRating:   in.CandidateProfile.Rating,
		Score:             clamp01(total),
		RiskLevel:         riskLevel(in.CandidateProfile),
		Reasons:           reasons,
	}, nil
}

func checkEligible(in Input) error {
	if !in.RequesterTicket.Role.IsValid() || !in.CandidateTicket.Role.IsValid() {
		return errors.NewInvalidParameterError("role", "must be borrower or lender")
	}
	if in.CandidateTicket.Role != in.RequesterTicket.Role.Complement() {
		return errors.NewIneligibleTicketError(in.CandidateTicket.ID, "candidate role must complement requester role")
	}
	if in.RequesterTicket.OwnerID == in.CandidateTicket.OwnerID {
		return errors.NewIneligibleTicketError(in.CandidateTicket.ID, "tickets share the same owner")
	}
	if !in.RequesterTicket.IsActive() {
		return errors.NewIneligibleTicketError(in.RequesterTicket.ID, "requester ticket is not active")
	}
	if !in.CandidateTicket.IsActive() {
		return errors.NewIneligibleTicketError(in.CandidateTicket.ID, "candidate ticket is not active")
	}
	return nil
}

// ==========================
// CRITERION FUNCTIONS
// ==========================

// amountFit compares the borrower's requested principal against the midpoint
// of the lender's offered range, normalized by the range width.
func amountFit(borrower, lender models.Ticket) float64 {
	requested := borrower.RequestedAmount()
	offeredMid := (lender.AmountMin + lender.AmountMax) / 2
	offeredRange := lender.AmountMax - lender.AmountMin
	if offeredRange <= 0 {
		// Fixed offer: either it matches the ask or it does not.
		if requested == offeredMid {
			return 1
		}
		return 0
	}
	diff := math.Abs(float64(requested - offeredMid))
	return 1 - clamp01(diff/float64(offeredRange))
}

// interestRateFit is 1.0 while the lender's rate stays at or below the
// borrower's maximum, then decays linearly to 0 at 1.5x the maximum.
func interestRateFit(borrower, lender models.Ticket) float64 {
	maxRate := borrower.InterestRate
	rate := lender.InterestRate
	if maxRate <= 0 {
		if rate <= 0 {
			return 1
		}
		return 0
	}
	if rate <= maxRate {
		return 1
	}
	return clamp01((1.5*maxRate - rate) / (0.5 * maxRate))
}

// termFit is 1.0 when the two term sets intersect, otherwise it decays with
// the smallest gap in months between any two acceptable terms.
func termFit(borrowerTerms, lenderTerms []int) float64 {
	if len(borrowerTerms) == 0 || len(lenderTerms) == 0 {
		return 0
	}
	minDelta := math.MaxInt32
	for _, b := range borrowerTerms {
		for _, l := range lenderTerms {
			d := b - l
			if d < 0 {
				d = -d
			}
			if d < minDelta {
				minDelta = d
			}
		}
	}
	if minDelta == 0 {
		return 1
	}
	return 1 / (1 + float64(minDelta)/12)
}

// creditSignal scales the candidate's declared credit bucket linearly.
func creditSignal(p models.ProfileSummary) float64 {
	bucket := p.CreditBucket
	if bucket < 0 {
		bucket = 0
	}
	if bucket > models.MaxCreditBucket {
		bucket = models.MaxCreditBucket
	}
	return float64(bucket) / float64(models.MaxCreditBucket)
}

func ratingFit(p models.ProfileSummary) float64 {
	return clamp01(p.Rating / 5.0)
}

// experienceMatch rewards counterparts with at least one completed deal of
// the same purpose; everyone else gets a fixed baseline.
func experienceMatch(p models.ProfileSummary, purpose string) float64 {
	if p.CompletedPurposes[purpose] >= 1 {
		return 1
	}
	return 0.3
}

// riskAlignment inverts the candidate's declared risk value: low risk scores
// highest.
func riskAlignment(p models.ProfileSummary) float64 {
	return 1 - p.RiskProfile.Value()
}

func responseHistory(p models.ProfileSummary) float64 {
	return clamp01(p.ResponseRate)
}

// riskLevel thresholds the candidate's declared risk numeric.
func riskLevel(p models.ProfileSummary) models.RiskLevel {
	v := p.RiskProfile.Value()
	switch {
	case v < 0.33:
		return models.RiskLevelLow
	case v < 0.66:
		return models.RiskLevelMedium
	default:
		return models.RiskLevelHigh
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
