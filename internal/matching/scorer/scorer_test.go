// internal/matching/scorer/scorer_test.go
package scorer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cooin-core/internal/common/errors"
	"cooin-core/internal/models"
	"cooin-core/pkg/criteria"
)

func borrowerTicket() models.Ticket {
	return models.Ticket{
		ID:           "ticket-borrower-1",
		OwnerID:      "user-borrower",
		Role:         models.RoleBorrower,
		AmountMin:    25000,
		AmountMax:    25000,
		InterestRate: 8.5,
		TermMonths:   []int{36},
		Purpose:      "home_improvement",
		Status:       models.TicketActive,
	}
}

func lenderTicket() models.Ticket {
	return models.Ticket{
		ID:           "ticket-lender-1",
		OwnerID:      "user-lender",
		Role:         models.RoleLender,
		AmountMin:    10000,
		AmountMax:    50000,
		InterestRate: 7.2,
		TermMonths:   []int{24, 36, 48},
		Purpose:      "home_improvement",
		Status:       models.TicketActive,
	}
}

func borrowerProfile() models.ProfileSummary {
	return models.ProfileSummary{
		UserID:       "user-borrower",
		City:         "San Francisco",
		Region:       "California",
		Country:      "US",
		Rating:       4.2,
		CreditBucket: 3,
		ResponseRate: 0.8,
		RiskProfile:  models.RiskMedium,
	}
}

func lenderProfile() models.ProfileSummary {
	return models.ProfileSummary{
		UserID:            "user-lender",
		City:              "San Francisco",
		Region:            "California",
		Country:           "US",
		Rating:            4.8,
		CreditBucket:      2,
		CompletedPurposes: map[string]int{"home_improvement": 1},
		ResponseRate:      0.5,
		RiskProfile:       models.RiskLow,
	}
}

func exampleInput() Input {
	return Input{
		RequesterTicket:  borrowerTicket(),
		RequesterProfile: borrowerProfile(),
		CandidateTicket:  lenderTicket(),
		CandidateProfile: lenderProfile(),
		Distance:         models.DistanceSameCity,
	}
}

func TestDefaultWeightsSumToOne(t *testing.T) {
	w := DefaultWeights()
	require.NoError(t, w.Validate())
	assert.InDelta(t, 1.0, w.Sum(), 1e-9)
}

func TestParseWeights(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantErr bool
	}{
		{
			name: "valid document",
			doc: `{"amount_fit":0.25,"interest_rate":0.20,"term_compatibility":0.15,
				"geographic_proximity":0.10,"credit_signal":0.10,"user_rating":0.08,
				"experience_match":0.07,"risk_alignment":0.03,"response_history":0.02}`,
		},
		{
			name: "sum not 1.0",
			doc: `{"amount_fit":0.30,"interest_rate":0.20,"term_compatibility":0.15,
				"geographic_proximity":0.10,"credit_signal":0.10,"user_rating":0.08,
				"experience_match":0.07,"risk_alignment":0.03,"response_history":0.02}`,
			wantErr: true,
		},
		{
			name: "missing criterion",
			doc: `{"amount_fit":0.27,"interest_rate":0.20,"term_compatibility":0.15,
				"geographic_proximity":0.10,"credit_signal":0.10,"user_rating":0.08,
				"experience_match":0.07,"risk_alignment":0.03}`,
			wantErr: true,
		},
		{
			name: "weight above 1",
			doc: `{"amount_fit":1.25,"interest_rate":0.20,"term_compatibility":0.15,
				"geographic_proximity":0.10,"credit_signal":0.10,"user_rating":0.08,
				"experience_match":0.07,"risk_alignment":0.03,"response_history":0.02}`,
			wantErr: true,
		},
		{
			name:    "not json",
			doc:     `weights: nope`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, err := ParseWeights([]byte(tt.doc))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, 1.0, w.Sum(), 1e-9)
		})
	}
}

func TestWeightsFingerprintChangesWithWeights(t *testing.T) {
	a := DefaultWeights()
	b := DefaultWeights()
	b.AmountFit = 0.24
	b.ResponseHistory = 0.03

	assert.NotEmpty(t, a.Fingerprint())
	assert.Equal(t, a.Fingerprint(), DefaultWeights().Fingerprint())
	assert.NotEqual(t, a.Fingerprint(), b.Fingerprint())
}

func TestScoreExampleScenario(t *testing.T) {
	s, err := New(DefaultWeights())
	require.NoError(t, err)

	score, err := s.Score(exampleInput())
	require.NoError(t, err)

	assert.GreaterOrEqual(t, score.Score, 0.87)
	assert.LessOrEqual(t, score.Score, 0.91)
	assert.Equal(t, models.RiskLevelLow, score.RiskLevel)
	assert.Equal(t, "ticket-lender-1", score.CandidateTicketID)
	assert.Equal(t, "user-lender", score.CandidateOwnerID)
	assert.InDelta(t, 4.8, score.CandidateRating, 1e-9)

	got := make([]string, 0, len(score.Reasons))
	for _, r := range score.Reasons {
		got = append(got, r.Criterion)
	}
	assert.Contains(t, got, criteria.InterestRate)
	assert.Contains(t, got, criteria.GeographicProximity)
	assert.Contains(t, got, criteria.UserRating)
	assert.Contains(t, got, criteria.TermCompatibility)
	// Weak sub-scores stay out of the reason list.
	assert.NotContains(t, got, criteria.CreditSignal)
	assert.NotContains(t, got, criteria.ResponseHistory)
}

func TestScoreDeterministic(t *testing.T) {
	s, err := New(DefaultWeights())
	require.NoError(t, err)

	first, err := s.Score(exampleInput())
	require.NoError(t, err)
	second, err := s.Score(exampleInput())
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestScoreReasonsKeepTableOrder(t *testing.T) {
	s, err := New(DefaultWeights())
	require.NoError(t, err)

	score, err := s.Score(exampleInput())
	require.NoError(t, err)
	require.NotEmpty(t, score.Reasons)

	order := map[string]int{}
	for i, c := range criteria.Catalog {
		order[c.ID] = i
	}
	for i := 1; i < len(score.Reasons); i++ {
		prev := order[score.Reasons[i-1].Criterion]
		cur := order[score.Reasons[i].Criterion]
		assert.Less(t, prev, cur, "reasons must follow the criterion table order")
	}
}

func TestScoreLenderRequesterIsDirectionAgnostic(t *testing.T) {
	s, err := New(DefaultWeights())
	require.NoError(t, err)

	// Same pair, queried from the lender's side.
	in := Input{
		RequesterTicket:  lenderTicket(),
		RequesterProfile: lenderProfile(),
		CandidateTicket:  borrowerTicket(),
		CandidateProfile: borrowerProfile(),
		Distance:         models.DistanceSameCity,
	}
	score, err := s.Score(in)
	require.NoError(t, err)

	// Financial criteria still compare ask against offer the same way.
	assert.GreaterOrEqual(t, score.Score, 0.0)
	assert.LessOrEqual(t, score.Score, 1.0)
	assert.Equal(t, "ticket-borrower-1", score.CandidateTicketID)

	var ok bool
	for _, r := range score.Reasons {
		if r.Criterion == criteria.InterestRate {
			ok = true
			assert.InDelta(t, DefaultWeights().InterestRate, r.Contribution, 1e-9)
		}
	}
	assert.True(t, ok, "rate fit must not depend on query direction")
}

func TestScoreIneligiblePairs(t *testing.T) {
	s, err := New(DefaultWeights())
	require.NoError(t, err)

	t.Run("same owner", func(t *testing.T) {
		in := exampleInput()
		in.CandidateTicket.OwnerID = in.RequesterTicket.OwnerID
		_, err := s.Score(in)
		assert.True(t, errors.IsCode(err, errors.ErrCodeIneligibleTicket))
	})

	t.Run("same role", func(t *testing.T) {
		in := exampleInput()
		in.CandidateTicket.Role = models.RoleBorrower
		_, err := s.Score(in)
		assert.True(t, errors.IsCode(err, errors.ErrCodeIneligibleTicket))
	})

	t.Run("inactive candidate", func(t *testing.T) {
		in := exampleInput()
		in.CandidateTicket.Status = models.TicketCancelled
		_, err := s.Score(in)
		assert.True(t, errors.IsCode(err, errors.ErrCodeIneligibleTicket))
	})

	t.Run("inactive requester", func(t *testing.T) {
		in := exampleInput()
		in.RequesterTicket.Status = models.TicketMatched
		_, err := s.Score(in)
		assert.True(t, errors.IsCode(err, errors.ErrCodeIneligibleTicket))
	})
}

func TestAmountFit(t *testing.T) {
	tests := []struct {
		name               string
		requested          int64
		offerMin, offerMax int64
		want               float64
	}{
		{"at offer midpoint", 30000, 10000, 50000, 1.0},
		{"quarter range off midpoint", 25000, 10000, 50000, 0.875},
		{"at range edge", 50000, 10000, 50000, 0.5},
		{"far outside range", 200000, 10000, 50000, 0.0},
		{"fixed offer exact", 25000, 25000, 25000, 1.0},
		{"fixed offer mismatch", 26000, 25000, 25000, 0.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := borrowerTicket()
			b.AmountMin, b.AmountMax = tt.requested, tt.requested
			l := lenderTicket()
			l.AmountMin, l.AmountMax = tt.offerMin, tt.offerMax
			assert.InDelta(t, tt.want, amountFit(b, l), 1e-9)
		})
	}
}

func TestInterestRateFit(t *testing.T) {
	tests := []struct {
		name    string
		maxRate float64
		rate    float64
		want    float64
	}{
		{"below max", 8.5, 7.2, 1.0},
		{"at max", 8.0, 8.0, 1.0},
		{"quarter over", 8.0, 9.0, 0.75},
		{"at 1.5x max", 8.0, 12.0, 0.0},
		{"beyond 1.5x max", 8.0, 20.0, 0.0},
		{"zero max zero rate", 0, 0, 1.0},
		{"zero max positive rate", 0, 5.0, 0.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := borrowerTicket()
			b.InterestRate = tt.maxRate
			l := lenderTicket()
			l.InterestRate = tt.rate
			assert.InDelta(t, tt.want, interestRateFit(b, l), 1e-9)
		})
	}
}

func TestTermFit(t *testing.T) {
	tests := []struct {
		name     string
		borrower []int
		lender   []int
		want     float64
	}{
		{"exact intersection", []int{36}, []int{24, 36, 48}, 1.0},
		{"twelve months apart", []int{12}, []int{24, 36}, 0.5},
		{"six months apart", []int{30}, []int{24, 36}, 1.0 / 1.5},
		{"no terms declared", nil, []int{24}, 0.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, termFit(tt.borrower, tt.lender), 1e-9)
		})
	}
}

func TestRiskLevel(t *testing.T) {
	assert.Equal(t, models.RiskLevelLow, riskLevel(models.ProfileSummary{RiskProfile: models.RiskLow}))
	assert.Equal(t, models.RiskLevelMedium, riskLevel(models.ProfileSummary{RiskProfile: models.RiskMedium}))
	assert.Equal(t, models.RiskLevelHigh, riskLevel(models.ProfileSummary{RiskProfile: models.RiskHigh}))
	// Unknown declarations land in the middle.
	assert.Equal(t, models.RiskLevelMedium, riskLevel(models.ProfileSummary{RiskProfile: "weird"}))
}

func TestExperienceMatch(t *testing.T) {
	withDeal := models.ProfileSummary{CompletedPurposes: map[string]int{"business": 2}}
	assert.InDelta(t, 1.0, experienceMatch(withDeal, "business"), 1e-9)
	assert.InDelta(t, 0.3, experienceMatch(withDeal, "education"), 1e-9)
	assert.InDelta(t, 0.3, experienceMatch(models.ProfileSummary{}, "business"), 1e-9)
}

func TestScoreAlwaysInUnitInterval(t *testing.T) {
	s, err := New(DefaultWeights())
	require.NoError(t, err)

	worst := exampleInput()
	worst.CandidateTicket.AmountMin = 1000000
	worst.CandidateTicket.AmountMax = 1000001
	worst.CandidateTicket.InterestRate = 99
	worst.CandidateTicket.TermMonths = []int{120}
	worst.CandidateProfile = models.ProfileSummary{
		UserID:      "user-lender",
		Rating:      0,
		RiskProfile: models.RiskHigh,
	}
	worst.Distance = models.DistanceRemote

	score, err := s.Score(worst)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, score.Score, 0.0)
	assert.LessOrEqual(t, score.Score, 1.0)
	assert.Equal(t, models.RiskLevelHigh, score.RiskLevel)
}
