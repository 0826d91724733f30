// internal/models/match.go
package models

import "time"

// RiskLevel is the risk classification attached to a computed match.
type RiskLevel string

const (
	RiskLevelLow    RiskLevel = "low"
	RiskLevelMedium RiskLevel = "medium"
	RiskLevelHigh   RiskLevel = "high"
)

// ScoreReason explains one criterion's contribution to a compatibility score.
type ScoreReason struct {
	Criterion    string  `json:"criterion"`
	Weight       float64 `json:"weight"`
	Contribution float64 `json:"contribution"` // weight * sub-score
	Explanation  string  `json:"explanation"`
}

// CompatibilityScore is the computed fit between a subject ticket and one
// candidate ticket. It is recomputed on demand and only ever cached, never
// persisted.
type CompatibilityScore struct {
	CandidateTicketID string        `json:"candidateTicketId"`
	CandidateOwnerID  string        `json:"candidateOwnerId"`
	CandidateRating   float64       `json:"candidateRating"`
	Score             float64       `json:"score"` // [0,1]
	RiskLevel         RiskLevel     `json:"riskLevel"`
	Reasons           []ScoreReason `json:"reasons"`
}

// Candidate bundles everything the scorer needs about one counterparty.
type Candidate struct {
	Ticket   Ticket         `json:"ticket"`
	Profile  ProfileSummary `json:"profile"`
	Distance DistanceBucket `json:"distance"`
}

// Rank parameter bounds. Out-of-range values are caller errors.
const (
	RankLimitMin     = 1
	RankLimitMax     = 20
	DefaultRankLimit = 10
	DefaultMinScore  = 0.6
)

// RankParams are the pagination and threshold parameters of a match query.
type RankParams struct {
	Limit    int     `json:"limit"`
	Offset   int     `json:"offset"`
	MinScore float64 `json:"minScore"`
}

// DefaultRankParams returns the documented defaults (limit 10, offset 0,
// minimum score 0.6).
func DefaultRankParams() RankParams {
	return RankParams{
		Limit:    DefaultRankLimit,
		Offset:   0,
		MinScore: DefaultMinScore,
	}
}

// MatchResult is one ranked, paginated page of matches for a subject ticket,
// together with the statistics over the full post-threshold set.
type MatchResult struct {
	SubjectTicketID string               `json:"subjectTicketId"`
	CandidateRole   TicketRole           `json:"candidateRole"`
	Matches         []CompatibilityScore `json:"matches"`
	TotalEligible   int                  `json:"totalEligible"` // pool size before threshold
	AvgScore        float64              `json:"avgScore"`      // over post-threshold set
	TopScore        float64              `json:"topScore"`      // over post-threshold set
	Params          RankParams           `json:"params"`
	ComputedAt      time.Time            `json:"computedAt"`
}
