// internal/models/profile.go
package models

// RiskProfile is a user's self-declared risk appetite.
type RiskProfile string

const (
	RiskLow    RiskProfile = "low"
	RiskMedium RiskProfile = "medium"
	RiskHigh   RiskProfile = "high"
)

// Value maps the declared risk profile onto [0,1] (low=0, medium=0.5, high=1).
func (r RiskProfile) Value() float64 {
	switch r {
	case RiskLow:
		return 0
	case RiskMedium:
		return 0.5
	case RiskHigh:
		return 1
	}
	// Unknown profiles score as medium rather than failing the whole match.
	return 0.5
}

// MaxCreditBucket is the top declared credit-score bucket (0 = poor .. 4 = excellent).
const MaxCreditBucket = 4

// ProfileSummary is the read-only slice of a user profile the matching core
// consumes. It is assembled by the profile store; the core never writes it.
type ProfileSummary struct {
	UserID            string         `json:"userId"`
	Email             string         `json:"email"`
	City              string         `json:"city"`
	Region            string         `json:"region"`
	Country           string         `json:"country"`
	Rating            float64        `json:"rating"` // 0..5 aggregate user rating
	RatingCount       int            `json:"ratingCount"`
	CreditBucket      int            `json:"creditBucket"` // 0..MaxCreditBucket
	CompletedPurposes map[string]int `json:"completedPurposes"`
	ResponseRate      float64        `json:"responseRate"` // 0..1, historical
	RiskProfile       RiskProfile    `json:"riskProfile"`
}

// DistanceBucket is the coarse geographic proximity between two users.
type DistanceBucket string

const (
	DistanceSameCity    DistanceBucket = "same_city"
	DistanceSameRegion  DistanceBucket = "same_region"
	DistanceSameCountry DistanceBucket = "same_country"
	DistanceRemote      DistanceBucket = "remote"
)

// Score is the geographic proximity sub-score for the bucket.
func (d DistanceBucket) Score() float64 {
	switch d {
	case DistanceSameCity:
		return 1.0
	case DistanceSameRegion:
		return 0.6
	case DistanceSameCountry:
		return 0.3
	}
	return 0
}

// DistanceBetween buckets the proximity of two profiles by comparing their
// declared locations, most specific first.
func DistanceBetween(a, b ProfileSummary) DistanceBucket {
	switch {
	case a.City != "" && a.City == b.City:
		return DistanceSameCity
	case a.Region != "" && a.Region == b.Region:
		return DistanceSameRegion
	case a.Country != "" && a.Country == b.Country:
		return DistanceSameCountry
	}
	return DistanceRemote
}
