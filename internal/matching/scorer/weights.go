// internal/matching/scorer/weights.go
package scorer

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"os"

	"github.com/xeipuuv/gojsonschema"
)

// Weights is the explicit, versionable weight table of the compatibility
// scorer. One instance is injected into the Scorer; nothing reads weights
// from globals.
type Weights struct {
	AmountFit           float64 `json:"amount_fit"`
	InterestRate        float64 `json:"interest_rate"`
	TermCompatibility   float64 `json:"term_compatibility"`
	GeographicProximity float64 `json:"geographic_proximity"`
	CreditSignal        float64 `json:"credit_signal"`
	UserRating          float64 `json:"user_rating"`
	ExperienceMatch     float64 `json:"experience_match"`
	RiskAlignment       float64 `json:"risk_alignment"`
	ResponseHistory     float64 `json:"response_history"`
}

// DefaultWeights returns the production weight table.
func DefaultWeights() Weights {
	return Weights{
		AmountFit:           0.25,
		InterestRate:        0.20,
		TermCompatibility:   0.15,
		GeographicProximity: 0.10,
		CreditSignal:        0.10,
		UserRating:          0.08,
		ExperienceMatch:     0.07,
		RiskAlignment:       0.03,
		ResponseHistory:     0.02,
	}
}

// Sum returns the total of all nine weights.
func (w Weights) Sum() float64 {
	return w.AmountFit + w.InterestRate + w.TermCompatibility +
		w.GeographicProximity + w.CreditSignal + w.UserRating +
		w.ExperienceMatch + w.RiskAlignment + w.ResponseHistory
}

// Validate checks the constructor-time invariants: every weight non-negative
// and the sum exactly 1.0 (up to float64 representation error).
func (w Weights) Validate() error {
	for name, v := range map[string]float64{
		"amount_fit":           w.AmountFit,
		"interest_rate":        w.InterestRate,
		"term_compatibility":   w.TermCompatibility,
		"geographic_proximity": w.GeographicProximity,
		"credit_signal":        w.CreditSignal,
		"user_rating":          w.UserRating,
		"experience_match":     w.ExperienceMatch,
		"risk_alignment":       w.RiskAlignment,
		"response_history":     w.ResponseHistory,
	} {
		if v < 0 {
			return fmt.Errorf("weight %s must not be negative, got %v", name, v)
		}
	}
	if sum := w.Sum(); math.Abs(sum-1.0) > 1e-9 {
		return fmt.Errorf("weights must sum to 1.0, got %v", sum)
	}
	return nil
}

// Fingerprint returns a stable hash of the weight table, used as part of the
// match cache key so that a weight change never serves stale results.
func (w Weights) Fingerprint() string {
	data, _ := json.Marshal(w) // struct fields marshal in declaration order
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:8])
}

// weightsSchema validates a weights document before unmarshalling: all nine
// criteria present, each in [0,1], nothing extra.
const weightsSchema = `{
	"type": "object",
	"additionalProperties": false,
	"required": [
		"amount_fit", "interest_rate", "term_compatibility",
		"geographic_proximity", "credit_signal", "user_rating",
		"experience_match", "risk_alignment", "response_history"
	],
	"properties": {
		"amount_fit":           {"type": "number", "minimum": 0, "maximum": 1},
		"interest_rate":        {"type": "number", "minimum": 0, "maximum": 1},
		"term_compatibility":   {"type": "number", "minimum": 0, "maximum": 1},
		"geographic_proximity": {"type": "number", "minimum": 0, "maximum": 1},
		"credit_signal":        {"type": "number", "minimum": 0, "maximum": 1},
		"user_rating":          {"type": "number", "minimum": 0, "maximum": 1},
		"experience_match":     {"type": "number", "minimum": 0, "maximum": 1},
		"risk_alignment":       {"type": "number", "minimum": 0, "maximum": 1},
		"response_history":     {"type": "number", "minimum": 0, "maximum": 1}
	}
}`

// LoadWeights reads and validates a weights document from disk.
func LoadWeights(path string) (Weights, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Weights{}, fmt.Errorf("failed to read weights file: %w", err)
	}
	return ParseWeights(data)
}

// ParseWeights validates a weights JSON document against the schema and the
// sum invariant.
func ParseWeights(data []byte) (Weights, error) {
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(weightsSchema),
		gojsonschema.NewBytesLoader(data),
	)
	if err != nil {
		return Weights{}, fmt.Errorf("weights schema validation error: %w", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return Weights{}, fmt.Errorf("invalid weights document: %v", msgs)
	}

	var w Weights
	if err := json.Unmarshal(data, &w); err != nil {
		return Weights{}, fmt.Errorf("failed to unmarshal weights: %w", err)
	}
	if err := w.Validate(); err != nil {
		return Weights{}, err
	}
	return w, nil
}
