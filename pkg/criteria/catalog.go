// pkg/criteria/catalog.go
package criteria

// Criterion identifiers. These are the canonical names used in score
// breakdowns, cached results, and API responses.
const (
	AmountFit           = "amount_fit"
	InterestRate        = "interest_rate"
	TermCompatibility   = "term_compatibility"
	GeographicProximity = "geographic_proximity"
	CreditSignal        = "credit_signal"
	UserRating          = "user_rating"
	ExperienceMatch     = "experience_match"
	RiskAlignment       = "risk_alignment"
	ResponseHistory     = "response_history"
)

// Criterion describes one scored dimension of a borrower/lender pairing.
type Criterion struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

// Catalog lists every scoring criterion in evaluation order.
var Catalog = []Criterion{
	{
		ID:          AmountFit,
		DisplayName: "Amount Fit",
		Description: "How closely the requested loan amount matches the offered amount range",
		Category:    "financial",
	},
	{
		ID:          InterestRate,
		DisplayName: "Interest Rate",
		Description: "Whether the lender's offered rate falls within the borrower's maximum acceptable rate",
		Category:    "financial",
	},
	{
		ID:          TermCompatibility,
		DisplayName: "Term Compatibility",
		Description: "Overlap between the repayment terms each side is willing to accept",
		Category:    "financial",
	},
	{
		ID:          GeographicProximity,
		DisplayName: "Geographic Proximity",
		Description: "Same city, region, or country between the two parties",
		Category:    "profile",
	},
	{
		ID:          CreditSignal,
		DisplayName: "Credit Signal",
		Description: "The borrower's normalized credit standing",
		Category:    "risk",
	},
	{
		ID:          UserRating,
		DisplayName: "User Rating",
		Description: "The counterpart's community rating",
		Category:    "reputation",
	},
	{
		ID:          ExperienceMatch,
		DisplayName: "Experience Match",
		Description: "Completed loans the counterpart has with the same purpose",
		Category:    "reputation",
	},
	{
		ID:          RiskAlignment,
		DisplayName: "Risk Alignment",
		Description: "Alignment between the borrower's risk profile and the lender's risk appetite",
		Category:    "risk",
	},
	{
		ID:          ResponseHistory,
		DisplayName: "Response History",
		Description: "How reliably the counterpart responds to connection requests",
		Category:    "reputation",
	},
}

// Lookup returns the catalog entry for a criterion ID.
func Lookup(id string) (Criterion, bool) {
	for _, c := range Catalog {
		if c.ID == id {
			return c, true
		}
	}
	return Criterion{}, false
}
