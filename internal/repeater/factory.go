package repeater

import "fmt"

// NewFromOptions builds the Repeater named by rule, reading its tunables
// from ropts (typically Options.RepeaterOptions). rule is case-sensitive
// and matches the same short names used in backend and CLI configuration:
// "count", "SE", "CI", "HDI", "BB", "GMM", "KS", "DC".
func NewFromOptions(rule string, ropts map[string]any) (Repeater, error) {
	switch rule {
	case "count", "":
		limit, metric := countOptions(ropts, "count")
		return NewCountRepeater(limit, metric), nil
	case "SE":
		return newSERepeaterFromOptions(ropts), nil
	case "CI":
		return newCIRepeaterFromOptions(ropts), nil
	case "HDI":
		return newHDIRepeaterFromOptions(ropts), nil
	case "BB":
		return newBBRepeaterFromOptions(ropts), nil
	case "GMM":
		return newGaussianMixtureRepeaterFromOptions(ropts), nil
	case "KS":
		return newKSRepeaterFromOptions(ropts), nil
	case "DC":
		return newDecisionRepeaterFromOptions(ropts), nil
	default:
		return nil, fmt.Errorf("unknown repeater rule %q", rule)
	}
}
