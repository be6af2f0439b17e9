package enrich

import "strings"

// estimateSeats returns an upper-bound seat count for an ICAO type
// designator from family prefix rules. It is consulted only when the
// catalog has no seat figure, and its outputs are always flagged as
// estimates. Rules are ordered; the first match wins.
func estimateSeats(icaoType string) (int, bool) {
	t := strings.ToUpper(strings.TrimSpace(icaoType))
	if t == "" {
		return 0, false
	}

	switch {
	case hasPrefix(t, "A31", "A32"):
		return 244, true // A321neo upper bound
	case hasPrefix(t, "B70"):
		return 189, true // 707 family
	case hasPrefix(t, "B72"):
		return 189, true // 727 family
	case hasPrefix(t, "B73"):
		return 230, true // 737 family upper bound
	case hasPrefix(t, "B78"):
		return 330, true // 787 family
	case hasPrefix(t, "E17", "E19", "E29", "E75"):
		return 146, true // E-Jets / E2 upper bound
	case hasPrefix(t, "CRJ"):
		return 104, true
	case hasPrefix(t, "AT4", "AT7"):
		return 78, true // ATR 42/72
	case hasPrefix(t, "DH8"):
		return 90, true
	case hasPrefix(t, "DH2"):
		return 7, true // Beaver
	case hasPrefix(t, "TISB"):
		return 6, true
	case hasPrefix(t, "BE33", "BE35", "BE36"):
		return 4, true
	case hasPrefix(t, "BE55", "BE56", "BE58"):
		return 6, true
	case hasPrefix(t, "BE76", "BE77", "BE80", "BE95"):
		return 4, true
	case hasPrefix(t, "BE9", "BE10"):
		return 9, true // King Air 90/100
	case t == "B350":
		return 11, true
	case hasPrefix(t, "LJ"):
		return 9, true
	case t == "PRM1":
		return 6, true
	case t == "GALX":
		return 10, true
	case t == "MU30":
		return 8, true
	case t == "H25A", t == "H25B", t == "H25C":
		return 8, true
	case t == "FA10":
		return 8, true
	case t == "FA20":
		return 12, true
	case t == "FA8X":
		return 19, true
	case t == "C120", t == "C140":
		return 2, true
	case hasPrefix(t, "C17", "C15", "C19"):
		return 4, true
	case t == "C180":
		return 4, true
	case t == "C185":
		return 6, true
	case t == "C188":
		return 1, true
	case t == "C210":
		return 6, true
	case t == "C310":
		return 6, true
	}
	return 0, false
}

func hasPrefix(s string, prefixes ...string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
