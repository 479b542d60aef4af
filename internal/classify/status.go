package classify

import "time"

// EvalDateLayouts are the date spellings found in the evaluation columns.
var EvalDateLayouts = []string{"02/01/2006", "2006-01-02", "02-01-2006"}

// ParseEvalDate parses an evaluation date in loc.
func ParseEvalDate(s string, loc *time.Location) (time.Time, bool) {
	s = key(s)
	for _, layout := range EvalDateLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// IsDue reports whether a text must be (re)evaluated: the next evaluation date
// is blank, unreadable, or not after now.
func IsDue(next string, now time.Time) bool {
	switch key(next) {
	case "", "nan", "none":
		return true
	}
	t, ok := ParseEvalDate(next, now.Location())
	if !ok {
		return true
	}
	return !t.After(now)
}

// IsApplicable reports whether a compliance value keeps the text in scope.
func IsApplicable(compliance string) bool {
	switch key(compliance) {
	case "", "sans objet", "archive":
		return false
	}
	return true
}

// IsNonCompliant matches "NC" and "Non conforme".
func IsNonCompliant(compliance string) bool {
	switch key(compliance) {
	case "nc", "non conforme":
		return true
	}
	return false
}

// IsCompliant matches "C" and "Conforme".
func IsCompliant(compliance string) bool {
	switch key(compliance) {
	case "c", "conforme":
		return true
	}
	return false
}

// IsSettled reports texts that need no initial evaluation: compliant, archived or out of scope.
func IsSettled(compliance string) bool {
	switch key(compliance) {
	case "conforme", "archive", "sans objet":
		return true
	}
	return false
}

// HasProof reads the "Preuves disponibles" column.
func HasProof(s string) bool {
	switch key(s) {
	case "oui", "o", "yes", "y", "x", "true", "1":
		return true
	}
	return false
}
