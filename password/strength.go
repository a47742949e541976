package password

import "unicode"

// Label buckets a strength percentage.
type Label string

const (
	// LabelWeak covers percentages below 40.
	LabelWeak Label = "weak"
	// LabelMedium covers percentages from 40 up to but excluding 80.
	LabelMedium Label = "medium"
	// LabelStrong covers percentages of 80 and above.
	LabelStrong Label = "strong"
)

// Requirements holds the five independent password rules.
type Requirements struct {
	MinLength bool // at least MinLengthRunes characters
	Uppercase bool
	Lowercase bool
	Digit     bool
	Special   bool
}

// MinLengthRunes is the length rule threshold.
const MinLengthRunes = 8

// MetCount returns how many of the five rules hold.
func (r Requirements) MetCount() int {
	n := 0
	for _, ok := range [5]bool{r.MinLength, r.Uppercase, r.Lowercase, r.Digit, r.Special} {
		if ok {
			n++
		}
	}
	return n
}

// AllMet reports whether every rule holds.
func (r Requirements) AllMet() bool {
	return r.MetCount() == 5
}

// Strength is the full evaluation result for one candidate password.
type Strength struct {
	Requirements Requirements
	Percent      int
	Label        Label
}

// Evaluate scores a candidate password against the fixed rule set. It is
// pure: the same input always yields the same result.
func Evaluate(candidate string) Strength {
	var req Requirements
	runes := []rune(candidate)
	req.MinLength = len(runes) >= MinLengthRunes
	for _, r := range runes {
		switch {
		case unicode.IsUpper(r):
			req.Uppercase = true
		case unicode.IsLower(r):
			req.Lowercase = true
		case unicode.IsDigit(r):
			req.Digit = true
		default:
			req.Special = true
		}
	}
	percent := req.MetCount() * 100 / 5
	return Strength{
		Requirements: req,
		Percent:      percent,
		Label:        labelFor(percent),
	}
}

func labelFor(percent int) Label {
	switch {
	case percent < 40:
		return LabelWeak
	case percent < 80:
		return LabelMedium
	default:
		return LabelStrong
	}
}

// Draft is the set-password screen's working pair.
type Draft struct {
	New     string
	Confirm string
}

// Match reports whether the confirmation equals the new password and is
// non-empty.
func (d Draft) Match() bool {
	return d.Confirm != "" && d.New == d.Confirm
}

// CanSubmit reports whether the draft may be submitted: all five rules
// hold on the new password and the confirmation matches.
func (d Draft) CanSubmit() bool {
	return Evaluate(d.New).Requirements.AllMet() && d.Match()
}
