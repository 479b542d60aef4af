package models

// Record is one regulatory text of a register, as read from a sheet export.
// Row is the 1-based sheet row; the header occupies row 1.
type Record struct {
	Row             int
	Title           string
	Theme           string
	Compliance      string
	NextEvaluation  string
	LastEvaluation  string
	Criticite       string
	Comments        string
	URL             string
	TextType        string
	TextDate        string
	Source          string
	Status          string
	ProofsAvailable string
	ExpectedProof   string
	Observations    string
	ValidatedBy     string
}
