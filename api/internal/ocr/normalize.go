package ocr

import "strings"

// Band is an inclusive range of accepted answer lengths.
type Band struct {
	Min int
	Max int
}

var (
	// AcceptBand is the length range of a plausible CAPTCHA answer.
	AcceptBand = Band{Min: 4, Max: 6}
	// CloudBand is the looser range the cloud backend checks before returning a read.
	CloudBand = Band{Min: 3, Max: 7}
)

// Contains reports whether len(s) falls inside the band.
func (b Band) Contains(s string) bool {
	return len(s) >= b.Min && len(s) <= b.Max
}

// Normalize trims raw recognizer output and drops every character outside [A-Za-z0-9].
// Case is preserved.
func Normalize(raw string) string {
	raw = strings.TrimSpace(raw)
	var sb strings.Builder
	sb.Grow(len(raw))
	for i := 0; i < len(raw); i++ {
		if isAlnum(raw[i]) {
			sb.WriteByte(raw[i])
		}
	}
	return sb.String()
}

// IsAlnum reports whether s is non-empty and consists only of ASCII letters and digits.
func IsAlnum(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !isAlnum(s[i]) {
			return false
		}
	}
	return true
}

func isAlnum(c byte) bool {
	return ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') || ('0' <= c && c <= '9')
}

// NewCandidate normalizes one backend read and marks it valid against AcceptBand.
func NewCandidate(raw, backend, variant string) Candidate {
	text := Normalize(raw)
	return Candidate{
		Raw:     raw,
		Text:    text,
		Backend: backend,
		Variant: variant,
		Valid:   AcceptBand.Contains(text) && IsAlnum(text),
	}
}
