package ocr

// Rule names the branch of the voting policy that produced a decision.
type Rule string

const (
	RuleMajority    Rule = "majority_vote"
	RuleLongest     Rule = "longest_fallback"
	RuleNoCandidate Rule = "no_valid_candidate"
	// RuleOperator: ответ ввёл человек после того, как голосование не дало результата.
	RuleOperator Rule = "operator_entry"
)

// Candidate: одно прочтение (backend × variant) после нормализации.
type Candidate struct {
	Raw     string `json:"raw"`
	Text    string `json:"text"`
	Backend string `json:"backend"`
	Variant string `json:"variant"`
	Valid   bool   `json:"valid"`
}

// BackendFailure records a recognizer call that returned an error. Failures never vote.
type BackendFailure struct {
	Backend string `json:"backend"`
	Variant string `json:"variant"`
	Reason  string `json:"reason"`
}

// Decision is the outcome of one solve attempt.
type Decision struct {
	AttemptID  string           `json:"attempt_id"`
	Candidates []Candidate      `json:"candidates"`
	Failures   []BackendFailure `json:"failures,omitempty"`
	Answer     string           `json:"answer,omitempty"`
	Solved     bool             `json:"solved"`
	Rule       Rule             `json:"rule"`
	DebugFiles []string         `json:"debug_files,omitempty"`
}

// Texts returns the normalized text of every candidate in collection order.
func (d Decision) Texts() []string {
	out := make([]string, 0, len(d.Candidates))
	for _, c := range d.Candidates {
		out = append(out, c.Text)
	}
	return out
}
