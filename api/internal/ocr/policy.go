package ocr

// Voter reduces the candidates of one solve run to a single answer.
type Voter struct {
	Band Band
}

// DefaultVoter votes over AcceptBand.
var DefaultVoter = Voter{Band: AcceptBand}

// Vote applies DefaultVoter.
func Vote(cands []Candidate) Decision {
	return DefaultVoter.Vote(cands)
}

// Vote picks the answer:
//   - candidates inside the band → most frequent exact text, ties go to the first seen;
//   - otherwise any non-empty candidate → the longest, ties go to the first seen;
//   - otherwise unsolved.
//
// The answer is always the Text of one of cands.
func (v Voter) Vote(cands []Candidate) Decision {
	d := Decision{Candidates: cands, Rule: RuleNoCandidate}

	// порядок первого появления задаёт тай-брейк
	counts := make(map[string]int)
	var order []string
	for _, c := range cands {
		if !v.Band.Contains(c.Text) || !IsAlnum(c.Text) {
			continue
		}
		if _, seen := counts[c.Text]; !seen {
			order = append(order, c.Text)
		}
		counts[c.Text]++
	}
	if len(order) > 0 {
		best := order[0]
		for _, s := range order[1:] {
			if counts[s] > counts[best] {
				best = s
			}
		}
		d.Answer, d.Solved, d.Rule = best, true, RuleMajority
		return d
	}

	longest := ""
	for _, c := range cands {
		if len(c.Text) > len(longest) {
			longest = c.Text
		}
	}
	if longest != "" {
		d.Answer, d.Solved, d.Rule = longest, true, RuleLongest
	}
	return d
}
