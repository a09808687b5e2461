package types

// Summary is the aggregate view of all experiments shown by the status command.
type Summary struct {
	Total       int             `json:"total"`
	Active      int             `json:"active"`
	Completed   int             `json:"completed"`
	Reverted    int             `json:"reverted"`
	ByStatus    map[Status]int  `json:"by_status"`
	ByOutcome   map[Outcome]int `json:"by_outcome"`
	SuccessRate float64         `json:"success_rate"`
}

// Summarize counts experiments by status and outcome.
// SuccessRate is the share of evaluated experiments that improved.
func Summarize(experiments []Experiment) Summary {
	s := Summary{
		ByStatus:  make(map[Status]int),
		ByOutcome: make(map[Outcome]int),
	}
	for i := range experiments {
		e := &experiments[i]
		s.Total++
		s.ByStatus[e.Status]++
		switch {
		case e.Active():
			s.Active++
		case e.Status == StatusReverted:
			s.Reverted++
		case e.Status == StatusEvaluated:
			s.Completed++
			if e.Outcome != nil {
				s.ByOutcome[*e.Outcome]++
			}
		}
	}
	if s.Completed > 0 {
		s.SuccessRate = float64(s.ByOutcome[OutcomeImproved]) / float64(s.Completed)
	}
	return s
}
