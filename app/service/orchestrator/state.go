package orchestrator

const maxRetries = 2

type step int

const (
	stepRefine step = iota
	stepClassify
	stepHandle
	stepValidate
	stepStore
	stepDone
)

// State is the value threaded through the run. Nodes return a new copy
// instead of mutating shared state, so each transition is a pure function
// of the previous value.
type State struct {
	OriginalQuery      string
	RefinedQuery       string
	Category           Category
	Response           string
	IsValid            bool
	ValidationFeedback string
	Retries            int
	CustomerName       string
	Service            string
	Action             *Action
	ActionResult       string
	Errors             []string
}

func (s State) withError(message string) State {
	s.Errors = append(append([]string(nil), s.Errors...), message)

	return s
}

// transition decides the next step from the current one and the state the
// node just returned. The retry edge is the only conditional one: an
// invalid response re-enters the handler at most maxRetries times, after
// which the run stores whatever it has.
func transition(cur step, s State) (step, State) {
	switch cur {
	case stepRefine:
		return stepClassify, s

	case stepClassify:
		return stepHandle, s

	case stepHandle:
		return stepValidate, s

	case stepValidate:
		if !s.IsValid && s.Retries < maxRetries {
			s.Retries++
			return stepHandle, s
		}

		return stepStore, s

	case stepStore:
		return stepDone, s

	default:
		return stepDone, s
	}
}
