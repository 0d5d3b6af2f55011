package convo

import "time"

// Stage is the discrete phase of a call's conversation state machine.
type Stage int

const (
	StageInitial Stage = iota
	StageIdentification
	StageHandlingSales
	StageHandlingLoan
	StageHandlingInvestment
	StageFirmRejection
	StageFinalWarning
	StageCallEnd
	StageHangUp
)

// String returns the string representation of a Stage.
func (s Stage) String() string {
	switch s {
	case StageInitial:
		return "initial"
	case StageIdentification:
		return "identification"
	case StageHandlingSales:
		return "handling_sales"
	case StageHandlingLoan:
		return "handling_loan"
	case StageHandlingInvestment:
		return "handling_investment"
	case StageFirmRejection:
		return "firm_rejection"
	case StageFinalWarning:
		return "final_warning"
	case StageCallEnd:
		return "call_end"
	case StageHangUp:
		return "hang_up"
	default:
		return "unknown"
	}
}

// Terminal reports whether a stage ends the call. Terminal stages are
// never left once entered.
func (s Stage) Terminal() bool {
	return s == StageCallEnd || s == StageHangUp
}

var handlingStages = []Stage{StageHandlingSales, StageHandlingLoan, StageHandlingInvestment}

// validTransitions is the directed graph of allowed stage moves. Every
// non-terminal stage may additionally move to call_end or hang_up when a
// termination decision fires; that edge is added in canTransition.
var validTransitions = map[Stage][]Stage{
	StageInitial:            {StageIdentification},
	StageIdentification:     {StageHandlingSales, StageHandlingLoan, StageHandlingInvestment, StageFirmRejection},
	StageHandlingSales:      {StageHandlingLoan, StageHandlingInvestment, StageFirmRejection},
	StageHandlingLoan:       {StageHandlingSales, StageHandlingInvestment, StageFirmRejection},
	StageHandlingInvestment: {StageHandlingSales, StageHandlingLoan, StageFirmRejection},
	StageFirmRejection:      {StageFinalWarning},
	StageFinalWarning:       {},
	StageCallEnd:            {},
	StageHangUp:             {},
}

// CanTransition checks whether from → to is on the stage graph.
func CanTransition(from, to Stage) bool {
	if from == to {
		return true
	}
	if from.Terminal() {
		return false
	}
	if to.Terminal() {
		return true
	}
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// InvalidStageError represents a rejected stage transition.
type InvalidStageError struct {
	From Stage
	To   Stage
}

func (e *InvalidStageError) Error() string {
	return "invalid stage transition from " + e.From.String() + " to " + e.To.String()
}

// StageChange is emitted to listeners when a call moves stage.
type StageChange struct {
	CallID    string
	FromStage Stage
	ToStage   Stage
	Timestamp time.Time
	Reason    string
}

// StageListener observes stage transitions across calls.
type StageListener interface {
	OnStageChange(event StageChange)
}

// ApplyStage validates and applies a stage transition on the state.
// Same-stage application is a no-op.
func ApplyStage(s *State, to Stage) error {
	if s.Stage == to {
		return nil
	}
	if !CanTransition(s.Stage, to) {
		return &InvalidStageError{From: s.Stage, To: to}
	}
	s.Stage = to
	return nil
}
