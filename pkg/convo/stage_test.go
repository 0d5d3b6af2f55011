package convo

import "testing"

func TestStageGraph(t *testing.T) {
	cases := []struct {
		from, to Stage
		ok       bool
	}{
		{StageInitial, StageIdentification, true},
		{StageInitial, StageFirmRejection, false},
		{StageIdentification, StageHandlingLoan, true},
		{StageHandlingLoan, StageHandlingSales, true},
		{StageHandlingLoan, StageFirmRejection, true},
		{StageFirmRejection, StageFinalWarning, true},
		{StageFinalWarning, StageFirmRejection, false},
		{StageHandlingSales, StageCallEnd, true},
		{StageIdentification, StageHangUp, true},
		{StageCallEnd, StageInitial, false},
		{StageHangUp, StageCallEnd, false},
	}
	for _, c := range cases {
		if got := CanTransition(c.from, c.to); got != c.ok {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", c.from, c.to, got, c.ok)
		}
	}
}

func TestTerminalStagesNeverLeft(t *testing.T) {
	for _, terminal := range []Stage{StageCallEnd, StageHangUp} {
		s := &State{Stage: terminal}
		for to := StageInitial; to <= StageHangUp; to++ {
			if to == terminal {
				continue
			}
			if err := ApplyStage(s, to); err == nil {
				t.Fatalf("left terminal stage %s for %s", terminal, to)
			}
		}
	}
}

func TestApplyStageSameStageNoop(t *testing.T) {
	s := &State{Stage: StageHandlingLoan}
	if err := ApplyStage(s, StageHandlingLoan); err != nil {
		t.Fatalf("same-stage apply: %v", err)
	}
}
