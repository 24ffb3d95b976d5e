package core

import (
	"sort"

	"cpg-mentor/pkg"
)

// Step numbers of the clinical decision pathway.  Every classification
// follows the same four-step shape.
const (
	StepScreening       = 1
	StepClassification  = 2
	StepStage           = 3
	StepRecommendations = 4
)

// NewState is the initial state of a fresh conversation.
func NewState(totalSteps int) pkg.ConversationState {
	return pkg.ConversationState{
		CurrentStepNumber: 1,
		TotalSteps:        totalSteps,
		CompletedSteps:    []int{},
		Messages:          []pkg.Message{},
	}
}

// DerivedState rebuilds the state a learner has at step from the single
// persisted step number.  Completed steps are assumed to be every step
// before it, which holds only because the pathway is strictly linear.
// Selections are re-derived from the answer key exactly as Apply would have
// captured them on the way to step.
func DerivedState(step, totalSteps int, pc *pkg.PatientCase, messages []pkg.Message) pkg.ConversationState {
	step = clampStep(step, totalSteps)
	st := NewState(totalSteps)
	st.CurrentStepNumber = step
	for i := 1; i < step; i++ {
		st.CompletedSteps = append(st.CompletedSteps, i)
		captureOnLeave(&st, i, pc)
	}
	st.Messages = append(st.Messages, messages...)
	return st
}

// Normalize clamps a caller-supplied state into a valid one for a pathway
// of totalSteps steps.
func Normalize(st pkg.ConversationState, totalSteps int) pkg.ConversationState {
	out := cloneState(st)
	out.TotalSteps = totalSteps
	out.CurrentStepNumber = clampStep(out.CurrentStepNumber, totalSteps)
	kept := out.CompletedSteps[:0]
	seen := make(map[int]bool, len(out.CompletedSteps))
	for _, s := range out.CompletedSteps {
		if s >= 1 && s < out.CurrentStepNumber && !seen[s] {
			seen[s] = true
			kept = append(kept, s)
		}
	}
	sort.Ints(kept)
	out.CompletedSteps = kept
	return out
}

// Apply runs one transition of the linear state machine.  The input state
// is not modified.
func Apply(st pkg.ConversationState, v Verdict, pc *pkg.PatientCase) pkg.ConversationState {
	out := cloneState(st)
	if !v.Advance || out.CurrentStepNumber >= out.TotalSteps {
		return out
	}
	leaving := out.CurrentStepNumber
	out.CompletedSteps = append(out.CompletedSteps, leaving)
	captureOnLeave(&out, leaving, pc)
	out.CurrentStepNumber = leaving + 1
	return out
}

// captureOnLeave records the selection confirmed by leaving step.  Values
// come from the answer key, never from learner free text.
func captureOnLeave(st *pkg.ConversationState, step int, pc *pkg.PatientCase) {
	if pc == nil {
		return
	}
	switch step {
	case StepScreening:
		if len(pc.RedFlagsPresent) == 0 {
			st.RedFlagsCleared = true
		}
	case StepClassification:
		if pc.ExpectedClassification != nil {
			v := *pc.ExpectedClassification
			st.ClassificationSelected = &v
		}
	case StepStage:
		if pc.ExpectedStage != nil {
			v := *pc.ExpectedStage
			st.StageSelected = &v
		}
	}
}

func clampStep(step, totalSteps int) int {
	if step < 1 {
		return 1
	}
	if totalSteps > 0 && step > totalSteps {
		return totalSteps
	}
	return step
}

func cloneState(st pkg.ConversationState) pkg.ConversationState {
	out := st
	out.CompletedSteps = append([]int{}, st.CompletedSteps...)
	out.Messages = append([]pkg.Message{}, st.Messages...)
	return out
}
