package core

import (
	"fmt"
	"strconv"
	"strings"

	"cpg-mentor/pkg"
)

// LearnerProfile is the personalization used in prompts.
type LearnerProfile struct {
	DisplayName     string
	ExperienceLevel string
}

// ContextInput is everything the context document is built from.
type ContextInput struct {
	Case        *pkg.PatientCase
	Steps       []pkg.PathwayStep
	Current     pkg.PathwayStep
	Reference   StepReference
	State       pkg.ConversationState
	UserMessage string
	Learner     LearnerProfile
}

// AssembleContext renders the document sent to the model as its only user
// turn.  Reference data is rendered for the current step only.
func AssembleContext(in ContextInput) string {
	var b strings.Builder
	writePatient(&b, in.Case)
	writeLearner(&b, in.Learner)
	writePathway(&b, in.Steps, in.Current)
	writeStepData(&b, in.Current.StepNumber, in.Reference, in.State)
	writeAnswerKey(&b, in.Case)
	writeState(&b, in.State)
	writeHistory(&b, in.State.Messages)

	b.WriteString("## CURRENT USER MESSAGE\n")
	b.WriteString(in.UserMessage)
	b.WriteString("\n\n## YOUR TASK\n")
	fmt.Fprintf(&b, taskInstruction, in.Current.StepNumber, in.Current.PathwayName)
	b.WriteString("\n")
	return b.String()
}

func writePatient(b *strings.Builder, pc *pkg.PatientCase) {
	b.WriteString("## CURRENT PATIENT CASE\n")
	fmt.Fprintf(b, "Name: %s, %d\n", pc.Name, pc.Age)
	fmt.Fprintf(b, "Occupation: %s\n", orDefault(deref(pc.Occupation), "Not specified"))
	fmt.Fprintf(b, "Chief Complaint: %q\n", pc.ChiefComplaint)
	fmt.Fprintf(b, "Duration: %s\n", orDefault(deref(pc.Duration), "Not specified"))
	fmt.Fprintf(b, "Onset: %s\n", orDefault(deref(pc.OnsetType), "Not specified"))
	if m := deref(pc.MechanismOfInjury); m != "" {
		fmt.Fprintf(b, "Mechanism of Injury: %s\n", m)
	} else {
		b.WriteString("No trauma mechanism reported\n")
	}
	if len(pc.AggravatingFactors) > 0 {
		fmt.Fprintf(b, "Aggravating Factors: %s\n", strings.Join(pc.AggravatingFactors, ", "))
	}
	if len(pc.EasingFactors) > 0 {
		fmt.Fprintf(b, "Easing Factors: %s\n", strings.Join(pc.EasingFactors, ", "))
	}
	if h := deref(pc.RelevantHistory); h != "" {
		fmt.Fprintf(b, "Relevant History: %s\n", h)
	}
	if pc.DifficultyLevel != "" {
		fmt.Fprintf(b, "Difficulty Level: %s\n", pc.DifficultyLevel)
	}
	b.WriteString("\n")
}

func writeLearner(b *strings.Builder, l LearnerProfile) {
	b.WriteString("## LEARNER\n")
	fmt.Fprintf(b, "Name: %s\n", orDefault(l.DisplayName, defaultDisplayName))
	fmt.Fprintf(b, "Experience Level: %s\n\n", orDefault(l.ExperienceLevel, "Not specified"))
}

func writePathway(b *strings.Builder, steps []pkg.PathwayStep, current pkg.PathwayStep) {
	b.WriteString("## PATHWAY STEPS FOR THIS CPG\n")
	for _, s := range steps {
		fmt.Fprintf(b, "Step %d: %s - %q\n", s.StepNumber, s.PathwayName, s.DecisionPoint)
	}
	b.WriteString("\n## CURRENT STEP\n")
	fmt.Fprintf(b, "Step %d of %d: %s\n", current.StepNumber, len(steps), current.PathwayName)
	fmt.Fprintf(b, "Decision Point: %q\n", current.DecisionPoint)
	if r := deref(current.ClinicalReasoning); r != "" {
		fmt.Fprintf(b, "Clinical Reasoning Context: %s\n", r)
	}
	b.WriteString("\n")
}

func writeStepData(b *strings.Builder, step int, ref StepReference, st pkg.ConversationState) {
	b.WriteString("## CPG DATA FOR THIS STEP\n")
	switch step {
	case StepScreening:
		b.WriteString("### RED FLAGS TO SCREEN FOR\n")
		for _, rf := range ref.RedFlags {
			fmt.Fprintf(b, "- %s: %s (Urgency: %s; Action: %s)\n", rf.ConditionName, rf.ClinicalIndicators, rf.UrgencyLevel, rf.ActionRequired)
		}
	case StepClassification:
		b.WriteString("### CLASSIFICATION OPTIONS\n")
		for _, c := range ref.Classifications {
			fmt.Fprintf(b, "- %s\n", c.ConditionText)
		}
		if len(ref.ClinicalTests) > 0 {
			b.WriteString("### SUPPORTING CLINICAL TESTS\n")
			for _, t := range ref.ClinicalTests {
				fmt.Fprintf(b, "- %s: %s", t.TestName, t.Purpose)
				if i := deref(t.Interpretation); i != "" {
					fmt.Fprintf(b, " (Interpretation: %s)", i)
				}
				if c := deref(t.Classification); c != "" {
					fmt.Fprintf(b, " [Supports: %s]", c)
				}
				b.WriteString("\n")
			}
		}
	case StepStage:
		b.WriteString("### STAGE OPTIONS\n")
		for _, s := range ref.Stages {
			fmt.Fprintf(b, "- %s: %s\n", s.ConditionType, s.ConditionText)
		}
	case StepRecommendations:
		fmt.Fprintf(b, "### RECOMMENDATIONS FOR %s + %s\n",
			orDefault(deref(st.ClassificationSelected), "Selected Classification"),
			orDefault(deref(st.StageSelected), "Selected Stage"))
		for _, r := range ref.Recommendations {
			fmt.Fprintf(b, "- [Grade %s] %s\n", r.EvidenceGrade, r.RecommendationText)
		}
		b.WriteString("### AVAILABLE RESOURCES TO OFFER\n")
		for _, r := range ref.Resources {
			fmt.Fprintf(b, "- %q (%s)", r.Title, r.ResourceType)
			if deref(r.VideoURL) != "" {
				b.WriteString(" [Has Video]")
			}
			fmt.Fprintf(b, " marker: [RESOURCE:%s]\n", r.ID)
		}
	default:
		b.WriteString("No step-specific reference data.\n")
	}
	b.WriteString("\n")
}

func writeAnswerKey(b *strings.Builder, pc *pkg.PatientCase) {
	b.WriteString("## GUIDED AUTONOMY DATA (Use this to validate/correct the learner's reasoning)\n")
	fmt.Fprintf(b, "Expected Classification: %s\n", orDefault(deref(pc.ExpectedClassification), "Not specified"))
	fmt.Fprintf(b, "Classification Reasoning: %s\n", orDefault(deref(pc.ClassificationReasoning), "Not specified"))
	fmt.Fprintf(b, "Expected Stage: %s\n", orDefault(deref(pc.ExpectedStage), "Not specified"))
	fmt.Fprintf(b, "Stage Reasoning: %s\n", orDefault(deref(pc.StageReasoning), "Not specified"))
	fmt.Fprintf(b, "Key Clinical Findings to Notice: %s\n", joinOr(pc.KeyClinicalFindings, ", ", "None specified"))
	fmt.Fprintf(b, "Teaching Points to Weave In: %s\n", joinOr(pc.TeachingPoints, " | ", "None specified"))
	fmt.Fprintf(b, "Common Mistakes to Watch For: %s\n", joinOr(pc.CommonMistakes, " | ", "None specified"))
	fmt.Fprintf(b, "Red Flags Present in This Case: %s\n", joinOr(pc.RedFlagsPresent, ", ", "None"))
	if n := deref(pc.RedFlagNotes); n != "" {
		fmt.Fprintf(b, "Red Flag Notes: %s\n", n)
	}
	b.WriteString("\n")
}

func writeState(b *strings.Builder, st pkg.ConversationState) {
	completed := make([]string, 0, len(st.CompletedSteps))
	for _, s := range st.CompletedSteps {
		completed = append(completed, strconv.Itoa(s))
	}
	b.WriteString("## CONVERSATION STATE\n")
	fmt.Fprintf(b, "Current Step: %d of %d\n", st.CurrentStepNumber, st.TotalSteps)
	fmt.Fprintf(b, "Completed Steps: %s\n", joinOr(completed, ", ", "None yet"))
	fmt.Fprintf(b, "Red Flags Cleared: %t\n", st.RedFlagsCleared)
	fmt.Fprintf(b, "Classification Selected: %s\n", orDefault(deref(st.ClassificationSelected), "Not yet"))
	fmt.Fprintf(b, "Classification Correct: %s\n", evaluated(st.ClassificationCorrect))
	fmt.Fprintf(b, "Stage Selected: %s\n", orDefault(deref(st.StageSelected), "Not yet"))
	fmt.Fprintf(b, "Stage Correct: %s\n\n", evaluated(st.StageCorrect))
}

func writeHistory(b *strings.Builder, msgs []pkg.Message) {
	b.WriteString("## CONVERSATION HISTORY\n")
	for i, m := range msgs {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(b, "%s: %s", strings.ToUpper(string(m.Role)), m.Content)
	}
	b.WriteString("\n\n")
}

func evaluated(v *bool) string {
	if v == nil {
		return "Not yet evaluated"
	}
	return strconv.FormatBool(*v)
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func joinOr(items []string, sep, def string) string {
	if len(items) == 0 {
		return def
	}
	return strings.Join(items, sep)
}
