package core

import "strings"

// Verdict is the transition detector's reading of one mentor reply.
// Terminal implies Advance; the state machine ignores Advance on the last
// step.
type Verdict struct {
	Advance  bool
	Terminal bool
	// Matched is the trigger that fired, for logging.
	Matched string
}

// trigger matches when every substring is present in the lowercased reply.
type trigger []string

func (t trigger) match(text string) bool {
	for _, s := range t {
		if !strings.Contains(text, s) {
			return false
		}
	}
	return len(t) > 0
}

func (t trigger) String() string { return strings.Join(t, " + ") }

// stepTriggers holds the phrases that signal leaving each step.
var stepTriggers = map[int][]trigger{
	StepScreening: {
		{"move to classification"},
		{"move on to classification"},
		{"on to classification"},
		{"no red flags", "which category"},
		{"no red flags", "which classification"},
		{"now let", "classify"},
		{"let's classify"},
	},
	StepClassification: {
		{"move to stage"},
		{"move on to stage"},
		{"on to staging"},
		{"now let", "determine the stage"},
		{"what stage would you"},
		{"acute, subacute, or chronic"},
	},
	StepStage: {
		{"move to treatment"},
		{"move on to treatment"},
		{"now let", "treatment"},
		{"ready to see what the evidence tells us"},
		{"let's look at the recommendations"},
		{"on to the recommendations"},
	},
}

// terminalTriggers signal that the final recommendations step is done.
var terminalTriggers = []trigger{
	{"successfully navigated"},
	{"completed this case"},
	{"completed the case"},
	{"congratulations on working through"},
	{"case complete"},
}

// genericTriggers apply to every non-final step.
var genericTriggers = []trigger{
	{"let's move"},
	{"now let's"},
	{"proceed to"},
	{"next step"},
}

// Detect decides whether reply completes the given step of a pathway with
// totalSteps steps. It is a pure function of its inputs: matching is
// case-insensitive substring search and only the current step's table (plus
// the generic table) is consulted. Terminal phrases count only on the final
// step.
func Detect(step, totalSteps int, reply string) Verdict {
	text := normalizeReply(reply)
	if text == "" {
		return Verdict{}
	}
	if step >= totalSteps {
		if t, ok := firstMatch(terminalTriggers, text); ok {
			return Verdict{Advance: true, Terminal: true, Matched: t.String()}
		}
		return Verdict{}
	}
	if t, ok := firstMatch(stepTriggers[step], text); ok {
		return Verdict{Advance: true, Matched: t.String()}
	}
	if t, ok := firstMatch(genericTriggers, text); ok {
		return Verdict{Advance: true, Matched: t.String()}
	}
	return Verdict{}
}

func firstMatch(triggers []trigger, text string) (trigger, bool) {
	for _, t := range triggers {
		if t.match(text) {
			return t, true
		}
	}
	return nil, false
}

// normalizeReply lowercases and folds typographic apostrophes so that
// "Let’s" matches "let's".
func normalizeReply(reply string) string {
	r := strings.NewReplacer("’", "'", "‘", "'")
	return strings.ToLower(r.Replace(reply))
}
