package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"cpg-mentor/internal/apperr"
	"cpg-mentor/internal/llm"
	"cpg-mentor/pkg"
)

func strptr(s string) *string { return &s }

// fixtureCase is a neck pain case whose answer key is Mobility Deficits,
// Acute, with no red flags present.
func fixtureCase() *pkg.PatientCase {
	return &pkg.PatientCase{
		ID:                      "case-1",
		CPGID:                   "cpg-1",
		Name:                    "Maria",
		Age:                     42,
		Occupation:              strptr("Office worker"),
		ChiefComplaint:          "neck pain and stiffness",
		Duration:                strptr("2 weeks"),
		OnsetType:               strptr("Gradual"),
		DifficultyLevel:         "Beginner",
		AggravatingFactors:      []string{"sitting at computer"},
		RedFlagsPresent:         []string{},
		ExpectedClassification:  strptr("Mobility Deficits"),
		ClassificationReasoning: strptr("Limited rotation without radiating symptoms"),
		ExpectedStage:           strptr("Acute"),
		StageReasoning:          strptr("Under 6 weeks"),
		KeyClinicalFindings:     []string{"limited rotation"},
		TeachingPoints:          []string{"Screen before you classify"},
		CommonMistakes:          []string{"Skipping red flag screening"},
		RecommendedResourceIDs:  []string{"res-1"},
	}
}

func fixtureSteps() []pkg.PathwayStep {
	return []pkg.PathwayStep{
		{ID: "s1", CPGID: "cpg-1", PathwayName: "Medical Screening", StepNumber: 1, DecisionPoint: "Is this patient appropriate for physical therapy?"},
		{ID: "s2", CPGID: "cpg-1", PathwayName: "Classification", StepNumber: 2, DecisionPoint: "Which classification best fits?"},
		{ID: "s3", CPGID: "cpg-1", PathwayName: "Stage", StepNumber: 3, DecisionPoint: "What stage is the condition in?"},
		{ID: "s4", CPGID: "cpg-1", PathwayName: "Intervention", StepNumber: 4, DecisionPoint: "Which interventions does the evidence support?"},
	}
}

type memRefs struct {
	mu              sync.Mutex
	cases           map[string]*pkg.PatientCase
	steps           map[string][]pkg.PathwayStep
	outcomes        map[string][]pkg.PathwayOutcome
	redFlags        []pkg.RedFlag
	tests           []pkg.ClinicalTest
	recs            []pkg.Recommendation
	classifications map[string]string
	stages          map[string]string
	resources       map[string]pkg.ExternalResource
	errs            map[string]error
	calls           map[string]int
}

func newMemRefs() *memRefs {
	return &memRefs{
		cases: map[string]*pkg.PatientCase{"case-1": fixtureCase()},
		steps: map[string][]pkg.PathwayStep{"cpg-1": fixtureSteps()},
		outcomes: map[string][]pkg.PathwayOutcome{
			"s2": {
				{ID: "o3", PathwayStepID: "s2", ConditionType: "classification", ConditionText: "Radiating Pain", DisplayOrder: 3},
				{ID: "o1", PathwayStepID: "s2", ConditionType: "classification", ConditionText: "Mobility Deficits", DisplayOrder: 1},
				{ID: "o2", PathwayStepID: "s2", ConditionType: "classification", ConditionText: "Movement Coordination Impairments", DisplayOrder: 2},
			},
			"s3": {
				{ID: "o4", PathwayStepID: "s3", ConditionType: "Acute", ConditionText: "Less than 6 weeks", DisplayOrder: 1},
				{ID: "o5", PathwayStepID: "s3", ConditionType: "Chronic", ConditionText: "More than 12 weeks", DisplayOrder: 2},
			},
		},
		redFlags: []pkg.RedFlag{
			{ID: "rf1", CPGID: "cpg-1", ConditionName: "Cervical Myelopathy", ClinicalIndicators: "gait disturbance", ActionRequired: "Refer", UrgencyLevel: "urgent"},
		},
		tests: []pkg.ClinicalTest{
			{ID: "t1", CPGID: "cpg-1", TestName: "Cervical rotation ROM", Purpose: "Measure mobility", Classification: strptr("Mobility Deficits")},
		},
		recs: []pkg.Recommendation{
			{ID: "r1", CPGID: "cpg-1", RecommendationText: "Exercise therapy", EvidenceGrade: "B", Scope: pkg.ScopeGeneral},
			{ID: "r2", CPGID: "cpg-1", RecommendationText: "Patient education", EvidenceGrade: "A", Scope: pkg.ScopeUniversal},
			{ID: "r3", CPGID: "cpg-1", RecommendationText: "Thoracic manipulation", EvidenceGrade: "A", Scope: pkg.ScopeSpecific, ClassificationID: strptr("class-mob"), StageID: strptr("stage-acute")},
			{ID: "r4", CPGID: "cpg-1", RecommendationText: "Cervical traction", EvidenceGrade: "C", Scope: pkg.ScopeSpecific, ClassificationID: strptr("class-rad"), StageID: strptr("stage-acute")},
		},
		classifications: map[string]string{"mobility deficits": "class-mob", "radiating pain": "class-rad"},
		stages:          map[string]string{"acute": "stage-acute", "chronic": "stage-chronic"},
		resources: map[string]pkg.ExternalResource{
			"res-1": {ID: "res-1", Title: "Neck mobility exercises", ResourceType: "video", VideoURL: strptr("https://example.org/v")},
		},
		errs:  map[string]error{},
		calls: map[string]int{},
	}
}

func (m *memRefs) hit(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[name]++
	return m.errs[name]
}

func (m *memRefs) GetPatientCase(_ context.Context, id string) (*pkg.PatientCase, error) {
	if err := m.hit("case"); err != nil {
		return nil, err
	}
	pc, ok := m.cases[id]
	if !ok {
		return nil, apperr.NotFound("patient case not found")
	}
	return pc, nil
}

func (m *memRefs) ListPathwaySteps(_ context.Context, cpgID string) ([]pkg.PathwayStep, error) {
	if err := m.hit("steps"); err != nil {
		return nil, err
	}
	return append([]pkg.PathwayStep{}, m.steps[cpgID]...), nil
}

func (m *memRefs) ListPathwayOutcomes(_ context.Context, stepID string) ([]pkg.PathwayOutcome, error) {
	if err := m.hit("outcomes"); err != nil {
		return nil, err
	}
	return append([]pkg.PathwayOutcome{}, m.outcomes[stepID]...), nil
}

func (m *memRefs) ListRedFlags(context.Context, string) ([]pkg.RedFlag, error) {
	if err := m.hit("redflags"); err != nil {
		return nil, err
	}
	return m.redFlags, nil
}

func (m *memRefs) ListClinicalTests(context.Context, string) ([]pkg.ClinicalTest, error) {
	if err := m.hit("tests"); err != nil {
		return nil, err
	}
	return m.tests, nil
}

func (m *memRefs) ListRecommendations(context.Context, string) ([]pkg.Recommendation, error) {
	if err := m.hit("recs"); err != nil {
		return nil, err
	}
	return m.recs, nil
}

func (m *memRefs) ClassificationID(_ context.Context, _ string, name string) (string, error) {
	if err := m.hit("classification_id"); err != nil {
		return "", err
	}
	id, ok := m.classifications[strings.ToLower(name)]
	if !ok {
		return "", apperr.NotFound("classification not found")
	}
	return id, nil
}

func (m *memRefs) StageID(_ context.Context, _ string, name string) (string, error) {
	if err := m.hit("stage_id"); err != nil {
		return "", err
	}
	id, ok := m.stages[strings.ToLower(name)]
	if !ok {
		return "", apperr.NotFound("stage not found")
	}
	return id, nil
}

func (m *memRefs) ListResources(_ context.Context, ids []string) ([]pkg.ExternalResource, error) {
	if err := m.hit("resources"); err != nil {
		return nil, err
	}
	out := []pkg.ExternalResource{}
	for _, id := range ids {
		if r, ok := m.resources[id]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

type memConvs struct {
	mu         sync.Mutex
	records    map[string]*pkg.Conversation
	profiles   map[string]*pkg.Profile
	profileErr error
	findErr    error
	updateErr  error
	updates    int
}

func newMemConvs() *memConvs {
	return &memConvs{
		records:  map[string]*pkg.Conversation{},
		profiles: map[string]*pkg.Profile{"user-1": {ID: "user-1", FirstName: strptr("Dana"), ExperienceLevel: strptr("student")}},
	}
}

func copyConversation(c *pkg.Conversation) *pkg.Conversation {
	out := *c
	out.Messages = append([]pkg.Message{}, c.Messages...)
	return &out
}

func (m *memConvs) GetProfile(_ context.Context, userID string) (*pkg.Profile, error) {
	if m.profileErr != nil {
		return nil, m.profileErr
	}
	p, ok := m.profiles[userID]
	if !ok {
		return nil, apperr.NotFound("profile not found")
	}
	return p, nil
}

func (m *memConvs) FindResumable(_ context.Context, userID, caseID string) (*pkg.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return nil, m.findErr
	}
	var found []*pkg.Conversation
	for _, c := range m.records {
		if c.UserID == userID && c.PatientCaseID == caseID &&
			(c.Status == pkg.StatusInProgress || c.Status == pkg.StatusAbandoned) {
			found = append(found, c)
		}
	}
	if len(found) == 0 {
		return nil, nil
	}
	sort.Slice(found, func(i, j int) bool { return found[i].UpdatedAt.After(found[j].UpdatedAt) })
	return copyConversation(found[0]), nil
}

func (m *memConvs) GetConversation(_ context.Context, id string) (*pkg.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.records[id]
	if !ok {
		return nil, apperr.NotFound("conversation not found")
	}
	return copyConversation(c), nil
}

func (m *memConvs) CreateConversation(_ context.Context, c *pkg.Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.records[c.ID]; exists {
		return fmt.Errorf("duplicate id %s", c.ID)
	}
	m.records[c.ID] = copyConversation(c)
	return nil
}

func (m *memConvs) UpdateConversation(_ context.Context, c *pkg.Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return m.updateErr
	}
	if _, ok := m.records[c.ID]; !ok {
		return apperr.NotFound("conversation not found")
	}
	m.updates++
	m.records[c.ID] = copyConversation(c)
	return nil
}

func (m *memConvs) only() *pkg.Conversation {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.records {
		return copyConversation(c)
	}
	return nil
}

type fakeLLM struct {
	mu      sync.Mutex
	replies []string
	err     error
	block   bool
	calls   [][]llm.Message
}

func (f *fakeLLM) Chat(ctx context.Context, msgs []llm.Message) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, msgs)
	f.mu.Unlock()
	if f.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if f.err != nil {
		return "", f.err
	}
	if len(f.replies) == 0 {
		return "", nil
	}
	r := f.replies[0]
	f.replies = f.replies[1:]
	return r, nil
}

func (f *fakeLLM) lastDocument() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		return ""
	}
	last := f.calls[len(f.calls)-1]
	return last[len(last)-1].Content
}

type fakeNotifier struct {
	ids []string
	err error
}

func (f *fakeNotifier) Notify(_ context.Context, id string) error {
	f.ids = append(f.ids, id)
	return f.err
}

// testClock returns a monotonically increasing clock and sequential ids.
func testClock() (func() time.Time, func() string) {
	var mu sync.Mutex
	t := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	n := 0
	now := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Second)
		return t
	}
	id := func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("id-%d", n)
	}
	return now, id
}
