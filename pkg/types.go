package pkg

import "time"

// PathwayStep is one ordered decision step of a CPG pathway.  Step numbers
// are 1-based and contiguous per CPG.
type PathwayStep struct {
	ID                string  `json:"id"`
	CPGID             string  `json:"cpg_id"`
	PathwayName       string  `json:"pathway_name"`
	StepNumber        int     `json:"step_number"`
	DecisionPoint     string  `json:"decision_point"`
	ClinicalReasoning *string `json:"clinical_reasoning,omitempty"`
}

// PathwayOutcome is a selectable option for a pathway step, e.g. one
// classification category or one stage.
type PathwayOutcome struct {
	ID                string  `json:"id"`
	PathwayStepID     string  `json:"pathway_step_id"`
	ConditionType     string  `json:"condition_type"`
	ConditionText     string  `json:"condition_text"`
	OutcomeAction     string  `json:"outcome_action"`
	ClinicalReasoning *string `json:"clinical_reasoning,omitempty"`
	DisplayOrder      int     `json:"display_order"`
}

type RedFlag struct {
	ID                 string `json:"id"`
	CPGID              string `json:"cpg_id"`
	ConditionName      string `json:"condition_name"`
	ClinicalIndicators string `json:"clinical_indicators"`
	ActionRequired     string `json:"action_required"`
	UrgencyLevel       string `json:"urgency_level"`
}

// ClinicalTest is a diagnostic test supporting the classification step.
type ClinicalTest struct {
	ID             string  `json:"id"`
	CPGID          string  `json:"cpg_id"`
	TestName       string  `json:"test_name"`
	Purpose        string  `json:"purpose"`
	Interpretation *string `json:"interpretation,omitempty"`
	Classification *string `json:"classification,omitempty"`
}

// RecommendationScope says which learners a recommendation applies to.
type RecommendationScope string

const (
	ScopeUniversal RecommendationScope = "universal"
	ScopeGeneral   RecommendationScope = "general"
	ScopeSpecific  RecommendationScope = "specific"
)

// Recommendation is an evidence-graded treatment recommendation.  Specific
// recommendations are further scoped by classification and stage ids.
type Recommendation struct {
	ID                 string              `json:"id"`
	CPGID              string              `json:"cpg_id"`
	RecommendationText string              `json:"recommendation_text"`
	EvidenceGrade      string              `json:"evidence_grade"`
	Scope              RecommendationScope `json:"scope"`
	ClassificationID   *string             `json:"classification_id,omitempty"`
	StageID            *string             `json:"stage_id,omitempty"`
}

// ExternalResource is a video or article the mentor may offer.
type ExternalResource struct {
	ID           string  `json:"id"`
	Title        string  `json:"title"`
	ResourceType string  `json:"resource_type"`
	Summary      *string `json:"summary,omitempty"`
	VideoURL     *string `json:"video_url,omitempty"`
	URL          *string `json:"url,omitempty"`
}

// PatientCase is a simulated patient bound to one CPG together with the
// answer key used for guided autonomy.
type PatientCase struct {
	ID                 string   `json:"id"`
	CPGID              string   `json:"cpg_id"`
	Name               string   `json:"name"`
	Age                int      `json:"age"`
	Occupation         *string  `json:"occupation,omitempty"`
	ChiefComplaint     string   `json:"chief_complaint"`
	Duration           *string  `json:"duration,omitempty"`
	OnsetType          *string  `json:"onset_type,omitempty"`
	MechanismOfInjury  *string  `json:"mechanism_of_injury,omitempty"`
	AggravatingFactors []string `json:"aggravating_factors,omitempty"`
	EasingFactors      []string `json:"easing_factors,omitempty"`
	RelevantHistory    *string  `json:"relevant_history,omitempty"`
	DifficultyLevel    string   `json:"difficulty_level"`

	RedFlagsPresent []string `json:"red_flags_present,omitempty"`
	RedFlagNotes    *string  `json:"red_flag_notes,omitempty"`

	ExpectedClassification  *string `json:"expected_classification,omitempty"`
	ClassificationReasoning *string `json:"classification_reasoning,omitempty"`
	ExpectedStage           *string `json:"expected_stage,omitempty"`
	StageReasoning          *string `json:"stage_reasoning,omitempty"`

	KeyClinicalFindings    []string `json:"key_clinical_findings,omitempty"`
	TeachingPoints         []string `json:"teaching_points,omitempty"`
	CommonMistakes         []string `json:"common_mistakes,omitempty"`
	RecommendedResourceIDs []string `json:"recommended_resource_ids,omitempty"`
}

// Profile is the learner's personalization data.  Every field is optional.
type Profile struct {
	ID              string  `json:"id"`
	FirstName       *string `json:"first_name,omitempty"`
	LastName        *string `json:"last_name,omitempty"`
	ExperienceLevel *string `json:"experience_level,omitempty"`
}

// MessageRole describes who authored a message.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// Message is one transcript entry.
type Message struct {
	ID        string      `json:"id"`
	Role      MessageRole `json:"role"`
	Content   string      `json:"content"`
	Timestamp time.Time   `json:"timestamp"`
}

// ConversationState is the in-memory progress of a learner through a case.
// ClassificationCorrect and StageCorrect are reserved and never computed.
type ConversationState struct {
	CurrentStepNumber      int       `json:"currentStepNumber"`
	TotalSteps             int       `json:"totalSteps"`
	CompletedSteps         []int     `json:"completedSteps"`
	RedFlagsCleared        bool      `json:"redFlagsCleared"`
	ClassificationSelected *string   `json:"classificationSelected"`
	ClassificationCorrect  *bool     `json:"classificationCorrect"`
	StageSelected          *string   `json:"stageSelected"`
	StageCorrect           *bool     `json:"stageCorrect"`
	Messages               []Message `json:"messages"`
}

// ConversationStatus is the lifecycle status of a persisted conversation.
type ConversationStatus string

const (
	StatusInProgress ConversationStatus = "in_progress"
	StatusCompleted  ConversationStatus = "completed"
	StatusAbandoned  ConversationStatus = "abandoned"
)

// ConversationKind distinguishes what a conversation record was used for.
type ConversationKind string

const KindCasePractice ConversationKind = "case_practice"

// Conversation is the persisted record of one learner working one case.
type Conversation struct {
	ID                 string             `json:"id"`
	UserID             string             `json:"user_id"`
	CPGID              string             `json:"cpg_id"`
	PatientCaseID      string             `json:"patient_case_id"`
	Kind               ConversationKind   `json:"conversation_type"`
	Messages           []Message          `json:"messages"`
	CurrentPathwayStep int                `json:"current_pathway_step"`
	Status             ConversationStatus `json:"status"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`
	CompletedAt        *time.Time         `json:"completed_at,omitempty"`
}

// TurnRequest is the body of a chat turn.
type TurnRequest struct {
	CaseID            string            `json:"caseId"`
	UserID            string            `json:"userId"`
	Message           string            `json:"message"`
	ConversationState ConversationState `json:"conversationState"`
	ConversationID    string            `json:"conversationId,omitempty"`
	IsFirstMessage    bool              `json:"isFirstMessage,omitempty"`
}

// TurnResponse is returned for every successful turn.
type TurnResponse struct {
	Response          string             `json:"response"`
	UpdatedState      ConversationState  `json:"updatedState"`
	ShouldAdvanceStep bool               `json:"shouldAdvanceStep"`
	ConversationID    string             `json:"conversationId"`
	IsResumed         *bool              `json:"isResumed,omitempty"`
	Completed         bool               `json:"completed,omitempty"`
	Resources         []ExternalResource `json:"resources,omitempty"`
}
