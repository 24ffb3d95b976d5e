package core

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"cpg-mentor/internal/apperr"
	"cpg-mentor/internal/llm"
	"cpg-mentor/internal/logger"
	"cpg-mentor/pkg"
)

// ChatService drives one learner turn: it loads reference data, builds the
// context document, calls the model, advances the pathway and persists the
// conversation.  It holds no per-conversation state; callers must keep at
// most one turn in flight per (user, case).
type ChatService struct {
	refs         ReferenceStore
	loader       *ReferenceLoader
	lifecycle    *Lifecycle
	llm          llm.Client
	log          *logger.Logger
	modelTimeout time.Duration
	now          func() time.Time
	newID        func() string
}

// Option configures a ChatService.
type Option func(*ChatService)

// WithModelTimeout bounds each model call.  Zero means no bound beyond the
// request context.
func WithModelTimeout(d time.Duration) Option {
	return func(s *ChatService) { s.modelTimeout = d }
}

// WithClock overrides the time source and id generator, for tests.
func WithClock(now func() time.Time, newID func() string) Option {
	return func(s *ChatService) {
		s.now = now
		s.newID = newID
		s.lifecycle.now = now
		s.lifecycle.newID = newID
	}
}

// NewChatService wires the orchestrator.  notifier may be nil.
func NewChatService(refs ReferenceStore, convs ConversationStore, notifier CompletionNotifier, client llm.Client, log *logger.Logger, opts ...Option) *ChatService {
	s := &ChatService{
		refs:      refs,
		loader:    NewReferenceLoader(refs, log),
		lifecycle: NewLifecycle(convs, notifier, log),
		llm:       client,
		log:       log.With("component", "ChatService"),
		now:       func() time.Time { return time.Now().UTC() },
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Lifecycle exposes the record manager for the conversation endpoints.
func (s *ChatService) Lifecycle() *Lifecycle { return s.lifecycle }

// HandleTurn processes one request.  Any failure before persistence leaves
// the stored record untouched, so a retry resumes from the last good state.
func (s *ChatService) HandleTurn(ctx context.Context, req pkg.TurnRequest) (*pkg.TurnResponse, error) {
	if strings.TrimSpace(req.CaseID) == "" || strings.TrimSpace(req.UserID) == "" {
		return nil, apperr.Validation("caseId and userId are required")
	}
	if !req.IsFirstMessage && strings.TrimSpace(req.Message) == "" {
		return nil, apperr.Validation("message is required")
	}

	learner := s.lifecycle.Profile(ctx, req.UserID)

	pc, err := s.refs.GetPatientCase(ctx, req.CaseID)
	if err != nil {
		return nil, wrapFetch("load patient case", err)
	}
	steps, err := s.refs.ListPathwaySteps(ctx, pc.CPGID)
	if err != nil {
		return nil, wrapFetch("load pathway steps", err)
	}
	if len(steps) == 0 {
		return nil, apperr.NotFound("pathway steps not found")
	}
	sort.SliceStable(steps, func(i, j int) bool { return steps[i].StepNumber < steps[j].StepNumber })

	if req.IsFirstMessage {
		return s.start(ctx, req.UserID, pc, steps, learner)
	}
	return s.continueTurn(ctx, req, pc, steps, learner)
}

// start opens or resumes a conversation without calling the model.
func (s *ChatService) start(ctx context.Context, userID string, pc *pkg.PatientCase, steps []pkg.PathwayStep, learner LearnerProfile) (*pkg.TurnResponse, error) {
	res, err := s.lifecycle.Resolve(ctx, userID, pc, steps, learner)
	if err != nil {
		return nil, err
	}
	resumed := res.Resumed
	if resumed {
		return &pkg.TurnResponse{
			Response:       res.Welcome.Content,
			UpdatedState:   res.State,
			ConversationID: res.Record.ID,
			IsResumed:      &resumed,
		}, nil
	}

	opening := OpeningMessage(pc, steps[0])
	st := res.State
	st.Messages = append(st.Messages, s.message(pkg.RoleAssistant, opening))
	if err := s.lifecycle.Persist(ctx, res.Record, st, false); err != nil {
		return nil, err
	}
	return &pkg.TurnResponse{
		Response:       opening,
		UpdatedState:   st,
		ConversationID: res.Record.ID,
		IsResumed:      &resumed,
	}, nil
}

func (s *ChatService) continueTurn(ctx context.Context, req pkg.TurnRequest, pc *pkg.PatientCase, steps []pkg.PathwayStep, learner LearnerProfile) (*pkg.TurnResponse, error) {
	rec, err := s.lifecycle.Attach(ctx, req.UserID, pc, req.ConversationID)
	if err != nil {
		return nil, err
	}

	st := Normalize(req.ConversationState, len(steps))
	if rec.CurrentPathwayStep > st.CurrentStepNumber {
		// the stored record is ahead of the caller; never move backwards and
		// keep its transcript
		st = DerivedState(rec.CurrentPathwayStep, len(steps), pc, rec.Messages)
	}
	if !endsWithUtterance(st.Messages, req.Message) {
		st.Messages = append(st.Messages, s.message(pkg.RoleUser, req.Message))
	}

	current, ok := stepByNumber(steps, st.CurrentStepNumber)
	if !ok {
		current = steps[0]
	}
	ref, err := s.loader.Load(ctx, pc, steps, st)
	if err != nil {
		return nil, apperr.Internal("load reference data", err)
	}

	doc := AssembleContext(ContextInput{
		Case:        pc,
		Steps:       steps,
		Current:     current,
		Reference:   ref,
		State:       st,
		UserMessage: req.Message,
		Learner:     learner,
	})
	reply, err := s.callModel(ctx, doc)
	if err != nil {
		s.log.Error("model call failed", "case_id", pc.ID, "step", current.StepNumber, "error", err)
		return nil, apperr.ModelUnavailable(err)
	}

	st.Messages = append(st.Messages, s.message(pkg.RoleAssistant, reply))
	verdict := Detect(current.StepNumber, len(steps), reply)
	next := Apply(st, verdict, pc)

	if err := s.lifecycle.Persist(ctx, rec, next, verdict.Terminal); err != nil {
		return nil, err
	}

	s.log.Info("turn handled",
		"case_id", pc.ID,
		"conversation_id", rec.ID,
		"step", current.StepNumber,
		"next_step", next.CurrentStepNumber,
		"advance", verdict.Advance,
		"terminal", verdict.Terminal,
		"trigger", verdict.Matched,
		"reply_len", len(reply),
	)

	resp := &pkg.TurnResponse{
		Response:          reply,
		UpdatedState:      next,
		ShouldAdvanceStep: verdict.Advance,
		ConversationID:    rec.ID,
		Completed:         verdict.Terminal,
	}
	if current.StepNumber == StepRecommendations {
		resp.Resources = ref.Resources
	}
	return resp, nil
}

func (s *ChatService) callModel(ctx context.Context, doc string) (string, error) {
	if s.modelTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.modelTimeout)
		defer cancel()
	}
	return s.llm.Chat(ctx, []llm.Message{
		{Role: "system", Content: SystemPrompt},
		{Role: "user", Content: doc},
	})
}

func (s *ChatService) message(role pkg.MessageRole, content string) pkg.Message {
	return pkg.Message{ID: s.newID(), Role: role, Content: content, Timestamp: s.now()}
}

// endsWithUtterance reports whether the caller already appended the
// learner's message to the transcript.
func endsWithUtterance(msgs []pkg.Message, utterance string) bool {
	if len(msgs) == 0 {
		return false
	}
	last := msgs[len(msgs)-1]
	return last.Role == pkg.RoleUser && last.Content == utterance
}

func wrapFetch(what string, err error) error {
	if apperr.Is(err, apperr.TypeNotFound) {
		return err
	}
	return apperr.Internal(what, err)
}
