package core

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"cpg-mentor/internal/apperr"
	"cpg-mentor/internal/logger"
	"cpg-mentor/pkg"
)

// Lifecycle finds, resumes, creates and persists conversation records.
type Lifecycle struct {
	store    ConversationStore
	notifier CompletionNotifier
	log      *logger.Logger
	now      func() time.Time
	newID    func() string
}

func NewLifecycle(store ConversationStore, notifier CompletionNotifier, log *logger.Logger) *Lifecycle {
	return &Lifecycle{
		store:    store,
		notifier: notifier,
		log:      log.With("component", "Lifecycle"),
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
	}
}

// Resolution is the outcome of Resolve.
type Resolution struct {
	Record  *pkg.Conversation
	State   pkg.ConversationState
	Resumed bool
	// Welcome is the appended welcome-back message when Resumed.
	Welcome *pkg.Message
}

// Profile loads the learner profile.  Any failure yields defaults.
func (l *Lifecycle) Profile(ctx context.Context, userID string) LearnerProfile {
	p, err := l.store.GetProfile(ctx, userID)
	if err != nil || p == nil {
		l.log.Warn("profile unavailable, using defaults", "user_id", userID, "error", err)
		return LearnerProfile{DisplayName: defaultDisplayName}
	}
	return LearnerProfile{
		DisplayName:     orDefault(strings.TrimSpace(deref(p.FirstName)), defaultDisplayName),
		ExperienceLevel: deref(p.ExperienceLevel),
	}
}

// Resolve is called once when a learner opens a case.  The most recently
// updated in-progress or abandoned record is revived and given a welcome
// back message; otherwise a new record is created at step 1.
func (l *Lifecycle) Resolve(ctx context.Context, userID string, pc *pkg.PatientCase, steps []pkg.PathwayStep, learner LearnerProfile) (*Resolution, error) {
	rec, err := l.store.FindResumable(ctx, userID, pc.ID)
	if err != nil {
		return nil, apperr.Internal("find resumable conversation", err)
	}
	if rec == nil {
		rec, err = l.create(ctx, userID, pc)
		if err != nil {
			return nil, err
		}
		return &Resolution{Record: rec, State: NewState(len(steps))}, nil
	}

	st := DerivedState(rec.CurrentPathwayStep, len(steps), pc, rec.Messages)
	step, ok := stepByNumber(steps, st.CurrentStepNumber)
	if !ok {
		step = steps[0]
	}
	welcome := l.message(pkg.RoleAssistant, WelcomeBackMessage(learner.DisplayName, pc, step, len(steps)))
	st.Messages = append(st.Messages, welcome)

	rec.Status = pkg.StatusInProgress
	if err := l.Persist(ctx, rec, st, false); err != nil {
		return nil, err
	}
	l.log.Info("conversation resumed", "conversation_id", rec.ID, "step", st.CurrentStepNumber)
	return &Resolution{Record: rec, State: st, Resumed: true, Welcome: &welcome}, nil
}

// Attach returns the record an ongoing turn writes to.  A named record must
// belong to the user and case and must not be completed; without an id the
// most recent resumable record is used, or a new one is created.
func (l *Lifecycle) Attach(ctx context.Context, userID string, pc *pkg.PatientCase, conversationID string) (*pkg.Conversation, error) {
	if conversationID == "" {
		rec, err := l.store.FindResumable(ctx, userID, pc.ID)
		if err != nil {
			return nil, apperr.Internal("find resumable conversation", err)
		}
		if rec != nil {
			return rec, nil
		}
		return l.create(ctx, userID, pc)
	}
	rec, err := l.owned(ctx, userID, conversationID)
	if err != nil {
		return nil, err
	}
	if rec.PatientCaseID != pc.ID {
		return nil, apperr.NotFound("conversation not found")
	}
	if rec.Status == pkg.StatusCompleted {
		return nil, apperr.Conflict("conversation already completed")
	}
	return rec, nil
}

// Persist writes state into rec.  It runs once per turn, after the
// transition has been applied.  A terminal persist completes the record and
// notifies listeners on a best-effort basis.
func (l *Lifecycle) Persist(ctx context.Context, rec *pkg.Conversation, st pkg.ConversationState, terminal bool) error {
	if rec.Status == pkg.StatusCompleted {
		return apperr.Conflict("conversation already completed")
	}
	now := l.now()
	rec.Messages = append([]pkg.Message{}, st.Messages...)
	rec.CurrentPathwayStep = st.CurrentStepNumber
	rec.Status = pkg.StatusInProgress
	rec.UpdatedAt = now
	if terminal {
		rec.Status = pkg.StatusCompleted
		rec.CompletedAt = &now
	}
	if err := l.store.UpdateConversation(ctx, rec); err != nil {
		return apperr.Internal("persist conversation", err)
	}
	if terminal && l.notifier != nil {
		if err := l.notifier.Notify(ctx, rec.ID); err != nil {
			l.log.Warn("completion notify failed", "conversation_id", rec.ID, "error", err)
		}
	}
	return nil
}

// Get loads a record owned by userID.
func (l *Lifecycle) Get(ctx context.Context, userID, conversationID string) (*pkg.Conversation, error) {
	return l.owned(ctx, userID, conversationID)
}

// Abandon marks a record abandoned on explicit learner deletion.  Any
// status may be abandoned; an abandoned record stays resumable.
func (l *Lifecycle) Abandon(ctx context.Context, userID, conversationID string) (*pkg.Conversation, error) {
	rec, err := l.owned(ctx, userID, conversationID)
	if err != nil {
		return nil, err
	}
	rec.Status = pkg.StatusAbandoned
	rec.UpdatedAt = l.now()
	if err := l.store.UpdateConversation(ctx, rec); err != nil {
		return nil, apperr.Internal("abandon conversation", err)
	}
	l.log.Info("conversation abandoned", "conversation_id", rec.ID)
	return rec, nil
}

func (l *Lifecycle) owned(ctx context.Context, userID, conversationID string) (*pkg.Conversation, error) {
	rec, err := l.store.GetConversation(ctx, conversationID)
	if err != nil {
		if apperr.Is(err, apperr.TypeNotFound) {
			return nil, err
		}
		return nil, apperr.Internal("load conversation", err)
	}
	if rec.UserID != userID {
		return nil, apperr.NotFound("conversation not found")
	}
	return rec, nil
}

func (l *Lifecycle) create(ctx context.Context, userID string, pc *pkg.PatientCase) (*pkg.Conversation, error) {
	now := l.now()
	rec := &pkg.Conversation{
		ID:                 l.newID(),
		UserID:             userID,
		CPGID:              pc.CPGID,
		PatientCaseID:      pc.ID,
		Kind:               pkg.KindCasePractice,
		Messages:           []pkg.Message{},
		CurrentPathwayStep: 1,
		Status:             pkg.StatusInProgress,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := l.store.CreateConversation(ctx, rec); err != nil {
		return nil, apperr.Internal("create conversation", err)
	}
	l.log.Info("conversation created", "conversation_id", rec.ID, "case_id", pc.ID)
	return rec, nil
}

func (l *Lifecycle) message(role pkg.MessageRole, content string) pkg.Message {
	return pkg.Message{ID: l.newID(), Role: role, Content: content, Timestamp: l.now()}
}
