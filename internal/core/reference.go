package core

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"cpg-mentor/internal/logger"
	"cpg-mentor/pkg"
)

// StepReference is the reference data scoped to one pathway step.  Only the
// fields belonging to that step are populated.
type StepReference struct {
	RedFlags        []pkg.RedFlag
	Classifications []pkg.PathwayOutcome
	ClinicalTests   []pkg.ClinicalTest
	Stages          []pkg.PathwayOutcome
	Recommendations []pkg.Recommendation
	Resources       []pkg.ExternalResource
}

// ReferenceLoader fetches the reference data for the current step.
type ReferenceLoader struct {
	store ReferenceStore
	log   *logger.Logger
}

func NewReferenceLoader(store ReferenceStore, log *logger.Logger) *ReferenceLoader {
	return &ReferenceLoader{store: store, log: log.With("component", "ReferenceLoader")}
}

// Load returns the reference data for state's current step.  Fetches within
// a step run concurrently; any failure aborts except the classification and
// stage id lookups of the recommendations step, which degrade to omitting
// specific recommendations.
func (l *ReferenceLoader) Load(ctx context.Context, pc *pkg.PatientCase, steps []pkg.PathwayStep, st pkg.ConversationState) (StepReference, error) {
	var ref StepReference
	switch st.CurrentStepNumber {
	case StepScreening:
		flags, err := l.store.ListRedFlags(ctx, pc.CPGID)
		if err != nil {
			return ref, fmt.Errorf("list red flags: %w", err)
		}
		ref.RedFlags = flags
	case StepClassification:
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			outcomes, err := l.outcomesFor(gctx, steps, StepClassification)
			if err != nil {
				return fmt.Errorf("list classification options: %w", err)
			}
			ref.Classifications = outcomes
			return nil
		})
		g.Go(func() error {
			tests, err := l.store.ListClinicalTests(gctx, pc.CPGID)
			if err != nil {
				return fmt.Errorf("list clinical tests: %w", err)
			}
			ref.ClinicalTests = tests
			return nil
		})
		if err := g.Wait(); err != nil {
			return StepReference{}, err
		}
	case StepStage:
		outcomes, err := l.outcomesFor(ctx, steps, StepStage)
		if err != nil {
			return ref, fmt.Errorf("list stage options: %w", err)
		}
		ref.Stages = outcomes
	case StepRecommendations:
		return l.loadRecommendations(ctx, pc, st)
	}
	return ref, nil
}

func (l *ReferenceLoader) loadRecommendations(ctx context.Context, pc *pkg.PatientCase, st pkg.ConversationState) (StepReference, error) {
	var (
		ref              StepReference
		all              []pkg.Recommendation
		classificationID *string
		stageID          *string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		recs, err := l.store.ListRecommendations(gctx, pc.CPGID)
		if err != nil {
			return fmt.Errorf("list recommendations: %w", err)
		}
		all = recs
		return nil
	})
	g.Go(func() error {
		if len(pc.RecommendedResourceIDs) == 0 {
			return nil
		}
		res, err := l.store.ListResources(gctx, pc.RecommendedResourceIDs)
		if err != nil {
			return fmt.Errorf("list resources: %w", err)
		}
		ref.Resources = res
		return nil
	})
	if st.ClassificationSelected != nil {
		g.Go(func() error {
			classificationID = l.lookup(gctx, "classification", *st.ClassificationSelected, func(ctx context.Context, name string) (string, error) {
				return l.store.ClassificationID(ctx, pc.CPGID, name)
			})
			return nil
		})
	}
	if st.StageSelected != nil {
		g.Go(func() error {
			stageID = l.lookup(gctx, "stage", *st.StageSelected, func(ctx context.Context, name string) (string, error) {
				return l.store.StageID(ctx, pc.CPGID, name)
			})
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return StepReference{}, err
	}
	ref.Recommendations = SelectRecommendations(all, classificationID, stageID)
	return ref, nil
}

// lookup resolves a selection name to its id; failures are logged and
// yield nil.
func (l *ReferenceLoader) lookup(ctx context.Context, kind, name string, fn func(context.Context, string) (string, error)) *string {
	id, err := fn(ctx, name)
	if err != nil || id == "" {
		l.log.Warn("selection lookup failed, omitting specific recommendations", "kind", kind, "name", name, "error", err)
		return nil
	}
	return &id
}

func (l *ReferenceLoader) outcomesFor(ctx context.Context, steps []pkg.PathwayStep, number int) ([]pkg.PathwayOutcome, error) {
	step, ok := stepByNumber(steps, number)
	if !ok {
		return nil, nil
	}
	outcomes, err := l.store.ListPathwayOutcomes(ctx, step.ID)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(outcomes, func(i, j int) bool { return outcomes[i].DisplayOrder < outcomes[j].DisplayOrder })
	return outcomes, nil
}

// SelectRecommendations keeps universal and general recommendations, plus
// specific ones matching both ids.  A nil id drops every specific
// recommendation.  The result is ordered strongest evidence first.
func SelectRecommendations(all []pkg.Recommendation, classificationID, stageID *string) []pkg.Recommendation {
	out := make([]pkg.Recommendation, 0, len(all))
	for _, r := range all {
		switch r.Scope {
		case pkg.ScopeUniversal, pkg.ScopeGeneral:
			out = append(out, r)
		case pkg.ScopeSpecific:
			if classificationID == nil || stageID == nil {
				continue
			}
			if r.ClassificationID != nil && r.StageID != nil &&
				*r.ClassificationID == *classificationID && *r.StageID == *stageID {
				out = append(out, r)
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return GradeRank(out[i].EvidenceGrade) < GradeRank(out[j].EvidenceGrade)
	})
	return out
}

// GradeRank orders evidence grades A > B > C > F; lower rank is stronger.
// Unknown grades sort last.
func GradeRank(grade string) int {
	switch strings.ToUpper(strings.TrimSpace(grade)) {
	case "A":
		return 0
	case "B":
		return 1
	case "C":
		return 2
	case "F":
		return 3
	default:
		return 4
	}
}

func stepByNumber(steps []pkg.PathwayStep, number int) (pkg.PathwayStep, bool) {
	for _, s := range steps {
		if s.StepNumber == number {
			return s, true
		}
	}
	return pkg.PathwayStep{}, false
}
