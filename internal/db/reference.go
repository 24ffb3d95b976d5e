package db

import (
	"context"
	"database/sql"
	"strings"

	"github.com/doug-martin/goqu/v9"
	"github.com/lib/pq"

	"cpg-mentor/internal/apperr"
	"cpg-mentor/pkg"
)

type patientCaseRow struct {
	ID                      string         `db:"id"`
	CPGID                   string         `db:"cpg_id"`
	Name                    string         `db:"name"`
	Age                     int            `db:"age"`
	Occupation              sql.NullString `db:"occupation"`
	ChiefComplaint          string         `db:"chief_complaint"`
	Duration                sql.NullString `db:"duration"`
	OnsetType               sql.NullString `db:"onset_type"`
	MechanismOfInjury       sql.NullString `db:"mechanism_of_injury"`
	AggravatingFactors      pq.StringArray `db:"aggravating_factors"`
	EasingFactors           pq.StringArray `db:"easing_factors"`
	RelevantHistory         sql.NullString `db:"relevant_history"`
	DifficultyLevel         string         `db:"difficulty_level"`
	RedFlagsPresent         pq.StringArray `db:"red_flags_present"`
	RedFlagNotes            sql.NullString `db:"red_flag_notes"`
	ExpectedClassification  sql.NullString `db:"expected_classification"`
	ClassificationReasoning sql.NullString `db:"classification_reasoning"`
	ExpectedStage           sql.NullString `db:"expected_stage"`
	StageReasoning          sql.NullString `db:"stage_reasoning"`
	KeyClinicalFindings     pq.StringArray `db:"key_clinical_findings"`
	TeachingPoints          pq.StringArray `db:"teaching_points"`
	CommonMistakes          pq.StringArray `db:"common_mistakes"`
	RecommendedResourceIDs  pq.StringArray `db:"recommended_resource_ids"`
}

func (r patientCaseRow) toPatientCase() *pkg.PatientCase {
	return &pkg.PatientCase{
		ID:                      r.ID,
		CPGID:                   r.CPGID,
		Name:                    r.Name,
		Age:                     r.Age,
		Occupation:              nullString(r.Occupation),
		ChiefComplaint:          r.ChiefComplaint,
		Duration:                nullString(r.Duration),
		OnsetType:               nullString(r.OnsetType),
		MechanismOfInjury:       nullString(r.MechanismOfInjury),
		AggravatingFactors:      strs(r.AggravatingFactors),
		EasingFactors:           strs(r.EasingFactors),
		RelevantHistory:         nullString(r.RelevantHistory),
		DifficultyLevel:         r.DifficultyLevel,
		RedFlagsPresent:         strs(r.RedFlagsPresent),
		RedFlagNotes:            nullString(r.RedFlagNotes),
		ExpectedClassification:  nullString(r.ExpectedClassification),
		ClassificationReasoning: nullString(r.ClassificationReasoning),
		ExpectedStage:           nullString(r.ExpectedStage),
		StageReasoning:          nullString(r.StageReasoning),
		KeyClinicalFindings:     strs(r.KeyClinicalFindings),
		TeachingPoints:          strs(r.TeachingPoints),
		CommonMistakes:          strs(r.CommonMistakes),
		RecommendedResourceIDs:  strs(r.RecommendedResourceIDs),
	}
}

type pathwayStepRow struct {
	ID                string         `db:"id"`
	CPGID             string         `db:"cpg_id"`
	PathwayName       string         `db:"pathway_name"`
	StepNumber        int            `db:"step_number"`
	DecisionPoint     string         `db:"decision_point"`
	ClinicalReasoning sql.NullString `db:"clinical_reasoning"`
}

type outcomeRow struct {
	ID                string         `db:"id"`
	PathwayStepID     string         `db:"pathway_step_id"`
	ConditionType     string         `db:"condition_type"`
	ConditionText     string         `db:"condition_text"`
	OutcomeAction     string         `db:"outcome_action"`
	ClinicalReasoning sql.NullString `db:"clinical_reasoning"`
	DisplayOrder      int            `db:"display_order"`
}

type redFlagRow struct {
	ID                 string `db:"id"`
	CPGID              string `db:"cpg_id"`
	ConditionName      string `db:"condition_name"`
	ClinicalIndicators string `db:"clinical_indicators"`
	ActionRequired     string `db:"action_required"`
	UrgencyLevel       string `db:"urgency_level"`
}

type clinicalTestRow struct {
	ID             string         `db:"id"`
	CPGID          string         `db:"cpg_id"`
	TestName       string         `db:"test_name"`
	Purpose        string         `db:"purpose"`
	Interpretation sql.NullString `db:"interpretation"`
	Classification sql.NullString `db:"classification"`
}

type recommendationRow struct {
	ID                 string         `db:"id"`
	CPGID              string         `db:"cpg_id"`
	RecommendationText string         `db:"recommendation_text"`
	EvidenceGrade      string         `db:"evidence_grade"`
	Scope              string         `db:"scope"`
	ClassificationID   sql.NullString `db:"classification_id"`
	StageID            sql.NullString `db:"stage_id"`
}

type resourceRow struct {
	ID           string         `db:"id"`
	Title        string         `db:"title"`
	ResourceType string         `db:"resource_type"`
	Summary      sql.NullString `db:"summary"`
	VideoURL     sql.NullString `db:"video_url"`
	URL          sql.NullString `db:"url"`
}

// GetPatientCase loads a single patient case with its answer key.
func (r *Repository) GetPatientCase(ctx context.Context, caseID string) (*pkg.PatientCase, error) {
	var row patientCaseRow
	found, err := r.q.From("patient_cases").
		Where(goqu.C("id").Eq(caseID)).
		Prepared(true).
		ScanStructContext(ctx, &row)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, apperr.NotFound("patient case not found")
	}
	return row.toPatientCase(), nil
}

// ListPathwaySteps returns the CPG's pathway steps ordered by step number.
func (r *Repository) ListPathwaySteps(ctx context.Context, cpgID string) ([]pkg.PathwayStep, error) {
	var rows []pathwayStepRow
	err := r.q.From("cpg_decision_pathways").
		Where(goqu.C("cpg_id").Eq(cpgID)).
		Order(goqu.C("step_number").Asc()).
		Prepared(true).
		ScanStructsContext(ctx, &rows)
	if err != nil {
		return nil, err
	}
	steps := make([]pkg.PathwayStep, 0, len(rows))
	for _, row := range rows {
		steps = append(steps, pkg.PathwayStep{
			ID:                row.ID,
			CPGID:             row.CPGID,
			PathwayName:       row.PathwayName,
			StepNumber:        row.StepNumber,
			DecisionPoint:     row.DecisionPoint,
			ClinicalReasoning: nullString(row.ClinicalReasoning),
		})
	}
	return steps, nil
}

// ListPathwayOutcomes returns the options of one step in display order.
func (r *Repository) ListPathwayOutcomes(ctx context.Context, stepID string) ([]pkg.PathwayOutcome, error) {
	var rows []outcomeRow
	err := r.q.From("cpg_pathway_outcomes").
		Where(goqu.C("pathway_step_id").Eq(stepID)).
		Order(goqu.C("display_order").Asc()).
		Prepared(true).
		ScanStructsContext(ctx, &rows)
	if err != nil {
		return nil, err
	}
	out := make([]pkg.PathwayOutcome, 0, len(rows))
	for _, row := range rows {
		out = append(out, pkg.PathwayOutcome{
			ID:                row.ID,
			PathwayStepID:     row.PathwayStepID,
			ConditionType:     row.ConditionType,
			ConditionText:     row.ConditionText,
			OutcomeAction:     row.OutcomeAction,
			ClinicalReasoning: nullString(row.ClinicalReasoning),
			DisplayOrder:      row.DisplayOrder,
		})
	}
	return out, nil
}

func (r *Repository) ListRedFlags(ctx context.Context, cpgID string) ([]pkg.RedFlag, error) {
	var rows []redFlagRow
	err := r.q.From("cpg_red_flags").
		Where(goqu.C("cpg_id").Eq(cpgID)).
		Order(goqu.C("condition_name").Asc()).
		Prepared(true).
		ScanStructsContext(ctx, &rows)
	if err != nil {
		return nil, err
	}
	out := make([]pkg.RedFlag, 0, len(rows))
	for _, row := range rows {
		out = append(out, pkg.RedFlag(row))
	}
	return out, nil
}

func (r *Repository) ListClinicalTests(ctx context.Context, cpgID string) ([]pkg.ClinicalTest, error) {
	var rows []clinicalTestRow
	err := r.q.From("cpg_clinical_tests").
		Where(goqu.C("cpg_id").Eq(cpgID)).
		Order(goqu.C("test_name").Asc()).
		Prepared(true).
		ScanStructsContext(ctx, &rows)
	if err != nil {
		return nil, err
	}
	out := make([]pkg.ClinicalTest, 0, len(rows))
	for _, row := range rows {
		out = append(out, pkg.ClinicalTest{
			ID:             row.ID,
			CPGID:          row.CPGID,
			TestName:       row.TestName,
			Purpose:        row.Purpose,
			Interpretation: nullString(row.Interpretation),
			Classification: nullString(row.Classification),
		})
	}
	return out, nil
}

func (r *Repository) ListRecommendations(ctx context.Context, cpgID string) ([]pkg.Recommendation, error) {
	var rows []recommendationRow
	err := r.q.From("cpg_recommendations").
		Where(goqu.C("cpg_id").Eq(cpgID)).
		Prepared(true).
		ScanStructsContext(ctx, &rows)
	if err != nil {
		return nil, err
	}
	out := make([]pkg.Recommendation, 0, len(rows))
	for _, row := range rows {
		out = append(out, pkg.Recommendation{
			ID:                 row.ID,
			CPGID:              row.CPGID,
			RecommendationText: row.RecommendationText,
			EvidenceGrade:      row.EvidenceGrade,
			Scope:              pkg.RecommendationScope(row.Scope),
			ClassificationID:   nullString(row.ClassificationID),
			StageID:            nullString(row.StageID),
		})
	}
	return out, nil
}

// ClassificationID resolves a classification name, case-insensitively.
func (r *Repository) ClassificationID(ctx context.Context, cpgID, name string) (string, error) {
	return r.idByName(ctx, "cpg_classifications", cpgID, name)
}

// StageID resolves a stage name, case-insensitively.
func (r *Repository) StageID(ctx context.Context, cpgID, name string) (string, error) {
	return r.idByName(ctx, "cpg_stages", cpgID, name)
}

func (r *Repository) idByName(ctx context.Context, table, cpgID, name string) (string, error) {
	var id string
	found, err := r.q.From(table).
		Select("id").
		Where(
			goqu.C("cpg_id").Eq(cpgID),
			goqu.Func("LOWER", goqu.C("name")).Eq(strings.ToLower(strings.TrimSpace(name))),
		).
		Limit(1).
		Prepared(true).
		ScanValContext(ctx, &id)
	if err != nil {
		return "", err
	}
	if !found {
		return "", apperr.NotFound(table + " entry not found")
	}
	return id, nil
}

// ListResources returns the resources with the given ids.  Unknown ids are
// skipped.
func (r *Repository) ListResources(ctx context.Context, ids []string) ([]pkg.ExternalResource, error) {
	if len(ids) == 0 {
		return []pkg.ExternalResource{}, nil
	}
	var rows []resourceRow
	err := r.q.From("external_resources").
		Where(goqu.C("id").In(ids)).
		Order(goqu.C("title").Asc()).
		Prepared(true).
		ScanStructsContext(ctx, &rows)
	if err != nil {
		return nil, err
	}
	out := make([]pkg.ExternalResource, 0, len(rows))
	for _, row := range rows {
		out = append(out, pkg.ExternalResource{
			ID:           row.ID,
			Title:        row.Title,
			ResourceType: row.ResourceType,
			Summary:      nullString(row.Summary),
			VideoURL:     nullString(row.VideoURL),
			URL:          nullString(row.URL),
		})
	}
	return out, nil
}

func strs(a pq.StringArray) []string {
	if a == nil {
		return []string{}
	}
	return []string(a)
}
