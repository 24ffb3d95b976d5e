package db

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"

	"cpg-mentor/internal/apperr"
	"cpg-mentor/pkg"
)

// Repository wraps database operations for conversations, profiles and CPG
// reference data.  Queries are built with goqu's postgres dialect and run
// as prepared statements on the shared *sql.DB.
type Repository struct {
	DB *sql.DB
	q  *goqu.Database
}

// NewRepository constructs a new Repository from an existing sql.DB.
// The caller is responsible for managing the DB connection lifecycle.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{DB: db, q: goqu.New("postgres", db)}
}

// transcript is the JSONB messages column.
type transcript []pkg.Message

func (t transcript) Value() (driver.Value, error) {
	if t == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]pkg.Message(t))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (t *transcript) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*t = transcript{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported messages column type %T", src)
	}
	var msgs []pkg.Message
	if err := json.Unmarshal(raw, &msgs); err != nil {
		return err
	}
	if msgs == nil {
		msgs = []pkg.Message{}
	}
	*t = msgs
	return nil
}

type conversationRow struct {
	ID                 string       `db:"id"`
	UserID             string       `db:"user_id"`
	CPGID              string       `db:"cpg_id"`
	PatientCaseID      string       `db:"patient_case_id"`
	Kind               string       `db:"conversation_type"`
	Messages           transcript   `db:"messages"`
	CurrentPathwayStep int          `db:"current_pathway_step"`
	Status             string       `db:"status"`
	CreatedAt          time.Time    `db:"created_at"`
	UpdatedAt          time.Time    `db:"updated_at"`
	CompletedAt        sql.NullTime `db:"completed_at"`
}

func (r conversationRow) toConversation() *pkg.Conversation {
	c := &pkg.Conversation{
		ID:                 r.ID,
		UserID:             r.UserID,
		CPGID:              r.CPGID,
		PatientCaseID:      r.PatientCaseID,
		Kind:               pkg.ConversationKind(r.Kind),
		Messages:           []pkg.Message(r.Messages),
		CurrentPathwayStep: r.CurrentPathwayStep,
		Status:             pkg.ConversationStatus(r.Status),
		CreatedAt:          r.CreatedAt,
		UpdatedAt:          r.UpdatedAt,
	}
	if c.Messages == nil {
		c.Messages = []pkg.Message{}
	}
	if r.CompletedAt.Valid {
		t := r.CompletedAt.Time
		c.CompletedAt = &t
	}
	return c
}

type profileRow struct {
	ID              string         `db:"id"`
	FirstName       sql.NullString `db:"first_name"`
	LastName        sql.NullString `db:"last_name"`
	ExperienceLevel sql.NullString `db:"experience_level"`
}

// GetProfile returns the learner profile for userID.
func (r *Repository) GetProfile(ctx context.Context, userID string) (*pkg.Profile, error) {
	var row profileRow
	found, err := r.q.From("profiles").
		Where(goqu.C("id").Eq(userID)).
		Prepared(true).
		ScanStructContext(ctx, &row)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, apperr.NotFound("profile not found")
	}
	return &pkg.Profile{
		ID:              row.ID,
		FirstName:       nullString(row.FirstName),
		LastName:        nullString(row.LastName),
		ExperienceLevel: nullString(row.ExperienceLevel),
	}, nil
}

// FindResumable returns the most recently updated in-progress or abandoned
// conversation for the user and case, or nil when there is none.
func (r *Repository) FindResumable(ctx context.Context, userID, caseID string) (*pkg.Conversation, error) {
	var row conversationRow
	found, err := r.q.From("conversations").
		Where(
			goqu.C("user_id").Eq(userID),
			goqu.C("patient_case_id").Eq(caseID),
			goqu.C("status").In(string(pkg.StatusInProgress), string(pkg.StatusAbandoned)),
		).
		Order(goqu.C("updated_at").Desc()).
		Limit(1).
		Prepared(true).
		ScanStructContext(ctx, &row)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return row.toConversation(), nil
}

// GetConversation loads a conversation by id.
func (r *Repository) GetConversation(ctx context.Context, id string) (*pkg.Conversation, error) {
	var row conversationRow
	found, err := r.q.From("conversations").
		Where(goqu.C("id").Eq(id)).
		Prepared(true).
		ScanStructContext(ctx, &row)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, apperr.NotFound("conversation not found")
	}
	return row.toConversation(), nil
}

// CreateConversation inserts a new conversation record.
func (r *Repository) CreateConversation(ctx context.Context, c *pkg.Conversation) error {
	query, args, err := r.q.Insert("conversations").
		Rows(goqu.Record{
			"id":                   c.ID,
			"user_id":              c.UserID,
			"cpg_id":               c.CPGID,
			"patient_case_id":      c.PatientCaseID,
			"conversation_type":    string(c.Kind),
			"messages":             transcript(c.Messages),
			"current_pathway_step": c.CurrentPathwayStep,
			"status":               string(c.Status),
			"created_at":           c.CreatedAt,
			"updated_at":           c.UpdatedAt,
			"completed_at":         nullTime(c.CompletedAt),
		}).
		Prepared(true).
		ToSQL()
	if err != nil {
		return fmt.Errorf("build conversation insert: %w", err)
	}
	_, err = r.DB.ExecContext(ctx, query, args...)
	return err
}

// UpdateConversation overwrites the mutable columns of a conversation.
// Writes are last-write-wins.
func (r *Repository) UpdateConversation(ctx context.Context, c *pkg.Conversation) error {
	query, args, err := r.q.Update("conversations").
		Set(goqu.Record{
			"messages":             transcript(c.Messages),
			"current_pathway_step": c.CurrentPathwayStep,
			"status":               string(c.Status),
			"updated_at":           c.UpdatedAt,
			"completed_at":         nullTime(c.CompletedAt),
		}).
		Where(goqu.C("id").Eq(c.ID)).
		Prepared(true).
		ToSQL()
	if err != nil {
		return fmt.Errorf("build conversation update: %w", err)
	}
	res, err := r.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return apperr.NotFound("conversation not found")
	}
	return nil
}

func nullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
