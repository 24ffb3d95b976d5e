package core

import (
	"context"

	"cpg-mentor/pkg"
)

// ReferenceStore reads immutable CPG reference data.  GetPatientCase,
// ClassificationID and StageID return an apperr NotFound error when no row
// matches; list methods return an empty slice.
type ReferenceStore interface {
	GetPatientCase(ctx context.Context, caseID string) (*pkg.PatientCase, error)
	ListPathwaySteps(ctx context.Context, cpgID string) ([]pkg.PathwayStep, error)
	ListPathwayOutcomes(ctx context.Context, stepID string) ([]pkg.PathwayOutcome, error)
	ListRedFlags(ctx context.Context, cpgID string) ([]pkg.RedFlag, error)
	ListClinicalTests(ctx context.Context, cpgID string) ([]pkg.ClinicalTest, error)
	ListRecommendations(ctx context.Context, cpgID string) ([]pkg.Recommendation, error)
	ClassificationID(ctx context.Context, cpgID, name string) (string, error)
	StageID(ctx context.Context, cpgID, name string) (string, error)
	ListResources(ctx context.Context, ids []string) ([]pkg.ExternalResource, error)
}

// ConversationStore persists conversation records and reads learner
// profiles.  FindResumable returns (nil, nil) when nothing is resumable;
// GetConversation and GetProfile return an apperr NotFound error.
type ConversationStore interface {
	GetProfile(ctx context.Context, userID string) (*pkg.Profile, error)
	FindResumable(ctx context.Context, userID, caseID string) (*pkg.Conversation, error)
	GetConversation(ctx context.Context, id string) (*pkg.Conversation, error)
	CreateConversation(ctx context.Context, c *pkg.Conversation) error
	UpdateConversation(ctx context.Context, c *pkg.Conversation) error
}

// CompletionNotifier is told when a conversation reaches completion.
type CompletionNotifier interface {
	Notify(ctx context.Context, conversationID string) error
}
