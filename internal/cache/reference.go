package cache

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"cpg-mentor/internal/core"
	"cpg-mentor/internal/logger"
	"cpg-mentor/pkg"
)

const keyPrefix = "cpg-mentor:ref:"

// ReferenceCache is a read-through cache in front of a core.ReferenceStore.
// Reference data is immutable at runtime, so entries only expire by TTL.
// Errors are never cached, and a failing cache falls back to the store.
// Name-to-id lookups pass straight through.
type ReferenceCache struct {
	core.ReferenceStore
	provider Provider
	ttl      time.Duration
	log      *logger.Logger
}

func NewReferenceCache(store core.ReferenceStore, provider Provider, ttl time.Duration, log *logger.Logger) *ReferenceCache {
	return &ReferenceCache{
		ReferenceStore: store,
		provider:       provider,
		ttl:            ttl,
		log:            log.With("component", "ReferenceCache"),
	}
}

func (c *ReferenceCache) GetPatientCase(ctx context.Context, caseID string) (*pkg.PatientCase, error) {
	return readThrough(ctx, c, "case:"+caseID, func() (*pkg.PatientCase, error) {
		return c.ReferenceStore.GetPatientCase(ctx, caseID)
	})
}

func (c *ReferenceCache) ListPathwaySteps(ctx context.Context, cpgID string) ([]pkg.PathwayStep, error) {
	return readThrough(ctx, c, "steps:"+cpgID, func() ([]pkg.PathwayStep, error) {
		return c.ReferenceStore.ListPathwaySteps(ctx, cpgID)
	})
}

func (c *ReferenceCache) ListPathwayOutcomes(ctx context.Context, stepID string) ([]pkg.PathwayOutcome, error) {
	return readThrough(ctx, c, "outcomes:"+stepID, func() ([]pkg.PathwayOutcome, error) {
		return c.ReferenceStore.ListPathwayOutcomes(ctx, stepID)
	})
}

func (c *ReferenceCache) ListRedFlags(ctx context.Context, cpgID string) ([]pkg.RedFlag, error) {
	return readThrough(ctx, c, "redflags:"+cpgID, func() ([]pkg.RedFlag, error) {
		return c.ReferenceStore.ListRedFlags(ctx, cpgID)
	})
}

func (c *ReferenceCache) ListClinicalTests(ctx context.Context, cpgID string) ([]pkg.ClinicalTest, error) {
	return readThrough(ctx, c, "tests:"+cpgID, func() ([]pkg.ClinicalTest, error) {
		return c.ReferenceStore.ListClinicalTests(ctx, cpgID)
	})
}

func (c *ReferenceCache) ListRecommendations(ctx context.Context, cpgID string) ([]pkg.Recommendation, error) {
	return readThrough(ctx, c, "recs:"+cpgID, func() ([]pkg.Recommendation, error) {
		return c.ReferenceStore.ListRecommendations(ctx, cpgID)
	})
}

func (c *ReferenceCache) ListResources(ctx context.Context, ids []string) ([]pkg.ExternalResource, error) {
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)
	return readThrough(ctx, c, "resources:"+strings.Join(sorted, ","), func() ([]pkg.ExternalResource, error) {
		return c.ReferenceStore.ListResources(ctx, ids)
	})
}

func readThrough[T any](ctx context.Context, c *ReferenceCache, key string, fetch func() (T, error)) (T, error) {
	key = keyPrefix + key
	if raw, ok, err := c.provider.Get(ctx, key); err != nil {
		c.log.Warn("cache get failed", "key", key, "error", err)
	} else if ok {
		var v T
		if err := json.Unmarshal(raw, &v); err == nil {
			return v, nil
		}
		c.log.Warn("cache entry undecodable, refetching", "key", key)
	}

	v, err := fetch()
	if err != nil {
		return v, err
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return v, nil
	}
	if err := c.provider.Set(ctx, key, raw, c.ttl); err != nil {
		c.log.Warn("cache set failed", "key", key, "error", err)
	}
	return v, nil
}
