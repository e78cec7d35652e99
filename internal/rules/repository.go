package rules

import (
	"context"
	"sync"
	"time"

	"github.com/vatops/vatcalc/internal/domain"
)

// Repository supplies the candidate rules for a country. Implementations
// live outside the compute core (databases, admin services); the engine
// only ever sees an already-fetched list.
type Repository interface {
	GetActiveRules(ctx context.Context, countryCode string, ruleType *domain.RuleType, asOf time.Time) ([]domain.Rule, error)
}

// MemoryRepository is a Repository over an in-process rule snapshot,
// indexed by country. It backs the CLI and tests; a database-backed
// implementation satisfies the same interface in production.
type MemoryRepository struct {
	mu        sync.RWMutex
	byCountry map[string][]domain.Rule
}

// NewMemoryRepository indexes the given rules by country code.
func NewMemoryRepository(ruleList []domain.Rule) *MemoryRepository {
	repo := &MemoryRepository{byCountry: make(map[string][]domain.Rule)}
	for _, r := range ruleList {
		repo.byCountry[r.CountryCode] = append(repo.byCountry[r.CountryCode], r)
	}
	return repo
}

// GetActiveRules returns the active rules for countryCode effective at
// asOf, optionally narrowed to one rule type.
func (r *MemoryRepository) GetActiveRules(ctx context.Context, countryCode string, ruleType *domain.RuleType, asOf time.Time) ([]domain.Rule, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return NewRuleSet(r.byCountry[countryCode]).Candidates(countryCode, ruleType, asOf), nil
}

// Upsert inserts or replaces a rule by ID within its country bucket.
func (r *MemoryRepository) Upsert(rule domain.Rule) {
	r.mu.Lock()
	defer r.mu.Unlock()
	bucket := r.byCountry[rule.CountryCode]
	for i, existing := range bucket {
		if existing.ID == rule.ID {
			bucket[i] = rule
			return
		}
	}
	r.byCountry[rule.CountryCode] = append(bucket, rule)
}

type cacheKey struct {
	country  string
	ruleType string
	day      string
}

// CachingRepository memoizes GetActiveRules lookups keyed by
// (countryCode, ruleType, asOf day). Anything that creates, updates, or
// deactivates a rule for a country must call Invalidate for it.
type CachingRepository struct {
	inner Repository

	mu      sync.RWMutex
	entries map[cacheKey][]domain.Rule
}

// NewCachingRepository wraps inner with a lookup cache.
func NewCachingRepository(inner Repository) *CachingRepository {
	return &CachingRepository{inner: inner, entries: make(map[cacheKey][]domain.Rule)}
}

// GetActiveRules serves from cache when possible.
func (c *CachingRepository) GetActiveRules(ctx context.Context, countryCode string, ruleType *domain.RuleType, asOf time.Time) ([]domain.Rule, error) {
	key := cacheKey{country: countryCode, day: asOf.UTC().Format("2006-01-02")}
	if ruleType != nil {
		key.ruleType = string(*ruleType)
	}

	c.mu.RLock()
	cached, ok := c.entries[key]
	c.mu.RUnlock()
	if ok {
		return append([]domain.Rule(nil), cached...), nil
	}

	fetched, err := c.inner.GetActiveRules(ctx, countryCode, ruleType, asOf)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[key] = append([]domain.Rule(nil), fetched...)
	c.mu.Unlock()
	return fetched, nil
}

// Invalidate drops every cached entry for countryCode.
func (c *CachingRepository) Invalidate(countryCode string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.entries {
		if key.country == countryCode {
			delete(c.entries, key)
		}
	}
}
