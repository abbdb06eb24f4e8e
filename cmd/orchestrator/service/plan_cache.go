package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/weftlabs/weft/cmd/orchestrator/compiler"
	"github.com/weftlabs/weft/common/apperr"
	"github.com/weftlabs/weft/common/cache"
	"github.com/weftlabs/weft/common/logger"
	"github.com/weftlabs/weft/common/models"
)

const defaultPlanTTL = 10 * time.Minute

// PlanCache fronts graph compilation with a TTL cache keyed by
// definition id and version. Definitions are immutable per version, so
// entries never need invalidation, only expiry.
type PlanCache struct {
	cache cache.Cache
	ttl   time.Duration
	log   *logger.Logger
}

// NewPlanCache creates a compiled-plan cache. A nil backing cache
// disables caching and compiles on every call.
func NewPlanCache(c cache.Cache, ttl time.Duration, log *logger.Logger) *PlanCache {
	if ttl <= 0 {
		ttl = defaultPlanTTL
	}
	return &PlanCache{cache: c, ttl: ttl, log: log}
}

// PlanFor returns the execution plan for a definition, compiling on
// cache miss. Compilation failures map to validation errors.
func (p *PlanCache) PlanFor(ctx context.Context, def *models.WorkflowDefinition) (*compiler.ExecutionPlan, error) {
	if p.cache == nil {
		return p.compile(def)
	}

	key := planKey(def)
	if data, ok, err := p.cache.Get(ctx, key); err == nil && ok {
		var plan compiler.ExecutionPlan
		if jerr := json.Unmarshal(data, &plan); jerr == nil {
			return &plan, nil
		}
		// A corrupt entry falls through to a fresh compile
		p.log.Warn("discarding undecodable cached plan", "key", key)
	}

	plan, err := p.compile(def)
	if err != nil {
		return nil, err
	}

	if data, merr := json.Marshal(plan); merr == nil {
		if serr := p.cache.Set(ctx, key, data, p.ttl); serr != nil {
			p.log.Warn("failed to cache compiled plan", "key", key, "error", serr)
		}
	}
	return plan, nil
}

func (p *PlanCache) compile(def *models.WorkflowDefinition) (*compiler.ExecutionPlan, error) {
	plan, err := compiler.Compile(def)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, "invalid workflow graph", err)
	}
	return plan, nil
}

func planKey(def *models.WorkflowDefinition) string {
	return fmt.Sprintf("plan:%s:v%d", def.ID, def.Version)
}
