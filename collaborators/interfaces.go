package collaborators

import (
	"context"

	"github.com/suenot/rate-limit-optimizer/ratelimit"
)

// Storage persists a detection run's result. No implementation ships in
// this module - wiring a concrete backend (file, database, object store)
// is left to the caller assembling a detector run.
type Storage interface {
	Save(ctx context.Context, key string, result *ratelimit.MultiTierResult) error
	Load(ctx context.Context, key string) (*ratelimit.MultiTierResult, error)
}

// Recommender turns a detection result into an operator-facing
// recommendation, optionally backed by an AI service. No implementation
// ships in this module; the detector only needs the interface to hand its
// result to one.
type Recommender interface {
	Recommend(ctx context.Context, result *ratelimit.MultiTierResult, apiCtx APIContext) (string, error)
}
