// Package bulk applies one operation to many records, each on its own, and
// reports partial success.
package bulk

import (
	"context"
	"fmt"
	"time"

	pkgerrors "github.com/angelmondragon/smartaccess-backend/pkg/errors"
	"github.com/google/uuid"
	"go.uber.org/multierr"
)

// MaxItems caps how many ids a single bulk request may carry.
const MaxItems = 500

// Failure describes why one record was not changed.
type Failure struct {
	ID      uuid.UUID      `json:"id"`
	Code    pkgerrors.Code `json:"code"`
	Message string         `json:"message"`
}

// Result is the outcome of a bulk operation.
type Result struct {
	Succeeded int       `json:"succeeded"`
	Failed    int       `json:"failed"`
	Failures  []Failure `json:"failures"`
}

// Err joins the per-record failures, or returns nil when all succeeded.
func (r Result) Err() error {
	var errs error
	for _, f := range r.Failures {
		errs = multierr.Append(errs, fmt.Errorf("%s: %s: %s", f.ID, f.Code, f.Message))
	}
	return errs
}

// Observer receives the timing and counts of each run.
type Observer interface {
	ObserveBulk(operation string, duration time.Duration, succeeded, failed int)
}

// Run calls apply for every distinct id in order. A failing record never
// stops the others. Validation of the id list itself returns an error.
func Run(ctx context.Context, operation string, ids []uuid.UUID, obs Observer, apply func(ctx context.Context, id uuid.UUID) error) (Result, error) {
	if len(ids) == 0 {
		return Result{}, pkgerrors.New(pkgerrors.CodeValidation, "ids required").
			WithField("ids", "is required")
	}
	if len(ids) > MaxItems {
		return Result{}, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("at most %d ids per request", MaxItems)).
			WithField("ids", fmt.Sprintf("must be at most %d", MaxItems))
	}

	start := time.Now()
	res := Result{Failures: []Failure{}}
	seen := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		if err := ctx.Err(); err != nil {
			res.record(id, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "request cancelled"))
			continue
		}
		if err := apply(ctx, id); err != nil {
			res.record(id, err)
			continue
		}
		res.Succeeded++
	}

	if obs != nil {
		obs.ObserveBulk(operation, time.Since(start), res.Succeeded, res.Failed)
	}
	return res, nil
}

func (r *Result) record(id uuid.UUID, err error) {
	code := pkgerrors.CodeInternal
	message := err.Error()
	if typed := pkgerrors.As(err); typed != nil {
		code = typed.Code()
		message = typed.Message()
	}
	r.Failed++
	r.Failures = append(r.Failures, Failure{ID: id, Code: code, Message: message})
}
