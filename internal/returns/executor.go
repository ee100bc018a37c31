package returns

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/returns-engine/pkg/db/models"
	"github.com/angelmondragon/returns-engine/pkg/enums"
	pkgerrors "github.com/angelmondragon/returns-engine/pkg/errors"
	"github.com/angelmondragon/returns-engine/pkg/metrics"
	"github.com/angelmondragon/returns-engine/pkg/types"
)

// Actor identifies who triggers a transition.
type Actor struct {
	Role   enums.ActorRole
	UserID uuid.UUID
}

// TransitionInput describes one requested status transition.
type TransitionInput struct {
	ReturnID uuid.UUID
	Expected enums.ReturnStatus
	Next     enums.ReturnStatus
	Actor    Actor
	Note     *string
	// Extra carries additional column updates (sub-documents) that must land
	// in the same conditional write as the status change.
	Extra map[string]any
}

// TransitionResult reports the post-transition document. Idempotent is set
// when the return already carried the target status (duplicate retry).
type TransitionResult struct {
	Return     *models.Return
	Idempotent bool
}

// Executor applies status transitions with optimistic concurrency. Each
// transition is one conditional write keyed on the expected status, so two
// racing callers produce exactly one winner and no lost updates.
type Executor struct {
	registry *Registry
	metrics  *metrics.EngineMetrics
}

// NewExecutor wires the transition executor.
func NewExecutor(registry *Registry, m *metrics.EngineMetrics) (*Executor, error) {
	if registry == nil {
		return nil, errors.New("status registry required")
	}
	return &Executor{registry: registry, metrics: m}, nil
}

// Authorize checks that the actor may trigger the (from, to) edge without
// committing anything. Orchestrations call it before side effects that
// cannot be rolled back, such as external partner calls.
func (e *Executor) Authorize(from, to enums.ReturnStatus, actor Actor) error {
	if actor.UserID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "actor identity missing")
	}
	return e.registry.Validate(from, to, actor.Role)
}

// Transition validates and commits one status transition through repo.
// Callers compose it inside a transaction together with any money writes
// that must succeed or fail atomically with the status change.
func (e *Executor) Transition(ctx context.Context, repo Repository, input TransitionInput) (*TransitionResult, error) {
	if input.ReturnID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "return id required")
	}
	if input.Actor.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "actor identity missing")
	}
	if err := e.registry.Validate(input.Expected, input.Next, input.Actor.Role); err != nil {
		e.observe(input.Next, "illegal")
		return nil, err
	}

	entry := types.HistoryEntry{
		From:        input.Expected.String(),
		To:          input.Next.String(),
		ActorRole:   input.Actor.Role.String(),
		ActorUserID: input.Actor.UserID,
		Note:        input.Note,
		At:          time.Now().UTC(),
	}

	affected, err := repo.ApplyStatusUpdate(ctx, StatusUpdateParams{
		ReturnID: input.ReturnID,
		Expected: input.Expected.String(),
		Next:     input.Next.String(),
		Entry:    entry,
		Extra:    input.Extra,
		CloseOut: input.Next.IsTerminal(),
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "apply status update")
	}

	if affected == 0 {
		return e.resolveMiss(ctx, repo, input)
	}

	ret, err := repo.FindByID(ctx, input.ReturnID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload return")
	}
	e.observe(input.Next, "success")
	return &TransitionResult{Return: ret}, nil
}

// resolveMiss disambiguates a zero-row conditional update: the return may be
// gone, already at the target status (duplicate retry), closed, or moved by
// a concurrent caller.
func (e *Executor) resolveMiss(ctx context.Context, repo Repository, input TransitionInput) (*TransitionResult, error) {
	ret, err := repo.FindByID(ctx, input.ReturnID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			e.observe(input.Next, "not_found")
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "return not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload return")
	}

	if ret.Status == input.Next {
		e.observe(input.Next, "idempotent")
		return &TransitionResult{Return: ret, Idempotent: true}, nil
	}

	if !ret.IsActive {
		e.observe(input.Next, "closed")
		return nil, pkgerrors.New(pkgerrors.CodePrecondition, "return is closed").
			WithDetails(map[string]string{"status": ret.Status.String()})
	}

	e.observe(input.Next, "cas_conflict")
	return nil, pkgerrors.New(pkgerrors.CodeCASConflict, "return status changed concurrently").
		WithDetails(map[string]string{
			"expected": input.Expected.String(),
			"current":  ret.Status.String(),
		})
}

func (e *Executor) observe(to enums.ReturnStatus, outcome string) {
	e.metrics.IncTransition(to.String(), outcome)
}
