// Package orchestrator runs one user turn through the
// refine → classify → handle → validate → store state machine.
package orchestrator

import (
	"context"
	"log/slog"
	"time"

	"voicedesk/app/client/llm"
	"voicedesk/app/config"

	"github.com/samber/do"
)

type Service struct {
	refiner    Completer
	classifier Completer
	handler    Completer
	validator  Completer
	persister  Persister
}

func New(di *do.Injector) (*Service, error) {
	cfg := do.MustInvoke[*config.Config](di)
	persister := do.MustInvoke[Persister](di)

	return &Service{
		refiner:    llm.New(cfg.LLM.Refine),
		classifier: llm.New(cfg.LLM.Classify),
		handler:    llm.New(cfg.LLM.Handle),
		validator:  llm.New(cfg.LLM.Validate),
		persister:  persister,
	}, nil
}

// NewWithCapabilities builds a service around explicit capabilities.
func NewWithCapabilities(refiner, classifier, handler, validator Completer, persister Persister) *Service {
	return &Service{
		refiner:    refiner,
		classifier: classifier,
		handler:    handler,
		validator:  validator,
		persister:  persister,
	}
}

// Run drives the state machine to completion. Node failures degrade to
// fallback values, so a result is always produced.
func (s *Service) Run(ctx context.Context, in Input) *Result {
	start := time.Now()

	state := State{OriginalQuery: in.Query}
	cur := stepRefine

	for cur != stepDone {
		switch cur {
		case stepRefine:
			state = s.refine(ctx, state)
		case stepClassify:
			state = s.classify(ctx, state, in)
		case stepHandle:
			state = s.handle(ctx, state, in)
		case stepValidate:
			state = s.validate(ctx, state)
		case stepStore:
			state = s.store(ctx, state)
		}

		cur, state = transition(cur, state)
	}

	slog.Debug("Orchestration run finished",
		"category", state.Category,
		"retries", state.Retries,
		"errors", len(state.Errors),
		"duration", time.Since(start))

	return &Result{
		RefinedQuery: state.RefinedQuery,
		Category:     state.Category,
		Response:     state.Response,
		IsValid:      state.IsValid,
		CustomerName: state.CustomerName,
		Service:      state.Service,
		ActionResult: state.ActionResult,
		Errors:       state.Errors,
	}
}

// store executes the deferred persistence action. Persistence failures are
// logged and recorded but never block delivering the reply.
func (s *Service) store(ctx context.Context, state State) State {
	if state.Action == nil {
		return state
	}

	id, err := s.runAction(ctx, *state.Action)
	if err != nil {
		slog.Error("Persistence action failed",
			"kind", state.Action.Kind,
			"error", err)

		return state.withError("Persistence error: " + err.Error())
	}

	state.ActionResult = string(state.Action.Kind) + " recorded"
	slog.Info("Persistence action completed", "kind", state.Action.Kind, "id", id)

	return state
}

func (s *Service) runAction(ctx context.Context, action Action) (int64, error) {
	switch action.Kind {
	case CategoryBooking:
		return s.persister.RecordBooking(ctx, *action.Booking)
	case CategoryComplaint:
		return s.persister.RecordComplaint(ctx, *action.Complaint)
	case CategoryFeedback:
		return s.persister.RecordFeedback(ctx, *action.Feedback)
	default:
		return s.persister.RecordInquiry(ctx, *action.Inquiry)
	}
}
