package event

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/simplesurance/okmerge/internal/logfields"
	"github.com/simplesurance/okmerge/internal/orchestrator"
)

const loggerName = "event_dispatcher"

// ReleaseHandler processes release events.
type ReleaseHandler interface {
	Run(ctx context.Context, owner, repo string) (*orchestrator.Report, error)
}

// Dispatcher routes events to their handlers.
type Dispatcher struct {
	release ReleaseHandler
	filter  *Filter

	defaultOwner string
	defaultRepo  string

	logger *zap.Logger
}

type DispatcherOption func(*Dispatcher)

// WithFilter sets a filter, events for that it evaluates to false are not
// handled.
func WithFilter(f *Filter) DispatcherOption {
	return func(d *Dispatcher) {
		d.filter = f
	}
}

// WithDefaultRepository sets the repository that is used when an event
// does not contain repository information.
func WithDefaultRepository(owner, repo string) DispatcherOption {
	return func(d *Dispatcher) {
		d.defaultOwner = owner
		d.defaultRepo = repo
	}
}

func WithLogger(logger *zap.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

func NewDispatcher(release ReleaseHandler, opts ...DispatcherOption) *Dispatcher {
	d := Dispatcher{release: release}

	for _, opt := range opts {
		opt(&d)
	}

	if d.logger == nil {
		d.logger = zap.L().Named(loggerName)
	}

	return &d
}

// Dispatch runs the handler for the event.
// Events that are not handled result in orchestrator.StatusNeutral.
func (d *Dispatcher) Dispatch(ctx context.Context, ev *Event) (orchestrator.Status, error) {
	logger := d.logger.With(ev.LogFields...)

	if d.filter != nil {
		match, err := d.filter.Match(ctx, ev)
		if err != nil {
			return orchestrator.StatusUndefined, fmt.Errorf("evaluating event filter failed: %w", err)
		}

		if !match {
			logger.Info(
				"nothing to handle, event does not match filter query",
				logfields.Event("event_filter_mismatch"),
				zap.Stringer("filter_query", d.filter),
			)

			return orchestrator.StatusNeutral, nil
		}
	}

	switch ev.Name {
	case KindRelease:
		if ev.Action != "" && ev.Action != ActionPublished {
			logger.Info(
				"nothing to handle, release event action is ignored",
				logfields.Event("event_ignored"),
			)

			return orchestrator.StatusNeutral, nil
		}

		return d.dispatchRelease(ctx, logger, ev)

	case KindPullRequest, KindCheckRun:
		logger.Info(
			"event recorded",
			logfields.Event("event_recorded"),
		)

		return orchestrator.StatusSuccess, nil

	default:
		logger.Info(
			"nothing to handle, event kind is unsupported",
			logfields.Event("event_ignored"),
		)

		return orchestrator.StatusNeutral, nil
	}
}

func (d *Dispatcher) dispatchRelease(ctx context.Context, logger *zap.Logger, ev *Event) (orchestrator.Status, error) {
	owner, repo := ev.RepositoryOwner, ev.Repository
	if owner == "" || repo == "" {
		owner, repo = d.defaultOwner, d.defaultRepo
	}

	if owner == "" || repo == "" {
		return orchestrator.StatusUndefined, errors.New("event contains no repository information and no default repository is configured")
	}

	logger.Debug(
		"dispatching release event",
		logfields.Event("release_event_dispatched"),
		logfields.RepositoryOwner(owner),
		logfields.Repository(repo),
	)

	report, err := d.release.Run(ctx, owner, repo)
	if err != nil {
		return orchestrator.StatusUndefined, err
	}

	return report.Status, nil
}
