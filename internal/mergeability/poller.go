// Package mergeability provides waiting for GitHub to finish computing if a
// pull request can be merged.
//
// GitHub computes the mergeable status of a pull request asynchronously. When
// a pull request was opened or its branch changed, the mergeable field is
// null until the computation finished.
package mergeability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/go-github/v59/github"
	"go.uber.org/zap"

	"github.com/simplesurance/okmerge/internal/logfields"
	"github.com/simplesurance/okmerge/internal/okmergeerr"
	"github.com/simplesurance/okmerge/internal/pullrequest"
	"github.com/simplesurance/okmerge/internal/retryer"
)

const loggerName = "mergeability_poller"

var errMergeablePending = errors.New("mergeable status is not computed yet")

// PullRequestGetter retrieves a single pull request.
type PullRequestGetter interface {
	PullRequest(ctx context.Context, owner, repo string, number int) (*github.PullRequest, error)
}

// TimeoutError is returned when the mergeable status of a pull request was
// still unknown after the last attempt.
type TimeoutError struct {
	PullRequest int
	Attempts    uint
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("mergeable status of pull request #%d still unknown after %d attempts", e.PullRequest, e.Attempts)
}

// Poller fetches pull requests until their mergeable status is known.
type Poller struct {
	clt    PullRequestGetter
	logger *zap.Logger

	interval   time.Duration
	maxRetries uint
}

type Option func(*Poller)

// WithInterval sets the pause between 2 fetches of the same pull request.
func WithInterval(d time.Duration) Option {
	return func(p *Poller) {
		p.interval = d
	}
}

// WithMaxRetries sets how often a pull request is fetched again after the
// first fetch returned an unknown mergeable status.
func WithMaxRetries(n uint) Option {
	return func(p *Poller) {
		p.maxRetries = n
	}
}

func NewPoller(clt PullRequestGetter, opts ...Option) *Poller {
	p := Poller{
		clt:        clt,
		logger:     zap.L().Named(loggerName),
		interval:   retryer.DefInterval,
		maxRetries: retryer.DefMaxRetries,
	}

	for _, opt := range opts {
		opt(&p)
	}

	return &p
}

// Poll fetches the pull request until its mergeable field is true or false.
// If it is still unknown after the max. number of retries a *TimeoutError is
// returned.
func (p *Poller) Poll(ctx context.Context, owner, repo string, number int) (*pullrequest.Detail, error) {
	return p.PollFrom(ctx, owner, repo, number, 0)
}

// PollFrom is like Poll but considers that elapsedAttempts fetches already
// happened.
func (p *Poller) PollFrom(ctx context.Context, owner, repo string, number int, elapsedAttempts uint) (*pullrequest.Detail, error) {
	var result *pullrequest.Detail
	var attempts uint

	logF := []zap.Field{
		logfields.RepositoryOwner(owner),
		logfields.Repository(repo),
		logfields.PullRequest(number),
	}
	logger := p.logger.With(logF...)

	r := retryer.New(
		retryer.WithInterval(p.interval),
		retryer.WithMaxRetries(p.maxRetries),
		retryer.WithLogger(p.logger),
	)

	err := r.RunFrom(ctx, elapsedAttempts, func(ctx context.Context) error {
		attempts++

		ghPR, err := p.clt.PullRequest(ctx, owner, repo, number)
		if err != nil {
			return fmt.Errorf("fetching pull request #%d failed: %w", number, err)
		}

		detail, err := pullrequest.NewDetailFromGithub(ghPR)
		if err != nil {
			return fmt.Errorf("pull request #%d: %w", number, err)
		}

		if !detail.MergeableResolved() {
			logger.Debug(
				"mergeable status is pending",
				logfields.Event("mergeable_status_pending"),
				zap.Uint("try_count", elapsedAttempts+attempts),
			)

			return okmergeerr.NewRetryableAnytimeError(errMergeablePending)
		}

		result = detail
		return nil
	}, logF)
	if err != nil {
		var exhaustedErr *retryer.RetriesExhaustedError
		if errors.As(err, &exhaustedErr) && (exhaustedErr.Err == nil || errors.Is(exhaustedErr.Err, errMergeablePending)) {
			return nil, &TimeoutError{PullRequest: number, Attempts: exhaustedErr.Attempts}
		}

		return nil, err
	}

	logger.Debug(
		"mergeable status resolved",
		logfields.Event("mergeable_status_resolved"),
		logfields.MergeableState(result.MergeableState),
		zap.Boolp("github.mergeable", result.Mergeable),
	)

	return result, nil
}
