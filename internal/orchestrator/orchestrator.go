// Package orchestrator merges and updates pull requests that are labeled as
// ready for merging.
//
// A run lists the open pull requests of a base branch, keeps the ones that
// are eligible according to a label policy and waits until GitHub computed
// their mergeable status. Afterwards at most one pull request is merged and
// at most one pull request branch is updated with the base branch:
//
//   - >=2 pull requests can be merged cleanly: the first is merged, the second
//     is updated with the base branch that now contains the merged changes,
//   - 1 pull request can be merged cleanly: it is merged,
//   - no pull request can be merged cleanly but >= 1 is behind its base
//     branch: the first one is updated.
//
// Pull requests are considered in the order of their last update time, most
// recent first.
package orchestrator

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/go-github/v59/github"
	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/simplesurance/okmerge/internal/eligibility"
	"github.com/simplesurance/okmerge/internal/githubclt"
	"github.com/simplesurance/okmerge/internal/logfields"
	"github.com/simplesurance/okmerge/internal/mergeability"
	"github.com/simplesurance/okmerge/internal/pullrequest"
)

const loggerName = "orchestrator"

// MaxCandidates is the max. number of pull requests that are evaluated in
// one run.
const MaxCandidates = 100

//go:generate mockgen -destination=mocks/mock_githubclient.go -package=mocks github.com/simplesurance/okmerge/internal/orchestrator GithubClient

// GithubClient is the interface of the GitHub operations used by the
// Orchestrator.
type GithubClient interface {
	ListPullRequests(ctx context.Context, owner, repo, baseBranch string) githubclt.PRIterator
	PullRequest(ctx context.Context, owner, repo string, number int) (*github.PullRequest, error)
	MergePullRequest(ctx context.Context, owner, repo string, number int, headSHA string, method githubclt.MergeMethod) error
	MergeBranch(ctx context.Context, owner, repo, baseBranch, headBranch string) error
}

// Orchestrator runs the merge and update operations for pull requests of
// a base branch.
type Orchestrator struct {
	clt        GithubClient
	policy     *eligibility.Policy
	baseBranch string

	pollerOpts []mergeability.Option
	metrics    *Metrics
	logger     *zap.Logger
}

type Option func(*Orchestrator)

// WithPollerOptions sets options that are passed to the mergeability poller.
func WithPollerOptions(opts ...mergeability.Option) Option {
	return func(o *Orchestrator) {
		o.pollerOpts = append(o.pollerOpts, opts...)
	}
}

// WithMetrics enables recording prometheus metrics.
func WithMetrics(m *Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

func New(clt GithubClient, policy *eligibility.Policy, baseBranch string, opts ...Option) *Orchestrator {
	o := Orchestrator{
		clt:        clt,
		policy:     policy,
		baseBranch: baseBranch,
	}

	for _, opt := range opts {
		opt(&o)
	}

	if o.logger == nil {
		o.logger = zap.L().Named(loggerName)
	}

	return &o
}

// Run executes the merge and update operations for the repository.
// If no pull request is eligible a Report with StatusNeutral is returned.
// If the mergeable status of one or more pull requests could not be
// retrieved, an error is returned and no pull request is merged or updated.
func (o *Orchestrator) Run(ctx context.Context, owner, repo string) (*Report, error) {
	logger := o.logger.With(
		logfields.RepositoryOwner(owner),
		logfields.Repository(repo),
		logfields.BaseBranch(o.baseBranch),
	)

	report, err := o.run(ctx, logger, owner, repo)
	if err != nil {
		o.metrics.RunsInc(statusFailureLabel)
		return nil, err
	}

	o.metrics.RunsInc(report.Status.String())

	logger.Info(
		"run finished",
		append(report.LogFields(), logfields.Event("run_finished"))...,
	)

	return report, nil
}

func (o *Orchestrator) run(ctx context.Context, logger *zap.Logger, owner, repo string) (*Report, error) {
	var report Report

	prs, err := o.listPullRequests(ctx, owner, repo)
	if err != nil {
		return nil, fmt.Errorf("listing pull requests failed: %w", err)
	}

	report.Listed = len(prs)
	o.metrics.ListedAdd(len(prs))

	candidates := o.policy.Filter(prs)
	report.Eligible = len(candidates)
	o.metrics.EligibleAdd(len(candidates))

	for _, pr := range candidates {
		logger.Debug(
			"pull request is eligible",
			append(pr.LogFields, logfields.Event("pull_request_eligible"))...,
		)
	}

	logger.Debug(
		"evaluated eligible pull requests",
		append(o.policy.LogFields(),
			logfields.Event("eligible_pull_requests_evaluated"),
			zap.Int("pull_requests.listed", len(prs)),
			zap.Int("pull_requests.eligible", len(candidates)),
		)...,
	)

	if len(candidates) == 0 {
		logger.Info(
			"no pull request is eligible for merging",
			logfields.Event("no_eligible_pull_requests"),
		)

		report.Status = StatusNeutral
		return &report, nil
	}

	details, err := o.pollAll(ctx, owner, repo, candidates)
	if err != nil {
		return nil, err
	}

	var mergeable, updatable []*pullrequest.Detail
	for _, d := range details {
		if d.IsMergeableClean() {
			mergeable = append(mergeable, d)
		}

		if d.IsUpdatable() {
			updatable = append(updatable, d)
		}
	}

	logger.Debug(
		"classified pull requests",
		logfields.Event("pull_requests_classified"),
		zap.Int("pull_requests.mergeable", len(mergeable)),
		zap.Int("pull_requests.updatable", len(updatable)),
	)

	report.Status = StatusSuccess

	switch {
	case len(mergeable) >= 2:
		if err := o.merge(ctx, logger, owner, repo, mergeable[0]); err != nil {
			return nil, err
		}
		report.Merged = mergeable[0].Number

		if err := o.update(ctx, logger, owner, repo, mergeable[1]); err != nil {
			return nil, err
		}
		report.Updated = mergeable[1].Number

	case len(mergeable) == 1:
		if err := o.merge(ctx, logger, owner, repo, mergeable[0]); err != nil {
			return nil, err
		}
		report.Merged = mergeable[0].Number

	case len(updatable) >= 1:
		if err := o.update(ctx, logger, owner, repo, updatable[0]); err != nil {
			return nil, err
		}
		report.Updated = updatable[0].Number

	default:
		logger.Info(
			"no eligible pull request can be merged or updated",
			logfields.Event("nothing_to_merge_or_update"),
		)
	}

	return &report, nil
}

func (o *Orchestrator) listPullRequests(ctx context.Context, owner, repo string) ([]*pullrequest.Summary, error) {
	var result []*pullrequest.Summary

	it := o.clt.ListPullRequests(ctx, owner, repo, o.baseBranch)
	for len(result) < MaxCandidates {
		ghPR, err := it.Next()
		if err != nil {
			return nil, err
		}

		if ghPR == nil {
			break
		}

		pr, err := pullrequest.NewSummaryFromGithub(ghPR)
		if err != nil {
			return nil, fmt.Errorf("incomplete pull request information: %w", err)
		}

		result = append(result, pr)
	}

	return result, nil
}

// pollAll waits concurrently for the mergeable status of all prs.
// The returned details have the same order as prs.
// If polling fails for any pull request, an error containing the errors of
// all failed polls is returned.
func (o *Orchestrator) pollAll(ctx context.Context, owner, repo string, prs []*pullrequest.Summary) ([]*pullrequest.Detail, error) {
	var wg sync.WaitGroup

	poller := mergeability.NewPoller(o.clt, o.pollerOpts...)

	details := make([]*pullrequest.Detail, len(prs))
	errs := make([]error, len(prs))

	for i, pr := range prs {
		wg.Add(1)

		go func(i int, pr *pullrequest.Summary) {
			defer wg.Done()

			details[i], errs[i] = poller.Poll(ctx, owner, repo, pr.Number)
		}(i, pr)
	}

	wg.Wait()

	var result *multierror.Error
	for i, err := range errs {
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("pull request #%d: %w", prs[i].Number, err))
		}
	}

	if err := result.ErrorOrNil(); err != nil {
		return nil, fmt.Errorf("retrieving mergeable status failed: %w", err)
	}

	return details, nil
}

func (o *Orchestrator) merge(ctx context.Context, logger *zap.Logger, owner, repo string, pr *pullrequest.Detail) error {
	logger = logger.With(pr.LogFields...)

	err := o.clt.MergePullRequest(ctx, owner, repo, pr.Number, pr.HeadSHA, githubclt.MergeMethodSquash)
	if err != nil {
		return fmt.Errorf("merging pull request #%d failed: %w", pr.Number, err)
	}

	o.metrics.MergesInc()

	logger.Info(
		"pull request merged",
		logfields.Event("pull_request_merged"),
		logfields.MergeMethod(string(githubclt.MergeMethodSquash)),
	)

	return nil
}

func (o *Orchestrator) update(ctx context.Context, logger *zap.Logger, owner, repo string, pr *pullrequest.Detail) error {
	logger = logger.With(pr.LogFields...)

	err := o.clt.MergeBranch(ctx, owner, repo, pr.Branch, o.baseBranch)
	if err != nil {
		return fmt.Errorf("updating branch of pull request #%d with base branch failed: %w", pr.Number, err)
	}

	o.metrics.BranchUpdatesInc()

	logger.Info(
		"pull request branch updated with base branch",
		logfields.Event("pull_request_branch_updated"),
	)

	return nil
}
