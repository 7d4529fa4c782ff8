// Package githubclt provides a github API client.
package githubclt

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/go-github/v59/github"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/simplesurance/okmerge/internal/logfields"
	"github.com/simplesurance/okmerge/internal/okmergeerr"
)

const DefaultHTTPClientTimeout = time.Minute

const loggerName = "github_client"

// MergeMethod is the strategy that is used to merge a pull request.
type MergeMethod string

const (
	MergeMethodMerge  MergeMethod = "merge"
	MergeMethodSquash MergeMethod = "squash"
	MergeMethodRebase MergeMethod = "rebase"
)

var (
	// ErrMergeConflict is returned when merging 2 branches is not possible
	// because of a merge conflict.
	ErrMergeConflict = errors.New("merge conflict")
	// ErrNotMerged is returned when GitHub responded successfully to a
	// merge request but reported that the pull request was not merged.
	ErrNotMerged = errors.New("pull request was not merged")
)

// New returns a new github api client.
// If apiToken is empty, unauthenticated requests are sent.
func New(apiToken string, opts ...Option) (*Client, error) {
	clt := Client{
		restClt: github.NewClient(newHTTPClient(apiToken)),
		logger:  zap.L().Named(loggerName),
	}

	for _, opt := range opts {
		if err := opt(&clt); err != nil {
			return nil, err
		}
	}

	return &clt, nil
}

type Option func(*Client) error

// WithBaseURL sets the URL of the GitHub API, it is needed for GitHub
// Enterprise installations and for testing.
func WithBaseURL(url string) Option {
	return func(c *Client) error {
		restClt, err := c.restClt.WithEnterpriseURLs(url, url)
		if err != nil {
			return fmt.Errorf("setting github api url failed: %w", err)
		}

		c.restClt = restClt
		return nil
	}
}

func newHTTPClient(apiToken string) *http.Client {
	if apiToken == "" {
		return &http.Client{
			Timeout: DefaultHTTPClientTimeout,
		}
	}

	ts := oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: apiToken},
	)

	tc := oauth2.NewClient(context.Background(), ts)
	tc.Timeout = DefaultHTTPClientTimeout

	return tc
}

// Client is an github API client.
// All methods return a okmergeerr.RetryableError when an operation can be retried.
// This can be e.g. the case when the API ratelimit is exceeded.
type Client struct {
	restClt *github.Client
	logger  *zap.Logger
}

// PullRequest returns a single pull request, including its mergeable status.
func (clt *Client) PullRequest(ctx context.Context, owner, repo string, number int) (*github.PullRequest, error) {
	pr, _, err := clt.restClt.PullRequests.Get(ctx, owner, repo, number)
	if err != nil {
		return nil, clt.wrapRetryableErrors(err)
	}

	return pr, nil
}

// MergePullRequest merges a pull request into its base branch.
// If headSHA is not empty, GitHub only merges the pull request when its head
// commit still matches it.
func (clt *Client) MergePullRequest(ctx context.Context, owner, repo string, number int, headSHA string, method MergeMethod) error {
	logger := clt.logger.With(
		logfields.RepositoryOwner(owner),
		logfields.Repository(repo),
		logfields.PullRequest(number),
		logfields.Commit(headSHA),
		logfields.MergeMethod(string(method)),
	)

	res, _, err := clt.restClt.PullRequests.Merge(ctx, owner, repo, number, "", &github.PullRequestOptions{
		SHA:         headSHA,
		MergeMethod: string(method),
	})
	if err != nil {
		return clt.wrapRetryableErrors(err)
	}

	if !res.GetMerged() {
		return fmt.Errorf("%w: %s", ErrNotMerged, res.GetMessage())
	}

	logger.Debug(
		"pull request merged",
		logfields.Event("github_pull_request_merged"),
		zap.String("github.merge_commit", res.GetSHA()),
	)

	return nil
}

// MergeBranch merges headBranch into baseBranch.
// It is used to update a pull request branch with the changes of its base
// branch, in this case baseBranch is the pull request branch and headBranch
// the base branch of the pull request.
// If baseBranch already contains all changes of headBranch, the operation
// succeeds without creating a commit.
// If the branches can not be merged because of a conflict an error wrapping
// ErrMergeConflict is returned.
func (clt *Client) MergeBranch(ctx context.Context, owner, repo, baseBranch, headBranch string) error {
	logger := clt.logger.With(
		logfields.RepositoryOwner(owner),
		logfields.Repository(repo),
		logfields.Branch(baseBranch),
		logfields.BaseBranch(headBranch),
	)

	commit, resp, err := clt.restClt.Repositories.Merge(ctx, owner, repo, &github.RepositoryMergeRequest{
		Base: github.String(baseBranch),
		Head: github.String(headBranch),
	})
	if err != nil {
		var respErr *github.ErrorResponse
		if errors.As(err, &respErr) && respErr.Response != nil && respErr.Response.StatusCode == http.StatusConflict {
			return fmt.Errorf("merging %s into %s failed: %w: %w", headBranch, baseBranch, ErrMergeConflict, respErr)
		}

		return clt.wrapRetryableErrors(err)
	}

	if resp != nil && resp.StatusCode == http.StatusNoContent {
		logger.Debug(
			"branch is uptodate, nothing merged",
			logfields.Event("github_branch_uptodate_with_base"),
		)

		return nil
	}

	logger.Debug(
		"branch was updated with base branch",
		logfields.Event("github_branch_updated_with_base"),
		logfields.Commit(commit.GetSHA()),
	)

	return nil
}

type PRIterator interface {
	Next() (*github.PullRequest, error)
}

type PRIter struct {
	clt *Client

	ctx   context.Context
	owner string
	repo  string

	filterBase    string
	sortOrder     string
	sortDirection string

	unseen []*github.PullRequest

	nextPage int
	finished bool
}

// Next returns the next pullRequest.
// When the last result was returned a nil PullRequest is returned.
func (it *PRIter) Next() (*github.PullRequest, error) {
	if len(it.unseen) > 0 {
		result := it.unseen[0]
		it.unseen = it.unseen[1:]

		return result, nil
	}

	if it.finished {
		return nil, nil
	}

	prs, resp, err := it.clt.restClt.PullRequests.List(it.ctx, it.owner, it.repo, &github.PullRequestListOptions{
		State:     "open",
		Base:      it.filterBase,
		Sort:      it.sortOrder,
		Direction: it.sortDirection,
		ListOptions: github.ListOptions{
			Page:    it.nextPage,
			PerPage: 100,
		},
	})
	if err != nil {
		return nil, it.clt.wrapRetryableErrors(err)
	}

	if resp.NextPage == 0 || len(prs) == 0 {
		it.finished = true
	} else {
		it.nextPage = resp.NextPage
	}

	if len(prs) == 0 {
		return nil, nil
	}

	it.unseen = prs

	return it.Next()
}

// ListPullRequests returns an iterator for receiving open pull requests with
// the given base branch, sorted by the time they were last updated, most
// recent first.
func (clt *Client) ListPullRequests(ctx context.Context, owner, repo, baseBranch string) PRIterator { // interface is returned to make the method mockable
	return &PRIter{
		clt:           clt,
		ctx:           ctx,
		owner:         owner,
		repo:          repo,
		filterBase:    baseBranch,
		sortOrder:     "updated",
		sortDirection: "desc",
		nextPage:      1,
	}
}

func (clt *Client) wrapRetryableErrors(err error) error {
	switch v := err.(type) {
	case *github.RateLimitError:
		clt.logger.Info(
			"rate limit exceeded",
			logfields.Event("github_api_rate_limit_exceeded"),
			zap.Int("github_api_rate_limit", v.Rate.Limit),
			zap.Time("github_api_rate_limit_reset_time", v.Rate.Reset.Time),
		)

		return okmergeerr.NewRetryableError(err, v.Rate.Reset.Time)

	case *github.AbuseRateLimitError:
		if after := v.GetRetryAfter(); after > 0 {
			return okmergeerr.NewRetryableError(err, time.Now().Add(after))
		}

		return okmergeerr.NewRetryableAnytimeError(err)

	case *github.ErrorResponse:
		if v.Response != nil && v.Response.StatusCode >= 500 && v.Response.StatusCode < 600 {
			return okmergeerr.NewRetryableAnytimeError(err)
		}

		if v.Response != nil && v.Response.StatusCode == http.StatusMethodNotAllowed &&
			strings.Contains(strings.ToLower(v.Message), "not mergeable") {
			return fmt.Errorf("%w: %w", ErrNotMerged, err)
		}
	}

	return err
}
