package orchestrator

import (
	"context"

	"github.com/google/go-github/v59/github"
	"go.uber.org/zap"

	"github.com/simplesurance/okmerge/internal/githubclt"
	"github.com/simplesurance/okmerge/internal/logfields"
)

// DryGithubClient is a github-client that does not do any changes on github.
// All operations that could cause a change are simulated and always succeed.
// All all other operations are forwarded to a wrapped GithubClient.
type DryGithubClient struct {
	clt    GithubClient
	logger *zap.Logger
}

func NewDryGithubClient(clt GithubClient, logger *zap.Logger) *DryGithubClient {
	return &DryGithubClient{
		clt:    clt,
		logger: logger.Named("dry_github_client"),
	}
}

func (c *DryGithubClient) ListPullRequests(ctx context.Context, owner, repo, baseBranch string) githubclt.PRIterator {
	return c.clt.ListPullRequests(ctx, owner, repo, baseBranch)
}

func (c *DryGithubClient) PullRequest(ctx context.Context, owner, repo string, number int) (*github.PullRequest, error) {
	return c.clt.PullRequest(ctx, owner, repo, number)
}

func (c *DryGithubClient) MergePullRequest(_ context.Context, _, _ string, number int, headSHA string, method githubclt.MergeMethod) error {
	c.logger.Info(
		"simulated merging of pull request, nothing merged on github",
		logfields.PullRequest(number),
		logfields.Commit(headSHA),
		logfields.MergeMethod(string(method)),
	)
	return nil
}

func (c *DryGithubClient) MergeBranch(_ context.Context, _, _, baseBranch, headBranch string) error {
	c.logger.Info(
		"simulated updating of github branch, returning is uptodate",
		logfields.Branch(baseBranch),
		logfields.BaseBranch(headBranch),
	)
	return nil
}
