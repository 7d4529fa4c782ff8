// Package pullrequest contains the pull request representations the merge
// decisions are based on.
package pullrequest

import (
	"errors"
	"fmt"

	"github.com/google/go-github/v59/github"
	"go.uber.org/zap"

	"github.com/simplesurance/okmerge/internal/logfields"
)

const (
	MergeableStateClean  = "clean"
	MergeableStateBehind = "behind"
)

// Summary is the minimal information about a pull request that is returned
// when listing pull requests.
type Summary struct {
	Number    int
	Labels    []string
	LogFields []zap.Field
}

func NewSummary(nr int, labels []string) (*Summary, error) {
	if nr <= 0 {
		return nil, fmt.Errorf("number is %d, must be >0", nr)
	}

	return &Summary{
		Number: nr,
		Labels: labels,
		LogFields: []zap.Field{
			logfields.PullRequest(nr),
			logfields.Labels(labels),
		},
	}, nil
}

// NewSummaryFromGithub converts a pull request returned by the GitHub API
// to a Summary.
func NewSummaryFromGithub(pr *github.PullRequest) (*Summary, error) {
	labels := make([]string, 0, len(pr.Labels))
	for _, l := range pr.Labels {
		labels = append(labels, l.GetName())
	}

	return NewSummary(pr.GetNumber(), labels)
}

// Detail is the full state of a pull request that is needed to decide if it
// can be merged or updated.
type Detail struct {
	Number  int
	Branch  string
	HeadSHA string
	// Mergeable is nil while GitHub is still computing if the pull
	// request can be merged.
	Mergeable      *bool
	MergeableState string
	LogFields      []zap.Field
}

// NewDetailFromGithub converts a pull request returned by the GitHub API
// to a Detail.
func NewDetailFromGithub(pr *github.PullRequest) (*Detail, error) {
	if pr.GetNumber() <= 0 {
		return nil, fmt.Errorf("number is %d, must be >0", pr.GetNumber())
	}

	head := pr.GetHead()
	if head == nil {
		return nil, errors.New("got pull request object with empty head")
	}

	if head.GetRef() == "" {
		return nil, errors.New("got pull request object with empty head ref")
	}

	return &Detail{
		Number:         pr.GetNumber(),
		Branch:         head.GetRef(),
		HeadSHA:        head.GetSHA(),
		Mergeable:      pr.Mergeable,
		MergeableState: pr.GetMergeableState(),
		LogFields: []zap.Field{
			logfields.PullRequest(pr.GetNumber()),
			logfields.Branch(head.GetRef()),
			logfields.Commit(head.GetSHA()),
			logfields.MergeableState(pr.GetMergeableState()),
		},
	}, nil
}

// MergeableResolved returns true if GitHub finished computing the mergeable
// status.
func (d *Detail) MergeableResolved() bool {
	return d.Mergeable != nil
}

// IsMergeableClean returns true if the pull request can be merged without
// conflicts and nothing else is blocking the merge.
func (d *Detail) IsMergeableClean() bool {
	return d.Mergeable != nil && *d.Mergeable && d.MergeableState == MergeableStateClean
}

// IsUpdatable returns true if the pull request has no conflicts but is
// based on an outdated commit of its base branch.
func (d *Detail) IsUpdatable() bool {
	return d.Mergeable != nil && *d.Mergeable && d.MergeableState == MergeableStateBehind
}
