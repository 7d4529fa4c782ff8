// Package eligibility decides by their labels which pull requests are
// candidates for being merged automatically.
package eligibility

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/simplesurance/okmerge/internal/pullrequest"
	"github.com/simplesurance/okmerge/internal/set"
)

// Policy defines which labels a pull request must have and which it must not
// have to be eligible for being merged automatically.
// A Policy is immutable.
type Policy struct {
	allowLabels set.Set[string]
	denyLabels  set.Set[string]
}

// NewPolicy creates a policy with a single allow-label and the deny-labels
// from the comma-separated string denyLabelsCSV.
// An empty denyLabelsCSV results in a deny-list containing only the empty
// string, which never matches a real label.
func NewPolicy(allowLabel, denyLabelsCSV string) *Policy {
	spl := strings.Split(denyLabelsCSV, ",")
	for i, l := range spl {
		spl[i] = strings.TrimSpace(l)
	}

	return &Policy{
		allowLabels: set.From([]string{allowLabel}),
		denyLabels:  set.From(spl),
	}
}

// IsEligible returns true if labels contains exactly one of the allow-labels
// and none of the deny-labels.
func (p *Policy) IsEligible(labels []string) bool {
	prLabels := set.From(labels)

	return len(prLabels.Intersection(p.allowLabels)) == 1 &&
		len(prLabels.Intersection(p.denyLabels)) == 0
}

// Filter returns the eligible pull requests. The order of prs is preserved.
func (p *Policy) Filter(prs []*pullrequest.Summary) []*pullrequest.Summary {
	result := make([]*pullrequest.Summary, 0, len(prs))

	for _, pr := range prs {
		if p.IsEligible(pr.Labels) {
			result = append(result, pr)
		}
	}

	return result
}

func (p *Policy) String() string {
	return fmt.Sprintf(
		"allow: %s, deny: %s",
		strings.Join(p.allowLabels.Slice(), ","),
		strings.Join(p.denyLabels.Slice(), ","),
	)
}

func (p *Policy) LogFields() []zap.Field {
	return []zap.Field{
		zap.Strings("policy.allow_labels", p.allowLabels.Slice()),
		zap.Strings("policy.deny_labels", p.denyLabels.Slice()),
	}
}
