package eligibility

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simplesurance/okmerge/internal/pullrequest"
)

const allowLabel = "ok-to-merge"

func TestIsEligible(t *testing.T) {
	policy := NewPolicy(allowLabel, "wip, do-not-merge")

	testcases := []struct {
		name     string
		labels   []string
		eligible bool
	}{
		{name: "onlyAllowLabel", labels: []string{allowLabel}, eligible: true},
		{name: "allowAndDenyLabel", labels: []string{allowLabel, "wip"}, eligible: false},
		{name: "allowAndSecondDenyLabel", labels: []string{"do-not-merge", allowLabel}, eligible: false},
		{name: "noAllowLabel", labels: []string{"docs"}, eligible: false},
		{name: "noLabels", labels: nil, eligible: false},
		{name: "allowAndUnrelatedLabel", labels: []string{"docs", allowLabel}, eligible: true},
		{name: "duplicateAllowLabel", labels: []string{allowLabel, allowLabel}, eligible: true},
		{name: "allowLabelDifferentCase", labels: []string{"OK-TO-MERGE"}, eligible: false},
	}

	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.eligible, policy.IsEligible(tc.labels))
		})
	}
}

func TestEmptyDenyListNeverMatches(t *testing.T) {
	policy := NewPolicy(allowLabel, "")

	assert.True(t, policy.IsEligible([]string{allowLabel, "wip"}))
	assert.False(t, policy.IsEligible([]string{""}))
}

func mustNewSummary(t *testing.T, nr int, labels ...string) *pullrequest.Summary {
	t.Helper()

	s, err := pullrequest.NewSummary(nr, labels)
	require.NoError(t, err)

	return s
}

func TestFilterPreservesOrder(t *testing.T) {
	policy := NewPolicy(allowLabel, "wip")

	prs := []*pullrequest.Summary{
		mustNewSummary(t, 9, allowLabel),
		mustNewSummary(t, 2, "docs"),
		mustNewSummary(t, 5, allowLabel, "docs"),
		mustNewSummary(t, 1, allowLabel, "wip"),
		mustNewSummary(t, 7, allowLabel),
	}

	result := policy.Filter(prs)

	var numbers []int
	for _, pr := range result {
		numbers = append(numbers, pr.Number)
	}

	assert.Equal(t, []int{9, 5, 7}, numbers)
}

func TestFilterEmptyInput(t *testing.T) {
	policy := NewPolicy(allowLabel, "")
	assert.Empty(t, policy.Filter(nil))
}

func TestPolicyString(t *testing.T) {
	policy := NewPolicy(allowLabel, "wip")

	assert.Equal(t, "allow: ok-to-merge, deny: wip", policy.String())
}
