package event

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, name, payload string) *Event {
	t.Helper()

	ev, err := Parse(name, []byte(payload))
	require.NoError(t, err)

	return ev
}

func TestFilterMatch(t *testing.T) {
	ev := mustParse(t, KindRelease, releasePublishedPayload)

	testcases := []struct {
		query    string
		expected bool
	}{
		{query: `.action == "published"`, expected: true},
		{query: `.release.tag_name | startswith("v1.")`, expected: true},
		{query: `.repository.owner.login == "someoneelse"`, expected: false},
	}

	for _, tc := range testcases {
		t.Run(tc.query, func(t *testing.T) {
			f, err := NewFilter(tc.query)
			require.NoError(t, err)

			match, err := f.Match(context.Background(), ev)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, match)
		})
	}
}

func TestFilterMatchFailures(t *testing.T) {
	ev := mustParse(t, KindRelease, releasePublishedPayload)

	testcases := []struct {
		name  string
		query string
	}{
		{name: "non-bool result", query: `.action`},
		{name: "multiple results", query: `true, false`},
		{name: "no result", query: `empty`},
		{name: "query error", query: `error("failed")`},
	}

	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			f, err := NewFilter(tc.query)
			require.NoError(t, err)

			_, err = f.Match(context.Background(), ev)
			require.Error(t, err)
		})
	}
}

func TestFilterOnEventWithoutPayloadFails(t *testing.T) {
	ev := mustParse(t, "schedule", "")

	f, err := NewFilter("true")
	require.NoError(t, err)

	_, err = f.Match(context.Background(), ev)
	require.Error(t, err)
}

func TestNewFilterInvalidQuery(t *testing.T) {
	_, err := NewFilter(`.action ==`)
	require.Error(t, err)
}
