// Package event loads the CI event that triggered the run and dispatches it
// to its handler.
package event

import (
	"errors"
	"fmt"
	"os"

	"github.com/google/go-github/v59/github"
	"go.uber.org/zap"

	"github.com/simplesurance/okmerge/internal/logfields"
)

const (
	KindRelease     = "release"
	KindPullRequest = "pull_request"
	KindCheckRun    = "check_run"
)

const ActionPublished = "published"

// Event is a CI event and the information about it that is relevant for
// dispatching.
type Event struct {
	Name            string
	Action          string
	RepositoryOwner string
	Repository      string
	// JSON is the raw event payload.
	JSON []byte
	// Payload is the decoded event, it is nil for unsupported event kinds.
	Payload   any
	LogFields []zap.Field
}

// Load reads the event payload from the file at path and parses it.
// If path is empty, the event has no payload, this is only valid for
// unsupported event kinds.
func Load(name, path string) (*Event, error) {
	var payload []byte

	if path != "" {
		var err error

		payload, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading event payload failed: %w", err)
		}
	}

	return Parse(name, payload)
}

func isSupported(name string) bool {
	switch name {
	case KindRelease, KindPullRequest, KindCheckRun:
		return true
	default:
		return false
	}
}

// Parse creates an Event from its name and JSON payload.
// Payloads of release, pull_request and check_run events are decoded, other
// event kinds are kept undecoded.
func Parse(name string, payload []byte) (*Event, error) {
	if name == "" {
		return nil, errors.New("event name is empty")
	}

	ev := Event{
		Name: name,
		JSON: payload,
	}

	if !isSupported(name) {
		ev.LogFields = []zap.Field{logfields.EventName(name)}
		return &ev, nil
	}

	if len(payload) == 0 {
		return nil, fmt.Errorf("payload of %s event is empty", name)
	}

	decoded, err := github.ParseWebHook(name, payload)
	if err != nil {
		return nil, fmt.Errorf("parsing %s event failed: %w", name, err)
	}

	ev.Payload = decoded

	var repo *github.Repository

	switch v := decoded.(type) {
	case *github.ReleaseEvent:
		ev.Action = v.GetAction()
		repo = v.GetRepo()

	case *github.PullRequestEvent:
		ev.Action = v.GetAction()
		repo = v.GetRepo()

	case *github.CheckRunEvent:
		ev.Action = v.GetAction()
		repo = v.GetRepo()
	}

	if repo != nil {
		ev.RepositoryOwner = repo.GetOwner().GetLogin()
		ev.Repository = repo.GetName()
	}

	ev.LogFields = []zap.Field{
		logfields.EventName(ev.Name),
		logfields.EventAction(ev.Action),
	}

	if ev.RepositoryOwner != "" {
		ev.LogFields = append(ev.LogFields, logfields.RepositoryOwner(ev.RepositoryOwner))
	}

	if ev.Repository != "" {
		ev.LogFields = append(ev.LogFields, logfields.Repository(ev.Repository))
	}

	return &ev, nil
}
