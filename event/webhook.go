/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package event

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnsupportedKind reports a webhook delivery for an event kind the
// bot does not handle.
var ErrUnsupportedKind = errors.New("unsupported event kind")

// payload mirrors the subset of the GitHub webhook payload the bot
// reads. Issue events populate Issue; pull request events populate
// PullRequest and, for labeled actions, Label.
type payload struct {
	Action string `json:"action"`

	Repository struct {
		Name  string `json:"name"`
		Owner struct {
			Login string `json:"login"`
		} `json:"owner"`
	} `json:"repository"`

	Issue *struct {
		Number int    `json:"number"`
		Title  string `json:"title"`
		State  string `json:"state"`
		User   struct {
			Login string `json:"login"`
		} `json:"user"`
	} `json:"issue"`

	Label *struct {
		Name string `json:"name"`
	} `json:"label"`

	PullRequest *struct {
		Number  int    `json:"number"`
		State   string `json:"state"`
		DiffURL string `json:"diff_url"`
		User    struct {
			Login string `json:"login"`
		} `json:"user"`
		Labels []struct {
			Name string `json:"name"`
		} `json:"labels"`
		Head struct {
			Ref  string `json:"ref"`
			Repo struct {
				Name  string `json:"name"`
				Owner struct {
					Login string `json:"login"`
				} `json:"owner"`
			} `json:"repo"`
		} `json:"head"`
	} `json:"pull_request"`
}

// ParsePayload decodes a webhook payload for the given event kind (the
// X-GitHub-Event header value) into a TriggerEvent.
func ParsePayload(kind string, body []byte) (*TriggerEvent, error) {
	var p payload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("decoding %s payload: %w", kind, err)
	}

	ev := &TriggerEvent{
		Kind:   Kind(kind),
		Action: Action(p.Action),
		Repo: Repo{
			Owner: p.Repository.Owner.Login,
			Name:  p.Repository.Name,
		},
	}

	switch ev.Kind {
	case KindIssue:
		if p.Issue == nil {
			return nil, fmt.Errorf("issues payload missing issue")
		}
		ev.Number = p.Issue.Number
		ev.Title = p.Issue.Title
		ev.State = p.Issue.State
		ev.Actor = p.Issue.User.Login

	case KindPullRequest:
		if p.PullRequest == nil {
			return nil, fmt.Errorf("pull_request payload missing pull_request")
		}
		pr := p.PullRequest
		ev.Number = pr.Number
		ev.State = pr.State
		ev.Actor = pr.User.Login
		ev.DiffURL = pr.DiffURL
		ev.HeadRef = pr.Head.Ref
		ev.HeadRepo = Repo{
			Owner: pr.Head.Repo.Owner.Login,
			Name:  pr.Head.Repo.Name,
		}
		for _, l := range pr.Labels {
			ev.Labels = append(ev.Labels, l.Name)
		}
		if p.Label != nil {
			ev.Label = p.Label.Name
		}

	default:
		return nil, fmt.Errorf("%w %q", ErrUnsupportedKind, kind)
	}

	return ev, nil
}
