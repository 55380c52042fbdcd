package provider

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/stacklok/repo-activity-sync/internal/activity"
)

// unknownActor is GitHub's placeholder login for deleted accounts
const unknownActor = "ghost"

// pullRequestRef identifies a pull request seen while paging, used to fetch its reviews
type pullRequestRef struct {
	Number    int64
	UpdatedAt string
}

// parsePage checks that body is a JSON array and returns its elements
func parsePage(body []byte) ([]gjson.Result, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: response is not valid JSON", ErrMalformed)
	}
	page := gjson.ParseBytes(body)
	if !page.IsArray() {
		return nil, fmt.Errorf("%w: expected a JSON array, got %s", ErrMalformed, page.Type)
	}
	return page.Array(), nil
}

func normalizeCommit(item gjson.Result) (activity.RawEvent, error) {
	sha := item.Get("sha").String()
	if sha == "" {
		return activity.RawEvent{}, fmt.Errorf("%w: commit without sha", ErrMalformed)
	}

	actor := item.Get("author.login").String()
	if actor == "" {
		actor = item.Get("commit.author.name").String()
	}

	message := item.Get("commit.message").String()
	summary, _, _ := strings.Cut(message, "\n")

	return activity.RawEvent{
		Kind:          activity.KindCommit,
		ExternalID:    sha,
		ActorUsername: actorOrGhost(actor),
		SummaryText:   strings.TrimSpace(summary),
		Details: details(map[string]any{
			"sha":          sha,
			"url":          item.Get("html_url").String(),
			"committed_at": item.Get("commit.author.date").String(),
		}),
	}, nil
}

// normalizeIssue returns false when the entry is a pull request, which the
// issues endpoint also lists.
func normalizeIssue(item gjson.Result) (activity.RawEvent, bool, error) {
	if item.Get("pull_request").Exists() {
		return activity.RawEvent{}, false, nil
	}
	id, err := requiredID(item, activity.KindIssue)
	if err != nil {
		return activity.RawEvent{}, false, err
	}

	return activity.RawEvent{
		Kind:          activity.KindIssue,
		ExternalID:    id,
		ActorUsername: actorOrGhost(item.Get("user.login").String()),
		SummaryText:   item.Get("title").String(),
		Details: details(map[string]any{
			"number":     item.Get("number").Int(),
			"url":        item.Get("html_url").String(),
			"state":      item.Get("state").String(),
			"created_at": item.Get("created_at").String(),
		}),
	}, true, nil
}

func normalizePullRequest(item gjson.Result) (activity.RawEvent, pullRequestRef, error) {
	id, err := requiredID(item, activity.KindPullRequest)
	if err != nil {
		return activity.RawEvent{}, pullRequestRef{}, err
	}
	number := item.Get("number")
	if number.Type != gjson.Number {
		return activity.RawEvent{}, pullRequestRef{}, fmt.Errorf("%w: pull request %s without number", ErrMalformed, id)
	}

	ref := pullRequestRef{Number: number.Int(), UpdatedAt: item.Get("updated_at").String()}
	return activity.RawEvent{
		Kind:          activity.KindPullRequest,
		ExternalID:    id,
		ActorUsername: actorOrGhost(item.Get("user.login").String()),
		SummaryText:   item.Get("title").String(),
		Details: details(map[string]any{
			"number":     ref.Number,
			"url":        item.Get("html_url").String(),
			"state":      item.Get("state").String(),
			"created_at": item.Get("created_at").String(),
			"merged_at":  item.Get("merged_at").String(),
		}),
	}, ref, nil
}

func normalizeReview(item gjson.Result, pullNumber int64) (activity.RawEvent, error) {
	id, err := requiredID(item, activity.KindReview)
	if err != nil {
		return activity.RawEvent{}, err
	}

	state := strings.ReplaceAll(strings.ToLower(item.Get("state").String()), "_", " ")
	if state == "" {
		state = "unknown"
	}

	return activity.RawEvent{
		Kind:          activity.KindReview,
		ExternalID:    id,
		ActorUsername: actorOrGhost(item.Get("user.login").String()),
		SummaryText:   fmt.Sprintf("%s review on #%d", state, pullNumber),
		Details: details(map[string]any{
			"pull_number":  pullNumber,
			"url":          item.Get("html_url").String(),
			"state":        item.Get("state").String(),
			"submitted_at": item.Get("submitted_at").String(),
		}),
	}, nil
}

func requiredID(item gjson.Result, kind activity.Kind) (string, error) {
	id := item.Get("id")
	if !id.Exists() || id.Type == gjson.Null || id.String() == "" {
		return "", fmt.Errorf("%w: %s without id", ErrMalformed, kind)
	}
	return id.String(), nil
}

func actorOrGhost(login string) string {
	if login == "" {
		return unknownActor
	}
	return login
}

// details drops empty values and encodes the rest
func details(fields map[string]any) json.RawMessage {
	for k, v := range fields {
		if s, ok := v.(string); ok && s == "" {
			delete(fields, k)
		}
	}
	data, err := json.Marshal(fields)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return data
}
