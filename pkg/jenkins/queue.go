package jenkins

import (
	"context"
	"net/url"
	"regexp"
	"strings"

	"github.com/buildherd/buildherd/pkg/types"
)

var queueItemPattern = regexp.MustCompile(`/queue/item/(\d+)/?$`)

// queueItemID extracts N from a ".../queue/item/N/" URL
func queueItemID(rawURL string) string {
	m := queueItemPattern.FindStringSubmatch(rawURL)
	if m == nil {
		return ""
	}
	return m[1]
}

// resolve rewrites a queue item location onto the configured base URL.
// Jenkins builds Location from its own root URL setting, which may differ
// from the URL the bot reaches it by.
func (c *Client) resolve(location string) string {
	return c.baseURL + "queue/item/" + queueItemID(location) + "/"
}

type queueItemData struct {
	ID         int    `json:"id"`
	Cancelled  bool   `json:"cancelled"`
	Why        string `json:"why"`
	Executable *struct {
		Number int    `json:"number"`
		URL    string `json:"url"`
	} `json:"executable"`
}

// queuedBuild is a build still waiting in the queue. It follows the queue
// item until Jenkins assigns it an executor, then behaves as that build.
type queuedBuild struct {
	client  *Client
	url     string
	item    queueItemData
	started *build
}

func (q *queuedBuild) refresh(ctx context.Context) error {
	if q.started != nil {
		return nil
	}
	var item queueItemData
	if err := q.client.getJSON(ctx, q.url+"api/json?tree=id,cancelled,why,executable[number,url]", &item); err != nil {
		return err
	}
	q.item = item
	if q.item.Executable == nil || q.item.Executable.URL == "" {
		return nil
	}
	started, err := q.client.build(ctx, strings.TrimRight(q.item.Executable.URL, "/")+"/")
	if err != nil {
		return err
	}
	q.started = started
	return nil
}

func (q *queuedBuild) URL() string {
	if q.started != nil {
		return q.started.URL()
	}
	return q.url
}

func (q *queuedBuild) Number() int {
	if q.started != nil {
		return q.started.Number()
	}
	return 0
}

// Status is pending while queued and error once the item was cancelled
func (q *queuedBuild) Status(ctx context.Context) (types.StatusState, error) {
	if q.started != nil {
		return q.started.Status(ctx)
	}
	if err := q.refresh(ctx); err != nil {
		return "", err
	}
	switch {
	case q.started != nil:
		return ResultState(q.started.data.Building, q.started.data.Result), nil
	case q.item.Cancelled:
		return types.StatusError, nil
	default:
		return types.StatusPending, nil
	}
}

// Stop cancels the queue item, or aborts the build once started
func (q *queuedBuild) Stop(ctx context.Context) error {
	if q.started != nil {
		return q.started.Stop(ctx)
	}
	form := url.Values{"id": {queueItemID(q.url)}}
	_, err := q.client.post(ctx, q.client.baseURL+"queue/cancelItem", form)
	return err
}
