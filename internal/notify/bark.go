package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// BarkNotifier sends notifications via Bark app.
type BarkNotifier struct {
	endpoint string
	client   *resty.Client
}

// NewBarkNotifier creates a new Bark notifier. baseURL is the device URL,
// e.g. https://api.day.app/<key>.
func NewBarkNotifier(baseURL string) (*BarkNotifier, error) {
	endpoint := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if endpoint == "" {
		return nil, fmt.Errorf("bark url is empty")
	}
	return &BarkNotifier{
		endpoint: endpoint,
		client:   resty.New().SetTimeout(10 * time.Second),
	}, nil
}

func (b *BarkNotifier) Send(ctx context.Context, title, body string) error {
	// POST with query parameters keeps long bodies out of the path.
	resp, err := b.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"title": title,
			"body":  body,
			"group": "taskdash",
		}).
		Post(b.endpoint)
	if err != nil {
		return fmt.Errorf("send bark notification: %w", err)
	}
	if resp.StatusCode() >= 400 {
		return fmt.Errorf("bark api returned status: %d", resp.StatusCode())
	}
	return nil
}
