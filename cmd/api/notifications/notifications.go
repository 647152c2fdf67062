package notifications

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/circulation-service/cmd/api/circulation"
)

// Ntfy publishes circulation events to topics under baseURL.
type Ntfy struct {
	baseURL string
	enabled bool
	client  *http.Client
}

func NewNtfy(enableNotifications bool, notificationsBaseURL string, client *http.Client) *Ntfy {
	if client == nil {
		client = &http.Client{}
	}
	return &Ntfy{
		baseURL: strings.TrimSuffix(notificationsBaseURL, "/"),
		enabled: enableNotifications,
		client:  client,
	}
}

const (
	topicBorrowed = "/Book_borrowed"
	topicReturned = "/Book_returned"
)

func (ntf *Ntfy) BookBorrowed(ctx context.Context, record circulation.BorrowRecord) error {
	message := fmt.Sprintf("Book borrowed:\nRecord: %s\nBook: %s\nUser: %s\nDue: %s",
		record.ID, record.BookID, record.UserID, record.DueDate.Format("2006-01-02"))
	return ntf.publish(ctx, topicBorrowed, message)
}

func (ntf *Ntfy) BookReturned(ctx context.Context, record circulation.BorrowRecord) error {
	message := fmt.Sprintf("Book returned:\nRecord: %s\nBook: %s\nUser: %s\nFine: %s",
		record.ID, record.BookID, record.UserID, record.FineAmount.StringFixed(2))
	return ntf.publish(ctx, topicReturned, message)
}

/* Posts the message to the topic. A disabled notifier drops it silently. */
func (ntf *Ntfy) publish(ctx context.Context, topic, message string) error {
	if !ntf.enabled {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ntf.baseURL+topic, strings.NewReader(message))
	if err != nil {
		return fmt.Errorf("error delivering message to topic (%s%s): %w", ntf.baseURL, topic, err)
	}
	resp, err := ntf.client.Do(req)
	if err != nil {
		return fmt.Errorf("error delivering message to topic (%s%s): %w", ntf.baseURL, topic, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("error delivering message to topic (%s%s): status %d", ntf.baseURL, topic, resp.StatusCode)
	}
	return nil
}
