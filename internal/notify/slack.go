package notify

import (
	"context"
	"fmt"

	slackapi "github.com/slack-go/slack"
)

// webhookPoster matches slackapi.PostWebhookContext.
type webhookPoster func(ctx context.Context, url string, msg *slackapi.WebhookMessage) error

// Slack posts to a Slack incoming webhook.
type Slack struct {
	url  string
	post webhookPoster
}

// NewSlack returns a Slack sink for the webhook url.
func NewSlack(url string) *Slack {
	return &Slack{url: url, post: slackapi.PostWebhookContext}
}

func (s *Slack) Name() string { return "slack" }

// Send posts msg as a single attachment.
func (s *Slack) Send(ctx context.Context, msg Message) error {
	if err := s.post(ctx, s.url, toWebhookMessage(msg)); err != nil {
		return fmt.Errorf("slack: post webhook: %w", err)
	}
	return nil
}

func toWebhookMessage(msg Message) *slackapi.WebhookMessage {
	att := slackapi.Attachment{
		Title:    msg.Title,
		Text:     msg.Body,
		Color:    msg.Color,
		Fallback: msg.Title,
	}
	for _, f := range msg.Fields {
		att.Fields = append(att.Fields, slackapi.AttachmentField{
			Title: f.Name,
			Value: f.Value,
			Short: f.Short,
		})
	}
	return &slackapi.WebhookMessage{
		Text:        msg.Title,
		Attachments: []slackapi.Attachment{att},
	}
}
