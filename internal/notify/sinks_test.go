package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/bwmarrin/discordgo"
	slackapi "github.com/slack-go/slack"
)

var sample = Message{
	Title: "Call ended: Ada",
	Body:  "Target hung up",
	Color: ColorSuccess,
	Fields: []Field{
		{Name: "Phone", Value: "+61400000000", Short: true},
	},
}

func TestSlack_Send(t *testing.T) {
	var gotURL string
	var got *slackapi.WebhookMessage
	s := NewSlack("https://hooks.slack.com/services/T/B/X")
	s.post = func(_ context.Context, url string, msg *slackapi.WebhookMessage) error {
		gotURL, got = url, msg
		return nil
	}
	if err := s.Send(context.Background(), sample); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if gotURL != "https://hooks.slack.com/services/T/B/X" {
		t.Errorf("url = %q", gotURL)
	}
	if len(got.Attachments) != 1 {
		t.Fatalf("attachments = %d, want 1", len(got.Attachments))
	}
	att := got.Attachments[0]
	if att.Title != sample.Title || att.Text != sample.Body || att.Color != ColorSuccess {
		t.Errorf("attachment = %+v", att)
	}
	if len(att.Fields) != 1 || att.Fields[0].Title != "Phone" || !att.Fields[0].Short {
		t.Errorf("fields = %+v", att.Fields)
	}
}

func TestSlack_SendError(t *testing.T) {
	s := NewSlack("u")
	s.post = func(context.Context, string, *slackapi.WebhookMessage) error { return errors.New("410 gone") }
	if err := s.Send(context.Background(), sample); err == nil {
		t.Error("expected error")
	}
}

type mockWebhookSession struct {
	id, token string
	params    *discordgo.WebhookParams
	err       error
}

func (m *mockWebhookSession) WebhookExecute(id, token string, _ bool, data *discordgo.WebhookParams, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	m.id, m.token, m.params = id, token, data
	return &discordgo.Message{}, m.err
}

func TestDiscord_Send(t *testing.T) {
	d, err := NewDiscord("https://discord.com/api/webhooks/123/abc")
	if err != nil {
		t.Fatalf("NewDiscord: %v", err)
	}
	mock := &mockWebhookSession{}
	d.sess = mock
	if err := d.Send(context.Background(), sample); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if mock.id != "123" || mock.token != "abc" {
		t.Errorf("webhook = %s/%s, want 123/abc", mock.id, mock.token)
	}
	if len(mock.params.Embeds) != 1 {
		t.Fatalf("embeds = %d, want 1", len(mock.params.Embeds))
	}
	e := mock.params.Embeds[0]
	if e.Title != sample.Title || e.Description != sample.Body {
		t.Errorf("embed = %+v", e)
	}
	if e.Color != 0x36a64f {
		t.Errorf("Color = %#x, want 0x36a64f", e.Color)
	}
	if len(e.Fields) != 1 || !e.Fields[0].Inline {
		t.Errorf("fields = %+v", e.Fields)
	}

	mock.err = errors.New("rate limited")
	if err := d.Send(context.Background(), sample); err == nil {
		t.Error("expected error")
	}
}

func TestParseWebhookURL(t *testing.T) {
	tests := []struct {
		url       string
		wantID    string
		wantToken string
		wantErr   bool
	}{
		{"https://discord.com/api/webhooks/123/abc", "123", "abc", false},
		{"https://discordapp.com/api/v10/webhooks/9/t-k", "9", "t-k", false},
		{"https://discord.com/api/webhooks/123", "", "", true},
		{"https://example.com/", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			id, token, err := parseWebhookURL(tt.url)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if id != tt.wantID || token != tt.wantToken {
				t.Errorf("got %q/%q, want %q/%q", id, token, tt.wantID, tt.wantToken)
			}
		})
	}
}

func TestParseHexColor(t *testing.T) {
	if got := parseHexColor("#e53935"); got != 0xe53935 {
		t.Errorf("parseHexColor = %#x, want 0xe53935", got)
	}
	if got := parseHexColor(""); got != 0 {
		t.Errorf("parseHexColor(\"\") = %d, want 0", got)
	}
}
