package email

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/resend/resend-go/v2"
)

// ResendSender delivers messages through the Resend API.
type ResendSender struct {
	client *resend.Client
	from   string
	now    func() time.Time
}

// NewResendSender creates a sender with a default from address.
// PRE: apiKey is a Resend API key
func NewResendSender(apiKey, from string) *ResendSender {
	return &ResendSender{client: resend.NewClient(apiKey), from: from, now: time.Now}
}

// Send queues msg for delivery.
// PRE: msg has at least one recipient
// POST: returns the Resend message id
func (s *ResendSender) Send(ctx context.Context, msg Message) (Receipt, error) {
	if len(msg.To) == 0 {
		return Receipt{}, ErrNoRecipients
	}
	sent, err := s.client.Emails.SendWithContext(ctx, s.request(msg))
	if err != nil {
		slog.Error("email_send_failed", "provider", "resend", "to_count", len(msg.To), "subject", msg.Subject, "error", err)
		return Receipt{}, fmt.Errorf("resend: %w", err)
	}
	slog.Info("email_sent", "provider", "resend", "message_id", sent.Id, "to_count", len(msg.To), "subject", msg.Subject)
	return Receipt{MessageID: sent.Id, SentAt: s.now()}, nil
}

func (s *ResendSender) request(msg Message) *resend.SendEmailRequest {
	from := msg.From
	if from == "" {
		from = s.from
	}
	req := &resend.SendEmailRequest{
		From:    from,
		To:      msg.To,
		Subject: msg.Subject,
		Html:    msg.HTML,
		Text:    msg.Text,
		ReplyTo: msg.ReplyTo,
	}
	names := make([]string, 0, len(msg.Tags))
	for name := range msg.Tags {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		req.Tags = append(req.Tags, resend.Tag{Name: name, Value: msg.Tags[name]})
	}
	for _, a := range msg.Attachments {
		req.Attachments = append(req.Attachments, &resend.Attachment{Filename: a.Filename, Content: a.Content})
	}
	return req
}
