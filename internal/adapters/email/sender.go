// Package email delivers the month-close summaries to the club office.
package email

import (
	"context"
	"errors"
	"time"
)

// ErrNoRecipients is returned when a message has nobody to go to.
var ErrNoRecipients = errors.New("email: no recipients")

// Attachment is a file sent along with a message.
type Attachment struct {
	Filename string
	Content  []byte
}

// Message is one outgoing email.
type Message struct {
	To          []string
	From        string // empty means the sender's default
	ReplyTo     string
	Subject     string
	HTML        string
	Text        string // plain-text alternative, optional
	Tags        map[string]string
	Attachments []Attachment
}

// Receipt identifies an accepted message.
type Receipt struct {
	MessageID string
	SentAt    time.Time
}

// Sender hands messages to a delivery provider.
type Sender interface {
	Send(ctx context.Context, msg Message) (Receipt, error)
}
