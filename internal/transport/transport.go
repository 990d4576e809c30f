// Package transport defines the mail-transport capability the dispatcher
// sends through, and its SMTP implementation.
package transport

import (
	"context"
	"fmt"
)

// Identity is a display name plus address used as the message sender.
type Identity struct {
	Name  string
	Email string
}

// String formats the identity as an RFC 5322 address.
func (i Identity) String() string {
	if i.Name == "" {
		return i.Email
	}
	return fmt.Sprintf("%s <%s>", i.Name, i.Email)
}

// Attachment is an optional MIME part attached to a message. For calendar
// invites ContentType carries the method=REQUEST parameter so clients
// recognize the invite automatically.
type Attachment struct {
	Filename    string
	ContentType string
	Content     []byte
}

// Error is a structured transport failure.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("transport error (%s): %s", e.Code, e.Message)
}

// Mailer is the capability the dispatcher invokes once per recipient.
// Send returns the provider message id on success.
type Mailer interface {
	Send(ctx context.Context, from Identity, to, subject, htmlBody, textBody string, attachment *Attachment) (string, error)
}
