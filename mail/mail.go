// Package mail delivers reset links.
//
// Every transport implements [Mailer]. Transports report failures; callers in
// the reset flow log them and never surface them to the requester.
package mail

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

var (
	ErrSendFailed     = errors.New("failed to send email")
	ErrInvalidConfig  = errors.New("invalid mail configuration")
	ErrInvalidMessage = errors.New("invalid mail message")
)

// Message is a plain-text transactional email.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Validate rejects empty fields and header injection attempts.
func (m Message) Validate() error {
	if m.To == "" || m.Subject == "" || m.Body == "" {
		return fmt.Errorf("%w: to, subject and body are required", ErrInvalidMessage)
	}
	if strings.ContainsAny(m.To, "\r\n") || strings.ContainsAny(m.Subject, "\r\n") {
		return fmt.Errorf("%w: header values must not contain line breaks", ErrInvalidMessage)
	}
	return nil
}

// Mailer sends one message.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// MailerFunc adapts a function to Mailer.
type MailerFunc func(ctx context.Context, msg Message) error

func (f MailerFunc) Send(ctx context.Context, msg Message) error { return f(ctx, msg) }

// Recorder keeps every message in memory. Useful in tests and local demos.
type Recorder struct {
	mu   sync.Mutex
	sent []Message
}

func (r *Recorder) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	r.sent = append(r.sent, msg)
	r.mu.Unlock()
	return nil
}

// Sent returns a copy of the recorded messages.
func (r *Recorder) Sent() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Message, len(r.sent))
	copy(out, r.sent)
	return out
}

// Last returns the most recent message, if any.
func (r *Recorder) Last() (Message, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.sent) == 0 {
		return Message{}, false
	}
	return r.sent[len(r.sent)-1], true
}
