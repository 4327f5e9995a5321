package out

import "context"

// OutboundMail is a plain-text notification.
type OutboundMail struct {
	To      string
	Subject string
	Body    string
}

// Mailer sends notifications. A returned error is a transport failure.
type Mailer interface {
	Send(ctx context.Context, mail OutboundMail) error
}
