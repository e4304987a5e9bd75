package interfaces

import "context"

type OutboundMessage struct {
	To        string
	Subject   string
	Body      string
	InReplyTo string
}

type Mailer interface {
	Send(ctx context.Context, msg *OutboundMessage) (string, error)
}
