package dto

import "time"

type ParsedMail struct {
	Subject       string
	Sender        string
	SenderAddress string
	Body          string
	ReceivedAt    time.Time
	MessageID     string
	UID           uint32
}
