package dto

import "time"

// RawMessage is one message as fetched from the mail source: the HEADER
// and TEXT body sections plus the envelope metadata the server reported.
type RawMessage struct {
	SeqNum       uint32
	UID          uint32
	Header       []byte
	Body         []byte
	InternalDate time.Time
}
