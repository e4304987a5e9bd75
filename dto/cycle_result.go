package dto

import mailerr "github.com/customeros/mailpulse/internal/errors"

// CycleErrorNotConnected is reported when a cycle starts without a live
// mailbox connection.
var CycleErrorNotConnected = mailerr.ErrNotConnected.Error()

type CycleResult struct {
	CycleID    string `json:"cycleId"`
	Found      int    `json:"found"`
	Inserted   int    `json:"inserted"`
	Duplicates int    `json:"duplicates"`
	Failed     int    `json:"failed"`
	Error      string `json:"error,omitempty"`
}

func (r CycleResult) Succeeded() bool {
	return r.Error == ""
}
