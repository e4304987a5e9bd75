package interfaces

import (
	"context"
	"time"

	"github.com/customeros/mailpulse/dto"
	"github.com/customeros/mailpulse/internal/enum"
)

// Mailbox is one authenticated connection to the mail source. Commands on
// a single Mailbox are serialized by the implementation.
type Mailbox interface {
	SelectReadOnly(name string) error
	SearchSince(since time.Time) ([]uint32, error)
	FetchChunk(seqNums []uint32) ([]dto.RawMessage, error)
	Noop() error
	// Done is closed once the server ends the session or the connection drops.
	Done() <-chan struct{}
	Close() error
}

type MailboxDialer interface {
	Dial(ctx context.Context) (Mailbox, error)
}

type IngestionStatus struct {
	State         enum.ConnectionState `json:"state"`
	Connected     bool                 `json:"connected"`
	LastConnected *time.Time           `json:"lastConnected,omitempty"`
	LastCycleAt   *time.Time           `json:"lastCycleAt,omitempty"`
	LastCycle     *dto.CycleResult     `json:"lastCycle,omitempty"`
	LastError     string               `json:"lastError,omitempty"`
	Reconnects    int                  `json:"reconnects"`
}

type Ingestion interface {
	RunCycle(ctx context.Context) dto.CycleResult
	Status() IngestionStatus
}

type AnalysisTrigger interface {
	TriggerPass() bool
}
