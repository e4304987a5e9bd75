package imap

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/customeros/mailpulse/config"
	"github.com/customeros/mailpulse/dto"
	"github.com/customeros/mailpulse/interfaces"
	"github.com/customeros/mailpulse/internal/logger"
	"github.com/customeros/mailpulse/internal/tracing"
)

const logoutTimeout = 5 * time.Second

var (
	headerSection = &imap.BodySectionName{
		BodyPartName: imap.BodyPartName{Specifier: imap.HeaderSpecifier},
		Peek:         true,
	}
	textSection = &imap.BodySectionName{
		BodyPartName: imap.BodyPartName{Specifier: imap.TextSpecifier},
		Peek:         true,
	}
)

type dialer struct {
	cfg *config.ImapConfig
	log logger.Logger
}

func NewDialer(cfg *config.ImapConfig, log logger.Logger) interfaces.MailboxDialer {
	return &dialer{
		cfg: cfg,
		log: log,
	}
}

// Dial connects and logs in. The connection timeout bounds the TCP and TLS
// handshake, the auth timeout bounds LOGIN.
func (d *dialer) Dial(ctx context.Context) (interfaces.Mailbox, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "Dialer.Dial")
	defer span.Finish()
	tracing.TagComponentIngestion(span)
	span.SetTag("server", d.cfg.Host)
	span.SetTag("port", d.cfg.Port)
	span.SetTag("tls", d.cfg.TLS)

	serverAddr := fmt.Sprintf("%s:%d", d.cfg.Host, d.cfg.Port)

	netDialer := &net.Dialer{
		Timeout:   d.cfg.ConnTimeout,
		KeepAlive: 30 * time.Second,
	}

	var c *client.Client
	var err error
	if d.cfg.TLS {
		tlsConfig := &tls.Config{
			ServerName:         d.cfg.Host,
			InsecureSkipVerify: d.cfg.InsecureSkipVerify,
		}
		c, err = client.DialWithDialerTLS(netDialer, serverAddr, tlsConfig)
	} else {
		c, err = client.DialWithDialer(netDialer, serverAddr)
	}
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, errors.Wrapf(err, "failed to connect to %s", serverAddr)
	}

	c.Timeout = d.cfg.AuthTimeout
	if err := c.Login(d.cfg.User, d.cfg.Password); err != nil {
		_ = c.Terminate()
		tracing.TraceErr(span, err)
		return nil, errors.Wrapf(err, "failed to login as %s", d.cfg.User)
	}
	c.Timeout = d.cfg.ConnTimeout

	d.log.Infof("Connected and logged in to %s as %s", serverAddr, d.cfg.User)
	span.SetTag("success", true)

	return &mailbox{c: c, log: d.log}, nil
}

// mailbox adapts a go-imap client. Commands are serialized, Close is not,
// so a stuck command can still be torn down.
type mailbox struct {
	mu  sync.Mutex
	c   *client.Client
	log logger.Logger
}

func (m *mailbox) SelectReadOnly(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, err := m.c.Select(name, true)
	if err != nil {
		return errors.Wrapf(err, "failed to select %s", name)
	}
	return nil
}

func (m *mailbox) SearchSince(since time.Time) ([]uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	criteria := imap.NewSearchCriteria()
	criteria.Since = since
	ids, err := m.c.Search(criteria)
	if err != nil {
		return nil, errors.Wrap(err, "failed to search messages")
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// FetchChunk fetches the HEADER and TEXT sections without setting \Seen.
func (m *mailbox) FetchChunk(seqNums []uint32) ([]dto.RawMessage, error) {
	if len(seqNums) == 0 {
		return nil, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(seqNums...)

	items := []imap.FetchItem{
		headerSection.FetchItem(),
		textSection.FetchItem(),
		imap.FetchUid,
		imap.FetchInternalDate,
	}

	messages := make(chan *imap.Message, len(seqNums))
	done := make(chan error, 1)
	go func() {
		done <- m.c.Fetch(seqSet, items, messages)
	}()

	var out []dto.RawMessage
	for msg := range messages {
		raw := dto.RawMessage{
			SeqNum:       msg.SeqNum,
			UID:          msg.Uid,
			InternalDate: msg.InternalDate,
		}
		raw.Header = readSection(m.log, msg, headerSection)
		raw.Body = readSection(m.log, msg, textSection)
		out = append(out, raw)
	}

	if err := <-done; err != nil {
		return out, errors.Wrap(err, "failed to fetch messages")
	}

	sort.Slice(out, func(i, j int) bool { return out[i].SeqNum < out[j].SeqNum })
	return out, nil
}

func readSection(log logger.Logger, msg *imap.Message, section *imap.BodySectionName) []byte {
	literal := msg.GetBody(section)
	if literal == nil {
		return nil
	}
	data, err := io.ReadAll(literal)
	if err != nil {
		log.Warnf("Failed to read section %s of message %d: %v", section.FetchItem(), msg.SeqNum, err)
	}
	return data
}

func (m *mailbox) Noop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.c.Noop()
}

func (m *mailbox) Done() <-chan struct{} {
	return m.c.LoggedOut()
}

// Close logs out, terminating the connection when the server does not
// answer in time.
func (m *mailbox) Close() error {
	select {
	case <-m.c.LoggedOut():
		return nil
	default:
	}

	done := make(chan error, 1)
	go func() {
		done <- m.c.Logout()
	}()

	select {
	case err := <-done:
		if err != nil {
			_ = m.c.Terminate()
			return err
		}
		return nil
	case <-time.After(logoutTimeout):
		m.log.Warn("IMAP logout timed out, terminating connection")
		return m.c.Terminate()
	}
}
