package smtp

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/customeros/mailsherpa/mailvalidate"
	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/customeros/mailpulse/config"
	"github.com/customeros/mailpulse/interfaces"
	"github.com/customeros/mailpulse/internal/logger"
	"github.com/customeros/mailpulse/internal/tracing"
	"github.com/customeros/mailpulse/internal/utils"
)

const defaultSendTimeout = 60 * time.Second

var (
	ErrInvalidRecipient = errors.New("recipient address is not valid")
	ErrInvalidSender    = errors.New("from address is not valid")
	ErrEmptyMessage     = errors.New("message must have a subject and a body")
)

type SMTPClient struct {
	cfg     *config.SmtpConfig
	log     logger.Logger
	timeout time.Duration
	now     func() time.Time
}

func NewSMTPClient(cfg *config.SmtpConfig, log logger.Logger) *SMTPClient {
	return &SMTPClient{
		cfg:     cfg,
		log:     log,
		timeout: defaultSendTimeout,
		now:     time.Now,
	}
}

var _ interfaces.Mailer = (*SMTPClient)(nil)

// Send delivers a plain text message and returns its Message-ID without
// angle brackets.
func (s *SMTPClient) Send(ctx context.Context, msg *interfaces.OutboundMessage) (string, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "SMTPClient.Send")
	defer span.Finish()
	tracing.TagComponentService(span)

	from, to, err := s.validateMessage(msg)
	if err != nil {
		tracing.TraceErr(span, err)
		return "", err
	}

	messageID, buffer, err := s.prepareMessage(from, to, msg)
	if err != nil {
		tracing.TraceErr(span, err)
		return "", err
	}
	span.SetTag("message_id", messageID)

	if err := s.sendToServer(ctx, from.Address, to.Address, buffer); err != nil {
		tracing.TraceErr(span, err)
		return "", err
	}

	s.log.Infof("Reply %s sent to %s", messageID, to.Address)
	return messageID, nil
}

func (s *SMTPClient) validateMessage(msg *interfaces.OutboundMessage) (*mail.Address, *mail.Address, error) {
	if msg == nil || strings.TrimSpace(msg.Subject) == "" || strings.TrimSpace(msg.Body) == "" {
		return nil, nil, ErrEmptyMessage
	}

	toValidation := mailvalidate.ValidateEmailSyntax(msg.To)
	if !toValidation.IsValid {
		return nil, nil, errors.Wrapf(ErrInvalidRecipient, "%q", msg.To)
	}

	fromValidation := mailvalidate.ValidateEmailSyntax(s.cfg.FromAddress())
	if !fromValidation.IsValid {
		return nil, nil, errors.Wrapf(ErrInvalidSender, "%q", s.cfg.FromAddress())
	}

	return &mail.Address{Address: fromValidation.CleanEmail},
		&mail.Address{Address: toValidation.CleanEmail},
		nil
}

// prepareMessage builds a single part text/plain message.
func (s *SMTPClient) prepareMessage(from, to *mail.Address, msg *interfaces.OutboundMessage) (string, *bytes.Buffer, error) {
	messageID := utils.NormalizeMessageID(utils.GenerateMessageID(utils.ExtractDomainFromEmail(from.Address), to.Address))

	var h mail.Header
	h.SetDate(s.now())
	h.SetAddressList("From", []*mail.Address{from})
	h.SetAddressList("To", []*mail.Address{to})
	h.SetSubject(msg.Subject)
	h.SetMessageID(messageID)
	if inReplyTo := utils.NormalizeMessageID(msg.InReplyTo); inReplyTo != "" {
		h.SetMsgIDList("In-Reply-To", []string{inReplyTo})
		h.SetMsgIDList("References", []string{inReplyTo})
	}
	h.SetContentType("text/plain", map[string]string{"charset": "utf-8"})

	buffer := bytes.NewBuffer(nil)
	w, err := mail.CreateSingleInlineWriter(buffer, h)
	if err != nil {
		return "", nil, errors.Wrap(err, "failed to create message writer")
	}
	if _, err := io.WriteString(w, msg.Body); err != nil {
		return "", nil, errors.Wrap(err, "failed to write message body")
	}
	if err := w.Close(); err != nil {
		return "", nil, errors.Wrap(err, "failed to close message writer")
	}
	return messageID, buffer, nil
}

func (s *SMTPClient) sendToServer(ctx context.Context, from, recipient string, buffer *bytes.Buffer) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "SMTPClient.sendToServer")
	defer span.Finish()
	span.LogKV("smtp_server", s.cfg.Host, "smtp_port", s.cfg.Port, "implicit_tls", s.cfg.ImplicitTLS)

	client, err := s.connect(ctx)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	defer client.Close()

	if s.cfg.User != "" {
		if err := client.Auth(sasl.NewPlainClient("", s.cfg.User, s.cfg.Password)); err != nil {
			err = fmt.Errorf("SMTP authentication failed: %w", err)
			tracing.TraceErr(span, err)
			return err
		}
	}

	if err := client.SendMail(from, []string{recipient}, buffer); err != nil {
		err = fmt.Errorf("failed to send email: %w", err)
		tracing.TraceErr(span, err)
		return err
	}

	return client.Quit()
}

// connect opens either an implicit TLS session or a plain session upgraded
// with STARTTLS. Dialing and the handshake share one deadline.
func (s *SMTPClient) connect(ctx context.Context) (*smtp.Client, error) {
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	tlsConfig := &tls.Config{ServerName: s.cfg.Host}

	deadline := s.now().Add(s.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	dialer := &net.Dialer{Deadline: deadline}

	var (
		conn net.Conn
		err  error
	)
	if s.cfg.ImplicitTLS {
		conn, err = tls.DialWithDialer(dialer, "tcp", addr, tlsConfig)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	_ = conn.SetDeadline(deadline)

	var client *smtp.Client
	if s.cfg.ImplicitTLS {
		client = smtp.NewClient(conn)
	} else if client, err = smtp.NewClientStartTLS(conn, tlsConfig); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to start TLS: %w", err)
	}
	// go-smtp resets the conn deadline per command
	client.CommandTimeout = s.timeout
	client.SubmissionTimeout = s.timeout
	return client, nil
}
