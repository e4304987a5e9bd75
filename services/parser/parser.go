package parser

import (
	"bufio"
	"bytes"
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/customeros/mailsherpa/mailvalidate"
	"github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-message/textproto"
	"github.com/jhillyerd/enmime"
	"github.com/opentracing/opentracing-go"
	"go.uber.org/zap"

	_ "github.com/emersion/go-message/charset"

	"github.com/customeros/mailpulse/dto"
	"github.com/customeros/mailpulse/internal/logger"
	"github.com/customeros/mailpulse/internal/models"
	"github.com/customeros/mailpulse/internal/tracing"
	"github.com/customeros/mailpulse/internal/utils"
)

var angleAddress = regexp.MustCompile(`<([^<>\s]+@[^<>\s]+)>`)

// Parser turns fetched header and text sections into a normalized mail.
// It never fails: every field falls back to a placeholder.
type Parser struct {
	log logger.Logger
	now func() time.Time
}

func NewParser(log logger.Logger) *Parser {
	return &Parser{
		log: log,
		now: time.Now,
	}
}

func (p *Parser) Parse(ctx context.Context, raw dto.RawMessage) *dto.ParsedMail {
	span, _ := opentracing.StartSpanFromContext(ctx, "Parser.Parse")
	defer span.Finish()
	tracing.TagComponentIngestion(span)
	span.SetTag("imap.uid", raw.UID)

	log := p.log.With(zap.Uint32("seq", raw.SeqNum), zap.Uint32("uid", raw.UID))

	headerBytes := terminateHeader(raw.Header)
	header, err := textproto.ReadHeader(bufio.NewReader(bytes.NewReader(headerBytes)))
	if err != nil {
		tracing.TraceErr(span, err)
		log.Warnf("Failed to parse message header, using defaults: %v", err)
	}
	mh := mail.Header{Header: message.Header{Header: header}}

	parsed := &dto.ParsedMail{
		Subject:    p.subject(mh),
		ReceivedAt: p.receivedAt(mh, raw.InternalDate),
		MessageID:  messageID(mh),
		UID:        raw.UID,
	}
	parsed.Sender, parsed.SenderAddress = sender(mh)
	parsed.Body = p.body(log, headerBytes, raw.Body)

	return parsed
}

func (p *Parser) subject(h mail.Header) string {
	subject, err := h.Subject()
	if err != nil {
		subject = h.Get("Subject")
	}
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return models.DefaultSubject
	}
	return subject
}

// sender prefers the display name of the first From entry, then its
// address, then the raw header value.
func sender(h mail.Header) (string, string) {
	addrs, err := h.AddressList("From")
	if err == nil && len(addrs) > 0 && addrs[0] != nil {
		first := addrs[0]
		address := cleanAddress(first.Address)
		if display := utils.FirstNonEmpty(first.Name, first.Address); display != "" {
			return display, address
		}
	}

	rawFrom, err := h.Text("From")
	if err != nil {
		rawFrom = h.Get("From")
	}
	rawFrom = strings.TrimSpace(rawFrom)
	if rawFrom == "" {
		return models.DefaultSender, ""
	}

	candidate := rawFrom
	if m := angleAddress.FindStringSubmatch(rawFrom); len(m) == 2 {
		candidate = m[1]
	}
	return rawFrom, cleanAddress(candidate)
}

func cleanAddress(address string) string {
	address = strings.TrimSpace(address)
	if address == "" {
		return ""
	}
	validation := mailvalidate.ValidateEmailSyntax(address)
	if !validation.IsValid {
		return ""
	}
	return validation.CleanEmail
}

func (p *Parser) receivedAt(h mail.Header, internalDate time.Time) time.Time {
	if date, err := h.Date(); err == nil && !date.IsZero() {
		return date
	}
	if !internalDate.IsZero() {
		return internalDate
	}
	return p.now()
}

func messageID(h mail.Header) string {
	id, err := h.MessageID()
	if err == nil && id != "" {
		return id
	}
	return utils.NormalizeMessageID(h.Get("Message-Id"))
}

func (p *Parser) body(log logger.Logger, header, text []byte) string {
	alternate := strings.ToValidUTF8(string(text), "")

	primary := ""
	joined := make([]byte, 0, len(header)+len(text))
	joined = append(joined, header...)
	joined = append(joined, text...)

	env, err := enmime.ReadEnvelope(bytes.NewReader(joined))
	if err != nil {
		log.Warnf("Failed to parse message body, falling back to raw text: %v", err)
	} else {
		for _, perr := range env.Errors {
			log.Debugf("Message body parse warning: %s", perr.Error())
		}
		switch {
		case strings.TrimSpace(env.Text) != "":
			primary = env.Text
		case strings.TrimSpace(env.HTML) != "":
			primary = env.HTML
		}
	}
	if primary == "" {
		primary = alternate
	}

	body := CleanBody(primary)
	if body == "" {
		body = CleanBody(alternate)
	}
	if body == "" {
		return models.DefaultBody
	}
	return ExtractLeakedContent(body)
}

// terminateHeader makes sure the header block ends with an empty line so it
// can be parsed and re-joined with the body on its own.
func terminateHeader(header []byte) []byte {
	trimmed := bytes.TrimRight(header, "\r\n")
	if len(trimmed) == 0 {
		return []byte("\r\n")
	}
	out := make([]byte, 0, len(trimmed)+4)
	out = append(out, trimmed...)
	return append(out, "\r\n\r\n"...)
}
