package utils

import (
	"regexp"
	"strings"
)

var replyPrefix = regexp.MustCompile(`(?i)^(re|fwd|fw|aw|sv)(\[\d+\])?\s*:\s*`)

// NormalizeEmailSubject strips any stack of reply and forward prefixes.
func NormalizeEmailSubject(subject string) string {
	subject = strings.TrimSpace(subject)
	for replyPrefix.MatchString(subject) {
		subject = strings.TrimSpace(replyPrefix.ReplaceAllString(subject, ""))
	}
	return subject
}

func NormalizeMessageID(messageID string) string {
	messageID = strings.TrimSpace(messageID)
	messageID = strings.TrimPrefix(messageID, "<")
	messageID = strings.TrimSuffix(messageID, ">")
	return messageID
}

func FirstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
