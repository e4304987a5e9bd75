package utils

import (
	"crypto/sha256"
	"fmt"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

const messageIDAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// GenerateMessageID returns an RFC 5322 msg-id in angle brackets. The seed,
// usually the recipient, contributes a short hash to the local part.
func GenerateMessageID(domain, seed string) string {
	id := gonanoid.MustGenerate(messageIDAlphabet, 12)

	local := fmt.Sprintf("%d.%s", time.Now().UnixMicro(), id)
	if seed != "" {
		hash := sha256.Sum256([]byte(seed))
		local += fmt.Sprintf(".%x", hash[:4])
	}
	if domain == "" {
		domain = "localhost"
	}
	return fmt.Sprintf("<%s@%s>", local, domain)
}
