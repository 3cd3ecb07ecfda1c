// Package normalize turns a structured mailbox message into the canonical
// "Subject: ...\n\n<body>" text the classifier works on.
//
// Normalization never fails. A body that cannot be decoded becomes an empty
// string so the message is still classified (on its subject alone) instead of
// being dropped from the run.
package normalize

import (
	"encoding/base64"
	"strings"

	"github.com/daviddao/mailtriage/internal/types"
)

// NoSubject is used when a message carries no Subject header.
const NoSubject = "(No Subject)"

// Normalize returns the canonical text for msg.
func Normalize(msg *types.RawMessage) string {
	if msg == nil {
		return Format(NoSubject, "")
	}
	return Format(Subject(msg.Headers), Body(msg.Body))
}

// Format joins a subject and body into canonical text.
func Format(subject, body string) string {
	return "Subject: " + subject + "\n\n" + body
}

// Subject returns the value of the first header named "Subject",
// compared case-insensitively.
func Subject(headers []types.Header) string {
	for _, h := range headers {
		if strings.EqualFold(h.Name, "Subject") {
			return h.Value
		}
	}
	return NoSubject
}

// Body returns the decoded plain-text body.
func Body(body types.Body) string {
	switch b := body.(type) {
	case types.SinglePart:
		return decodeOrEmpty(b.Data)
	case *types.SinglePart:
		if b == nil {
			return ""
		}
		return decodeOrEmpty(b.Data)
	case types.MultiPart:
		return firstPlainText(b.Parts)
	case *types.MultiPart:
		if b == nil {
			return ""
		}
		return firstPlainText(b.Parts)
	default:
		return ""
	}
}

// firstPlainText walks parts depth-first and decodes the first text/plain
// part that carries data.
func firstPlainText(parts []types.Part) string {
	if data, ok := findPlainText(parts); ok {
		return decodeOrEmpty(data)
	}
	return ""
}

func findPlainText(parts []types.Part) (string, bool) {
	for _, part := range parts {
		if part.MimeType == "text/plain" && part.Data != "" {
			return part.Data, true
		}
		if data, ok := findPlainText(part.Parts); ok {
			return data, true
		}
	}
	return "", false
}

func decodeOrEmpty(data string) string {
	if data == "" {
		return ""
	}
	decoded, err := DecodeBase64URL(data)
	if err != nil {
		return ""
	}
	return decoded
}

// DecodeBase64URL decodes base64url content, padded or not, and drops any
// invalid UTF-8 sequences from the result.
func DecodeBase64URL(data string) (string, error) {
	data = strings.TrimRight(strings.TrimSpace(data), "=")
	decoded, err := base64.RawURLEncoding.DecodeString(data)
	if err != nil {
		return "", err
	}
	return strings.ToValidUTF8(string(decoded), ""), nil
}

// EncodeBase64URL is the inverse of DecodeBase64URL, used by backends that
// receive already-decoded bodies.
func EncodeBase64URL(data []byte) string {
	return base64.RawURLEncoding.EncodeToString(data)
}
