package imap

import (
	"fmt"
	"io"
	"strings"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"go.uber.org/zap"

	"github.com/daviddao/mailtriage/internal/normalize"
	"github.com/daviddao/mailtriage/internal/types"
)

// Parse reads an RFC 5322 message into a RawMessage. Leaf bodies are
// transfer-decoded, converted to UTF-8 and stored base64url-encoded, the
// same shape the Gmail API returns.
//
// Only an unreadable header block is an error. A truncated or malformed body
// is logged and keeps whatever was decoded before the failure, so the message
// is still classified.
func Parse(id string, r io.Reader, logger *zap.Logger) (*types.RawMessage, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	entity, err := message.Read(r)
	if err != nil && !lenient(err) {
		return nil, fmt.Errorf("parse message %s: %w", id, err)
	}

	raw := &types.RawMessage{ID: id, Headers: headers(entity.Header)}
	if mr := entity.MultipartReader(); mr != nil {
		parts, err := readParts(mr)
		if err != nil {
			logger.Warn("Message body truncated, keeping decoded parts",
				zap.String("message_id", id),
				zap.Int("parts", len(parts)),
				zap.Error(err),
			)
		}
		raw.Body = types.MultiPart{Parts: parts}
		return raw, nil
	}

	data, err := io.ReadAll(entity.Body)
	if err != nil {
		logger.Warn("Message body truncated",
			zap.String("message_id", id),
			zap.Int("bytes", len(data)),
			zap.Error(err),
		)
	}
	raw.Body = types.SinglePart{Data: normalize.EncodeBase64URL(data)}
	return raw, nil
}

// readParts always returns the parts read so far, even alongside an error.
func readParts(mr message.MultipartReader) ([]types.Part, error) {
	var parts []types.Part
	for {
		entity, err := mr.NextPart()
		if err == io.EOF {
			return parts, nil
		}
		if err != nil && !lenient(err) {
			return parts, err
		}

		mediaType, _, _ := entity.Header.ContentType()
		part := types.Part{MimeType: strings.ToLower(mediaType)}
		if sub := entity.MultipartReader(); sub != nil {
			part.Parts, err = readParts(sub)
		} else {
			var data []byte
			data, err = io.ReadAll(entity.Body)
			part.Data = normalize.EncodeBase64URL(data)
		}
		if err != nil {
			if part.Data != "" || len(part.Parts) > 0 {
				parts = append(parts, part)
			}
			return parts, err
		}
		parts = append(parts, part)
	}
}

func lenient(err error) bool {
	return message.IsUnknownCharset(err) || message.IsUnknownEncoding(err)
}

func headers(h message.Header) []types.Header {
	var out []types.Header
	fields := h.Fields()
	for fields.Next() {
		value, err := fields.Text()
		if err != nil {
			value = fields.Value()
		}
		out = append(out, types.Header{Name: fields.Key(), Value: value})
	}
	return out
}
