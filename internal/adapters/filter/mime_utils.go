package filter

import (
	"bytes"
	"io"
	"mime"
	"mime/multipart"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/autoguardian/autoguardian/internal/core"
)

// parseMessage converts a raw RFC 5322 message into a scan unit. Text parts
// become the body; non-text parts are recorded as attachments by name only,
// the bytes stay in the raw message.
func parseMessage(msg *mail.Message, sender string, recipients []string) (*core.Message, error) {
	body, attachments, err := extractContent(msg)
	if err != nil {
		return nil, err
	}

	out := &core.Message{
		ID:          messageID(msg),
		From:        sender,
		To:          recipients,
		Body:        body,
		Headers:     make(map[string][]string),
		Attachments: attachments,
		ReceivedAt:  time.Now().UTC(),
	}
	for key, values := range msg.Header {
		out.Headers[key] = values
		if strings.EqualFold(key, "Subject") && len(values) > 0 {
			out.Subject = decodeEncodedHeader(values[0])
		}
	}
	return out, nil
}

// messageID prefers the Message-ID header so rescans of the same mail
// deduplicate; synthesized IDs are a fallback for broken senders.
func messageID(msg *mail.Message) string {
	if id := strings.Trim(msg.Header.Get("Message-Id"), "<> "); id != "" {
		return id
	}
	return uuid.NewString()
}

// decodeEncodedHeader decodes RFC 2047 encoded words, returning the input
// unchanged when it is not encoded or fails to decode.
func decodeEncodedHeader(value string) string {
	dec := new(mime.WordDecoder)
	decoded, err := dec.DecodeHeader(value)
	if err != nil {
		return value
	}
	return decoded
}

// extractContent pulls the text/plain content and attachment names out of a
// message. Multipart parsing failures degrade to treating the whole body as
// text rather than failing the scan.
func extractContent(msg *mail.Message) (string, []core.Attachment, error) {
	contentType := msg.Header.Get("Content-Type")
	if !strings.Contains(strings.ToLower(contentType), "multipart/") {
		return readAll(msg.Body)
	}

	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil || !strings.HasPrefix(mediaType, "multipart/") {
		return readAll(msg.Body)
	}
	boundary, ok := params["boundary"]
	if !ok {
		return readAll(msg.Body)
	}

	mr := multipart.NewReader(msg.Body, boundary)
	var text bytes.Buffer
	var attachments []core.Attachment
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			break
		}

		if name := part.FileName(); name != "" {
			attachments = append(attachments, core.Attachment{Filename: name})
			continue
		}

		partType := strings.ToLower(part.Header.Get("Content-Type"))
		if strings.Contains(partType, "text/plain") || partType == "" {
			partBytes, err := io.ReadAll(part)
			if err != nil {
				continue
			}
			text.Write(partBytes)
			text.WriteString("\n")
		}
		// html-only and nested multipart parts are skipped
	}

	if text.Len() == 0 && len(attachments) == 0 {
		return "[No text content found in multipart message]", nil, nil
	}
	return text.String(), attachments, nil
}

func readAll(r io.Reader) (string, []core.Attachment, error) {
	bodyBytes, err := io.ReadAll(r)
	if err != nil {
		return "", nil, err
	}
	return string(bodyBytes), nil, nil
}
