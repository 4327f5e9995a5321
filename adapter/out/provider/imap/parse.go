package imap

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"

	"ideabox/core/domain"
)

// ParseMessage reads an RFC 5322 message and extracts subject, sender and the
// first text/plain and text/html parts. HTML is reduced to text.
func ParseMessage(r io.Reader) (domain.InboundMessage, error) {
	mr, err := mail.CreateReader(r)
	if err != nil && !message.IsUnknownCharset(err) {
		return domain.InboundMessage{}, fmt.Errorf("read message: %w", err)
	}
	defer mr.Close()

	var msg domain.InboundMessage

	if subject, err := mr.Header.Subject(); err == nil {
		msg.Subject = strings.TrimSpace(subject)
	}
	if from, err := mr.Header.AddressList("From"); err == nil && len(from) > 0 {
		msg.From = from[0].Address
	}

	var html string
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if message.IsUnknownCharset(err) {
				continue
			}
			return msg, fmt.Errorf("read part: %w", err)
		}

		h, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue // attachment
		}
		ct, _, _ := h.ContentType()

		switch ct {
		case "text/plain":
			if msg.TextBody != "" {
				continue
			}
			b, err := io.ReadAll(part.Body)
			if err != nil {
				return msg, fmt.Errorf("read text part: %w", err)
			}
			msg.TextBody = strings.TrimSpace(string(b))
		case "text/html":
			if html != "" {
				continue
			}
			b, err := io.ReadAll(part.Body)
			if err != nil {
				return msg, fmt.Errorf("read html part: %w", err)
			}
			html = string(b)
		}
	}

	if html != "" {
		msg.HTMLBody = HTMLToText(html)
	}
	return msg, nil
}

// HTMLToText extracts the visible text of an HTML fragment.
func HTMLToText(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	doc.Find("script, style, head").Remove()
	doc.Find("br").ReplaceWithHtml("\n")
	doc.Find("p, div, li, tr, h1, h2, h3").Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml("\n")
	})

	lines := strings.Split(doc.Text(), "\n")
	kept := lines[:0]
	for _, line := range lines {
		if line = strings.Join(strings.Fields(line), " "); line != "" {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}
