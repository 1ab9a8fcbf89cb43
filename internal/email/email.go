// Package email turns uploaded .eml or plain-text files into extraction input.
package email

import (
	"bufio"
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/text/encoding/htmlindex"
)

// ErrEmpty is returned when a message has no usable text.
var ErrEmpty = errors.New("email has no text content")

const maxMessageBytes = 5 << 20

// Message is the text handed to the extractor.
type Message struct {
	Subject string
	From    string
	Body    string
}

// Text is the body with the subject line prepended when one exists.
func (m Message) Text() string {
	if m.Subject == "" {
		return m.Body
	}
	return "Subject: " + m.Subject + "\n\n" + m.Body
}

// ParseFile reads path, treating .eml files as RFC 5322 messages.
func ParseFile(path string) (Message, error) {
	f, err := os.Open(path)
	if err != nil {
		return Message{}, err
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads a raw message. Input with RFC 5322 headers is parsed as mail,
// anything else is taken verbatim as the body.
func Parse(r io.Reader) (Message, error) {
	raw, err := io.ReadAll(io.LimitReader(r, maxMessageBytes))
	if err != nil {
		return Message{}, fmt.Errorf("read email: %w", err)
	}
	if looksLikeHeaders(raw) {
		if msg, err := parseMail(raw); err == nil {
			return msg, nil
		}
	}
	body := strings.TrimSpace(normalizeNewlines(string(raw)))
	if body == "" {
		return Message{}, ErrEmpty
	}
	return Message{Body: body}, nil
}

// IsSupported reports whether name has an accepted upload extension.
func IsSupported(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".txt", ".eml":
		return true
	default:
		return false
	}
}

func parseMail(raw []byte) (Message, error) {
	m, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return Message{}, err
	}
	dec := new(mime.WordDecoder)
	subject, err := dec.DecodeHeader(m.Header.Get("Subject"))
	if err != nil {
		subject = m.Header.Get("Subject")
	}
	from := ""
	if addr, err := m.Header.AddressList("From"); err == nil && len(addr) > 0 {
		from = addr[0].Address
	} else {
		from = strings.TrimSpace(m.Header.Get("From"))
	}

	body, err := readBody(m.Header.Get("Content-Type"), m.Header.Get("Content-Transfer-Encoding"), m.Body)
	if err != nil {
		return Message{}, err
	}
	body = strings.TrimSpace(normalizeNewlines(body))
	if body == "" {
		return Message{}, ErrEmpty
	}
	return Message{Subject: strings.TrimSpace(subject), From: from, Body: body}, nil
}

func readBody(contentType, encoding string, r io.Reader) (string, error) {
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil || contentType == "" {
		mediaType = "text/plain"
		params = nil
	}
	if strings.HasPrefix(mediaType, "multipart/") {
		return readMultipart(multipart.NewReader(r, params["boundary"]))
	}
	return readText(mediaType, params["charset"], encoding, r)
}

func readMultipart(mr *multipart.Reader) (string, error) {
	var fallback string
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("read multipart: %w", err)
		}
		mediaType, params, _ := mime.ParseMediaType(part.Header.Get("Content-Type"))
		encoding := part.Header.Get("Content-Transfer-Encoding")
		switch {
		case strings.HasPrefix(mediaType, "multipart/"):
			if text, err := readMultipart(multipart.NewReader(part, params["boundary"])); err == nil && text != "" {
				return text, nil
			}
		case mediaType == "" || mediaType == "text/plain":
			return readText("text/plain", params["charset"], encoding, part)
		case mediaType == "text/html" && fallback == "":
			if text, err := readText(mediaType, params["charset"], encoding, part); err == nil {
				fallback = text
			}
		}
	}
	return fallback, nil
}

// readText decodes one text part to UTF-8, converting HTML to plain text.
func readText(mediaType, charset, encoding string, r io.Reader) (string, error) {
	data, err := io.ReadAll(decodeTransfer(encoding, r))
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}
	text, err := decodeCharset(charset, data)
	if err != nil {
		return "", err
	}
	if mediaType == "text/html" {
		return htmlToText(text), nil
	}
	return text, nil
}

func decodeTransfer(encoding string, r io.Reader) io.Reader {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "base64":
		return base64.NewDecoder(base64.StdEncoding, r)
	case "quoted-printable":
		return quotedprintable.NewReader(r)
	default:
		return r
	}
}

func decodeCharset(charset string, data []byte) (string, error) {
	switch strings.ToLower(strings.TrimSpace(charset)) {
	case "", "utf-8", "utf8", "us-ascii", "ascii":
		return strings.ToValidUTF8(string(data), "\uFFFD"), nil
	}
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return strings.ToValidUTF8(string(data), "\uFFFD"), nil
	}
	decoded, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return "", fmt.Errorf("decode %s body: %w", charset, err)
	}
	return string(decoded), nil
}

func looksLikeHeaders(raw []byte) bool {
	scanner := bufio.NewScanner(bytes.NewReader(raw))
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			return false
		}
		idx := strings.IndexByte(line, ':')
		if idx <= 0 || strings.ContainsAny(line[:idx], " \t") {
			return false
		}
		switch strings.ToLower(line[:idx]) {
		case "from", "to", "date", "message-id", "mime-version", "received", "return-path", "content-type":
			return true
		}
	}
	return false
}

func normalizeNewlines(s string) string {
	return strings.ReplaceAll(s, "\r\n", "\n")
}

var blockElements = map[string]bool{
	"p": true, "div": true, "br": true, "li": true, "tr": true, "table": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"ul": true, "ol": true, "blockquote": true, "pre": true, "hr": true,
}

// htmlToText keeps visible text, one line per block element. Script, style and title
// content is dropped and entities are decoded.
func htmlToText(src string) string {
	z := html.NewTokenizer(strings.NewReader(src))
	var b strings.Builder
	skip := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			return collapseLines(b.String())
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			tag := string(name)
			if tag == "script" || tag == "style" || tag == "title" {
				skip++
			} else if blockElements[tag] {
				b.WriteByte('\n')
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			tag := string(name)
			if (tag == "script" || tag == "style" || tag == "title") && skip > 0 {
				skip--
			} else if blockElements[tag] {
				b.WriteByte('\n')
			}
		case html.TextToken:
			if skip == 0 {
				b.Write(z.Text())
			}
		}
	}
}

func collapseLines(s string) string {
	s = strings.ReplaceAll(s, "\u00a0", " ")
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if line = strings.Join(strings.Fields(line), " "); line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}
