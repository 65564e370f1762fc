package keygate

import (
	"context"
	"strings"
	"text/template"
	"time"
)

type codeMessage struct {
	subject string
	body    *template.Template
	link    string
	ttl     time.Duration
}

type codeMessageData struct {
	Code int
	Link string
	TTL  time.Duration
}

func newCodeMessage(name, subject, body, link string, ttl time.Duration) (*codeMessage, error) {
	tmpl, err := template.New(name).Option("missingkey=error").Parse(body)
	if err != nil {
		return nil, err
	}
	return &codeMessage{subject: subject, body: tmpl, link: link, ttl: ttl}, nil
}

func (m *codeMessage) render(code int) (string, error) {
	var b strings.Builder
	if err := m.body.Execute(&b, codeMessageData{Code: code, Link: m.link, TTL: m.ttl}); err != nil {
		return "", err
	}
	return b.String(), nil
}

// send renders the message for code and hands it to the notifier.
func (m *codeMessage) send(ctx context.Context, n Notifier, to string, code int) error {
	body, err := m.render(code)
	if err != nil {
		return err
	}
	return n.Send(ctx, to, m.subject, body)
}
