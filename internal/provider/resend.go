package provider

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"
)

//go:embed templates/*.html
var templateFS embed.FS

type emailTemplate struct {
	subject string
	file    string
}

var emailTemplates = map[string]emailTemplate{
	"appointmentReminder": {subject: "Your upcoming appointment", file: "appointment_reminder.html"},
}

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// ResendMailer renders embedded HTML templates and delivers them through the
// Resend HTTP API.
type ResendMailer struct {
	baseURL    string
	apiKey     string
	from       string
	templates  *template.Template
	httpClient *http.Client
}

type resendEmail struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

func NewResendMailer(baseURL, apiKey, from string, timeout time.Duration) (*ResendMailer, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse email templates: %w", err)
	}
	return &ResendMailer{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		from:       from,
		templates:  tmpl,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// Render returns the subject and HTML body for a named template.
func (m *ResendMailer) Render(name string, data map[string]string) (string, string, error) {
	t, ok := emailTemplates[name]
	if !ok {
		return "", "", fmt.Errorf("%w %q", ErrUnknownTemplate, name)
	}
	var buf bytes.Buffer
	if err := m.templates.ExecuteTemplate(&buf, t.file, data); err != nil {
		return "", "", fmt.Errorf("%w %s: %w", ErrRender, name, err)
	}
	return t.subject, buf.String(), nil
}

// Send renders template with data and posts it to /emails.
func (m *ResendMailer) Send(ctx context.Context, to, tmpl string, data map[string]string) error {
	if !emailPattern.MatchString(to) {
		return fmt.Errorf("%w: email address %q", ErrInvalidRecipient, to)
	}
	subject, html, err := m.Render(tmpl, data)
	if err != nil {
		return err
	}

	body, err := json.Marshal(resendEmail{From: m.from, To: []string{to}, Subject: subject, HTML: html})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	resp, err := m.do(ctx, http.MethodPost, "/emails", body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return statusError("resend", resp)
	}
	return nil
}

// Ping lists sending domains and fails when none is set up.
func (m *ResendMailer) Ping(ctx context.Context) error {
	resp, err := m.do(ctx, http.MethodGet, "/domains", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusError("resend", resp)
	}
	var out struct {
		Data []json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if len(out.Data) == 0 {
		return fmt.Errorf("resend: no sending domain configured")
	}
	return nil
}

func (m *ResendMailer) do(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, m.baseURL+path, r)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+m.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	return resp, nil
}

func statusError(name string, resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return &StatusError{Provider: name, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(b))}
}

var _ Mailer = (*ResendMailer)(nil)
