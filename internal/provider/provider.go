package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Mailer renders a named template with data and delivers it to one address.
type Mailer interface {
	Send(ctx context.Context, to, template string, data map[string]string) error
}

// SMSClient delivers a text message. IsConfigured reports whether the
// credentials needed to send are present.
type SMSClient interface {
	IsConfigured() bool
	Send(ctx context.Context, to, body string) error
}

// Request validation failures. IsPermanent reports true for errors wrapping
// them.
var (
	ErrInvalidRecipient = errors.New("invalid recipient")
	ErrUnknownTemplate  = errors.New("unknown template")
	ErrRender           = errors.New("render template")
)

// StatusError is returned when a provider answers with an unexpected status.
type StatusError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: unexpected status %d", e.Provider, e.StatusCode)
	}
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Provider, e.StatusCode, e.Body)
}

// Permanent reports whether repeating the request cannot succeed.
// 429 and 5xx are transient; every other 4xx is permanent.
func (e *StatusError) Permanent() bool {
	if e.StatusCode == http.StatusTooManyRequests || e.StatusCode == http.StatusRequestTimeout {
		return false
	}
	return e.StatusCode >= 400 && e.StatusCode < 500
}

// IsPermanent reports whether err carries a permanent provider rejection or
// a request that can never be built.
func IsPermanent(err error) bool {
	if errors.Is(err, ErrInvalidRecipient) || errors.Is(err, ErrUnknownTemplate) || errors.Is(err, ErrRender) {
		return true
	}
	var p interface{ Permanent() bool }
	return errors.As(err, &p) && p.Permanent()
}
