package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// TwilioClient sends SMS through the Twilio Messages API.
// The base URL is injected from config so tests can point to a local server.
type TwilioClient struct {
	baseURL    string
	accountSID string
	authToken  string
	from       string
	httpClient *http.Client
}

type twilioMessage struct {
	SID    string `json:"sid"`
	Status string `json:"status"`
}

func NewTwilioClient(baseURL, accountSID, authToken, from string, timeout time.Duration) *TwilioClient {
	return &TwilioClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		accountSID: accountSID,
		authToken:  authToken,
		from:       from,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *TwilioClient) IsConfigured() bool {
	return c.accountSID != "" && c.authToken != "" && c.from != ""
}

// Send posts a form-encoded message and expects 201 Created.
func (c *TwilioClient) Send(ctx context.Context, to, body string) error {
	if !c.IsConfigured() {
		return fmt.Errorf("twilio: sms is not configured")
	}

	form := url.Values{}
	form.Set("To", to)
	form.Set("From", c.from)
	form.Set("Body", body)

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", c.baseURL, url.PathEscape(c.accountSID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.SetBasicAuth(c.accountSID, c.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return statusError("twilio", resp)
	}

	var msg twilioMessage
	if err := json.NewDecoder(resp.Body).Decode(&msg); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if msg.SID == "" {
		return fmt.Errorf("twilio: response carried no message sid")
	}
	return nil
}

var _ SMSClient = (*TwilioClient)(nil)
