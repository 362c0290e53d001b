package sms

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"waitlist/internal/config"
)

const defaultTwilioBaseURL = "https://api.twilio.com"

// Error codes for destinations that will never accept a message.
var permanentCodes = map[int]bool{
	21211: true, // invalid 'To' number
	21610: true, // recipient unsubscribed
	21614: true, // not a mobile number
}

// TwilioClient sends SMS through the Twilio Messages REST API.
type TwilioClient struct {
	accountSID string
	authToken  string
	baseURL    string
	httpClient *http.Client
}

type twilioResponse struct {
	SID     string `json:"sid"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func NewTwilioClient(cfg config.SMSConfig) *TwilioClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultTwilioBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &TwilioClient{
		accountSID: cfg.AccountSID,
		authToken:  cfg.AuthToken,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *TwilioClient) Send(ctx context.Context, from, to, body string) (string, error) {
	form := url.Values{}
	form.Set("From", from)
	form.Set("To", to)
	form.Set("Body", body)

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", c.baseURL, url.PathEscape(c.accountSID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to build sms request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.SetBasicAuth(c.accountSID, c.authToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &ProviderError{Message: err.Error()}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return "", &ProviderError{StatusCode: resp.StatusCode, Message: err.Error()}
	}

	var parsed twilioResponse
	_ = json.Unmarshal(respBody, &parsed)

	if resp.StatusCode >= 300 {
		msg := parsed.Message
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return "", &ProviderError{
			Permanent:  permanentStatus(resp.StatusCode, parsed.Code),
			StatusCode: resp.StatusCode,
			Code:       parsed.Code,
			Message:    msg,
		}
	}

	if parsed.SID == "" {
		return "", &ProviderError{StatusCode: resp.StatusCode, Message: "response without message sid"}
	}
	return parsed.SID, nil
}

func permanentStatus(status, code int) bool {
	if permanentCodes[code] {
		return true
	}
	switch {
	case status == http.StatusTooManyRequests, status == http.StatusRequestTimeout:
		return false
	case status >= 500:
		return false
	default:
		return status >= 400
	}
}
