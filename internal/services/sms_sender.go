package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// HTTPSMSSender delivers escalation texts through an HTTP SMS gateway.
type HTTPSMSSender struct {
	baseURL string
	token   string
	client  *http.Client
}

func NewHTTPSMSSender(baseURL, token string, timeout time.Duration) *HTTPSMSSender {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPSMSSender{
		baseURL: baseURL,
		token:   token,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

type smsRequest struct {
	TextMessage struct {
		Text string `json:"text"`
	} `json:"textMessage"`
	PhoneNumbers []string `json:"phoneNumbers"`
}

func (s *HTTPSMSSender) Send(ctx context.Context, phone, text string) error {
	if s.baseURL == "" {
		return fmt.Errorf("sms gateway not configured")
	}

	var payload smsRequest
	payload.TextMessage.Text = text
	payload.PhoneNumbers = []string{phone}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("sms gateway returned status %d", resp.StatusCode)
	}
	return nil
}
