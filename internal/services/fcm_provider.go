package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/OdannysDeLaCruz/intrabb-backend-sub000/pkg/retry"
)

// FCMProvider sends notifications via Firebase Cloud Messaging.
type FCMProvider struct {
	serverKey string
	endpoint  string
	client    *http.Client
	logger    *slog.Logger
	retryCfg  retry.Config
}

func NewFCMProvider(serverKey, endpoint string, timeout time.Duration, logger *slog.Logger) *FCMProvider {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &FCMProvider{
		serverKey: serverKey,
		endpoint:  endpoint,
		client: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
		retryCfg: retry.Config{
			MaxAttempts:    2,
			InitialBackoff: 300 * time.Millisecond,
			MaxBackoff:     2 * time.Second,
		},
	}
}

func (p *FCMProvider) Name() string {
	return "fcm"
}

func (p *FCMProvider) Send(ctx context.Context, payload *PushPayload) (*PushResponse, error) {
	if len(payload.Tokens) == 0 {
		return nil, fmt.Errorf("fcm: no tokens supplied")
	}

	regIDs := make([]string, 0, len(payload.Tokens))
	for _, token := range payload.Tokens {
		if token == "" {
			continue
		}
		regIDs = append(regIDs, token)
	}
	if len(regIDs) == 0 {
		return nil, fmt.Errorf("fcm: tokens were empty")
	}

	notification := map[string]string{
		"title": payload.Title,
		"body":  payload.Body,
	}
	if payload.ImageURL != "" {
		notification["image"] = payload.ImageURL
	}

	reqMap := map[string]interface{}{
		"registration_ids": regIDs,
		"notification":     notification,
	}
	if len(payload.Data) > 0 {
		reqMap["data"] = payload.Data
	}

	body, err := json.Marshal(reqMap)
	if err != nil {
		return nil, err
	}

	var fcmResp fcmResponse
	sendErr := retry.Do(ctx, p.retryCfg, func() error {
		return p.post(ctx, body, &fcmResp)
	})
	if sendErr != nil {
		return nil, sendErr
	}

	results := make([]PushResult, 0, len(fcmResp.Results))
	for idx, res := range fcmResp.Results {
		token := ""
		if idx < len(regIDs) {
			token = regIDs[idx]
		}
		result := PushResult{
			Token:     token,
			Success:   res.Error == "",
			MessageID: res.MessageID,
		}
		if res.Error != "" {
			result.Error = &PushError{Code: res.Error, Message: res.Error}
		}
		results = append(results, result)
	}

	return &PushResponse{
		SuccessCount: fcmResp.Success,
		FailureCount: fcmResp.Failure,
		Results:      results,
	}, nil
}

func (p *FCMProvider) post(ctx context.Context, body []byte, out *fcmResponse) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "key="+p.serverKey)

	resp, err := p.client.Do(req)
	if err != nil {
		p.logger.Warn("fcm request failed", slog.Any("error", err))
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("fcm: received status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

type fcmResponse struct {
	Success int `json:"success"`
	Failure int `json:"failure"`
	Results []struct {
		MessageID string `json:"message_id"`
		Error     string `json:"error"`
	} `json:"results"`
}
