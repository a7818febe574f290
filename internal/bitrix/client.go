// Package bitrix is the remote gateway to the CRM portal: a thin REST
// client plus the typed operations the diagnostics flow needs. Every
// operation is one webhook method call; a response carrying a "result"
// member succeeds, anything else becomes a *CallError.
package bitrix

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/GamechangerTeam/geokurs-form/internal/config"
	"github.com/GamechangerTeam/geokurs-form/internal/secret"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// CallError is a failed portal method call. Message is the portal-supplied
// description when the portal answered, the transport error otherwise.
type CallError struct {
	Method  string
	Message string
}

func (e *CallError) Error() string {
	return fmt.Sprintf("%s: %s", e.Method, e.Message)
}

type Client struct {
	http   *resty.Client
	cfg    config.Config
	logger *zap.Logger
}

func NewClient(cfg config.Config, logger *zap.Logger) *Client {
	httpClient := resty.New().
		SetHeader("Content-Type", "application/json").
		SetTimeout(cfg.Timeout).
		SetRetryCount(1).
		SetRetryWaitTime(1 * time.Second).
		SetRetryMaxWaitTime(2 * time.Second).
		AddRetryCondition(func(resp *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return resp != nil && resp.StatusCode() == http.StatusServiceUnavailable
		})

	return &Client{
		http:   httpClient,
		cfg:    cfg,
		logger: logger.Named("bitrix"),
	}
}

// Call executes one named portal method. The webhook base URL is resolved
// (and decrypted) on every call so a freshly initialized link is never
// cached stale.
func (c *Client) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	base, err := secret.WebhookURL(c.cfg.WebhookLink, c.cfg.CryptoKey, c.cfg.CryptoIV)
	if err != nil {
		return nil, &CallError{Method: method, Message: err.Error()}
	}

	url := strings.TrimRight(base, "/") + "/" + method + ".json"

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(params).
		Post(url)
	if err != nil {
		return nil, &CallError{Method: method, Message: err.Error()}
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(resp.Body(), &envelope); err != nil {
		return nil, &CallError{Method: method, Message: fmt.Sprintf("decoding response: %v", err)}
	}

	if result, ok := envelope["result"]; ok {
		return result, nil
	}

	message := "portal call failed"
	if raw, ok := envelope["error_description"]; ok {
		var s string
		if json.Unmarshal(raw, &s) == nil && s != "" {
			message = s
		}
	} else if raw, ok := envelope["error"]; ok {
		var s string
		if json.Unmarshal(raw, &s) == nil && s != "" {
			message = s
		}
	}

	c.logger.Warn("portal call failed",
		zap.String("method", method),
		zap.String("message", message),
	)
	return nil, &CallError{Method: method, Message: message}
}

// CallBatch executes several encoded commands in one round trip.
func (c *Client) CallBatch(ctx context.Context, cmds map[string]string, halt bool) (BatchResult, error) {
	haltFlag := 0
	if halt {
		haltFlag = 1
	}

	raw, err := c.Call(ctx, "batch", map[string]any{
		"halt": haltFlag,
		"cmd":  cmds,
	})
	if err != nil {
		return BatchResult{}, err
	}

	var result BatchResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return BatchResult{}, &CallError{Method: "batch", Message: fmt.Sprintf("decoding batch result: %v", err)}
	}
	return result, nil
}
