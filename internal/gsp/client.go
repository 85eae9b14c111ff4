// Package gsp is a minimal REST client for a GST Suvidha Provider's E-Way
// Bill API. It implements the rule engine's SubmissionGateway: it is called
// only after every local precondition has passed, and a failure here means
// the operation never happened locally.
package gsp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"ewaybill-cloud/internal/ewaybill/application"
	"ewaybill-cloud/internal/observability/metrics"
	"ewaybill-cloud/internal/timewindow"
)

// Client talks to the provider API.
type Client struct {
	baseURL string
	apiKey  string
	gstin   string
	client  *http.Client
}

// NewClient constructs a provider client.
func NewClient(baseURL, apiKey, gstin string) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("gsp: empty base url")
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		gstin:   gstin,
		client:  &http.Client{Timeout: 15 * time.Second},
	}, nil
}

// Provider action codes per operation.
var actionPaths = map[application.Operation]string{
	application.OpGenerate:          "/api/ewayapi/GENEWB",
	application.OpCancel:            "/api/ewayapi/CANEWB",
	application.OpUpdatePartB:       "/api/ewayapi/VEHEWB",
	application.OpChangeTransporter: "/api/ewayapi/UPDATETRANSPORTER",
	application.OpExtendValidity:    "/api/ewayapi/EXTENDVALIDITY",
	application.OpConsolidate:       "/api/ewayapi/GENCEWB",
}

type submitResponse struct {
	EwbNo      json.Number `json:"ewayBillNo"`
	CEwbNo     json.Number `json:"cEwbNo"`
	AckNo      string      `json:"ackNo"`
	ValidUpto  string      `json:"validUpto"`
	Status     string      `json:"status"`
	ErrorCodes string      `json:"errorCodes"`
}

// Submit posts an operation to the provider and maps its acknowledgement.
func (c *Client) Submit(ctx context.Context, op application.Operation, documentNo string, payload any) (application.ProviderConfirmation, error) {
	start := time.Now()
	conf, err := c.submit(ctx, op, documentNo, payload)
	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultError
	}
	metrics.ObserveGateway(string(op), result, time.Since(start))
	return conf, err
}

func (c *Client) submit(ctx context.Context, op application.Operation, documentNo string, payload any) (application.ProviderConfirmation, error) {
	path, ok := actionPaths[op]
	if !ok {
		return application.ProviderConfirmation{}, fmt.Errorf("gsp: unknown operation %q", op)
	}

	body := map[string]any{"data": payload}
	if documentNo != "" {
		body["ewbNo"] = documentNo
	}

	var resp submitResponse
	if err := c.doJSON(ctx, http.MethodPost, path, body, &resp); err != nil {
		return application.ProviderConfirmation{}, err
	}
	if strings.EqualFold(resp.Status, "0") || resp.ErrorCodes != "" {
		return application.ProviderConfirmation{}, fmt.Errorf("gsp: provider rejected operation (codes %s)", resp.ErrorCodes)
	}

	conf := application.ProviderConfirmation{Reference: resp.AckNo}
	switch op {
	case application.OpConsolidate:
		conf.DocumentNo = resp.CEwbNo.String()
	default:
		if resp.EwbNo.String() != "0" && resp.EwbNo.String() != "" {
			conf.DocumentNo = resp.EwbNo.String()
		}
	}
	if resp.ValidUpto != "" {
		if validUntil, err := timewindow.ParseFlexibleDate(resp.ValidUpto); err == nil {
			conf.ValidUntil = validUntil
		}
	}
	return conf, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body any, out any) error {
	var reqBody *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(payload)
	} else {
		reqBody = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
	if c.gstin != "" {
		req.Header.Set("X-Gstin", c.gstin)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("gsp: http %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
