package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/learnledger/editor-api/pkg/config"
	appErrors "github.com/learnledger/editor-api/pkg/errors"
	"github.com/learnledger/editor-api/pkg/retry"
)

// GatewayClient talks to the ledger gateway REST service, which wraps node
// access and the signing environment behind plain HTTP.
type GatewayClient struct {
	baseURL      string
	http         *http.Client
	pollInterval time.Duration
	logger       *zap.Logger
}

// NewGatewayClient constructs the client from ledger config.
func NewGatewayClient(cfg config.LedgerConfig, logger *zap.Logger) *GatewayClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	interval := cfg.ConfirmPollInterval
	if interval <= 0 {
		interval = 3 * time.Second
	}
	return &GatewayClient{
		baseURL:      strings.TrimRight(cfg.GatewayURL, "/"),
		http:         &http.Client{Timeout: 30 * time.Second},
		pollInterval: interval,
		logger:       logger,
	}
}

type callRequest struct {
	Address string        `json:"address"`
	Method  string        `json:"method"`
	Args    []interface{} `json:"args"`
}

type callResponse struct {
	Value json.RawMessage `json:"value"`
	Error *gatewayError   `json:"error,omitempty"`
}

type submitRequest struct {
	Address string        `json:"address"`
	Method  string        `json:"method"`
	Args    []interface{} `json:"args"`
	Value   int64         `json:"value,omitempty"`
}

type submitResponse struct {
	TxID  string        `json:"txId"`
	Error *gatewayError `json:"error,omitempty"`
}

type txStatusResponse struct {
	Status      string        `json:"status"`
	BlockNumber int64         `json:"blockNumber"`
	AssignedID  int64         `json:"assignedId,omitempty"`
	Error       *gatewayError `json:"error,omitempty"`
}

type gatewayError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *gatewayError) toError() error {
	if e == nil {
		return nil
	}
	switch e.Code {
	case "NONCE_CONFLICT":
		return appErrors.Clone(appErrors.ErrCounterConflict, e.Message)
	case "SIGNATURE_DECLINED":
		return appErrors.Clone(appErrors.ErrSignatureDeclined, e.Message)
	case "EXECUTION_REVERTED":
		return appErrors.Clone(appErrors.ErrLedgerRevert, e.Message)
	default:
		return appErrors.Wrap(fmt.Errorf("gateway error %s: %s", e.Code, e.Message),
			appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "ledger gateway error")
	}
}

// ReadValue performs a read-only contract call.
func (c *GatewayClient) ReadValue(ctx context.Context, address, method string, args []interface{}) (json.RawMessage, error) {
	var resp callResponse
	if err := c.post(ctx, "/v1/calls", callRequest{Address: address, Method: method, Args: args}, &resp); err != nil {
		return nil, err
	}
	if err := resp.Error.toError(); err != nil {
		return nil, err
	}
	return resp.Value, nil
}

// SubmitWrite hands a write to the signing environment and returns its handle.
func (c *GatewayClient) SubmitWrite(ctx context.Context, address, method string, args []interface{}, value int64) (JobHandle, error) {
	var resp submitResponse
	if err := c.post(ctx, "/v1/transactions", submitRequest{Address: address, Method: method, Args: args, Value: value}, &resp); err != nil {
		return JobHandle{}, err
	}
	if err := resp.Error.toError(); err != nil {
		return JobHandle{}, err
	}
	if resp.TxID == "" {
		return JobHandle{}, appErrors.Wrap(fmt.Errorf("empty txId"), appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "ledger gateway error")
	}
	return JobHandle{ID: resp.TxID}, nil
}

// AwaitConfirmation polls transaction status until the write is included with
// the requested depth. A timeout means the outcome is unknown, which callers
// must treat differently from a definite revert.
func (c *GatewayClient) AwaitConfirmation(ctx context.Context, handle JobHandle, opts ConfirmOptions) (*Receipt, error) {
	if opts.Confirmations <= 0 {
		opts.Confirmations = 1
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 90 * time.Second
	}
	attempts := int(opts.Timeout/c.pollInterval) + 1

	var receipt *Receipt
	err := retry.Poll(ctx, retry.Config{Interval: c.pollInterval, MaxAttempts: attempts}, func(ctx context.Context) (bool, error) {
		var resp txStatusResponse
		path := fmt.Sprintf("/v1/transactions/%s?confirmations=%d", handle.ID, opts.Confirmations)
		if err := c.get(ctx, path, &resp); err != nil {
			// transient gateway trouble keeps the poll alive
			c.logger.Warn("transaction status poll failed", zap.String("tx", handle.ID), zap.Error(err))
			return false, nil
		}
		switch resp.Status {
		case "confirmed":
			receipt = &Receipt{Handle: handle, BlockNumber: resp.BlockNumber, AssignedID: resp.AssignedID}
			return true, nil
		case "reverted":
			if err := resp.Error.toError(); err != nil {
				return false, err
			}
			return false, appErrors.ErrLedgerRevert
		case "declined":
			return false, appErrors.ErrSignatureDeclined
		default:
			return false, nil
		}
	})
	if err != nil {
		if errors.Is(err, retry.ErrAttemptsExhausted) {
			return nil, appErrors.Clone(appErrors.ErrConfirmationTimeout, fmt.Sprintf("transaction %s not confirmed within %s", handle.ID, opts.Timeout))
		}
		return nil, err
	}
	return receipt, nil
}

func (c *GatewayClient) post(ctx context.Context, path string, body interface{}, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal gateway request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *GatewayClient) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *GatewayClient) do(req *http.Request, out interface{}) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("gateway %s: status %d", req.URL.Path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode gateway response: %w", err)
	}
	return nil
}
