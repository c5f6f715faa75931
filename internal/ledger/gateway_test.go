package ledger

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/learnledger/editor-api/pkg/config"
	appErrors "github.com/learnledger/editor-api/pkg/errors"
)

func newTestGateway(t *testing.T, handler http.Handler) *GatewayClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewGatewayClient(config.LedgerConfig{
		GatewayURL:          srv.URL,
		ConfirmPollInterval: 5 * time.Millisecond,
	}, nil)
}

func TestGatewaySubmitAndConfirm(t *testing.T) {
	var polls int32
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/transactions", func(w http.ResponseWriter, r *http.Request) {
		var req submitRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "addSection", req.Method)
		json.NewEncoder(w).Encode(submitResponse{TxID: "tx-1"})
	})
	mux.HandleFunc("/v1/transactions/tx-1", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "2", r.URL.Query().Get("confirmations"))
		if atomic.AddInt32(&polls, 1) < 3 {
			json.NewEncoder(w).Encode(txStatusResponse{Status: "pending"})
			return
		}
		json.NewEncoder(w).Encode(txStatusResponse{Status: "confirmed", BlockNumber: 1200, AssignedID: 42})
	})

	client := newTestGateway(t, mux)

	handle, err := client.SubmitWrite(context.Background(), "0xcourse", "addSection", []interface{}{int64(7), "Intro"}, 0)
	require.NoError(t, err)
	assert.Equal(t, "tx-1", handle.ID)

	receipt, err := client.AwaitConfirmation(context.Background(), handle, ConfirmOptions{Confirmations: 2, Timeout: time.Second})
	require.NoError(t, err)
	assert.Equal(t, int64(1200), receipt.BlockNumber)
	assert.Equal(t, int64(42), receipt.AssignedID)
	assert.GreaterOrEqual(t, atomic.LoadInt32(&polls), int32(3))
}

func TestGatewayMapsErrorCodes(t *testing.T) {
	cases := []struct {
		code string
		want error
	}{
		{"NONCE_CONFLICT", appErrors.ErrCounterConflict},
		{"SIGNATURE_DECLINED", appErrors.ErrSignatureDeclined},
		{"EXECUTION_REVERTED", appErrors.ErrLedgerRevert},
	}

	for _, tc := range cases {
		t.Run(tc.code, func(t *testing.T) {
			mux := http.NewServeMux()
			mux.HandleFunc("/v1/transactions", func(w http.ResponseWriter, r *http.Request) {
				json.NewEncoder(w).Encode(submitResponse{Error: &gatewayError{Code: tc.code, Message: "nope"}})
			})
			client := newTestGateway(t, mux)

			_, err := client.SubmitWrite(context.Background(), "0xcourse", "updateMetadata", nil, 0)
			require.ErrorIs(t, err, tc.want)
		})
	}
}

func TestGatewayConfirmationTimeout(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/transactions/tx-9", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(txStatusResponse{Status: "pending"})
	})
	client := newTestGateway(t, mux)

	_, err := client.AwaitConfirmation(context.Background(), JobHandle{ID: "tx-9"}, ConfirmOptions{Timeout: 20 * time.Millisecond})
	require.ErrorIs(t, err, appErrors.ErrConfirmationTimeout)
}

func TestGatewayRevertDuringConfirmation(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/transactions/tx-2", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(txStatusResponse{Status: "reverted", Error: &gatewayError{Code: "EXECUTION_REVERTED", Message: "not owner"}})
	})
	client := newTestGateway(t, mux)

	_, err := client.AwaitConfirmation(context.Background(), JobHandle{ID: "tx-2"}, ConfirmOptions{Timeout: time.Second})
	require.ErrorIs(t, err, appErrors.ErrLedgerRevert)
}

func TestGatewayReadValue(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/calls", func(w http.ResponseWriter, r *http.Request) {
		var req callRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "getCourse", req.Method)
		json.NewEncoder(w).Encode(callResponse{Value: json.RawMessage(`{"id":7}`)})
	})
	client := newTestGateway(t, mux)

	raw, err := client.ReadValue(context.Background(), "0xcourse", "getCourse", []interface{}{int64(7)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":7}`, string(raw))
}
