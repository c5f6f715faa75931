package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	appErrors "github.com/learnledger/editor-api/pkg/errors"
)

// JobHandle references a submitted write while it awaits inclusion.
type JobHandle struct {
	ID string `json:"id"`
}

// Receipt is the confirmed result of a write job. AssignedID is populated for
// methods that allocate an identifier (section adds).
type Receipt struct {
	Handle      JobHandle `json:"handle"`
	BlockNumber int64     `json:"blockNumber"`
	AssignedID  int64     `json:"assignedId,omitempty"`
}

// ConfirmOptions bounds confirmation waiting.
type ConfirmOptions struct {
	Confirmations int
	Timeout       time.Duration
}

// Client is the abstract ledger contract consumed by the commit pipeline.
// Writes are submitted one at a time: the signing account has a single
// monotonically increasing write counter shared across all jobs.
type Client interface {
	ReadValue(ctx context.Context, address, method string, args []interface{}) (json.RawMessage, error)
	SubmitWrite(ctx context.Context, address, method string, args []interface{}, value int64) (JobHandle, error)
	AwaitConfirmation(ctx context.Context, handle JobHandle, opts ConfirmOptions) (*Receipt, error)
}

// IsCounterConflict reports a transient stale-nonce submission failure.
func IsCounterConflict(err error) bool {
	return errors.Is(err, appErrors.ErrCounterConflict)
}

// IsSignatureDeclined reports that the signer refused the write.
func IsSignatureDeclined(err error) bool {
	return errors.Is(err, appErrors.ErrSignatureDeclined)
}

// IsRevert reports that the write executed but the ledger rejected it.
func IsRevert(err error) bool {
	return errors.Is(err, appErrors.ErrLedgerRevert)
}

// IsConfirmationTimeout reports an unknown-outcome confirmation wait.
func IsConfirmationTimeout(err error) bool {
	return errors.Is(err, appErrors.ErrConfirmationTimeout)
}
