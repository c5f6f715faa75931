package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubClient struct{ id int }

func (stubClient) ReadValue(ctx context.Context, address, method string, args []interface{}) (json.RawMessage, error) {
	return nil, nil
}

func (stubClient) SubmitWrite(ctx context.Context, address, method string, args []interface{}, value int64) (JobHandle, error) {
	return JobHandle{}, nil
}

func (stubClient) AwaitConfirmation(ctx context.Context, handle JobHandle, opts ConfirmOptions) (*Receipt, error) {
	return nil, nil
}

func TestBinderEnsureIsIdempotent(t *testing.T) {
	var dials int32
	binder := NewBinder(func(ctx context.Context, key BindingKey) (Client, error) {
		atomic.AddInt32(&dials, 1)
		return stubClient{id: 1}, nil
	})

	key := BindingKey{Account: "0xabc", Network: "mainnet"}
	first, err := binder.Ensure(context.Background(), key)
	require.NoError(t, err)
	second, err := binder.Ensure(context.Background(), key)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), atomic.LoadInt32(&dials))
}

func TestBinderDialsPerKey(t *testing.T) {
	var dials int32
	binder := NewBinder(func(ctx context.Context, key BindingKey) (Client, error) {
		atomic.AddInt32(&dials, 1)
		return stubClient{}, nil
	})

	_, err := binder.Ensure(context.Background(), BindingKey{Account: "0xabc", Network: "mainnet"})
	require.NoError(t, err)
	_, err = binder.Ensure(context.Background(), BindingKey{Account: "0xabc", Network: "testnet"})
	require.NoError(t, err)

	assert.Equal(t, int32(2), atomic.LoadInt32(&dials))
}

func TestBinderFailureResetsSlot(t *testing.T) {
	var dials int32
	binder := NewBinder(func(ctx context.Context, key BindingKey) (Client, error) {
		if atomic.AddInt32(&dials, 1) == 1 {
			return nil, errors.New("dial failed")
		}
		return stubClient{}, nil
	})

	key := BindingKey{Account: "0xabc", Network: "mainnet"}
	_, err := binder.Ensure(context.Background(), key)
	require.Error(t, err)

	client, err := binder.Ensure(context.Background(), key)
	require.NoError(t, err)
	assert.NotNil(t, client)
	assert.Equal(t, int32(2), atomic.LoadInt32(&dials))
}

func TestBinderConcurrentEnsureSingleDial(t *testing.T) {
	var dials int32
	release := make(chan struct{})
	binder := NewBinder(func(ctx context.Context, key BindingKey) (Client, error) {
		atomic.AddInt32(&dials, 1)
		<-release
		return stubClient{}, nil
	})

	key := BindingKey{Account: "0xabc", Network: "mainnet"}
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := binder.Ensure(context.Background(), key)
			assert.NoError(t, err)
		}()
	}

	time.Sleep(10 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&dials))
}
