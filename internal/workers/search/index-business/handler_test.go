package indexbusiness

import (
	"context"
	"fmt"
	"testing"
	"time"

	"tucomercio/internal/common/errors"
	"tucomercio/internal/common/logger"
	"tucomercio/internal/search"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type MockSyncer struct {
	SyncFunc func(ctx context.Context, businessID string) (search.SyncResult, error)
}

func (m *MockSyncer) Sync(ctx context.Context, businessID string) (search.SyncResult, error) {
	return m.SyncFunc(ctx, businessID)
}

func newTestHandler(t *testing.T, syncer Syncer) *Handler {
	return NewHandler(&Config{Timeout: 5 * time.Second}, syncer, nil, logger.NewTestLogger(t))
}

func TestHandler_Execute(t *testing.T) {
	tests := []struct {
		name     string
		input    *Input
		result   search.SyncResult
		syncErr  error
		want     search.SyncResult
		wantCode errors.ErrorCode
	}{
		{name: "approved business indexed", input: &Input{BusinessID: "b1"}, result: search.SyncIndexed, want: search.SyncIndexed},
		{name: "other status removed", input: &Input{BusinessID: "b1"}, result: search.SyncRemoved, want: search.SyncRemoved},
		{name: "missing id", input: &Input{}, wantCode: errors.ErrCodeValidationFailed},
		{
			name:     "elasticsearch failure keeps its code",
			input:    &Input{BusinessID: "b1"},
			syncErr:  errors.NewSearchIndexFailedError("b1", fmt.Errorf("503")),
			wantCode: errors.ErrCodeSearchIndexFailed,
		},
		{
			name:     "unknown failure becomes index failure",
			input:    &Input{BusinessID: "b1"},
			syncErr:  fmt.Errorf("boom"),
			wantCode: errors.ErrCodeSearchIndexFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			h := newTestHandler(t, &MockSyncer{SyncFunc: func(_ context.Context, id string) (search.SyncResult, error) {
				calls++
				assert.Equal(t, "b1", id)
				return tt.result, tt.syncErr
			}})

			out, err := h.Execute(context.Background(), tt.input)
			if tt.wantCode != "" {
				require.Error(t, err)
				assert.True(t, errors.HasCode(err, tt.wantCode), err.Error())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, 1, calls)
			assert.Equal(t, tt.want, out.Result)
			assert.Equal(t, "b1", out.BusinessID)
		})
	}
}

func TestGetRetryCount_IndexFailuresAreRetried(t *testing.T) {
	bpmn := errors.ConvertToBPMNError(errors.NewSearchIndexFailedError("b1", fmt.Errorf("timeout")))
	assert.Equal(t, 3, bpmn.Retries)
}
