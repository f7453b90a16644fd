package worker

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestClassifyInvalidResponse(t *testing.T) {
	err := json.Unmarshal([]byte("{not json"), &struct{}{})
	require.Error(t, err)
	require.Equal(t, FamilyInvalidResponse, Classify(err))
	require.Equal(t, FamilyInvalidResponse, Classify(&SchemaError{Msg: "missing field x"}))
}

func TestClassifyUnavailable(t *testing.T) {
	require.Equal(t, FamilyUnavailable, Classify(context.DeadlineExceeded))
}

func TestBackoffSchedule(t *testing.T) {
	require.Equal(t, 1*time.Second, BackoffFor(1))
	require.Equal(t, 2*time.Second, BackoffFor(2))
	require.Equal(t, 4*time.Second, BackoffFor(3))
	require.Equal(t, 8*time.Second, BackoffFor(4))
	require.Equal(t, 16*time.Second, BackoffFor(5))
	require.Equal(t, 16*time.Second, BackoffFor(6))
	require.Equal(t, time.Duration(0), BackoffFor(0))
	require.Equal(t, 5, MaxBoundedAttempts)
}
