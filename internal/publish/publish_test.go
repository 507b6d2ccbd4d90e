package publish

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecord_JSONWireFormat(t *testing.T) {
	ts := time.UnixMilli(1_700_000_000_123)
	b, err := json.Marshal(NewRecord(urlA, ts))
	require.NoError(t, err)
	assert.JSONEq(t, `{"url":"https://foo-bar.trycloudflare.com","updatedAt":1700000000123}`, string(b))

	var r Record
	require.NoError(t, json.Unmarshal(b, &r))
	assert.Equal(t, urlA, r.URL)
	assert.True(t, r.UpdatedAt.Equal(ts))
}

func TestErrorPredicates(t *testing.T) {
	rej := fmt.Errorf("publish: %w", &RemoteRejectedError{Status: 500})
	status, ok := IsRemoteRejected(rej)
	assert.True(t, ok)
	assert.Equal(t, 500, status)
	assert.False(t, IsTransportFailure(rej))

	cause := errors.New("dial tcp: connection refused")
	tr := Transport(cause)
	assert.True(t, IsTransportFailure(tr))
	assert.ErrorIs(t, tr, cause)
	_, ok = IsRemoteRejected(tr)
	assert.False(t, ok)
	assert.Contains(t, tr.Error(), "connection refused")

	assert.Nil(t, Transport(nil))
}
