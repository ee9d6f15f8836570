package adapter

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServeStream(t *testing.T) {
	s := newTestStack(t)
	in := strings.Join([]string{
		`{"type":"get-skill-tree","treeId":"t1","requestId":"r1"}`,
		``,
		`{"type":"unknown-command","requestId":"r2"}`,
		`not json`,
		`{"type":"list-skill-trees","requestId":"r3"}`,
	}, "\n")

	var out bytes.Buffer
	require.NoError(t, s.adapter.ServeStream(context.Background(), strings.NewReader(in), &out))

	replies := map[string]Response{}
	scanner := bufio.NewScanner(&out)
	for scanner.Scan() {
		var resp Response
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &resp))
		replies[resp.RequestID] = resp
	}
	require.Len(t, replies, 4)

	assert.True(t, replies["r1"].OK)
	assert.False(t, replies["r2"].OK)
	assert.True(t, replies["r3"].OK)
	assert.False(t, replies[UnknownRequestID].OK)
	assert.Contains(t, replies[UnknownRequestID].Error, "malformed message")
}
