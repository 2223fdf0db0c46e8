package handler

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/cuongbtq/paper-processor/internal/processor/table"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobCursor(t *testing.T) {
	c := table.Cursor{CreatedAt: time.Unix(0, 1767261600123456789), JobID: "3f4c-job"}

	encoded := EncodeJobCursor(c)
	decoded, err := DecodeJobCursor(encoded)
	require.NoError(t, err)
	assert.True(t, c.CreatedAt.Equal(decoded.CreatedAt))
	assert.Equal(t, c.JobID, decoded.JobID)

	empty, err := DecodeJobCursor("")
	assert.NoError(t, err)
	assert.Nil(t, empty)
}

func TestDecodeJobCursor_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		cursor string
	}{
		{name: "not base64", cursor: "%%%"},
		{name: "no separator", cursor: base64.StdEncoding.EncodeToString([]byte("12345"))},
		{name: "bad timestamp", cursor: base64.StdEncoding.EncodeToString([]byte("abc|job"))},
		{name: "empty job id", cursor: base64.StdEncoding.EncodeToString([]byte("12345|"))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeJobCursor(tt.cursor)
			assert.Error(t, err)
		})
	}
}
