package client

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestLogKeepsInsertionOrder(t *testing.T) {
	l := newRequestLog(4)
	for i := 0; i < 3; i++ {
		l.append(RequestLogEntry{Path: "/" + strconv.Itoa(i)})
	}

	entries := l.snapshot()
	require.Len(t, entries, 3)
	assert.Equal(t, "/0", entries[0].Path)
	assert.Equal(t, "/2", entries[2].Path)
}

func TestRequestLogEvictsOldest(t *testing.T) {
	l := newRequestLog(3)
	for i := 0; i < 5; i++ {
		l.append(RequestLogEntry{Path: "/" + strconv.Itoa(i)})
	}

	entries := l.snapshot()
	require.Len(t, entries, 3)
	assert.Equal(t, "/2", entries[0].Path)
	assert.Equal(t, "/3", entries[1].Path)
	assert.Equal(t, "/4", entries[2].Path)
}

func TestRequestLogDefaultSize(t *testing.T) {
	l := newRequestLog(0)
	assert.Len(t, l.entries, defaultRequestLogSize)
}
