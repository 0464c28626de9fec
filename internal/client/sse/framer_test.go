package sse

import (
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, r io.Reader) []Event {
	t.Helper()
	f := NewFramer(r)
	var out []Event
	for {
		ev, err := f.Next()
		if errors.Is(err, io.EOF) {
			return out
		}
		require.NoError(t, err)
		out = append(out, ev)
	}
}

func TestFramerSplitsRecords(t *testing.T) {
	raw := "event: progress\ndata: {\"index\":0,\"status\":\"generating\"}\n\n" +
		"event:complete\ndata:{\"index\":0,\"image_url\":\"/api/images/t/0.png\"}\n\n"

	events := collect(t, strings.NewReader(raw))
	require.Len(t, events, 2)
	require.Equal(t, "progress", events[0].Type)
	require.JSONEq(t, `{"index":0,"status":"generating"}`, string(events[0].Data))
	require.Equal(t, "complete", events[1].Type)
}

func TestFramerToleratesCRLFAndChunking(t *testing.T) {
	raw := "event: error\r\ndata: {\"index\":2,\"message\":\"超时\"}\r\n\r\n" +
		"event: finish\ndata: {\"completed\":1}\n\n"

	// 每次只读一个字节，模拟被拆碎的网络分片
	events := collect(t, iotest.OneByteReader(strings.NewReader(raw)))
	require.Len(t, events, 2)
	require.Equal(t, "error", events[0].Type)
	require.JSONEq(t, `{"index":2,"message":"超时"}`, string(events[0].Data))
	require.Equal(t, "finish", events[1].Type)
}

func TestFramerFlushesTrailingRecord(t *testing.T) {
	raw := "event: finish\ndata: {\"success\":true}"
	events := collect(t, strings.NewReader(raw))
	require.Len(t, events, 1)
	require.Equal(t, "finish", events[0].Type)
}

func TestFramerSkipsIncompleteRecords(t *testing.T) {
	raw := ": keepalive\n\n" +
		"data: {\"orphan\":true}\n\n" +
		"event: progress\n\n" +
		"event: complete\ndata: {\"index\":1}\n\n"

	events := collect(t, strings.NewReader(raw))
	require.Len(t, events, 1)
	require.Equal(t, "complete", events[0].Type)
}

func TestFramerReportsReadError(t *testing.T) {
	boom := errors.New("connection reset")
	r := io.MultiReader(strings.NewReader("event: progress\ndata: {}\n\n"), iotest.ErrReader(boom))

	f := NewFramer(r)
	ev, err := f.Next()
	require.NoError(t, err)
	require.Equal(t, "progress", ev.Type)

	_, err = f.Next()
	require.ErrorIs(t, err, boom)
}
