// Package sse 把 text/event-stream 字节流切分成事件，与传输层无关
package sse

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"strings"
)

const maxRecordSize = 4 << 20

// Event 一条 SSE 记录
type Event struct {
	Type string
	Data json.RawMessage
}

// Framer 按空行切分记录，每条记录取 event 行与 data 行
type Framer struct {
	scanner *bufio.Scanner
}

// NewFramer 从任意 io.Reader 读取事件
func NewFramer(r io.Reader) *Framer {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), maxRecordSize)
	s.Split(splitRecords)
	return &Framer{scanner: s}
}

// Next 返回下一条事件，流结束时返回 io.EOF
// 缺少 event 或 data 的记录被跳过
func (f *Framer) Next() (Event, error) {
	for f.scanner.Scan() {
		if ev, ok := parseRecord(f.scanner.Bytes()); ok {
			return ev, nil
		}
	}
	if err := f.scanner.Err(); err != nil {
		return Event{}, err
	}
	return Event{}, io.EOF
}

// splitRecords 以 "\n\n" 或 "\r\n\r\n" 为分隔，EOF 时冲刷最后一段
func splitRecords(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	lf := bytes.Index(data, []byte("\n\n"))
	crlf := bytes.Index(data, []byte("\r\n\r\n"))
	switch {
	case crlf >= 0 && (lf < 0 || crlf < lf):
		return crlf + 4, data[:crlf], nil
	case lf >= 0:
		return lf + 2, data[:lf], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

func parseRecord(record []byte) (Event, bool) {
	var ev Event
	var data []string
	for _, line := range strings.Split(string(record), "\n") {
		line = strings.TrimRight(line, "\r")
		switch {
		case line == "" || strings.HasPrefix(line, ":"):
			continue
		case strings.HasPrefix(line, "event:"):
			if ev.Type == "" {
				ev.Type = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			}
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	if ev.Type == "" || len(data) == 0 {
		return Event{}, false
	}
	ev.Data = json.RawMessage(strings.Join(data, "\n"))
	return ev, true
}
