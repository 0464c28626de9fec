package handler

import (
	"io"

	"github.com/gin-gonic/gin"

	"redink-api/internal/application/generation"
)

// streamEvents 把生成事件写成 SSE，事件流关闭或客户端断开时结束
// 断开后继续排空事件流，生成协程不会因为写满而阻塞
func streamEvents(c *gin.Context, events <-chan generation.Event) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	done := c.Request.Context().Done()
	c.Stream(func(w io.Writer) bool {
		select {
		case ev, ok := <-events:
			if !ok {
				return false
			}
			c.SSEvent(ev.Type, ev.Data)
			return true
		case <-done:
			go drain(events)
			return false
		}
	})
}

func drain(events <-chan generation.Event) {
	for range events {
	}
}
