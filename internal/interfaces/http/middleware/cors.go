package middleware

import (
	"slices"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"redink-api/internal/config"
)

// exposedHeaders 前端下载导出文件、读取限流余量需要的响应头
var exposedHeaders = []string{
	"X-Request-ID", "X-Trace-ID",
	"Content-Disposition", "X-Image-Count",
	"X-RateLimit-Limit", "X-RateLimit-Remaining", "Retry-After",
}

// CORS 跨域中间件，前端与服务分开部署时使用；来源为 * 时不允许携带凭证
func CORS(cfg config.CORSConfig) gin.HandlerFunc {
	c := cors.Config{
		AllowOrigins:  cfg.AllowedOrigins,
		AllowMethods:  cfg.AllowedMethods,
		AllowHeaders:  cfg.AllowedHeaders,
		ExposeHeaders: exposedHeaders,
		MaxAge:        12 * time.Hour,
	}
	if len(c.AllowMethods) == 0 {
		c.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	}
	if len(c.AllowHeaders) == 0 {
		c.AllowHeaders = []string{"Origin", "Content-Type", "X-Request-ID", "Idempotency-Key"}
	}
	if len(c.AllowOrigins) == 0 || slices.Contains(c.AllowOrigins, "*") {
		c.AllowOrigins = nil
		c.AllowAllOrigins = true
	} else {
		c.AllowCredentials = true
	}
	return cors.New(c)
}
