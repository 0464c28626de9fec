package router

import (
	"github.com/gin-gonic/gin"

	"redink-api/internal/domain/entity"
	"redink-api/internal/interfaces/http/handler"
)

// Handlers 路由所需的全部处理器，为 nil 的分组不注册
type Handlers struct {
	Health     *handler.HealthHandler
	Creation   *handler.CreationHandler
	Generation *handler.GenerationHandler
	History    *handler.HistoryHandler
	Brand      *handler.BrandHandler
}

// RegisterAPIRoutes 注册 /api 路由，limit 作用于调用模型的接口
func RegisterAPIRoutes(api *gin.RouterGroup, h Handlers, limit gin.HandlerFunc) {
	if h.Creation != nil {
		api.POST("/outline", limit, h.Creation.Outline)
		api.POST("/content", limit, h.Creation.Content)
		api.POST("/parse-link", h.Creation.ParseLink)
	}

	if gen := h.Generation; gen != nil {
		// SSE
		api.POST("/generate", limit, gen.Generate)
		api.POST("/retry-failed", limit, gen.RetryFailed)
		api.POST("/retry", limit, gen.Retry)
		api.POST("/regenerate", limit, gen.Regenerate)
		api.POST("/edit", limit, gen.Edit)
		api.POST("/save-canvas", gen.SaveCanvas)
		api.POST("/apply-logo", gen.ApplyLogo)
		api.GET("/images/:task_id/:filename", gen.Image)
		api.GET("/task/:task_id", gen.Task)
	}

	// 历史记录，静态段需在 /:id 之前
	if hist := h.History; hist != nil {
		history := api.Group("/history")
		{
			history.POST("", hist.Create)
			history.GET("", hist.List)
			history.GET("/search", hist.Search)
			history.GET("/stats", hist.Stats)
			history.POST("/scan-all", hist.ScanAll)
			history.POST("/scan/:task_id", hist.ScanTask)
			history.GET("/:id", hist.Get)
			history.PUT("/:id", hist.Update)
			history.DELETE("/:id", hist.Delete)
			history.GET("/:id/exists", hist.Exists)
			history.GET("/:id/export", hist.Export)
			history.GET("/:id/download", hist.Download)
		}
	}

	if b := h.Brand; b != nil {
		brands := api.Group("/brands")
		{
			brands.GET("", b.List)
			brands.POST("", b.Create)
			brands.GET("/active", b.Active)
			brands.GET("/:id", b.Get)
			brands.PUT("/:id", b.Update)
			brands.DELETE("/:id", b.Delete)
			brands.POST("/:id/activate", b.Activate)

			// logo
			brands.POST("/:id/logo", b.UploadLogo)
			brands.GET("/:id/logo", b.Logo)
			brands.DELETE("/:id/logo", b.DeleteLogo)
			brands.PUT("/:id/logo/description", b.DescribeLogo)

			// 内容样本
			brands.GET("/:id/contents", b.ListContents(entity.ContentKindCompany))
			brands.POST("/:id/contents", b.AddContent(entity.ContentKindCompany))
			brands.DELETE("/:id/contents/:cid", b.DeleteContent(entity.ContentKindCompany))
			brands.GET("/:id/competitors", b.ListContents(entity.ContentKindCompetitor))
			brands.POST("/:id/competitors", b.AddContent(entity.ContentKindCompetitor))
			brands.DELETE("/:id/competitors/:cid", b.DeleteContent(entity.ContentKindCompetitor))

			brands.POST("/:id/extract-style", limit, b.ExtractStyle)
		}
	}
}
