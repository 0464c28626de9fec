package handler

import (
	"net/http"
	"net/url"
	"strconv"

	"github.com/gin-gonic/gin"

	"redink-api/internal/application/history"
	"redink-api/internal/interfaces/http/dto"
)

// IdempotencyKeyHeader 创建记录时可替代 client_token 的请求头
const IdempotencyKeyHeader = "Idempotency-Key"

// HistoryHandler 历史记录接口
type HistoryHandler struct {
	svc *history.Service
}

// NewHistoryHandler 创建处理器
func NewHistoryHandler(svc *history.Service) *HistoryHandler {
	return &HistoryHandler{svc: svc}
}

// Create 创建记录，同一 client_token 重复提交返回同一 record_id
// @Summary 创建历史记录
// @Tags History
// @Accept json
// @Produce json
// @Router /api/history [post]
func (h *HistoryHandler) Create(c *gin.Context) {
	var req dto.CreateHistoryRequest
	if !bindJSON(c, &req) {
		return
	}
	token := req.ClientToken
	if token == "" {
		token = c.GetHeader(IdempotencyKeyHeader)
	}
	id, created, err := h.svc.Create(c.Request.Context(), history.CreateRequest{
		Topic:       req.Topic,
		Outline:     req.Outline,
		TaskID:      req.TaskID,
		ClientToken: token,
	})
	if err != nil {
		dto.Error(c, err)
		return
	}
	dto.Success(c, gin.H{"record_id": id, "created": created})
}

// List 分页列出记录
// @Summary 历史记录列表
// @Tags History
// @Produce json
// @Param page query int false "页码" default(1)
// @Param page_size query int false "每页条数" default(20)
// @Param status query string false "状态过滤"
// @Router /api/history [get]
func (h *HistoryHandler) List(c *gin.Context) {
	page := dto.BindPage(c)
	result, err := h.svc.List(c.Request.Context(), c.Query("status"), page.Page, page.PageSize)
	if err != nil {
		dto.Error(c, err)
		return
	}
	dto.JSON(c, http.StatusOK, dto.ToHistoryListResponse(result))
}

// Get 记录详情
// @Summary 历史记录详情
// @Tags History
// @Produce json
// @Router /api/history/{id} [get]
func (h *HistoryHandler) Get(c *gin.Context) {
	rec, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		dto.Error(c, err)
		return
	}
	dto.Success(c, gin.H{"record": rec})
}

// Update 部分更新记录
// @Summary 更新历史记录
// @Tags History
// @Accept json
// @Produce json
// @Router /api/history/{id} [put]
func (h *HistoryHandler) Update(c *gin.Context) {
	var req dto.UpdateHistoryRequest
	if !bindJSON(c, &req) {
		return
	}
	rec, err := h.svc.Update(c.Request.Context(), c.Param("id"), req.ToService())
	if err != nil {
		dto.Error(c, err)
		return
	}
	dto.Success(c, gin.H{"record": rec})
}

// Delete 删除记录及任务图片
// @Summary 删除历史记录
// @Tags History
// @Produce json
// @Router /api/history/{id} [delete]
func (h *HistoryHandler) Delete(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), c.Param("id")); err != nil {
		dto.Error(c, err)
		return
	}
	dto.Success(c, nil)
}

// Exists 记录是否存在，直接查询存储
// @Summary 记录是否存在
// @Tags History
// @Produce json
// @Router /api/history/{id}/exists [get]
func (h *HistoryHandler) Exists(c *gin.Context) {
	ok, err := h.svc.Exists(c.Request.Context(), c.Param("id"))
	if err != nil {
		dto.Error(c, err)
		return
	}
	dto.Success(c, gin.H{"exists": ok})
}

// Search 标题搜索
// @Summary 搜索历史记录
// @Tags History
// @Produce json
// @Router /api/history/search [get]
func (h *HistoryHandler) Search(c *gin.Context) {
	records, err := h.svc.Search(c.Request.Context(), c.Query("keyword"))
	if err != nil {
		dto.Error(c, err)
		return
	}
	dto.Success(c, gin.H{"records": records})
}

// Stats 按状态统计
// @Summary 历史记录统计
// @Tags History
// @Produce json
// @Router /api/history/stats [get]
func (h *HistoryHandler) Stats(c *gin.Context) {
	stats, err := h.svc.Stats(c.Request.Context())
	if err != nil {
		dto.Error(c, err)
		return
	}
	dto.Success(c, gin.H{"total": stats.Total, "by_status": stats.ByStatus})
}

// ScanTask 同步单个任务目录的图片到记录
// @Summary 同步任务图片
// @Tags History
// @Produce json
// @Router /api/history/scan/{task_id} [post]
func (h *HistoryHandler) ScanTask(c *gin.Context) {
	res, err := h.svc.ScanTask(c.Request.Context(), c.Param("task_id"))
	if err != nil {
		dto.Error(c, err)
		return
	}
	dto.JSON(c, http.StatusOK, res)
}

// ScanAll 同步全部任务目录
// @Summary 全量同步
// @Tags History
// @Produce json
// @Router /api/history/scan-all [post]
func (h *HistoryHandler) ScanAll(c *gin.Context) {
	res, err := h.svc.ScanAll(c.Request.Context())
	if err != nil {
		dto.Error(c, err)
		return
	}
	dto.Success(c, gin.H{
		"total_tasks":  res.TotalTasks,
		"synced":       res.Synced,
		"failed":       res.Failed,
		"orphan_tasks": res.OrphanTasks,
		"results":      res.Results,
	})
}

func attachment(c *gin.Context, filename string) {
	c.Header("Content-Disposition", "attachment; filename*=UTF-8''"+url.PathEscape(filename))
}

// Export 导出 markdown 或 html
// @Summary 导出记录
// @Tags History
// @Produce text/markdown,text/html
// @Param format query string false "markdown | html"
// @Router /api/history/{id}/export [get]
func (h *HistoryHandler) Export(c *gin.Context) {
	out, err := h.svc.Export(c.Request.Context(), c.Param("id"), c.Query("format"))
	if err != nil {
		dto.Error(c, err)
		return
	}
	attachment(c, out.Filename)
	c.Data(http.StatusOK, out.ContentType, out.Body)
}

// Download 打包下载任务图片
// @Summary 打包下载
// @Tags History
// @Produce application/zip
// @Router /api/history/{id}/download [get]
func (h *HistoryHandler) Download(c *gin.Context) {
	archive, err := h.svc.Download(c.Request.Context(), c.Param("id"))
	if err != nil {
		dto.Error(c, err)
		return
	}
	attachment(c, archive.Filename)
	c.Header("X-Image-Count", strconv.Itoa(archive.Count))
	c.Data(http.StatusOK, "application/zip", archive.Body)
}
