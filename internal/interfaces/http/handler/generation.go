package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"redink-api/internal/application/generation"
	"redink-api/internal/interfaces/http/dto"
)

const defaultEditSize = "1024x1024"

// GenerationHandler 图片生成相关接口
type GenerationHandler struct {
	svc *generation.Service
}

// NewGenerationHandler 创建处理器
func NewGenerationHandler(svc *generation.Service) *GenerationHandler {
	return &GenerationHandler{svc: svc}
}

// Generate 批量生成页面图片，SSE 推送进度
// @Summary 批量生成图片
// @Tags Generation
// @Accept json
// @Produce text/event-stream
// @Router /api/generate [post]
func (h *GenerationHandler) Generate(c *gin.Context) {
	var req dto.GenerateRequest
	if !bindJSON(c, &req) {
		return
	}
	userImages, err := dto.DecodeImages("user_images", req.UserImages)
	if err != nil {
		dto.Error(c, err)
		return
	}

	_, events, err := h.svc.Generate(c.Request.Context(), generation.GenerateRequest{
		Pages:           req.Pages,
		TaskID:          req.TaskID,
		FullOutline:     req.FullOutline,
		UserTopic:       req.UserTopic,
		UserImages:      userImages,
		HighConcurrency: req.HighConcurrency,
	})
	if err != nil {
		dto.Error(c, err)
		return
	}
	streamEvents(c, events)
}

// RetryFailed 批量重试失败页面，SSE 推送进度
// @Summary 重试失败页面
// @Tags Generation
// @Accept json
// @Produce text/event-stream
// @Router /api/retry-failed [post]
func (h *GenerationHandler) RetryFailed(c *gin.Context) {
	var req dto.RetryFailedRequest
	if !bindJSON(c, &req) {
		return
	}
	events, err := h.svc.RetryFailed(c.Request.Context(), req.TaskID, req.Pages)
	if err != nil {
		dto.Error(c, err)
		return
	}
	streamEvents(c, events)
}

func (h *GenerationHandler) pageRequest(c *gin.Context) (generation.PageRequest, bool) {
	var req dto.SinglePageRequest
	if !bindJSON(c, &req) {
		return generation.PageRequest{}, false
	}
	if req.TaskID == "" || req.Page == nil {
		dto.BadRequest(c, "参数错误：task_id 和 page 不能为空")
		return generation.PageRequest{}, false
	}
	custom, err := dto.DecodeImage("custom_reference_image", req.CustomReferenceImage)
	if err != nil {
		dto.Error(c, err)
		return generation.PageRequest{}, false
	}
	return generation.PageRequest{
		TaskID:          req.TaskID,
		Page:            *req.Page,
		UseReference:    req.UseRef(),
		FullOutline:     req.FullOutline,
		UserTopic:       req.UserTopic,
		CustomReference: custom,
	}, true
}

func writePageResult(c *gin.Context, res *generation.PageResult, err error) {
	if err != nil {
		dto.Error(c, err)
		return
	}
	status := http.StatusOK
	if !res.Success {
		status = http.StatusInternalServerError
	}
	dto.JSON(c, status, res)
}

// Retry 重新生成单页并覆盖原图
// @Summary 重试单页
// @Tags Generation
// @Accept json
// @Produce json
// @Router /api/retry [post]
func (h *GenerationHandler) Retry(c *gin.Context) {
	req, ok := h.pageRequest(c)
	if !ok {
		return
	}
	res, err := h.svc.Retry(c.Request.Context(), req)
	writePageResult(c, res, err)
}

// Regenerate 重新生成单页为新版本
// @Summary 重绘单页
// @Tags Generation
// @Accept json
// @Produce json
// @Router /api/regenerate [post]
func (h *GenerationHandler) Regenerate(c *gin.Context) {
	req, ok := h.pageRequest(c)
	if !ok {
		return
	}
	res, err := h.svc.Regenerate(c.Request.Context(), req)
	writePageResult(c, res, err)
}

// Edit 蒙版局部重绘
// @Summary 局部重绘
// @Tags Generation
// @Accept json
// @Produce json
// @Router /api/edit [post]
func (h *GenerationHandler) Edit(c *gin.Context) {
	var req dto.EditRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.Index == nil {
		dto.BadRequest(c, "参数错误：index 不能为空")
		return
	}
	mask, err := dto.DecodeImage("mask", req.Mask)
	if err != nil {
		dto.Error(c, err)
		return
	}
	size := req.Size
	if size == "" {
		size = defaultEditSize
	}
	res, err := h.svc.Edit(c.Request.Context(), generation.EditRequest{
		TaskID:   req.TaskID,
		Index:    *req.Index,
		Prompt:   req.Prompt,
		Mask:     mask,
		Size:     size,
		Quality:  req.Quality,
		Model:    req.Model,
		Filename: req.Filename,
	})
	writePageResult(c, res, err)
}

// SaveCanvas 保存画布编辑结果
// @Summary 保存画布
// @Tags Generation
// @Accept json
// @Produce json
// @Router /api/save-canvas [post]
func (h *GenerationHandler) SaveCanvas(c *gin.Context) {
	var req dto.SaveCanvasRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.Index == nil {
		dto.BadRequest(c, "参数错误：index 不能为空")
		return
	}
	image, err := dto.DecodeImage("image", req.Image)
	if err != nil {
		dto.Error(c, err)
		return
	}
	res, err := h.svc.SaveCanvas(c.Request.Context(), req.TaskID, *req.Index, image)
	writePageResult(c, res, err)
}

// ApplyLogo 叠加激活品牌的 logo
// @Summary 叠加 logo
// @Tags Generation
// @Accept json
// @Produce json
// @Router /api/apply-logo [post]
func (h *GenerationHandler) ApplyLogo(c *gin.Context) {
	var req dto.ApplyLogoRequest
	if !bindJSON(c, &req) {
		return
	}
	image, err := dto.DecodeImage("image", req.Image)
	if err != nil {
		dto.Error(c, err)
		return
	}
	out, err := h.svc.ApplyLogo(c.Request.Context(), image, req.LogoStyle)
	if err != nil {
		dto.Error(c, err)
		return
	}
	dto.Success(c, gin.H{"image": out})
}

// Image 读取任务图片，thumbnail=true 时优先返回缩略图
// @Summary 获取图片
// @Tags Generation
// @Produce image/png
// @Router /api/images/{task_id}/{filename} [get]
func (h *GenerationHandler) Image(c *gin.Context) {
	p, err := h.svc.ImagePath(c.Param("task_id"), c.Param("filename"), c.Query("thumbnail") == "true")
	if err != nil {
		dto.Error(c, err)
		return
	}
	c.Header("Cache-Control", "public, max-age=3600")
	c.File(p)
}

// Task 任务状态
// @Summary 任务状态
// @Tags Generation
// @Produce json
// @Router /api/task/{task_id} [get]
func (h *GenerationHandler) Task(c *gin.Context) {
	state, err := h.svc.TaskState(c.Request.Context(), c.Param("task_id"))
	if err != nil {
		dto.Error(c, err)
		return
	}
	dto.Success(c, gin.H{"generated": state.Generated, "failed": state.Failed, "has_cover": state.HasCover})
}
