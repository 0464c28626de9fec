package handler

import (
	"mime"
	"net/http"
	"path/filepath"

	"github.com/gin-gonic/gin"

	"redink-api/internal/application/brand"
	"redink-api/internal/domain/entity"
	"redink-api/internal/interfaces/http/dto"
)

// BrandHandler 品牌风格库接口
type BrandHandler struct {
	svc *brand.Service
}

// NewBrandHandler 创建处理器
func NewBrandHandler(svc *brand.Service) *BrandHandler {
	return &BrandHandler{svc: svc}
}

type brandNameRequest struct {
	Name string `json:"name"`
}

type logoDescriptionRequest struct {
	Description string `json:"description"`
}

type contentJSONRequest struct {
	Type      entity.ContentSource `json:"type"`
	Title     string               `json:"title"`
	Text      string               `json:"text"`
	SourceURL string               `json:"source_url"`
	ImageURLs []string             `json:"image_urls"`
	Images    []string             `json:"images"`
}

func brandBody(d *entity.BrandDetail) gin.H {
	return gin.H{
		"brand":               d.Brand,
		"logos":               d.Logos(),
		"company_contents":    d.CompanyContents,
		"competitor_contents": d.CompetitorContents,
	}
}

// List 品牌列表
// @Summary 品牌列表
// @Tags Brand
// @Produce json
// @Router /api/brands [get]
func (h *BrandHandler) List(c *gin.Context) {
	brands, err := h.svc.List(c.Request.Context())
	if err != nil {
		dto.Error(c, err)
		return
	}
	if brands == nil {
		brands = []*entity.Brand{}
	}
	dto.Success(c, gin.H{"brands": brands})
}

// Create 创建品牌
// @Summary 创建品牌
// @Tags Brand
// @Accept json
// @Produce json
// @Router /api/brands [post]
func (h *BrandHandler) Create(c *gin.Context) {
	var req brandNameRequest
	if !bindJSON(c, &req) {
		return
	}
	b, err := h.svc.Create(c.Request.Context(), req.Name)
	if err != nil {
		dto.Error(c, err)
		return
	}
	dto.Success(c, gin.H{"brand": b})
}

// Get 品牌详情
// @Summary 品牌详情
// @Tags Brand
// @Produce json
// @Router /api/brands/{id} [get]
func (h *BrandHandler) Get(c *gin.Context) {
	d, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		dto.Error(c, err)
		return
	}
	dto.Success(c, brandBody(d))
}

// Active 当前激活品牌，没有时 brand 为 null
// @Summary 激活品牌
// @Tags Brand
// @Produce json
// @Router /api/brands/active [get]
func (h *BrandHandler) Active(c *gin.Context) {
	d, err := h.svc.Active(c.Request.Context())
	if err != nil {
		dto.Error(c, err)
		return
	}
	if d == nil {
		dto.Success(c, gin.H{"brand": nil})
		return
	}
	dto.Success(c, brandBody(d))
}

// Update 修改品牌名称
// @Summary 修改品牌
// @Tags Brand
// @Accept json
// @Produce json
// @Router /api/brands/{id} [put]
func (h *BrandHandler) Update(c *gin.Context) {
	var req brandNameRequest
	if !bindJSON(c, &req) {
		return
	}
	b, err := h.svc.Rename(c.Request.Context(), c.Param("id"), req.Name)
	if err != nil {
		dto.Error(c, err)
		return
	}
	dto.Success(c, gin.H{"brand": b})
}

// Delete 删除品牌
// @Summary 删除品牌
// @Tags Brand
// @Produce json
// @Router /api/brands/{id} [delete]
func (h *BrandHandler) Delete(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), c.Param("id")); err != nil {
		dto.Error(c, err)
		return
	}
	dto.Success(c, nil)
}

// Activate 激活品牌
// @Summary 激活品牌
// @Tags Brand
// @Produce json
// @Router /api/brands/{id}/activate [post]
func (h *BrandHandler) Activate(c *gin.Context) {
	b, err := h.svc.Activate(c.Request.Context(), c.Param("id"))
	if err != nil {
		dto.Error(c, err)
		return
	}
	dto.Success(c, gin.H{"brand": b})
}

// UploadLogo 上传 logo（multipart file）
// @Summary 上传 logo
// @Tags Brand
// @Accept mpfd
// @Produce json
// @Router /api/brands/{id}/logo [post]
func (h *BrandHandler) UploadLogo(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		dto.BadRequest(c, "缺少 logo 文件")
		return
	}
	data, err := readFile(fh)
	if err != nil {
		dto.Error(c, err)
		return
	}
	logo, err := h.svc.UploadLogo(c.Request.Context(), c.Param("id"), data, fh.Filename)
	if err != nil {
		dto.Error(c, err)
		return
	}
	dto.Success(c, gin.H{"logo": logo})
}

// Logo 读取 logo 原图
// @Summary 获取 logo
// @Tags Brand
// @Produce image/png
// @Router /api/brands/{id}/logo [get]
func (h *BrandHandler) Logo(c *gin.Context) {
	name, data, err := h.svc.Logo(c.Request.Context(), c.Param("id"))
	if err != nil {
		dto.Error(c, err)
		return
	}
	contentType := mime.TypeByExtension(filepath.Ext(name))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Data(http.StatusOK, contentType, data)
}

// DeleteLogo 删除 logo
// @Summary 删除 logo
// @Tags Brand
// @Produce json
// @Router /api/brands/{id}/logo [delete]
func (h *BrandHandler) DeleteLogo(c *gin.Context) {
	if err := h.svc.DeleteLogo(c.Request.Context(), c.Param("id")); err != nil {
		dto.Error(c, err)
		return
	}
	dto.Success(c, nil)
}

// DescribeLogo 修改 logo 描述
// @Summary 修改 logo 描述
// @Tags Brand
// @Accept json
// @Produce json
// @Router /api/brands/{id}/logo/description [put]
func (h *BrandHandler) DescribeLogo(c *gin.Context) {
	var req logoDescriptionRequest
	if !bindJSON(c, &req) {
		return
	}
	logo, err := h.svc.DescribeLogo(c.Request.Context(), c.Param("id"), req.Description)
	if err != nil {
		dto.Error(c, err)
		return
	}
	dto.Success(c, gin.H{"logo": logo})
}

// ListContents 样本列表，kind 由路由决定
func (h *BrandHandler) ListContents(kind entity.ContentKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		items, err := h.svc.ListContents(c.Request.Context(), c.Param("id"), kind)
		if err != nil {
			dto.Error(c, err)
			return
		}
		if items == nil {
			items = []*entity.ContentItem{}
		}
		dto.Success(c, gin.H{"contents": items})
	}
}

func (h *BrandHandler) contentRequest(c *gin.Context) (brand.ContentRequest, bool) {
	if isMultipart(c) {
		images, err := formFiles(c, "images")
		if err == nil {
			var more [][]byte
			if more, err = formFiles(c, "images[]"); err == nil {
				images = append(images, more...)
			}
		}
		if err != nil {
			dto.Error(c, err)
			return brand.ContentRequest{}, false
		}
		return brand.ContentRequest{
			Type:      entity.ContentSource(c.PostForm("type")),
			Title:     c.PostForm("title"),
			Text:      c.PostForm("text"),
			SourceURL: c.PostForm("source_url"),
			Images:    images,
		}, true
	}

	var req contentJSONRequest
	if !bindJSON(c, &req) {
		return brand.ContentRequest{}, false
	}
	images, err := dto.DecodeImages("images", req.Images)
	if err != nil {
		dto.Error(c, err)
		return brand.ContentRequest{}, false
	}
	return brand.ContentRequest{
		Type:      req.Type,
		Title:     req.Title,
		Text:      req.Text,
		SourceURL: req.SourceURL,
		Images:    images,
		ImageURLs: req.ImageURLs,
	}, true
}

// AddContent 添加样本：multipart 上传图片，或 JSON 携带 image_urls 由服务端下载
func (h *BrandHandler) AddContent(kind entity.ContentKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		req, ok := h.contentRequest(c)
		if !ok {
			return
		}
		item, err := h.svc.AddContent(c.Request.Context(), c.Param("id"), kind, req)
		if err != nil {
			dto.Error(c, err)
			return
		}
		dto.Success(c, gin.H{"content": item})
	}
}

// DeleteContent 删除样本
func (h *BrandHandler) DeleteContent(kind entity.ContentKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := h.svc.DeleteContent(c.Request.Context(), c.Param("id"), kind, c.Param("cid")); err != nil {
			dto.Error(c, err)
			return
		}
		dto.Success(c, nil)
	}
}

// ExtractStyle 提炼品牌风格
// @Summary 提炼品牌风格
// @Tags Brand
// @Produce json
// @Router /api/brands/{id}/extract-style [post]
func (h *BrandHandler) ExtractStyle(c *gin.Context) {
	dna, err := h.svc.ExtractStyle(c.Request.Context(), c.Param("id"))
	if err != nil {
		dto.AIError(c, err)
		return
	}
	dto.Success(c, gin.H{"style_dna": dna})
}
