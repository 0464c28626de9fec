package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"redink-api/internal/application/content"
	"redink-api/internal/application/outline"
	"redink-api/internal/infrastructure/linkparser"
	"redink-api/internal/interfaces/http/dto"
)

// LinkParser 链接解析
type LinkParser interface {
	Parse(ctx context.Context, rawURL string) *linkparser.Result
}

// CreationHandler 大纲、文案与链接解析
type CreationHandler struct {
	outlines *outline.Service
	contents *content.Service
	links    LinkParser
}

// NewCreationHandler 创建处理器
func NewCreationHandler(outlines *outline.Service, contents *content.Service, links LinkParser) *CreationHandler {
	return &CreationHandler{outlines: outlines, contents: contents, links: links}
}

// Outline 生成大纲，支持 JSON（base64 图片）与 multipart（images 文件）
// @Summary 生成大纲
// @Tags Creation
// @Accept json,mpfd
// @Produce json
// @Router /api/outline [post]
func (h *CreationHandler) Outline(c *gin.Context) {
	var req outline.Request
	if isMultipart(c) {
		images, err := formFiles(c, "images")
		if err != nil {
			dto.Error(c, err)
			return
		}
		req = outline.Request{Topic: c.PostForm("topic"), Images: images}
	} else {
		var body dto.OutlineRequest
		if !bindJSON(c, &body) {
			return
		}
		images, err := dto.DecodeImages("images", body.Images)
		if err != nil {
			dto.Error(c, err)
			return
		}
		req = outline.Request{Topic: body.Topic, Images: images}
	}

	res, err := h.outlines.Generate(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, outline.ErrEmptyTopic) {
			dto.BadRequest(c, "参数错误：topic 不能为空")
			return
		}
		dto.AIError(c, err)
		return
	}
	body := gin.H{"outline": res.Outline, "pages": res.Pages, "has_images": res.HasImages}
	if res.SourceType != "" {
		body["source_type"] = res.SourceType
	}
	dto.Success(c, body)
}

// Content 根据大纲生成标题、正文与标签
// @Summary 生成文案
// @Tags Creation
// @Accept json
// @Produce json
// @Router /api/content [post]
func (h *CreationHandler) Content(c *gin.Context) {
	var req dto.ContentRequest
	if !bindJSON(c, &req) {
		return
	}
	res, err := h.contents.Generate(c.Request.Context(), req.Topic, req.Outline)
	if err != nil {
		if errors.Is(err, content.ErrEmptyInput) {
			dto.BadRequest(c, "参数错误："+err.Error())
			return
		}
		dto.AIError(c, err)
		return
	}
	dto.Success(c, gin.H{"titles": res.Titles, "copywriting": res.Copywriting, "tags": res.Tags})
}

// ParseLink 解析小红书、公众号或普通网页链接，失败时提示手动填写
// @Summary 解析链接
// @Tags Creation
// @Accept json
// @Produce json
// @Router /api/parse-link [post]
func (h *CreationHandler) ParseLink(c *gin.Context) {
	var req dto.ParseLinkRequest
	if !bindJSON(c, &req) {
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		dto.BadRequest(c, "url 不能为空")
		return
	}
	dto.JSON(c, http.StatusOK, h.links.Parse(c.Request.Context(), strings.TrimSpace(req.URL)))
}
