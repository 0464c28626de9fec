package handler

import (
	"io"
	"mime/multipart"
	"strings"

	"github.com/gin-gonic/gin"

	"redink-api/internal/interfaces/http/dto"
	apperrors "redink-api/pkg/errors"
)

const maxUploadSize = 20 << 20

// bindJSON 绑定请求体，失败时直接写 400
func bindJSON(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		dto.BadRequest(c, "请求体格式错误: "+err.Error())
		return false
	}
	return true
}

func isMultipart(c *gin.Context) bool {
	return strings.HasPrefix(c.ContentType(), "multipart/form-data")
}

// formFiles 读取 multipart 中某个字段的全部文件
func formFiles(c *gin.Context, field string) ([][]byte, error) {
	form, err := c.MultipartForm()
	if err != nil {
		return nil, apperrors.ErrInvalidParam.WithDetail("multipart 解析失败").WithError(err)
	}
	var out [][]byte
	for _, fh := range form.File[field] {
		data, err := readFile(fh)
		if err != nil {
			return nil, err
		}
		if len(data) > 0 {
			out = append(out, data)
		}
	}
	return out, nil
}

func readFile(fh *multipart.FileHeader) ([]byte, error) {
	if fh.Size > maxUploadSize {
		return nil, apperrors.ErrInvalidParam.WithDetail("文件过大: " + fh.Filename)
	}
	f, err := fh.Open()
	if err != nil {
		return nil, apperrors.ErrInvalidParam.WithDetail("读取上传文件失败").WithError(err)
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, maxUploadSize))
	if err != nil {
		return nil, apperrors.ErrInvalidParam.WithDetail("读取上传文件失败").WithError(err)
	}
	return data, nil
}
