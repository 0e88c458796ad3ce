package handler

import (
	"fmt"
	"io"
	"mime/multipart"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"kb-rag-api/internal/infrastructure/extract"
	apperrors "kb-rag-api/pkg/errors"
)

func isMultipart(c *gin.Context) bool {
	return strings.HasPrefix(c.ContentType(), "multipart/form-data")
}

// readUpload extracts the text of one multipart file. maxBytes <= 0 disables the size check.
func readUpload(fh *multipart.FileHeader, maxBytes int64) (filename, text string, err error) {
	filename = filepath.Base(fh.Filename)
	if maxBytes > 0 && fh.Size > maxBytes {
		return filename, "", apperrors.ErrFileTooLarge.WithDetail(fmt.Sprintf("%s exceeds %d bytes", filename, maxBytes))
	}
	f, err := fh.Open()
	if err != nil {
		return filename, "", apperrors.ExtractionFailure(filename, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return filename, "", apperrors.ExtractionFailure(filename, err)
	}
	text, err = extract.Text(filename, data)
	return filename, text, err
}
