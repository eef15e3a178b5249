package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/kiranshivaraju/reviewrelay/internal/api/response"
	"github.com/kiranshivaraju/reviewrelay/pkg/models"
)

// DefaultImageQuestion is used when the form carries an image but no text.
const DefaultImageQuestion = "Please analyze the question in this image and explain how to solve it."

// multipartOverhead leaves room for the text field and part headers.
const multipartOverhead = 64 << 10

// ImageArchive stores uploaded images. Optional.
type ImageArchive interface {
	Put(ctx context.Context, data []byte, contentType string) (string, error)
}

type imageAnswer struct {
	models.StructuredAnswer
	ImageURL string `json:"image_url,omitempty"`
}

// NewAnalyzeImageHandler returns an http.HandlerFunc for POST /analyze_image.
// archive may be nil.
func NewAnalyzeImageHandler(svc Answerer, archive ImageArchive, maxBytes int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes+multipartOverhead)

		if err := r.ParseMultipartForm(maxBytes + multipartOverhead); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				imageTooLarge(w, maxBytes)
				return
			}
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Expected a multipart/form-data body")
			return
		}
		defer r.MultipartForm.RemoveAll()

		file, header, err := r.FormFile("image")
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "image is required")
			return
		}
		defer file.Close()

		data, err := io.ReadAll(io.LimitReader(file, maxBytes+1))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Failed to read image")
			return
		}
		if int64(len(data)) > maxBytes {
			imageTooLarge(w, maxBytes)
			return
		}
		if len(data) == 0 {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "image is empty")
			return
		}

		mime := imageMIME(data, header.Header.Get("Content-Type"))
		if mime == "" {
			response.Error(w, http.StatusBadRequest, "UNSUPPORTED_MEDIA_TYPE", "image must be an image file")
			return
		}

		question := strings.TrimSpace(r.FormValue("text"))
		if question == "" {
			question = DefaultImageQuestion
		}

		out := imageAnswer{StructuredAnswer: svc.AskImage(r.Context(), question, data, mime)}

		if archive != nil {
			url, err := archive.Put(r.Context(), data, mime)
			if err != nil {
				slog.Warn("archiving question image failed", "error", err, "bytes", len(data))
			} else {
				out.ImageURL = url
			}
		}

		response.JSON(w, out)
	}
}

// imageMIME prefers the sniffed type and falls back to the declared one for
// formats the sniffer does not know. Returns "" for non-images.
func imageMIME(data []byte, declared string) string {
	sniffed := http.DetectContentType(data)
	if strings.HasPrefix(sniffed, "image/") {
		return sniffed
	}
	if sniffed == "application/octet-stream" && strings.HasPrefix(declared, "image/") {
		return declared
	}
	return ""
}

func imageTooLarge(w http.ResponseWriter, maxBytes int64) {
	response.Error(w, http.StatusBadRequest, "IMAGE_TOO_LARGE",
		fmt.Sprintf("image must not exceed %d bytes", maxBytes))
}
