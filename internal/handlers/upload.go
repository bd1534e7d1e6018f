package handlers

import (
	"context"
	"log"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const maxUploadBytes = 8 << 20

var allowedImageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".webp": true,
	".gif":  true,
}

// UploadImages accepts multipart "images" files and stores each one under a
// generated name, returning the public URLs in upload order.
func UploadImages(storage UploadStorage) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /api/upload"
		defer handlePanic(c, route)

		if err := c.Request.ParseMultipartForm(maxUploadBytes); err != nil {
			respondWithError(c, http.StatusBadRequest, route, "invalid multipart form")
			return
		}

		files := c.Request.MultipartForm.File["images"]
		if len(files) == 0 {
			respondWithError(c, http.StatusBadRequest, route, "no images provided")
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
		defer cancel()

		urls := make([]string, 0, len(files))
		for _, header := range files {
			if header.Size > maxUploadBytes {
				respondWithError(c, http.StatusBadRequest, route, "image too large")
				return
			}

			ext := strings.ToLower(filepath.Ext(header.Filename))
			if !allowedImageExtensions[ext] {
				respondWithError(c, http.StatusBadRequest, route, "unsupported image type")
				return
			}

			file, err := header.Open()
			if err != nil {
				respondWithError(c, http.StatusInternalServerError, route, "could not read image")
				return
			}

			name := uuid.New().String() + ext
			url, err := storage.Save(ctx, name, header.Header.Get("Content-Type"), file)
			file.Close()
			if err != nil {
				log.Printf("[%s] storage save failed: %v", route, err)
				respondWithError(c, http.StatusInternalServerError, route, "upload failed")
				return
			}
			urls = append(urls, url)
		}

		log.Printf("[%s] stored %d images", route, len(urls))
		c.JSON(http.StatusOK, urls)
	}
}
