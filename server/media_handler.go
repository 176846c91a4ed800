package server

import (
	"io"
	"net/http"
	"strings"

	"demixer/logger"
	"demixer/storage"
)

// MediaHandler streams stored objects (original uploads and stem media)
// out of object storage.
func (h *APIHandler) MediaHandler(w http.ResponseWriter, r *http.Request) {
	objectKey := strings.TrimPrefix(r.URL.Path, "/media/")
	if objectKey == "" || strings.Contains(objectKey, "..") {
		http.Error(w, "invalid object path", http.StatusBadRequest)
		return
	}

	object, err := storage.GetObject(r.Context(), objectKey)
	if err != nil {
		http.Error(w, "file not found", http.StatusNotFound)
		return
	}
	defer object.Close()

	var contentType string
	switch {
	case strings.HasSuffix(objectKey, ".mp3"):
		contentType = "audio/mpeg"
	case strings.HasSuffix(objectKey, ".wav"):
		contentType = "audio/wav"
	case strings.HasSuffix(objectKey, ".ogg"):
		contentType = "audio/ogg"
	default:
		contentType = "application/octet-stream"
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "public, max-age=31536000") // stems are immutable

	if _, err := io.Copy(w, object); err != nil {
		logger.Warn("error serving media object",
			logger.String("object", objectKey), logger.ErrorField(err))
	}
}
