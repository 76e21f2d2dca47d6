package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"

	"github.com/bapaynter/commtrack/internal/board"
	"github.com/bapaynter/commtrack/internal/models"
	"github.com/bapaynter/commtrack/internal/uploads"
)

const maxJSONBody = 1 << 20

// ListCommissions returns the sorted collection. A storage failure degrades
// to an empty list, matching the dashboard.
func (h *AdminHandler) ListCommissions(w http.ResponseWriter, r *http.Request) {
	records, _ := h.Store.FetchAll()
	writeJSON(w, http.StatusOK, records)
}

// MoveCommission applies one drag-and-drop result. On any error the client
// is expected to reload the board from the server.
func (h *AdminHandler) MoveCommission(w http.ResponseWriter, r *http.Request) {
	var mv board.Move
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody)).Decode(&mv); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid move payload")
		return
	}

	updates, err := board.Apply(h.Store, mv)
	if err != nil {
		var verr models.ValidationError
		if errors.As(err, &verr) {
			writeJSONError(w, http.StatusBadRequest, verr.Error())
			return
		}
		slog.Error("Failed to move commission", "id", mv.ID, "error", err)
		writeJSONError(w, http.StatusInternalServerError, "failed to save new order")
		return
	}
	if updates == nil {
		updates = []models.Update{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"updates": updates})
}

// BatchUpdate applies a list of patches addressed by id.
func (h *AdminHandler) BatchUpdate(w http.ResponseWriter, r *http.Request) {
	var updates []models.Update
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody)).Decode(&updates); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid batch payload")
		return
	}
	for _, u := range updates {
		if err := u.Patch.Validate(false); err != nil {
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	applied, err := h.Store.BatchSave(updates)
	if err != nil {
		slog.Error("Batch update failed", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "failed to save updates")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"applied": applied})
}

// UploadImage stores one image from the multipart field "file".
func (h *AdminHandler) UploadImage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.Uploads.MaxBytes+(1<<20))
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeJSONError(w, http.StatusBadRequest, "File too large or malformed upload.")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "No file provided")
		return
	}
	defer file.Close()

	url, err := h.Uploads.Save(header.Filename, header.Header.Get("Content-Type"), header.Size, file)
	if err != nil {
		var uerr *uploads.UploadError
		if errors.As(err, &uerr) {
			status := http.StatusBadRequest
			if uerr.Err != nil {
				status = http.StatusInternalServerError
			}
			writeJSONError(w, status, uerr.Reason)
			return
		}
		writeJSONError(w, http.StatusInternalServerError, "Failed to upload file")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"url": url})
}

// ServeUpload streams a stored image. ?thumb=1 prefers the thumbnail.
func (h *AdminHandler) ServeUpload(w http.ResponseWriter, r *http.Request) {
	filename := r.PathValue("filename")
	p, err := h.Uploads.Resolve(filename)
	if err != nil {
		http.Error(w, "Invalid filename", http.StatusBadRequest)
		return
	}
	contentType := uploads.ContentType(filename)
	if r.URL.Query().Get("thumb") == "1" {
		if thumb, ok := h.Uploads.ThumbnailPath(filename); ok {
			p = thumb
			contentType = "image/jpeg"
		}
	}

	f, err := os.Open(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			http.Error(w, "File not found", http.StatusNotFound)
			return
		}
		slog.Error("Error serving file", "path", p, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil || info.IsDir() {
		http.Error(w, "File not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	http.ServeContent(w, r, filename, info.ModTime(), f)
}
