package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/tabletalk/tabletalk/internal/tablestore"
)

const multipartOverhead = 1 << 20

func handleUpload(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Files == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "FILES_NOT_CONFIGURED", "file store is not configured", false, nil)
		return
	}
	sessionID, ok := requireSession(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, deps.limits.MaxBytes+multipartOverhead)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(r.Context(), w, http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE", tablestore.ErrFileTooLarge.Error(), false, map[string]any{"max_bytes": deps.limits.MaxBytes})
			return
		}
		writeError(r.Context(), w, http.StatusBadRequest, "FILE_REQUIRED", "multipart field \"file\" is required", false, map[string]any{"details": err.Error()})
		return
	}
	defer func() { _ = file.Close() }()

	info, err := deps.Files.Upload(r.Context(), sessionID, header.Filename, file)
	if err != nil {
		writeStoreError(deps, w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"message": fmt.Sprintf("File %s uploaded successfully", info.Filename),
		"file":    info,
	})
}

func handleListFiles(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Files == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "FILES_NOT_CONFIGURED", "file store is not configured", false, nil)
		return
	}
	sessionID, ok := requireSession(w, r)
	if !ok {
		return
	}
	files, err := deps.Files.ListFiles(r.Context(), sessionID)
	if err != nil {
		writeStoreError(deps, w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"files": files})
}

func handlePreview(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Files == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "FILES_NOT_CONFIGURED", "file store is not configured", false, nil)
		return
	}
	sessionID, ok := requireSession(w, r)
	if !ok {
		return
	}
	filename := strings.TrimSpace(r.PathValue("filename"))
	preview, err := deps.Files.Preview(r.Context(), sessionID, filename)
	if err != nil {
		writeStoreError(deps, w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, preview)
}

func handleRemoveFile(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Files == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "FILES_NOT_CONFIGURED", "file store is not configured", false, nil)
		return
	}
	sessionID, ok := requireSession(w, r)
	if !ok {
		return
	}
	filename := strings.TrimSpace(r.PathValue("filename"))
	if err := deps.Files.RemoveFile(r.Context(), sessionID, filename); err != nil {
		writeStoreError(deps, w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": fmt.Sprintf("File %s removed", filename)})
}

func handleClearSession(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Files == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "FILES_NOT_CONFIGURED", "file store is not configured", false, nil)
		return
	}
	sessionID, ok := requireSession(w, r)
	if !ok {
		return
	}
	if err := deps.Files.ClearSession(r.Context(), sessionID); err != nil {
		writeStoreError(deps, w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Session cleared"})
}

// writeStoreError maps table store failures onto HTTP statuses.
func writeStoreError(deps Dependencies, w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	switch {
	case errors.Is(err, tablestore.ErrInvalidSession):
		writeError(ctx, w, http.StatusBadRequest, "INVALID_SESSION", err.Error(), false, nil)
	case errors.Is(err, tablestore.ErrUnsupportedFileType):
		writeError(ctx, w, http.StatusBadRequest, "UNSUPPORTED_FILE_TYPE", "Only CSV files are supported", false, nil)
	case errors.Is(err, tablestore.ErrInvalidCSV):
		writeError(ctx, w, http.StatusBadRequest, "INVALID_CSV", err.Error(), false, nil)
	case errors.Is(err, tablestore.ErrFileTooLarge):
		writeError(ctx, w, http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE", err.Error(), false, map[string]any{"max_bytes": deps.limits.MaxBytes})
	case errors.Is(err, tablestore.ErrTooManyFiles):
		message := err.Error()
		if deps.limits.MaxFilesPerSession > 0 {
			message = fmt.Sprintf("Maximum %d files allowed", deps.limits.MaxFilesPerSession)
		}
		writeError(ctx, w, http.StatusConflict, "TOO_MANY_FILES", message, false, nil)
	case errors.Is(err, tablestore.ErrDuplicateFile):
		writeError(ctx, w, http.StatusConflict, "DUPLICATE_FILE", err.Error(), false, nil)
	case errors.Is(err, tablestore.ErrFileNotFound):
		writeError(ctx, w, http.StatusNotFound, "FILE_NOT_FOUND", err.Error(), false, nil)
	case errors.Is(err, tablestore.ErrNoChart):
		writeError(ctx, w, http.StatusBadRequest, "NO_CHART", "No chart data provided", false, map[string]any{"details": err.Error()})
	default:
		writeError(ctx, w, http.StatusInternalServerError, "STORE_ERROR", "table store request failed", true, map[string]any{"details": err.Error()})
	}
}
