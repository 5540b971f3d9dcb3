package httpapi

import (
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"wablast/internal/contacts"
	"wablast/internal/media"
	"wablast/internal/model"
	"wablast/internal/report"
	"wablast/internal/storage"
)

type templateReq struct {
	Name      string   `json:"name"`
	Message   string   `json:"message"`
	FilePaths []string `json:"filePaths"`
}

func (req templateReq) validate() error {
	if strings.TrimSpace(req.Name) == "" {
		return errors.New("name required")
	}
	if strings.TrimSpace(req.Message) == "" && len(req.FilePaths) == 0 {
		return errors.New("message or filePaths required")
	}
	return nil
}

func (a *API) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	list, err := a.Store.ListTemplates(r.Context())
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (a *API) handleGetTemplate(w http.ResponseWriter, r *http.Request) {
	t, err := a.Store.GetTemplate(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, storage.ErrNotFound) {
		writeErr(w, http.StatusNotFound, "template not found")
		return
	}
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (a *API) handleCreateTemplate(w http.ResponseWriter, r *http.Request) {
	var req templateReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := req.validate(); err != nil {
		writeErr(w, http.StatusBadRequest, err.Error())
		return
	}
	t, err := a.Store.CreateTemplate(r.Context(), model.Template{
		Name:        strings.TrimSpace(req.Name),
		Message:     req.Message,
		Attachments: req.FilePaths,
	})
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (a *API) handleUpdateTemplate(w http.ResponseWriter, r *http.Request) {
	var req templateReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := req.validate(); err != nil {
		writeErr(w, http.StatusBadRequest, err.Error())
		return
	}
	id := chi.URLParam(r, "id")
	err := a.Store.UpdateTemplate(r.Context(), model.Template{
		ID:          id,
		Name:        strings.TrimSpace(req.Name),
		Message:     req.Message,
		Attachments: req.FilePaths,
	})
	if errors.Is(err, storage.ErrNotFound) {
		writeErr(w, http.StatusNotFound, "template not found")
		return
	}
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	t, err := a.Store.GetTemplate(r.Context(), id)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (a *API) handleDeleteTemplate(w http.ResponseWriter, r *http.Request) {
	if err := a.Store.DeleteTemplate(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// Contacts

func (a *API) handleListContacts(w http.ResponseWriter, r *http.Request) {
	names, err := a.Contacts.Groups()
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	progress, err := a.Store.AllProgress(r.Context())
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]contacts.Group, 0, len(names))
	for _, n := range names {
		out = append(out, contacts.Group{Name: n, Progress: progress[n]})
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) handleUploadContacts(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeErr(w, http.StatusBadRequest, "parse multipart failed")
		return
	}
	file, header, err := r.FormFile("contactFile")
	if err != nil {
		writeErr(w, http.StatusBadRequest, "contactFile required")
		return
	}
	defer file.Close()

	name := filepath.Base(header.Filename)
	if err := a.Contacts.Save(name, file); err != nil {
		switch {
		case errors.Is(err, contacts.ErrUnsupportedFormat), errors.Is(err, contacts.ErrInvalidGroupName):
			writeErr(w, http.StatusBadRequest, err.Error())
		default:
			writeErr(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	// A replaced group starts over.
	if err := a.Store.ResetProgress(r.Context(), name); err != nil {
		a.Logger.Warn("reset group progress failed", zap.String("group", name), zap.Error(err))
	}
	writeJSON(w, http.StatusCreated, contacts.Group{Name: name})
}

func (a *API) handleReadContacts(w http.ResponseWriter, r *http.Request) {
	src, err := a.Contacts.Group(chi.URLParam(r, "name"))
	if err != nil {
		writeErr(w, http.StatusBadRequest, err.Error())
		return
	}
	list, err := src.Load(r.Context())
	switch {
	case errors.Is(err, fs.ErrNotExist):
		writeErr(w, http.StatusNotFound, "contact group not found")
		return
	case errors.Is(err, contacts.ErrMissingNumberColumn), errors.Is(err, contacts.ErrUnsupportedFormat):
		writeErr(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (a *API) handleDeleteContacts(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := a.Contacts.Delete(name); err != nil {
		if errors.Is(err, contacts.ErrInvalidGroupName) {
			writeErr(w, http.StatusBadRequest, err.Error())
			return
		}
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := a.Store.ResetProgress(r.Context(), name); err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (a *API) handleResetContacts(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if _, err := a.Contacts.Group(name); err != nil {
		writeErr(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.Store.ResetProgress(r.Context(), name); err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, contacts.Group{Name: name})
}

// Media

func (a *API) handleListMedia(w http.ResponseWriter, r *http.Request) {
	list, err := a.Media.List()
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (a *API) handleUploadMedia(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(64 << 20); err != nil {
		writeErr(w, http.StatusBadRequest, "parse multipart failed")
		return
	}
	files := r.MultipartForm.File["mediaFiles"]
	if len(files) == 0 {
		writeErr(w, http.StatusBadRequest, "mediaFiles required")
		return
	}
	saved := make([]string, 0, len(files))
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			writeErr(w, http.StatusBadRequest, "open upload failed")
			return
		}
		name := filepath.Base(fh.Filename)
		err = a.Media.Save(name, f)
		f.Close()
		if errors.Is(err, media.ErrInvalidName) {
			writeErr(w, http.StatusBadRequest, err.Error())
			return
		}
		if err != nil {
			writeErr(w, http.StatusInternalServerError, err.Error())
			return
		}
		saved = append(saved, name)
	}
	writeJSON(w, http.StatusCreated, map[string]any{"files": saved})
}

func (a *API) handleDeleteMedia(w http.ResponseWriter, r *http.Request) {
	if err := a.Media.Delete(chi.URLParam(r, "name")); err != nil {
		if errors.Is(err, media.ErrInvalidName) {
			writeErr(w, http.StatusBadRequest, err.Error())
			return
		}
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (a *API) handleRenameMedia(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OldName string `json:"oldName"`
		NewName string `json:"newName"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}
	err := a.Media.Rename(req.OldName, req.NewName)
	switch {
	case errors.Is(err, media.ErrInvalidName):
		writeErr(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, media.ErrExists):
		writeErr(w, http.StatusConflict, err.Error())
		return
	case errors.Is(err, fs.ErrNotExist):
		writeErr(w, http.StatusNotFound, "media file not found")
		return
	case err != nil:
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := a.Store.RenameAttachment(r.Context(), req.OldName, req.NewName); err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "name": req.NewName})
}

// Reports & stats

func (a *API) handleListReports(w http.ResponseWriter, r *http.Request) {
	list, err := a.Reports.List()
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (a *API) handleReadReport(w http.ResponseWriter, r *http.Request) {
	rows, err := a.Reports.Read(chi.URLParam(r, "name"))
	switch {
	case errors.Is(err, report.ErrInvalidName):
		writeErr(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, fs.ErrNotExist):
		writeErr(w, http.StatusNotFound, "report not found")
		return
	case err != nil:
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (a *API) handleDeleteReport(w http.ResponseWriter, r *http.Request) {
	if err := a.Reports.Delete(chi.URLParam(r, "name")); err != nil {
		if errors.Is(err, report.ErrInvalidName) {
			writeErr(w, http.StatusBadRequest, err.Error())
			return
		}
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (a *API) handleStats(w http.ResponseWriter, r *http.Request) {
	st, err := a.Reports.ReadStats(r.Context())
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (a *API) handleResetStats(w http.ResponseWriter, r *http.Request) {
	if err := a.Reports.ResetStats(r.Context()); err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}
