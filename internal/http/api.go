package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/skip2/go-qrcode"
	"go.uber.org/zap"

	"wablast/internal/campaign"
	"wablast/internal/config"
	"wablast/internal/contacts"
	"wablast/internal/media"
	"wablast/internal/metrics"
	"wablast/internal/model"
	"wablast/internal/notify"
	"wablast/internal/report"
	"wablast/internal/storage"
	"wablast/internal/wa"
)

// Channel is the part of the connection supervisor the API exposes.
type Channel interface {
	Status() wa.Status
	Logout(ctx context.Context) error
}

type API struct {
	Store      *storage.Store
	Campaign   *campaign.Controller
	Channel    Channel
	Contacts   contacts.Dir
	Media      media.Store
	Reports    *report.Writer
	Hub        *notify.Hub
	Metrics    *metrics.Metrics
	MetricsURL string
	Defaults   model.CampaignConfig
	UploadsDir string
	Logger     *zap.Logger
	Router     *chi.Mux
}

// NewRouter wires every route of a onto a fresh chi router.
func NewRouter(a *API) *chi.Mux {
	if a.Logger == nil {
		a.Logger = zap.NewNop()
	}
	a.Router = chi.NewRouter()
	r := a.Router
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(a.Logger))
	r.Use(middleware.Recoverer)
	r.Use(cors)

	if a.Hub != nil {
		r.Get("/ws", a.Hub.ServeWs)
	}
	if a.Metrics != nil && a.MetricsURL != "" {
		r.Handle(a.MetricsURL, a.Metrics.Handler())
	}
	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(120 * time.Second))
		a.routes(r)
	})
	return r
}

func (a *API) routes(r chi.Router) {
	r.Get("/api/health", a.handleHealth)

	// Channel
	r.Get("/api/status", a.handleStatus)
	r.Get("/api/qr.png", a.handleQR)
	r.Post("/api/logout", a.handleLogout)

	// Campaign lifecycle
	r.Post("/api/campaign/start", a.handleStart)
	r.Post("/api/campaign/pause", a.handlePause)
	r.Post("/api/campaign/resume", a.handleResume)
	r.Post("/api/campaign/end", a.handleEnd)
	r.Post("/api/campaign/next-batch", a.handleNextBatch)
	r.Get("/api/campaign/state", a.handleState)

	// Templates management
	r.Get("/api/templates", a.handleListTemplates)
	r.Post("/api/templates", a.handleCreateTemplate)
	r.Get("/api/templates/{id}", a.handleGetTemplate)
	r.Put("/api/templates/{id}", a.handleUpdateTemplate)
	r.Delete("/api/templates/{id}", a.handleDeleteTemplate)

	// Contact groups
	r.Get("/api/contacts", a.handleListContacts)
	r.Post("/api/contacts/upload", a.handleUploadContacts)
	r.Get("/api/contacts/{name}", a.handleReadContacts)
	r.Delete("/api/contacts/{name}", a.handleDeleteContacts)
	r.Post("/api/contacts/{name}/reset", a.handleResetContacts)

	// Media
	r.Get("/api/media", a.handleListMedia)
	r.Post("/api/media/upload", a.handleUploadMedia)
	r.Put("/api/media/rename", a.handleRenameMedia)
	r.Delete("/api/media/{name}", a.handleDeleteMedia)

	// Reports & stats
	r.Get("/api/reports", a.handleListReports)
	r.Get("/api/reports/{name}", a.handleReadReport)
	r.Delete("/api/reports/{name}", a.handleDeleteReport)
	r.Get("/api/stats", a.handleStats)
	r.Post("/api/stats/reset", a.handleResetStats)
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,PATCH,DELETE,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("took", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":   true,
		"time": time.Now().Format(time.RFC3339),
	})
}

func (a *API) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.Channel.Status())
}

func (a *API) handleQR(w http.ResponseWriter, r *http.Request) {
	st := a.Channel.Status()
	if st.QR == "" {
		writeErr(w, http.StatusNotFound, "no QR code pending")
		return
	}
	png, err := qrcode.Encode(st.QR, qrcode.Medium, 256)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "image/png")
	// QR codes rotate; never serve a cached one.
	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := a.Channel.Logout(r.Context()); err != nil {
		if errors.Is(err, wa.ErrNotConnected) {
			writeErr(w, http.StatusConflict, err.Error())
			return
		}
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// Campaign

func (a *API) handleStart(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		writeErr(w, http.StatusBadRequest, "parse form failed")
		return
	}
	cfg, err := a.parseCampaignConfig(r)
	if err != nil {
		writeErr(w, http.StatusBadRequest, err.Error())
		return
	}
	req := campaign.Request{Config: cfg, TemplateIDs: formList(r, "templateIds")}
	uploaded := ""

	if group := strings.TrimSpace(r.FormValue("contactGroup")); group != "" {
		src, err := a.Contacts.Group(group)
		if err != nil {
			writeErr(w, http.StatusBadRequest, err.Error())
			return
		}
		req.Contacts, req.Group = src, group
	} else {
		src, err := a.saveUpload(r)
		if err != nil {
			writeErr(w, http.StatusBadRequest, err.Error())
			return
		}
		req.Contacts, uploaded = src, src.Path
	}

	err = a.Campaign.Start(r.Context(), req)
	if err != nil && uploaded != "" {
		if rmErr := os.Remove(uploaded); rmErr != nil {
			a.Logger.Warn("remove rejected upload", zap.String("path", uploaded), zap.Error(rmErr))
		}
	}
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, map[string]any{"success": true, "message": "Campaign started."})
	case errors.Is(err, campaign.ErrAlreadyRunning), errors.Is(err, campaign.ErrEndedEarly):
		writeErr(w, http.StatusConflict, err.Error())
	case errors.Is(err, campaign.ErrNoContacts), errors.Is(err, campaign.ErrNoTemplates):
		writeErr(w, http.StatusBadRequest, err.Error())
	default:
		writeErr(w, http.StatusInternalServerError, err.Error())
	}
}

// saveUpload stores an ad-hoc contact file under a unique name.
func (a *API) saveUpload(r *http.Request) (contacts.File, error) {
	file, header, err := r.FormFile("contactFile")
	if err != nil {
		return contacts.File{}, errors.New("contactGroup or contactFile required")
	}
	defer file.Close()
	if err := os.MkdirAll(a.UploadsDir, 0o755); err != nil {
		return contacts.File{}, fmt.Errorf("mkdir uploads failed: %w", err)
	}
	path := filepath.Join(a.UploadsDir, uuid.NewString()+"-"+filepath.Base(header.Filename))
	out, err := os.Create(path)
	if err != nil {
		return contacts.File{}, fmt.Errorf("save file failed: %w", err)
	}
	defer out.Close()
	if _, err := io.Copy(out, file); err != nil {
		return contacts.File{}, fmt.Errorf("write file failed: %w", err)
	}
	return contacts.File{Path: path}, nil
}

// parseCampaignConfig reads the start form. Omitted knobs take the configured
// defaults; delays are seconds and typing/attach delays milliseconds.
func (a *API) parseCampaignConfig(r *http.Request) (model.CampaignConfig, error) {
	cfg := a.Defaults
	var errs []error
	intField := func(name string, dst *int) {
		v := strings.TrimSpace(r.FormValue(name))
		if v == "" {
			return
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			errs = append(errs, fmt.Errorf("%s must be a non-negative integer", name))
			return
		}
		*dst = n
	}
	durField := func(name string, unit time.Duration, dst *time.Duration) {
		n := -1
		intField(name, &n)
		if n >= 0 {
			*dst = time.Duration(n) * unit
		}
	}
	intField("batchSize", &cfg.BatchSize)
	intField("dailyLimit", &cfg.DailyLimit)
	durField("minDelay", time.Second, &cfg.MinDelay)
	durField("maxDelay", time.Second, &cfg.MaxDelay)
	durField("minTypingDelay", time.Millisecond, &cfg.MinTypingDelay)
	durField("maxTypingDelay", time.Millisecond, &cfg.MaxTypingDelay)
	durField("minAttachDelay", time.Millisecond, &cfg.MinAttachDelay)
	durField("maxAttachDelay", time.Millisecond, &cfg.MaxAttachDelay)
	if v := r.FormValue("simulationStyle"); v != "" {
		cfg.SimulationStyle = v
	}
	if v := r.FormValue("simulateReading"); v != "" {
		cfg.SimulateReading = formBool(v)
	}
	if formBool(r.FormValue("warmUpEnabled")) {
		cfg.WarmUp = model.WarmUp{Enabled: true, CurrentDay: 1}
		intField("warmUpStart", &cfg.WarmUp.Start)
		intField("warmUpIncrement", &cfg.WarmUp.Increment)
		intField("warmUpDays", &cfg.WarmUp.Days)
		if cfg.WarmUp.Start <= 0 {
			errs = append(errs, errors.New("warmUpStart must be positive"))
		}
	}
	if err := config.ValidStyle(cfg.SimulationStyle); err != nil {
		errs = append(errs, err)
	}
	if cfg.MinDelay > cfg.MaxDelay || cfg.MinTypingDelay > cfg.MaxTypingDelay || cfg.MinAttachDelay > cfg.MaxAttachDelay {
		errs = append(errs, errors.New("minimum delays must not exceed maximum delays"))
	}
	return cfg, errors.Join(errs...)
}

func formBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "on", "true", "1", "yes":
		return true
	}
	return false
}

// formList accepts repeated keys, the name[] form and comma separated values.
func formList(r *http.Request, name string) []string {
	var out []string
	for _, key := range []string{name, name + "[]"} {
		for _, v := range r.Form[key] {
			for _, part := range strings.Split(v, ",") {
				if part = strings.TrimSpace(part); part != "" {
					out = append(out, part)
				}
			}
		}
	}
	return out
}

func (a *API) handlePause(w http.ResponseWriter, r *http.Request) {
	a.Campaign.Pause()
	writeJSON(w, http.StatusOK, a.Campaign.Snapshot())
}

func (a *API) handleResume(w http.ResponseWriter, r *http.Request) {
	a.Campaign.Resume()
	writeJSON(w, http.StatusOK, a.Campaign.Snapshot())
}

func (a *API) handleEnd(w http.ResponseWriter, r *http.Request) {
	a.Campaign.End()
	writeJSON(w, http.StatusOK, a.Campaign.Snapshot())
}

func (a *API) handleNextBatch(w http.ResponseWriter, r *http.Request) {
	a.Campaign.RequestNextBatch()
	writeJSON(w, http.StatusOK, a.Campaign.Snapshot())
}

func (a *API) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.Campaign.Snapshot())
}

func writeErr(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]any{"error": msg})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(true)
	_ = enc.Encode(v)
}
