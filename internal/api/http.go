package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/AronBks/blockchain-mensajes-dapp/internal/ledger"
	"github.com/AronBks/blockchain-mensajes-dapp/internal/logging"
	"github.com/AronBks/blockchain-mensajes-dapp/internal/service"
)

const maxUploadBytes = 16 << 20

type Handler struct {
	binder    *service.Binder
	cache     *service.LogCache
	submitter *service.Submitter
	service   string
	version   string
	logger    *slog.Logger
}

func NewHandler(binder *service.Binder, cache *service.LogCache, submitter *service.Submitter, serviceName, version string, logger *slog.Logger) *Handler {
	return &Handler{
		binder:    binder,
		cache:     cache,
		submitter: submitter,
		service:   serviceName,
		version:   version,
		logger:    logger,
	}
}

func (h *Handler) Router() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", h.handleHealth)
	mux.HandleFunc("GET /v1/session", h.handleSession)
	mux.HandleFunc("GET /v1/entries", h.handleEntries)
	mux.HandleFunc("GET /v1/entries/search", h.handleSearch)
	mux.HandleFunc("GET /v1/entries/export", h.handleExport)
	mux.HandleFunc("GET /v1/stats", h.handleStats)
	mux.HandleFunc("POST /v1/entries", h.handleAppend)
	mux.HandleFunc("POST /v1/entries/{position}/confirm", h.handleConfirm)
	return mux
}

type healthResponse struct {
	Service       string `json:"service"`
	Version       string `json:"version"`
	SessionBound  bool   `json:"session_bound"`
	NetworkID     string `json:"network_id,omitempty"`
	SnapshotLen   int    `json:"snapshot_len"`
	FetchFailures uint64 `json:"fetch_failures"`
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	sess := h.binder.Session()
	snap := h.cache.Snapshot()
	logging.AddField(r.Context(), "op", "health")
	writeJSON(w, http.StatusOK, healthResponse{
		Service:       h.service,
		Version:       h.version,
		SessionBound:  sess.Bound(),
		NetworkID:     sess.NetworkID,
		SnapshotLen:   len(snap.Entries),
		FetchFailures: h.cache.FetchFailures(),
	})
}

type sessionResponse struct {
	Bound     bool   `json:"bound"`
	Identity  string `json:"identity,omitempty"`
	Abbrev    string `json:"identity_abbrev,omitempty"`
	NetworkID string `json:"network_id,omitempty"`
	Busy      bool   `json:"busy"`
}

func (h *Handler) handleSession(w http.ResponseWriter, r *http.Request) {
	sess := h.binder.Session()
	logging.AddField(r.Context(), "op", "session")
	writeJSON(w, http.StatusOK, sessionResponse{
		Bound:     sess.Bound(),
		Identity:  sess.Identity,
		Abbrev:    service.AbbreviateAccount(sess.Identity),
		NetworkID: sess.NetworkID,
		Busy:      h.submitter.Busy(),
	})
}

func (h *Handler) handleEntries(w http.ResponseWriter, r *http.Request) {
	snap := h.cache.Snapshot()
	logging.AddField(r.Context(), "op", "entries")
	logging.AddField(r.Context(), "snapshot_len", len(snap.Entries))
	writeJSON(w, http.StatusOK, snap)
}

type searchResponse struct {
	Query   string         `json:"query"`
	Results []ledger.Entry `json:"results"`
}

func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	results := service.Search(h.cache.Snapshot(), query)
	if results == nil {
		results = []ledger.Entry{}
	}
	logging.AddField(r.Context(), "op", "search")
	logging.AddField(r.Context(), "result_count", len(results))
	writeJSON(w, http.StatusOK, searchResponse{Query: query, Results: results})
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	reverse := r.URL.Query().Get("reverse") == "1"
	snap := h.cache.Snapshot()
	logging.AddField(r.Context(), "op", "export")
	logging.AddField(r.Context(), "row_count", len(snap.Entries))

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", service.ExportFilename))
	w.WriteHeader(http.StatusOK)
	if err := service.WriteCSV(w, snap.Entries, reverse); err != nil {
		h.logger.Warn("csv export write failed", slog.String("error", err.Error()))
	}
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	sess := h.binder.Session()
	stats := service.ComputeStats(h.cache.Snapshot(), sess.Identity, time.Now())
	stats.FetchFailures = h.cache.FetchFailures()
	logging.AddField(r.Context(), "op", "stats")
	writeJSON(w, http.StatusOK, stats)
}

type appendJSONRequest struct {
	Contenido string `json:"contenido"`
}

type txResponse struct {
	Status string `json:"status"`
	TxHash string `json:"tx_hash"`
}

// handleAppend accepts either a JSON body {"contenido": ...} or a multipart
// form with field mensaje and optional file archivo, mirroring the original
// submission form.
func (h *Handler) handleAppend(w http.ResponseWriter, r *http.Request) {
	content, file, err := parseAppendRequest(r)
	if err != nil {
		h.writeError(w, r, service.NewAppError(http.StatusBadRequest, "BAD_REQUEST", err.Error(), false, err))
		return
	}
	tx, err := h.submitter.Append(r.Context(), content, file)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	logging.AddField(r.Context(), "op", "append")
	logging.AddField(r.Context(), "tx_hash", tx.TxHash)
	writeJSON(w, http.StatusOK, txResponse{Status: "submitted", TxHash: tx.TxHash})
}

func parseAppendRequest(r *http.Request) (string, *service.FilePayload, error) {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return "", nil, errors.New("missing content type")
	}
	if mediaType == "application/json" {
		var req appendJSONRequest
		if err := decodeJSON(r, &req); err != nil {
			return "", nil, err
		}
		return req.Contenido, nil, nil
	}
	if !strings.HasPrefix(mediaType, "multipart/") {
		return "", nil, fmt.Errorf("unsupported content type %q", mediaType)
	}
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return "", nil, err
	}
	content := r.FormValue("mensaje")
	f, header, err := r.FormFile("archivo")
	if errors.Is(err, http.ErrMissingFile) {
		return content, nil, nil
	}
	if err != nil {
		return "", nil, err
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, maxUploadBytes))
	if err != nil {
		return "", nil, err
	}
	return content, &service.FilePayload{Name: header.Filename, Data: data}, nil
}

func (h *Handler) handleConfirm(w http.ResponseWriter, r *http.Request) {
	position, err := strconv.ParseInt(r.PathValue("position"), 10, 64)
	if err != nil {
		h.writeError(w, r, service.Validation("position must be an integer"))
		return
	}
	tx, err := h.submitter.Confirm(r.Context(), position)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	logging.AddField(r.Context(), "op", "confirm")
	logging.AddField(r.Context(), "position", position)
	logging.AddField(r.Context(), "tx_hash", tx.TxHash)
	writeJSON(w, http.StatusOK, txResponse{Status: "submitted", TxHash: tx.TxHash})
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *service.AppError
	if errors.As(err, &appErr) {
		logging.AddField(r.Context(), "error_code", appErr.Code)
		logging.AddField(r.Context(), "error_message", appErr.Message)
		writeJSON(w, appErr.HTTPStatus, errorResponse{Error: errorBody{
			Code:      appErr.Code,
			Message:   appErr.Message,
			Retryable: appErr.Retryable,
		}})
		return
	}
	logging.AddField(r.Context(), "error_code", service.CodeInternal)
	logging.AddField(r.Context(), "error_message", err.Error())
	writeJSON(w, http.StatusInternalServerError, errorResponse{Error: errorBody{
		Code:      service.CodeInternal,
		Message:   "internal server error",
		Retryable: true,
	}})
}

func decodeJSON(r *http.Request, out any) error {
	defer r.Body.Close()
	limited := io.LimitReader(r.Body, 2<<20)
	dec := json.NewDecoder(limited)
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("request body must contain a single JSON object")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
