package httpapi

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/exeteres/wg-relay/internal/history"
	"github.com/exeteres/wg-relay/internal/model"
	"github.com/exeteres/wg-relay/internal/relaylist"
	"github.com/exeteres/wg-relay/internal/store"
	"github.com/exeteres/wg-relay/internal/switcher"
)

type Resolver interface {
	Resolve(ctx context.Context) model.RelayList
	Refresh(ctx context.Context) (model.RelayList, error)
}

type StatusSource interface {
	Latest() (model.ConnectionStatus, bool)
	Refresh(ctx context.Context) model.ConnectionStatus
}

type Switcher interface {
	Run(ctx context.Context, req model.SwitchRequest, settings switcher.Settings) (switcher.Result, error)
	State() switcher.State
	Err() error
	Acknowledge()
}

type HistoryReader interface {
	Recent(ctx context.Context, limit int) ([]history.Entry, error)
}

type Deps struct {
	Resolver Resolver
	Status   StatusSource
	Switcher Switcher
	Store    store.ConfigStore
	// History is optional; /history answers 404 without it.
	History HistoryReader
	Logger  *log.Logger
}

type Handler struct {
	deps  Deps
	mux   *http.ServeMux
	feeds *Broadcaster
}

func NewHandler(deps Deps) *Handler {
	h := &Handler{deps: deps, mux: http.NewServeMux(), feeds: NewBroadcaster()}
	h.mux.HandleFunc("GET /servers", h.serveServers)
	h.mux.HandleFunc("GET /status", h.serveStatus)
	h.mux.HandleFunc("POST /refresh", h.serveRefresh)
	h.mux.HandleFunc("POST /switch", h.serveSwitch)
	h.mux.HandleFunc("POST /switch/acknowledge", h.serveAcknowledge)
	h.mux.HandleFunc("GET /settings", h.serveGetSettings)
	h.mux.HandleFunc("PUT /settings", h.servePutSettings)
	h.mux.HandleFunc("GET /history", h.serveHistory)
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// Publish pushes a status to every /status event-stream subscriber.
func (h *Handler) Publish(st model.ConnectionStatus) {
	h.feeds.Publish(st)
}

type serverView struct {
	model.ServerRecord
	Label     string `json:"label"`
	Selection string `json:"selection"`
}

type serversResponse struct {
	Servers []serverView `json:"servers"`
}

func (h *Handler) serveServers(w http.ResponseWriter, r *http.Request) {
	h.writeServers(w, r, h.deps.Resolver.Resolve(r.Context()))
}

func (h *Handler) serveRefresh(w http.ResponseWriter, r *http.Request) {
	l, err := h.deps.Resolver.Refresh(r.Context())
	if err != nil {
		h.logf("manual refresh failed err=%v", err)
		h.writeError(w, http.StatusBadGateway, "Failed to fetch server list: "+err.Error())
		return
	}
	h.writeServers(w, r, l)
}

func (h *Handler) writeServers(w http.ResponseWriter, r *http.Request, l model.RelayList) {
	records := relaylist.Parse(l)
	resp := serversResponse{Servers: make([]serverView, 0, len(records))}
	for _, rec := range records {
		sel, err := switcher.EncodeSelection(model.NewSwitchRequest(rec))
		if err != nil {
			h.logf("encode selection failed hostname=%q err=%v", rec.Hostname, err)
			continue
		}
		resp.Servers = append(resp.Servers, serverView{ServerRecord: rec, Label: rec.Label(), Selection: sel})
	}

	body, err := json.Marshal(resp)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	etag := formatETagHeaderValue(body)
	w.Header().Set("ETag", etag)
	if r.Method == http.MethodGet && ifNoneMatchMatches(r.Header.Get("If-None-Match"), etag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	h.writeBody(w, http.StatusOK, body)
}

func (h *Handler) serveStatus(w http.ResponseWriter, r *http.Request) {
	switch negotiateResponseMode(r) {
	case responseModeSSE:
		h.serveStatusSSE(w, r)
		return
	case responseModeOther:
		h.writeError(w, http.StatusNotAcceptable, "unsupported Accept value")
		return
	}

	st, ok := h.deps.Status.Latest()
	if !ok || r.URL.Query().Get("refresh") == "1" {
		st = h.deps.Status.Refresh(r.Context())
	}
	h.writeJSON(w, http.StatusOK, st.Display())
}

func (h *Handler) serveStatusSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		h.writeError(w, http.StatusNotImplemented, "streaming not supported")
		return
	}

	ch, cancel := h.feeds.Subscribe()
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	writeEvent := func(st model.ConnectionStatus) error {
		b, err := json.Marshal(st.Display())
		if err != nil {
			return err
		}
		if _, err := io.WriteString(w, "event: status\ndata: "); err != nil {
			return err
		}
		if _, err := w.Write(b); err != nil {
			return err
		}
		if _, err := io.WriteString(w, "\n\n"); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	if st, ok := h.deps.Status.Latest(); ok {
		if err := writeEvent(st); err != nil {
			return
		}
	}
	for {
		select {
		case <-r.Context().Done():
			return
		case st, ok := <-ch:
			if !ok {
				return
			}
			if err := writeEvent(st); err != nil {
				return
			}
		}
	}
}

type switchRequest struct {
	// Selection is an encoded selection value as listed by /servers.
	Selection string `json:"selection"`
	// Hostname picks a server from the current list instead.
	Hostname string `json:"hostname"`
}

type switchResponse struct {
	RunID string         `json:"run_id,omitempty"`
	State switcher.State `json:"state"`
}

func (h *Handler) serveSwitch(w http.ResponseWriter, r *http.Request) {
	var body switchRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 64<<10)).Decode(&body); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req, err := h.selectRequest(r.Context(), body)
	if err != nil {
		h.writeSwitchError(w, err)
		return
	}
	settings, err := switcher.LoadSettings(r.Context(), h.deps.Store)
	if err != nil {
		h.logf("load settings failed err=%v", err)
		h.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	res, err := h.deps.Switcher.Run(r.Context(), req, settings)
	if err != nil {
		h.writeSwitchError(w, err)
		return
	}
	h.writeJSON(w, http.StatusAccepted, switchResponse{RunID: res.RunID, State: h.deps.Switcher.State()})
}

func (h *Handler) selectRequest(ctx context.Context, body switchRequest) (model.SwitchRequest, error) {
	if strings.TrimSpace(body.Selection) != "" {
		return switcher.ParseSelection(body.Selection)
	}
	if strings.TrimSpace(body.Hostname) == "" {
		return model.SwitchRequest{}, switcher.ErrNoSelection
	}
	rec, ok := relaylist.Find(relaylist.Parse(h.deps.Resolver.Resolve(ctx)), body.Hostname)
	if !ok {
		return model.SwitchRequest{}, &switcher.SelectionFormatError{
			Value: body.Hostname,
			Err:   fmt.Errorf("unknown server %q", body.Hostname),
		}
	}
	return model.NewSwitchRequest(rec), nil
}

func (h *Handler) writeSwitchError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, switcher.ErrNoSelection):
		h.writeError(w, http.StatusBadRequest, "Please select a server")
	case errors.Is(err, switcher.ErrBusy):
		h.writeError(w, http.StatusConflict, err.Error())
	default:
		if _, ok := switcher.AsSelectionFormatError(err); ok {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if se, ok := switcher.AsStageError(err); ok {
			h.writeJSON(w, http.StatusBadGateway, errorResponse{
				Success: false,
				Message: "Failed to apply server: " + se.Detail(),
				RunID:   se.RunID,
				Stage:   string(se.Stage),
			})
			return
		}
		h.writeError(w, http.StatusBadRequest, err.Error())
	}
}

func (h *Handler) serveAcknowledge(w http.ResponseWriter, _ *http.Request) {
	h.deps.Switcher.Acknowledge()
	h.writeJSON(w, http.StatusOK, switchResponse{State: h.deps.Switcher.State()})
}

type settingsBody struct {
	CacheEnabled bool   `json:"cache_enabled"`
	CacheTTL     string `json:"cache_ttl"`
}

func (h *Handler) serveGetSettings(w http.ResponseWriter, r *http.Request) {
	s, err := switcher.LoadSettings(r.Context(), h.deps.Store)
	if err != nil {
		h.logf("load settings failed err=%v", err)
		h.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	h.writeJSON(w, http.StatusOK, settingsBody{CacheEnabled: s.CacheEnabled, CacheTTL: strconv.FormatInt(s.TTLSeconds, 10)})
}

func (h *Handler) servePutSettings(w http.ResponseWriter, r *http.Request) {
	var body settingsBody
	if err := json.NewDecoder(io.LimitReader(r.Body, 64<<10)).Decode(&body); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	ttl, err := switcher.ParseTTL(body.CacheTTL)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	settings := switcher.Settings{CacheEnabled: body.CacheEnabled, TTLSeconds: ttl}
	if err := switcher.SaveSettings(r.Context(), h.deps.Store, settings); err != nil {
		h.logf("save settings failed err=%v", err)
		h.writeError(w, http.StatusInternalServerError, "Failed to save settings")
		return
	}
	h.writeJSON(w, http.StatusOK, body)
}

func (h *Handler) serveHistory(w http.ResponseWriter, r *http.Request) {
	if h.deps.History == nil {
		h.writeError(w, http.StatusNotFound, "history disabled")
		return
	}
	limit := history.DefaultLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			h.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	entries, err := h.deps.History.Recent(ctx, limit)
	if err != nil {
		h.logf("history query failed err=%v", err)
		h.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	h.writeJSON(w, http.StatusOK, entries)
}

const (
	acceptJSON = "application/json"
	acceptSSE  = "text/event-stream"
)

type responseMode int

const (
	responseModeJSON responseMode = iota
	responseModeSSE
	responseModeOther
)

func negotiateResponseMode(r *http.Request) responseMode {
	vals := r.Header.Values("Accept")
	// No Accept header means the client takes anything; answer JSON.
	if len(vals) == 0 {
		return responseModeJSON
	}

	wantsJSON := false
	wantsSSE := false

	for _, headerVal := range vals {
		for _, part := range strings.Split(headerVal, ",") {
			mediaRange := strings.TrimSpace(part)
			if semi := strings.Index(mediaRange, ";"); semi >= 0 {
				mediaRange = strings.TrimSpace(mediaRange[:semi])
			}
			switch strings.ToLower(mediaRange) {
			case acceptSSE:
				wantsSSE = true
			case acceptJSON, "application/*", "*/*", "":
				wantsJSON = true
			}
		}
	}

	// SSE takes precedence when explicitly requested.
	if wantsSSE {
		return responseModeSSE
	}
	if wantsJSON {
		return responseModeJSON
	}
	return responseModeOther
}

func formatETagHeaderValue(body []byte) string {
	sum := sha256.Sum256(body)
	return fmt.Sprintf("%q", hex.EncodeToString(sum[:16]))
}

func normalizeETag(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(strings.ToLower(s), "w/") {
		s = strings.TrimSpace(s[2:])
	}
	if len(s) >= 2 && strings.HasPrefix(s, "\"") && strings.HasSuffix(s, "\"") {
		s = strings.TrimSuffix(strings.TrimPrefix(s, "\""), "\"")
	}
	return s
}

func ifNoneMatchMatches(headerValue string, etag string) bool {
	if strings.TrimSpace(headerValue) == "" {
		return false
	}
	// If-None-Match can be a list.
	for _, part := range strings.Split(headerValue, ",") {
		if strings.TrimSpace(part) == "*" || normalizeETag(part) == normalizeETag(etag) {
			return true
		}
	}
	return false
}

type errorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	RunID   string `json:"run_id,omitempty"`
	Stage   string `json:"stage,omitempty"`
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, errorResponse{Success: false, Message: message})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		h.logf("encode response failed err=%v", err)
		status = http.StatusInternalServerError
		body = []byte(`{"success":false,"message":"internal error"}`)
	}
	h.writeBody(w, status, body)
}

func (h *Handler) writeBody(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func (h *Handler) logf(format string, args ...any) {
	if h.deps.Logger == nil {
		return
	}
	h.deps.Logger.Printf(format, args...)
}
