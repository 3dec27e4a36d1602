package api

import (
	"encoding/json"
	"mime"
	"net/http"

	"pastecap/cfg"
	"pastecap/pkg/domain"
	"pastecap/svc/svc"
	"pastecap/svc/util"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/hlog"
)

type Hdl struct {
	paste *svc.Paste
	cfg   *cfg.Cfg
}

type CreateResp struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

func (h *Hdl) CreatePaste(w http.ResponseWriter, r *http.Request) {
	log := hlog.FromRequest(r)
	requestID := util.GetRequestID(r.Context())
	contentType := r.Header.Get("Content-Type")
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil || mediaType != "application/json" {
		log.Warn().
			Str("content_type", contentType).
			Str("request_id", requestID).
			Msg("invalid Content-Type header")
		writeErr(w, domain.ErrInvalidRequest, requestID)
		return
	}
	var req createReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Warn().Err(err).Msg("invalid request body")
		writeErr(w, domain.ErrInvalidRequest, requestID)
		return
	}
	params, err := req.toParams()
	if err != nil {
		log.Warn().Err(err).Msg("invalid create request")
		writeErr(w, err, requestID)
		return
	}
	paste, err := h.paste.Create(r.Context(), params)
	if err != nil {
		var ve *domain.ValidationErr
		if errors.As(err, &ve) {
			log.Warn().Str("field", ve.Field).Msg("paste rejected")
		} else {
			log.Error().Err(err).Msg("failed to create paste")
		}
		writeErr(w, err, requestID)
		return
	}
	resp := CreateResp{
		ID:  paste.ID,
		URL: h.baseURL(r) + "/p/" + paste.ID,
	}
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(resp)
}

func (h *Hdl) GetPaste(w http.ResponseWriter, r *http.Request) {
	requestID := util.GetRequestID(r.Context())
	id := chi.URLParam(r, "id")
	out, err := h.paste.Access(r.Context(), id, domain.RenderJSON)
	if err != nil {
		if !errors.Is(err, domain.ErrPasteNotFound) {
			hlog.FromRequest(r).Error().Err(err).Str("paste_id", id).Msg("get failed")
		}
		writeErr(w, err, requestID)
		return
	}
	w.Header().Set("Content-Type", out.ContentType)
	w.Write(out.Body)
}

func (h *Hdl) ViewPaste(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	out, err := h.paste.Access(r.Context(), id, domain.RenderHTML)
	if err != nil {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		if errors.Is(err, domain.ErrPasteNotFound) {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte("Paste not found"))
			return
		}
		hlog.FromRequest(r).Error().Err(err).Str("paste_id", id).Msg("view failed")
		status := domain.Status(err)
		w.WriteHeader(status)
		w.Write([]byte(http.StatusText(status)))
		return
	}
	w.Header().Set("Content-Type", out.ContentType)
	w.Write(out.Body)
}

// baseURL follows BASE_URL in production, falling back to the request's own
// scheme and host; outside production links always point at localhost.
func (h *Hdl) baseURL(r *http.Request) string {
	if !h.cfg.IsProduction() {
		return "http://localhost:" + h.cfg.Port
	}
	if h.cfg.BaseURL != "" {
		return h.cfg.BaseURL
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if len(h.cfg.TrustedProxies) > 0 {
		if proto := r.Header.Get("X-Forwarded-Proto"); proto == "http" || proto == "https" {
			scheme = proto
		}
	}
	return scheme + "://" + r.Host
}

type errBody struct {
	Error     string `json:"error"`
	Field     string `json:"field,omitempty"`
	RequestID string `json:"request_id"`
}

func writeErr(w http.ResponseWriter, err error, requestID string) {
	statusCode := domain.Status(err)
	body := errBody{RequestID: requestID}
	var ve *domain.ValidationErr
	switch {
	case errors.As(err, &ve):
		body.Error = ve.Field + " " + ve.Msg
		body.Field = ve.Field
	case statusCode >= 500:
		body.Error = domain.ErrInternalServer.Msg
		util.Error().
			Err(err).
			Str("request_id", requestID).
			Msg("internal error with detailed info")
	default:
		body.Error = domain.ToResp(err).Error.Msg
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body)
}
