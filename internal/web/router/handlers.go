package router

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	compilererrors "github.com/dphaener/ddmark/internal/compiler/errors"
	"github.com/dphaener/ddmark/internal/metrics"
	"github.com/dphaener/ddmark/internal/store"
	"github.com/dphaener/ddmark/internal/web/cache"
	"github.com/dphaener/ddmark/internal/web/middleware"
	"github.com/dphaener/ddmark/internal/web/response"
	"github.com/dphaener/ddmark/pkg/diagram"
)

type handlers struct {
	diagrams  Diagrams
	documents Documents
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

// convertRequest is the JSON form of a conversion request body
type convertRequest struct {
	Markdown string `json:"markdown"`
}

// documentDiagram is one line of the document listing stream
type documentDiagram struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	diagram.Source
	Error *compilererrors.CompilerError `json:"error,omitempty"`
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	response.RenderJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handlers) kinds(w http.ResponseWriter, r *http.Request) {
	response.RenderJSON(w, http.StatusOK, map[string][]string{"kinds": diagram.KindNames()})
}

// convert handles POST /api/v1/diagrams/{kind}. The body is the raw
// document, or {"markdown": "..."} when sent as JSON.
func (h *handlers) convert(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			response.RenderRequestTooLarge(w, maxErr.Limit)
			return
		}
		response.RenderBadRequest(w, "failed to read request body")
		return
	}

	markdown := string(body)
	if isJSON(r) {
		var req convertRequest
		if err := json.Unmarshal(body, &req); err != nil {
			response.RenderBadRequest(w, "invalid JSON body: "+err.Error())
			return
		}
		markdown = req.Markdown
	}

	kind, err := diagram.ResolveKind(chi.URLParam(r, "kind"), markdown)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	h.render(w, r, kind, markdown)
}

// documentDiagram handles GET /api/v1/documents/{id}/diagram. The kind
// query parameter overrides the stored kind.
func (h *handlers) documentDiagram(w http.ResponseWriter, r *http.Request) {
	if h.documents == nil {
		response.RenderServiceUnavailable(w, "no document store configured")
		return
	}

	id := chi.URLParam(r, "id")
	doc, err := h.documents.Get(r.Context(), id)
	if err != nil {
		h.renderStoreError(w, r, err)
		return
	}

	kindName := r.URL.Query().Get("kind")
	if kindName == "" {
		kindName = doc.Kind
	}
	kind, err := diagram.ResolveKind(kindName, doc.Markdown)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	h.render(w, r, kind, doc.Markdown)
}

// documentDiagrams handles GET /api/v1/documents, streaming every stored
// document's diagram as JSON Lines. A document that fails to convert is
// reported inline.
func (h *handlers) documentDiagrams(w http.ResponseWriter, r *http.Request) {
	if h.documents == nil {
		response.RenderServiceUnavailable(w, "no document store configured")
		return
	}

	kindFilter := r.URL.Query().Get("kind")
	if kindFilter != "" {
		if _, err := diagram.ParseKind(kindFilter); err != nil {
			h.renderError(w, r, err)
			return
		}
	}

	docs, err := h.documents.List(r.Context(), kindFilter)
	if err != nil {
		h.renderStoreError(w, r, err)
		return
	}

	stream, err := response.NewStreamer(w)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	stream.Start()

	for _, doc := range docs {
		line := documentDiagram{ID: doc.ID, Title: doc.Title}
		kind, err := diagram.ResolveKind(doc.Kind, doc.Markdown)
		if err == nil {
			line.Source, _, err = h.compile(r, kind, doc.Markdown)
		}
		if err != nil {
			ce, ok := compilererrors.As(err)
			if !ok {
				middleware.Logger(r.Context()).Error("document conversion failed", zap.String("id", doc.ID), zap.Error(err))
				return
			}
			line.Error = ce
		}
		if err := stream.Send(line); err != nil {
			middleware.Logger(r.Context()).Warn("stream aborted", zap.Error(err))
			return
		}
	}
}

func (h *handlers) compile(r *http.Request, kind diagram.Kind, markdown string) (diagram.Source, bool, error) {
	start := time.Now()
	src, hit, err := h.diagrams.Compile(r.Context(), kind, markdown)
	if err != nil {
		return diagram.Source{}, false, err
	}
	h.metrics.ObserveConversion(string(src.Kind), string(src.Origin), time.Since(start))
	return src, hit, nil
}

// render converts markdown and writes the source with an ETag. A matching
// If-None-Match yields 304.
func (h *handlers) render(w http.ResponseWriter, r *http.Request, kind diagram.Kind, markdown string) {
	src, hit, err := h.compile(r, kind, markdown)
	if err != nil {
		h.renderError(w, r, err)
		return
	}

	etag := cache.ETag(src)
	w.Header().Set("ETag", etag)
	if hit {
		w.Header().Set("X-Cache", "HIT")
	} else {
		w.Header().Set("X-Cache", "MISS")
	}
	if etagMatches(r.Header.Get("If-None-Match"), etag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	response.RenderJSON(w, http.StatusOK, src)
}

func (h *handlers) renderError(w http.ResponseWriter, r *http.Request, err error) {
	logger := middleware.Logger(r.Context())
	if ce, ok := compilererrors.As(err); ok {
		if ce.Category != compilererrors.CategoryInput {
			logger.Error("diagram conversion failed", zap.String("code", string(ce.Code)), zap.Error(err))
		}
		response.RenderCompilerError(w, ce)
		return
	}
	logger.Error("request failed", zap.Error(err))
	response.RenderInternalError(w)
}

func (h *handlers) renderStoreError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case store.IsNotFound(err):
		response.RenderNotFound(w, "document not found")
	case errors.Is(err, store.ErrTableMissing):
		middleware.Logger(r.Context()).Error("document table missing", zap.Error(err))
		response.RenderServiceUnavailable(w, "document store is not initialized")
	default:
		middleware.Logger(r.Context()).Error("document store failed", zap.Error(err))
		response.RenderInternalError(w)
	}
}

func isJSON(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "application/json"
}

// etagMatches implements the weak comparison of If-None-Match
func etagMatches(header, etag string) bool {
	if header == "" {
		return false
	}
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" || strings.TrimPrefix(candidate, "W/") == etag {
			return true
		}
	}
	return false
}
