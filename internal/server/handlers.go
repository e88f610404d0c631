package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/emrgen/docview/internal/classify"
	"github.com/emrgen/docview/internal/model"
	"github.com/emrgen/docview/internal/module"
	"github.com/emrgen/docview/internal/service"
	"github.com/go-chi/chi/v5"
)

// Handler adapts the core services to HTTP.
type Handler struct {
	services   *service.Services
	classifier classify.Classifier
	location   *time.Location
}

func NewHandler(services *service.Services, classifier classify.Classifier, location *time.Location) *Handler {
	if location == nil {
		location = time.UTC
	}

	return &Handler{
		services:   services,
		classifier: classifier,
		location:   location,
	}
}

func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) registerDocument(w http.ResponseWriter, r *http.Request) {
	var req RegisterDocumentRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	doc, link, err := h.services.Documents.Register(r.Context(), module.CallerFromContext(r.Context()), service.RegisterRequest{
		ID:        req.ID,
		Name:      req.Name,
		PageCount: req.PageCount,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, documentResponse(doc, link.PublicToken))
}

func (h *Handler) listDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := h.services.Documents.List(r.Context(), module.CallerFromContext(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}

	res := make([]DocumentResponse, 0, len(docs))
	for _, doc := range docs {
		res = append(res, documentResponse(doc, ""))
	}

	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) getDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := h.services.Documents.Get(r.Context(), module.CallerFromContext(r.Context()), chi.URLParam(r, "docID"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, documentResponse(doc, ""))
}

func (h *Handler) setPageCount(w http.ResponseWriter, r *http.Request) {
	var req PageCountRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	doc, err := h.services.Documents.SetPageCount(r.Context(), module.CallerFromContext(r.Context()), chi.URLParam(r, "docID"), req.PageCount)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, documentResponse(doc, ""))
}

// deleteDocument soft-deletes, or erases everything with ?erase=true.
func (h *Handler) deleteDocument(w http.ResponseWriter, r *http.Request) {
	caller := module.CallerFromContext(r.Context())
	docID := chi.URLParam(r, "docID")

	var err error
	if erase, _ := strconv.ParseBool(r.URL.Query().Get("erase")); erase {
		err = h.services.Documents.Erase(r.Context(), caller, docID)
	} else {
		err = h.services.Documents.SoftDelete(r.Context(), caller, docID)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) issueLink(w http.ResponseWriter, r *http.Request) {
	link, err := h.services.Links.Issue(r.Context(), module.CallerFromContext(r.Context()), chi.URLParam(r, "docID"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, linkResponse(link))
}

func (h *Handler) currentLink(w http.ResponseWriter, r *http.Request) {
	link, err := h.services.Links.Current(r.Context(), module.CallerFromContext(r.Context()), chi.URLParam(r, "docID"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, linkResponse(link))
}

func (h *Handler) dashboard(w http.ResponseWriter, r *http.Request) {
	entries, err := h.services.Documents.Dashboard(r.Context(), module.CallerFromContext(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, entries)
}

// view only looks the link up; opening a session counts the visit.
func (h *Handler) view(w http.ResponseWriter, r *http.Request) {
	doc, link, err := h.services.Links.Lookup(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, ViewResponse{
		DocumentID:  doc.ID,
		Name:        doc.Name,
		PageCount:   doc.PageCount,
		PublicToken: link.PublicToken,
	})
}

func (h *Handler) openSession(w http.ResponseWriter, r *http.Request) {
	var req OpenSessionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	doc, link, err := h.services.Links.Resolve(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	session, err := h.services.Sessions.Open(r.Context(), module.CallerFromContext(r.Context()), service.OpenRequest{
		DocumentID:   doc.ID,
		LinkToken:    link.PublicToken,
		SessionToken: req.SessionToken,
		Client:       h.clientMeta(r),
		Email:        req.Email,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, sessionResponse(session))
}

// previewSession opens an admin session without going through a public link.
func (h *Handler) previewSession(w http.ResponseWriter, r *http.Request) {
	var req OpenSessionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	caller := module.CallerFromContext(r.Context())
	doc, err := h.services.Links.ResolveAdmin(r.Context(), caller, chi.URLParam(r, "docID"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	session, err := h.services.Sessions.Open(r.Context(), caller, service.OpenRequest{
		DocumentID:   doc.ID,
		SessionToken: req.SessionToken,
		Client:       h.clientMeta(r),
		Admin:        true,
		Email:        req.Email,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, sessionResponse(session))
}

// event folds one telemetry ping; a ping flagged complete closes the session.
func (h *Handler) event(w http.ResponseWriter, r *http.Request) {
	var req EventRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	h.fold(w, r, req)
}

func (h *Handler) completeSession(w http.ResponseWriter, r *http.Request) {
	var req EventRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	req.SessionToken = chi.URLParam(r, "sessionToken")
	req.IsComplete = true
	h.fold(w, r, req)
}

func (h *Handler) fold(w http.ResponseWriter, r *http.Request, req EventRequest) {
	if req.SessionToken == "" || req.Page == nil {
		writeError(w, r, fmt.Errorf("%w: sessionToken and page are required", service.ErrInvalidArgument))
		return
	}

	fields := pageFields(req)
	if req.IsComplete {
		session, result, err := h.services.Sessions.Complete(r.Context(), service.CompleteRequest{
			SessionToken: req.SessionToken,
			DocumentID:   req.DocumentRef,
			Page:         *req.Page,
			Fields:       fields,
		})
		if err != nil {
			writeError(w, r, err)
			return
		}

		res := EventResponse{Outcome: "noop", Anomalies: []service.Anomaly{}, Session: sessionResponse(session)}
		if result != nil {
			res.Outcome = string(result.Outcome)
			res.Anomalies = append(res.Anomalies, result.Anomalies...)
		}
		writeJSON(w, http.StatusOK, res)
		return
	}

	result, err := h.services.Folder.Fold(r.Context(), service.FoldRequest{
		SessionToken: req.SessionToken,
		DocumentID:   req.DocumentRef,
		Page:         *req.Page,
		Fields:       fields,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, EventResponse{
		Outcome:   string(result.Outcome),
		Anomalies: append([]service.Anomaly{}, result.Anomalies...),
		Session:   sessionResponse(result.Session),
	})
}

func (h *Handler) recordActivity(w http.ResponseWriter, r *http.Request) {
	session, err := h.services.Sessions.RecordActivity(r.Context(), chi.URLParam(r, "sessionToken"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, sessionResponse(session))
}

func (h *Handler) sessionDetail(w http.ResponseWriter, r *http.Request) {
	detail, err := h.services.Aggregator.SessionDetail(r.Context(), module.CallerFromContext(r.Context()), chi.URLParam(r, "sessionToken"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, detail)
}

func (h *Handler) listSessions(w http.ResponseWriter, r *http.Request) {
	window, err := h.window(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	limit := parseIntDefault(r.URL.Query().Get("limit"), 0)
	sessions, err := h.services.Aggregator.ListSessions(r.Context(), module.CallerFromContext(r.Context()), chi.URLParam(r, "docID"), window, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, sessions)
}

func (h *Handler) analytics(w http.ResponseWriter, r *http.Request) {
	window, err := h.window(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	rollup, err := h.services.Aggregator.DocumentRollup(r.Context(), module.CallerFromContext(r.Context()), chi.URLParam(r, "docID"), window)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, rollup)
}

func (h *Handler) clientMeta(r *http.Request) model.ClientMeta {
	meta := h.classifier.Classify(r.UserAgent())

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	meta.IPAddress = host

	return meta
}

// window reads from and to as RFC3339 timestamps or dates in the reporting timezone.
func (h *Handler) window(r *http.Request) (service.Window, error) {
	var window service.Window

	from, err := h.parseTime(r.URL.Query().Get("from"))
	if err != nil {
		return window, err
	}
	to, err := h.parseTime(r.URL.Query().Get("to"))
	if err != nil {
		return window, err
	}

	window.From, window.To = from, to
	return window, nil
}

func (h *Handler) parseTime(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}

	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t, nil
	}
	if t, err := time.ParseInLocation(time.DateOnly, raw, h.location); err == nil {
		return &t, nil
	}

	return nil, fmt.Errorf("%w: %q is neither RFC3339 nor YYYY-MM-DD", service.ErrInvalidArgument, raw)
}

func pageFields(req EventRequest) service.PageFields {
	fields := service.DefaultPageFields()
	if req.Duration != nil {
		fields.Duration = *req.Duration
	}
	if req.ScrollDepth != nil {
		fields.ScrollDepth = *req.ScrollDepth
	}
	if req.ZoomLevel != nil {
		fields.ZoomLevel = *req.ZoomLevel
	}
	if req.TimeToFirstView != nil {
		fields.TimeToFirstView = *req.TimeToFirstView
	}
	fields.IsComplete = req.IsComplete
	fields.UpdateOnly = req.UpdateOnly

	return fields
}

// decodeBody reads an optional JSON body. Unknown fields are ignored so older
// trackers keep working.
func decodeBody(r *http.Request, dst any) error {
	if r.Body == nil {
		return nil
	}

	err := json.NewDecoder(r.Body).Decode(dst)
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: malformed body: %v", service.ErrInvalidArgument, err)
	}

	return nil
}

func parseIntDefault(raw string, fallback int) int {
	if strings.TrimSpace(raw) == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}
