package server

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"git.home.luguber.info/inful/buildrelay/internal/content"
	berrors "git.home.luguber.info/inful/buildrelay/internal/errors"
	"git.home.luguber.info/inful/buildrelay/internal/logfields"
	"git.home.luguber.info/inful/buildrelay/internal/store"
	"git.home.luguber.info/inful/buildrelay/internal/version"
)

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	provider := r.PathValue("provider")

	body, err := io.ReadAll(io.LimitReader(r.Body, s.cfg.MaxBodyBytes+1))
	if err != nil {
		s.errorAdapter.WriteErrorResponse(w,
			berrors.ValidationError("could not read request body").Build())
		return
	}
	if int64(len(body)) > s.cfg.MaxBodyBytes {
		s.errorAdapter.WriteErrorResponse(w,
			berrors.ValidationError("request body too large").
				WithContext("max_bytes", s.cfg.MaxBodyBytes).Build())
		return
	}

	result, err := s.ingestor.IngestWebhook(r.Context(), provider, body, r.Header)
	if err != nil {
		s.errorAdapter.WriteErrorResponse(w, err)
		return
	}

	s.logger.Info("Webhook processed",
		logfields.Provider(provider),
		logfields.Strategy(result.Strategy),
		logfields.Reason(result.Reason),
		logfields.EventCount(result.EventsPublished))
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleListContent(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.ContentFilter{
		Type:     content.Type(q.Get("content_type")),
		Provider: q.Get("provider"),
		Status:   content.Status(q.Get("status")),
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			s.errorAdapter.WriteErrorResponse(w,
				berrors.ValidationError("limit must be a positive integer").
					WithContext("limit", raw).Build())
			return
		}
		filter.Limit = limit
	}

	items, err := s.contents.ListContents(r.Context(), filter)
	if err != nil {
		s.errorAdapter.WriteErrorResponse(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": items,
		"count": len(items),
	})
}

func (s *Server) handleGetContent(w http.ResponseWriter, r *http.Request) {
	item, err := s.contents.GetContent(r.Context(), r.PathValue("id"))
	if err != nil {
		s.errorAdapter.WriteErrorResponse(w, err)
		return
	}
	if item == nil {
		s.errorAdapter.WriteErrorResponse(w,
			berrors.NotFoundError("content not found").
				WithContext("id", r.PathValue("id")).Build())
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": version.Version,
		"uptime":  time.Since(s.startTime).Round(time.Second).String(),
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
