package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kemiz/fsgrid/internal/query"
)

// maxBodyBytes bounds a query request body.
const maxBodyBytes = 1 << 20

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, HealthResponse{
		Status: "ok",
		Stores: len(s.catalog.Names()),
		Size:   s.catalog.Size(),
	})
}

func (s *Server) listStores(w http.ResponseWriter, r *http.Request) {
	names := s.catalog.Names()
	out := make([]StoreInfo, 0, len(names))
	for _, name := range names {
		st, ok := s.catalog.Get(name)
		if !ok {
			continue
		}
		size := st.Size()
		s.metrics.SetStoreSize(name, size)
		out = append(out, storeInfo(name, size, st.Schema()))
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) getStore(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	st, ok := s.catalog.Get(name)
	if !ok {
		respondError(w, http.StatusNotFound, ErrorBody{Code: CodeNotFound, Message: "store " + name + " not found"})
		return
	}
	size := st.Size()
	s.metrics.SetStoreSize(name, size)
	respondJSON(w, http.StatusOK, storeInfo(name, size, st.Schema()))
}

// runQuery executes one named request. The body is a query.Named.
func (s *Server) runQuery(w http.ResponseWriter, r *http.Request) {
	var n query.Named
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&n); err != nil {
		respondError(w, http.StatusBadRequest, ErrorBody{Code: CodeBadRequest, Message: "invalid request body: " + err.Error()})
		return
	}
	if n.Name == "" {
		n.Name = string(n.Request.Kind)
	}

	res, err := s.runner.Run(r.Context(), n)
	if err != nil {
		status, body := errorStatus(err)
		if status == http.StatusInternalServerError {
			s.logger.Error("query failed", slog.String("name", n.Name), slog.Any("err", err))
		}
		respondError(w, status, body)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// errorStatus maps query errors to HTTP statuses.
func errorStatus(err error) (int, ErrorBody) {
	var qe *query.Error
	if errors.As(err, &qe) {
		body := ErrorBody{Code: string(qe.Code), Message: qe.Message, Field: qe.Field}
		if qe.Code == query.ErrCodeUnknownStore {
			return http.StatusNotFound, body
		}
		return http.StatusBadRequest, body
	}
	return http.StatusInternalServerError, ErrorBody{Code: CodeInternal, Message: err.Error()}
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, body ErrorBody) {
	respondJSON(w, status, ErrorResponse{Error: body})
}
