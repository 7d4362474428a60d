package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mmr-tortoise/portjar/internal/logger"
	"github.com/mmr-tortoise/portjar/internal/model"
)

// maxBodyBytes bounds a reservation batch.
const maxBodyBytes = 1 << 20

type healthzResponse struct {
	Status        string  `json:"status"`
	UptimeSeconds float64 `json:"uptime_seconds"`
	Reservations  int     `json:"reservations"`
}

type errorResponse struct {
	Error    string              `json:"error"`
	Line     int                 `json:"line,omitempty"`
	Text     string              `json:"text,omitempty"`
	Reserved []model.Reservation `json:"reserved,omitempty"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, healthzResponse{
		Status:        "ok",
		UptimeSeconds: time.Since(s.started).Seconds(),
		Reservations:  s.jar.Len(),
	})
}

func (s *Server) handleJar(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, s.jar.String())
}

func (s *Server) handleList(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.jar.Reservations())
}

func (s *Server) handleService(w http.ResponseWriter, r *http.Request) {
	list, err := s.jar.ReservationsFor(chi.URLParam(r, "service"))
	if err != nil {
		s.writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleReserve(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: err.Error()})
		return
	}

	reserved, err := s.jar.Reserve(string(body))
	if err != nil {
		s.writeError(w, err, reserved)
		return
	}
	if reserved == nil {
		reserved = []model.Reservation{}
	}
	writeJSON(w, http.StatusCreated, reserved)
}

func (s *Server) handleDrop(w http.ResponseWriter, r *http.Request) {
	line := r.URL.Query().Get("line")
	if line == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "missing line query parameter"})
		return
	}
	if err := s.jar.Drop(line); err != nil {
		s.writeError(w, err, nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// writeError maps registry errors to HTTP statuses. reserved carries the
// lines a failed batch committed before the error.
func (s *Server) writeError(w http.ResponseWriter, err error, reserved []model.Reservation) {
	resp := errorResponse{Error: err.Error(), Reserved: reserved}
	var lineErr *model.LineError
	if errors.As(err, &lineErr) {
		resp.Line = lineErr.Line
		resp.Text = lineErr.Text
	}

	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", logger.Error(err))
	}
	writeJSON(w, status, resp)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrInvalidLine):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrUnknownService), errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrPortOccupied):
		return http.StatusConflict
	case errors.Is(err, model.ErrAttemptsExhausted), errors.Is(err, model.ErrWrappedAround):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		_, _ = fmt.Fprintf(w, `{"error":%q}`, err.Error())
	}
}
