package common

import (
	"errors"
	"log"
	"net/http"

	"github.com/matst80/dataview-sample/pkg/common/jsoncompat"
	"github.com/matst80/dataview-sample/pkg/types"
)

// JsonHandler wraps a handler that writes JSON. A returned error is logged
// and, unless the handler already wrote a response, mapped to a status code.
func JsonHandler(fn func(w http.ResponseWriter, r *http.Request, enc jsoncompat.Encoder) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			RespondToOptions(w, r)
			return
		}
		rw := &statusWriter{ResponseWriter: w}
		rw.Header().Set("Content-Type", "application/json")
		err := fn(rw, r, jsoncompat.NewEncoder(rw))
		if err != nil {
			log.Printf("Error handling request %s %s: %v", r.Method, r.URL.Path, err)
			if !rw.written {
				WriteError(rw, err)
			}
		}
	}
}

type errorBody struct {
	Error  string `json:"Error"`
	Reason string `json:"Reason,omitempty"`
}

// StatusFromError maps engine error kinds onto HTTP status codes.
func StatusFromError(err error) int {
	var rse types.RemoteStoreError
	var pe types.PreconditionError
	switch {
	case errors.Is(err, types.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &rse):
		return rse.StatusCode
	case errors.As(err, &pe):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func WriteError(w http.ResponseWriter, err error) {
	status := StatusFromError(err)
	reason := err.Error()
	var rse types.RemoteStoreError
	if errors.As(err, &rse) && rse.Message != "" {
		reason = rse.Message
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = jsoncompat.NewEncoder(w).Encode(errorBody{Error: http.StatusText(status), Reason: reason})
}

func RespondToOptions(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "public, max-age=3600")
	origin := r.Header.Get("Origin")
	if origin != "" {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Max-Age", "86400")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")
		w.Header().Set("Access-Control-Allow-Credentials", "true")
	}
	w.Header().Set("Age", "0")
	w.WriteHeader(http.StatusAccepted)
}

type statusWriter struct {
	http.ResponseWriter
	status  int
	written bool
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.written = true
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if !w.written {
		w.status = http.StatusOK
		w.written = true
	}
	return w.ResponseWriter.Write(b)
}

// Status is the written status code, 200 when nothing was written yet.
func (w *statusWriter) Status() int {
	if w.status == 0 {
		return http.StatusOK
	}
	return w.status
}

// StatusRecorder wraps w so the final status code can be read after serving.
func StatusRecorder(w http.ResponseWriter) interface {
	http.ResponseWriter
	Status() int
} {
	if sw, ok := w.(*statusWriter); ok {
		return sw
	}
	return &statusWriter{ResponseWriter: w}
}
