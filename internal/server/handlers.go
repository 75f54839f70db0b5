package server

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/chaz8081/gostt-server/internal/service"
	"github.com/chaz8081/gostt-server/internal/store"
)

//go:embed web/index.html
var indexHTML []byte

// transcribeResponse is the success body of POST /transcribe.
type transcribeResponse struct {
	Status        string `json:"status"`
	Transcription string `json:"transcription"`
	AudioDuration string `json:"audio_duration"`
	Filename      string `json:"filename"`
	ID            string `json:"id"`
	Model         string `json:"model"`
	Cached        bool   `json:"cached"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(indexHTML)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}

// supportedList renders the allowed extensions as "WAV, MP3, ...".
func (s *Server) supportedList() string {
	names := make([]string, len(s.cfg.Server.AllowedExtensions))
	for i, ext := range s.cfg.Server.AllowedExtensions {
		names[i] = strings.ToUpper(strings.TrimPrefix(ext, "."))
	}
	return strings.Join(names, ", ")
}

// formatLabel maps an upload name to its metrics label. Extensions outside
// the allow list are counted as "other".
func (s *Server) formatLabel(filename string) string {
	ext := service.Extension(filename)
	if ext == "" {
		return "none"
	}
	if !s.cfg.Server.AllowsExtension("." + ext) {
		return "other"
	}
	return ext
}

func (s *Server) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	limit := s.cfg.Server.MaxUploadBytes()
	r.Body = http.MaxBytesReader(w, r.Body, limit+multipartOverhead)

	var format string
	status, body := s.transcribe(r, &format)
	s.metrics.ObserveRequest(status, format)
	writeJSON(w, status, body)
}

// transcribe runs one upload and returns the status code and JSON body.
func (s *Server) transcribe(r *http.Request, format *string) (int, any) {
	log := s.log.With(zap.String("request_id", RequestID(r.Context())))

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return s.tooLarge()
		}
		return http.StatusBadRequest, errorBody("No audio file provided")
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("audio")
	if err != nil {
		// A part with an empty filename is parsed as a plain form value.
		if _, ok := r.MultipartForm.Value["audio"]; ok {
			return http.StatusBadRequest, errorBody("No file selected")
		}
		return http.StatusBadRequest, errorBody("No audio file provided")
	}
	defer func() { _ = file.Close() }()

	*format = s.formatLabel(header.Filename)

	res, err := s.svc.Transcribe(r.Context(), service.Upload{
		Filename: header.Filename,
		Body:     file,
		Size:     header.Size,
	})
	var unsupported *service.UnsupportedTypeError
	switch {
	case err == nil:
	case errors.Is(err, service.ErrNoFile):
		return http.StatusBadRequest, errorBody("No audio file provided")
	case errors.Is(err, service.ErrNoFilename):
		return http.StatusBadRequest, errorBody("No file selected")
	case errors.As(err, &unsupported):
		ext := unsupported.Ext
		if ext != "" {
			ext = "." + ext
		}
		return http.StatusBadRequest, errorBody(fmt.Sprintf("File type %s not supported. Use: %s", ext, s.supportedList()))
	case errors.Is(err, service.ErrTooLarge):
		return s.tooLarge()
	case errors.Is(err, service.ErrDecode):
		var de *service.DecodeError
		errors.As(err, &de)
		log.Info("upload could not be decoded", zap.String("filename", header.Filename), zap.Error(de.Err))
		return http.StatusBadRequest, errorBody("Error loading audio file: " + de.Err.Error())
	default:
		log.Error("transcription failed", zap.String("filename", header.Filename), zap.Error(err))
		return http.StatusInternalServerError, errorBody(err.Error())
	}

	return http.StatusOK, transcribeResponse{
		Status:        "success",
		Transcription: res.Transcription,
		AudioDuration: service.FormatDuration(res.DurationSeconds),
		Filename:      res.Filename,
		ID:            res.ID,
		Model:         res.Model,
		Cached:        res.Cached,
	}
}

func (s *Server) tooLarge() (int, any) {
	return http.StatusRequestEntityTooLarge,
		errorBody(fmt.Sprintf("File size must be less than %d MB", s.cfg.Server.MaxUploadMB))
}

func errorBody(msg string) map[string]string {
	return map[string]string{"error": msg}
}

// GET /api/transcriptions?limit=N
func (s *Server) handleListTranscriptions(w http.ResponseWriter, r *http.Request) {
	limit := store.DefaultListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 1000 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 1000")
			return
		}
		limit = n
	}

	recs, err := s.svc.History(r.Context(), limit)
	if err != nil {
		s.log.Error("list transcriptions", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if recs == nil {
		recs = []store.Record{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"transcriptions": recs})
}

// GET /api/transcriptions/{id}
func (s *Server) handleGetTranscription(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	rec, err := s.svc.Lookup(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "transcription not found")
		return
	}
	if err != nil {
		s.log.Error("get transcription", zap.String("id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rec)
}
