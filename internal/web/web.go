// Package web serves the galaxy detector over HTTP for browser front-ends.
//
// Every prediction route answers with the annotated render inlined as base64
// JPEG and the detections formatted for display:
//
//	{"success": true, "image": "...", "detections": [{"class": "spiral", "confidence": "87.00%"}], "count": 1}
//
// Errors are JSON objects with a single "error" field.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/ironsheep/galaxy-tools/internal/config"
	"github.com/ironsheep/galaxy-tools/internal/dataset"
	"github.com/ironsheep/galaxy-tools/internal/evaluate"
	"github.com/ironsheep/galaxy-tools/internal/imaging"
	"github.com/ironsheep/galaxy-tools/internal/morphology"
	"github.com/ironsheep/galaxy-tools/internal/store"
)

// MaxUploadBytes caps request bodies.
const MaxUploadBytes = 16 << 20

// Server holds the shared handles used by the HTTP handlers. History may be
// nil, in which case evaluations are not recorded.
type Server struct {
	cfg      *config.Config
	detector evaluate.Detector
	history  *store.Store
	router   *mux.Router

	// seed returns the seed for random picks.
	seed func() uint64
}

// New builds the router. det must not be nil.
func New(cfg *config.Config, det evaluate.Detector, history *store.Store) *Server {
	s := &Server{
		cfg:      cfg,
		detector: det,
		history:  history,
		router:   mux.NewRouter(),
		seed:     func() uint64 { return uint64(time.Now().UnixNano()) },
	}

	s.router.HandleFunc("/classes", s.handleClasses).Methods(http.MethodGet)
	s.router.HandleFunc("/predict", s.handlePredict).Methods(http.MethodPost)
	s.router.HandleFunc("/predict_url", s.handlePredictURL).Methods(http.MethodPost)
	s.router.HandleFunc("/random_test", s.handleRandomTest).Methods(http.MethodPost)
	s.router.HandleFunc("/evaluate", s.handleEvaluate).Methods(http.MethodPost)
	s.router.HandleFunc("/history", s.handleHistory).Methods(http.MethodGet)
	s.router.HandleFunc("/history/chart", s.handleHistoryChart).Methods(http.MethodGet)
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadBytes)
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Handler:      s,
		Addr:         addr,
		WriteTimeout: 120 * time.Second,
		ReadTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdown)
	}()

	log.Printf("Starting server on %s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// DisplayDetection is a detection formatted for display.
type DisplayDetection struct {
	Class      string `json:"class"`
	Confidence string `json:"confidence"`
}

// PredictResponse answers the prediction routes.
type PredictResponse struct {
	Success    bool               `json:"success"`
	Image      string             `json:"image"`
	Detections []DisplayDetection `json:"detections"`
	Count      int                `json:"count"`

	// Set by /random_test only.
	Filename  string  `json:"filename,omitempty"`
	TrueClass *string `json:"true_class,omitempty"`
}

func (s *Server) handleClasses(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, morphology.Names())
}

// predict runs the detector on path and builds the display response.
func (s *Server) predict(ctx context.Context, path string) (*PredictResponse, error) {
	res, err := evaluate.PredictImage(ctx, s.detector, path, s.cfg.OutputDir, s.cfg.Conf, s.cfg.IoU)
	if err != nil {
		return nil, err
	}
	enc, err := imaging.EncodeFile(res.AnnotatedPath, 0)
	if err != nil {
		return nil, err
	}

	out := &PredictResponse{
		Success:    true,
		Image:      enc.ImageBase64,
		Detections: make([]DisplayDetection, 0, len(res.Detections)),
		Count:      len(res.Detections),
	}
	for _, d := range res.Detections {
		out.Detections = append(out.Detections, DisplayDetection{
			Class:      d.ClassName,
			Confidence: fmt.Sprintf("%.2f%%", d.Confidence*100),
		})
	}
	return out, nil
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	file, header, err := r.FormFile("image")
	if err != nil {
		writeError(w, http.StatusBadRequest, "no image provided")
		return
	}
	defer file.Close()
	if header.Filename == "" {
		writeError(w, http.StatusBadRequest, "no file selected")
		return
	}

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if ext == "" {
		ext = ".jpg"
	}
	tmp, err := os.CreateTemp("", "galaxy-upload-*"+ext)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer os.Remove(tmp.Name())

	_, err = io.Copy(tmp, file)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("failed to read upload: %v", err))
		return
	}

	resp, err := s.predict(r.Context(), tmp.Name())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type predictURLRequest struct {
	URL string `json:"url"`
}

func (s *Server) handlePredictURL(w http.ResponseWriter, r *http.Request) {
	var req predictURLRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" {
		writeError(w, http.StatusBadRequest, "no url provided")
		return
	}

	path, err := imaging.Download(r.Context(), req.URL)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer os.Remove(path)

	resp, err := s.predict(r.Context(), path)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRandomTest(w http.ResponseWriter, r *http.Request) {
	img, err := evaluate.RandomImage(s.cfg.ValImages(), s.seed())
	if err != nil {
		if errors.Is(err, dataset.ErrSourceNotFound) {
			writeError(w, http.StatusNotFound, "no validation images found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp, err := s.predict(r.Context(), img)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp.Filename = filepath.Base(img)
	stem := strings.TrimSuffix(resp.Filename, filepath.Ext(resp.Filename))
	if gt, ok := evaluate.ReadGroundTruth(s.cfg.ValLabels(), stem); ok {
		name := morphology.Class(gt).String()
		resp.TrueClass = &name
	}
	writeJSON(w, http.StatusOK, resp)
}

type evaluateRequest struct {
	Count int `json:"count"`
}

// EvaluateResponse answers /evaluate.
type EvaluateResponse struct {
	RunID   string            `json:"run_id,omitempty"`
	Summary *evaluate.Summary `json:"summary"`
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	req := evaluateRequest{Count: 10}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request: %v", err))
			return
		}
	}
	if req.Count < 0 {
		writeError(w, http.StatusBadRequest, "count must not be negative")
		return
	}

	folder := s.cfg.ValImages()
	images, err := evaluate.SampleImages(folder, req.Count, s.seed())
	if err != nil {
		if errors.Is(err, dataset.ErrSourceNotFound) {
			writeError(w, http.StatusNotFound, "no validation images found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	labels := s.cfg.ValLabels()
	if _, err := os.Stat(labels); err != nil {
		labels = ""
	}
	opts := evaluate.Options{
		OutputDir:     s.cfg.OutputDir,
		LabelDir:      labels,
		ConfThreshold: s.cfg.Conf,
		IoUThreshold:  s.cfg.IoU,
	}
	summary, err := evaluate.Evaluate(r.Context(), s.detector, images, opts)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := EvaluateResponse{Summary: summary}
	if s.history != nil {
		run, err := s.history.Record(summary, "http", folder, opts)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		resp.RunID = run.RunID
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusNotFound, "evaluation history is not available")
		return
	}
	runs, err := s.history.List(0)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, runs)
}
