package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"runtime"

	"go.uber.org/zap"

	"github.com/toricodesthings/document-conversion-service/internal/converter"
	"github.com/toricodesthings/document-conversion-service/internal/engine"
	"github.com/toricodesthings/document-conversion-service/internal/format"
	"github.com/toricodesthings/document-conversion-service/internal/types"
)

// Multipart field carrying the upload.
const documentField = "document"

// In-memory part of a multipart form; larger uploads spill to disk.
const multipartMemory = 32 << 20

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	active := s.metrics.get().active
	status := "healthy"
	code := http.StatusOK

	ratio := s.cfg.HealthDegradeRatio
	if ratio <= 0 || ratio > 1 {
		ratio = 0.9
	}

	if active >= int64(float64(s.cfg.MaxConcurrentRequests)*ratio) {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	writeJSON(w, code, map[string]any{
		"status":  status,
		"active":  active,
		"version": Version,
	})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	snap := s.metrics.get()

	writeJSON(w, http.StatusOK, map[string]any{
		"activeRequests": snap.active,
		"peakRequests":   snap.peak,
		"totalRequests":  snap.total,
		"converted":      snap.converted,
		"failed":         snap.failed,
		"rejected":       snap.rejected,
		"maxConcurrent":  s.cfg.MaxConcurrentRequests,
		"goroutines":     runtime.NumGoroutine(),
		"memAllocMB":     m.Alloc / (1 << 20),
		"memSysMB":       m.Sys / (1 << 20),
		"device":         s.svc.Device().String(),
		"preset":         s.svc.Preset().Name,
	})
}

// handleSystemInfo reports the startup device and re-probes the host for
// accelerator availability.
func (s *Server) handleSystemInfo(w http.ResponseWriter, r *http.Request) {
	probe := s.probe()
	dev := s.svc.Device()

	writeJSON(w, http.StatusOK, types.SystemInfo{
		AcceleratorAvailable: dev.Available(probe),
		CurrentDevice:        dev.String(),
		EngineVersion:        s.svc.EngineVersion(r.Context()),
		AcceleratorBuilt:     dev.Built(probe),
	})
}

func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	limit := s.cfg.MaxUploadBytes
	if limit > 0 {
		if r.ContentLength > limit {
			s.tooLarge(w, limit)
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, limit)
	}

	var mode engine.OutputMode
	if v := r.URL.Query().Get("output"); v != "" {
		m, ok := converter.ParseOutput(v)
		if !ok {
			writeErr(w, http.StatusBadRequest, "bad_request", fmt.Sprintf("output must be json or markdown, got %q", v))
			return
		}
		mode = m
	}

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			s.tooLarge(w, limit)
			return
		}
		writeErr(w, http.StatusBadRequest, "bad_request", "multipart form expected: "+sanitizeError(err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, hdr, err := r.FormFile(documentField)
	if err != nil {
		writeErr(w, http.StatusBadRequest, "bad_request", fmt.Sprintf("form field %q required", documentField))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeErr(w, http.StatusBadRequest, "bad_request", "read upload: "+sanitizeError(err))
		return
	}

	if !format.IsSupported(data, hdr.Filename) {
		s.metrics.reject()
		s.log.Info("upload rejected",
			zap.String("filename", sanitizeLogString(hdr.Filename)),
			zap.Int("bytes", len(data)),
			zap.Strings("accepted", format.Extensions()),
		)
		writeErr(w, http.StatusBadRequest, "unsupported_format", "Unsupported file format: "+hdr.Filename)
		return
	}

	res := s.svc.ConvertAs(r.Context(), hdr.Filename, bytes.NewReader(data), mode)
	s.metrics.observe(res.Failed())
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) tooLarge(w http.ResponseWriter, limit int64) {
	s.metrics.reject()
	writeErr(w, http.StatusRequestEntityTooLarge, "too_large", "Document exceeds "+byteLimit(limit)+" limit")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"success": false,
		"error":   message,
		"code":    code,
	})
}
