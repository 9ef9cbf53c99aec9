package server

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/KaramelBytes/insightloom-cli/internal/dataset"
	"github.com/KaramelBytes/insightloom-cli/internal/pipeline"
	"github.com/KaramelBytes/insightloom-cli/internal/report"
)

type errorResponse struct {
	Error string `json:"error"`
	Line  int    `json:"line,omitempty"`
}

// analyze accepts a multipart "file" field or a raw CSV body.
// Query: tier=executive|full|technical, report=true to render a report.
func (w *WebAPI) analyze(rw http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := zerolog.Ctx(ctx)

	cfg := w.cfg.Pipeline
	if v := r.URL.Query().Get("tier"); v != "" {
		tier, err := report.ParseTier(v)
		if err != nil {
			writeJSON(rw, http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}
		cfg.Tier = tier
	}
	var err error
	wantReport := false
	if v := r.URL.Query().Get("report"); v != "" {
		if wantReport, err = strconv.ParseBool(v); err != nil {
			writeJSON(rw, http.StatusBadRequest, errorResponse{Error: "report must be a boolean"})
			return
		}
	}

	r.Body = http.MaxBytesReader(rw, r.Body, w.cfg.MaxUploadBytes)
	body, name, closeFn, err := uploadedCSV(r)
	if err != nil {
		writeFailure(rw, logger, err)
		return
	}
	defer closeFn()

	run, err := pipeline.Analyze(ctx, body, name, cfg)
	if err != nil {
		writeFailure(rw, logger, err)
		return
	}
	if wantReport {
		_ = pipeline.RenderReport(ctx, run, w.cfg.Renderer)
	}
	logger.Info().Str("run_id", run.ID).Int("rows", run.Rows).Int("findings", len(run.Findings)).Msg("analysis complete")
	writeJSON(rw, http.StatusOK, run)
}

func uploadedCSV(r *http.Request) (io.Reader, string, func(), error) {
	mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mt != "multipart/form-data" {
		name := r.URL.Query().Get("name")
		if name == "" {
			name = "upload.csv"
		}
		return r.Body, name, func() {}, nil
	}
	f, hdr, err := r.FormFile("file")
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return nil, "", nil, err
		}
		return nil, "", nil, &badRequest{msg: "multipart field \"file\" is required"}
	}
	return f, hdr.Filename, func() { _ = f.Close() }, nil
}

type badRequest struct{ msg string }

func (e *badRequest) Error() string { return e.msg }

func writeFailure(rw http.ResponseWriter, logger *zerolog.Logger, err error) {
	var me *dataset.MalformedInputError
	var mbe *http.MaxBytesError
	var br *badRequest
	switch {
	case errors.As(err, &me):
		writeJSON(rw, http.StatusBadRequest, errorResponse{Error: err.Error(), Line: me.Line})
	case errors.As(err, &mbe):
		writeJSON(rw, http.StatusRequestEntityTooLarge, errorResponse{Error: "upload too large"})
	case errors.As(err, &br):
		writeJSON(rw, http.StatusBadRequest, errorResponse{Error: err.Error()})
	default:
		logger.Error().Err(err).Msg("analysis failed")
		writeJSON(rw, http.StatusInternalServerError, errorResponse{Error: "analysis failed"})
	}
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
}
