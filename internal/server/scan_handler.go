package server

import (
	"encoding/json"
	"net/http"

	"github.com/sentra-ai/sentra/internal/detection"
	"github.com/sentra-ai/sentra/internal/pipeline"
)

// scanRequest is the wire shape for /v1/scan. The text field is consumed
// by the pipeline and never echoed back in any response or log.
type scanRequest struct {
	Text                string                 `json:"text"`
	Mode                string                 `json:"mode,omitempty"`
	L1Enabled           *bool                  `json:"l1_enabled,omitempty"`
	L2Enabled           *bool                  `json:"l2_enabled,omitempty"`
	ConfidenceThreshold float64                `json:"confidence_threshold,omitempty"`
	Context             map[string]interface{} `json:"context,omitempty"`
}

func (b scanRequest) toPipeline() pipeline.Request {
	req := pipeline.Request{
		Text:                b.Text,
		Mode:                pipeline.Mode(b.Mode),
		L1Enabled:           true,
		L2Enabled:           true,
		ConfidenceThreshold: b.ConfidenceThreshold,
		Context:             b.Context,
	}
	if b.L1Enabled != nil {
		req.L1Enabled = *b.L1Enabled
	}
	if b.L2Enabled != nil {
		req.L2Enabled = *b.L2Enabled
	}
	return req
}

type scanResponse struct {
	ScanID     string                       `json:"scan_id"`
	Decision   detection.PolicyDecision     `json:"decision"`
	Combined   detection.CombinedScanResult `json:"combined"`
	Metadata   detection.ScanMetadata       `json:"metadata"`
	DurationMs float64                      `json:"duration_ms"`
	TextHash   string                       `json:"text_hash"`
}

func toScanResponse(res *detection.ScanPipelineResult) scanResponse {
	return scanResponse{
		ScanID:     res.ScanID,
		Decision:   res.Decision,
		Combined:   res.Combined,
		Metadata:   res.Metadata,
		DurationMs: float64(res.Duration.Microseconds()) / 1000.0,
		TextHash:   res.TextHash,
	}
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	var body scanRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeAPIError(w, http.StatusBadRequest, "invalid JSON body", "invalid_request")
		return
	}

	res, err := s.orch.Scan(r.Context(), body.toPipeline())
	if err != nil {
		status, typ := scanStatus(err)
		writeAPIError(w, status, err.Error(), typ)
		return
	}
	writeJSON(w, http.StatusOK, toScanResponse(res))
}

type batchScanRequest struct {
	Texts []string `json:"texts"`
	scanRequest
}

type batchScanResponse struct {
	Results []scanResponse `json:"results"`
}

func (s *Server) handleScanBatch(w http.ResponseWriter, r *http.Request) {
	var body batchScanRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeAPIError(w, http.StatusBadRequest, "invalid JSON body", "invalid_request")
		return
	}
	if len(body.Texts) == 0 {
		writeAPIError(w, http.StatusBadRequest, "texts must not be empty", "invalid_request")
		return
	}
	if max := s.cfg.Server.MaxBatchSize; len(body.Texts) > max {
		writeAPIError(w, http.StatusRequestEntityTooLarge, "batch too large", "invalid_request")
		return
	}

	results, err := s.orch.ScanBatch(r.Context(), body.Texts, body.toPipeline())
	if err != nil {
		status, typ := scanStatus(err)
		writeAPIError(w, status, err.Error(), typ)
		return
	}

	out := batchScanResponse{Results: make([]scanResponse, 0, len(results))}
	for _, res := range results {
		out.Results = append(out.Results, toScanResponse(res))
	}
	writeJSON(w, http.StatusOK, out)
}
