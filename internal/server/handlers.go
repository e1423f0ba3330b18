package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ironsheep/galaxy-tools/internal/dataset"
	"github.com/ironsheep/galaxy-tools/internal/evaluate"
	"github.com/ironsheep/galaxy-tools/internal/imaging"
	"github.com/ironsheep/galaxy-tools/internal/morphology"
)

// PreviewSize bounds the longest side of base64 previews returned by tools.
const PreviewSize = 512

var (
	errNoDetector = errors.New("no detector loaded; set GALAXY_MODEL_PATH")
	errNoHistory  = errors.New("evaluation history is not available")
)

// ToolCallParams represents the parameters for a tools/call MCP request.
type ToolCallParams struct {
	// Name is the tool to invoke (e.g., "galaxy_detect").
	Name string `json:"name"`

	// Arguments contains the tool-specific parameters as JSON.
	Arguments json.RawMessage `json:"arguments"`
}

// handleToolsCall processes a tools/call request and executes the specified tool.
//
// The response wraps the tool result in MCP's content format:
//
//	{
//	  "content": [{"type": "text", "text": "<JSON result>"}]
//	}
//
// Tool execution errors return a JSON-RPC error response with code -32000.
func (s *Server) handleToolsCall(ctx context.Context, req *MCPRequest) *MCPResponse {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return s.errorResponse(req.ID, -32602, "Invalid params", err.Error())
	}

	result, err := s.executeTool(ctx, params.Name, params.Arguments)
	if err != nil {
		return s.errorResponse(req.ID, -32000, "Tool execution failed", err.Error())
	}

	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"content": []map[string]interface{}{
				{
					"type": "text",
					"text": mustMarshalJSON(result),
				},
			},
		},
	}
}

// executeTool dispatches tool execution to the appropriate handler function.
func (s *Server) executeTool(ctx context.Context, name string, args json.RawMessage) (interface{}, error) {
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}

	switch name {
	case "galaxy_classes":
		return s.handleGalaxyClasses()
	case "galaxy_classify":
		return s.handleGalaxyClassify(args)
	case "dataset_prepare":
		return s.handleDatasetPrepare(ctx, args)
	case "galaxy_detect":
		return s.handleGalaxyDetect(ctx, args)
	case "galaxy_random_validation":
		return s.handleRandomValidation(ctx, args)
	case "galaxy_evaluate":
		return s.handleGalaxyEvaluate(ctx, args)
	case "evaluation_history":
		return s.handleEvaluationHistory(args)
	default:
		return nil, fmt.Errorf("unknown tool: %s", name)
	}
}

// errorResponse creates a JSON-RPC error response with the given details.
func (s *Server) errorResponse(id interface{}, code int, message, data string) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &MCPError{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}
}

// mustMarshalJSON converts a value to pretty-printed JSON string.
// Panics are suppressed; on marshal failure, returns an empty string.
func mustMarshalJSON(v interface{}) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}

func seedOrNow(seed int64) uint64 {
	if seed != 0 {
		return uint64(seed)
	}
	return uint64(time.Now().UnixNano())
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func orDefaultFloat(v, def float64) float64 {
	if v == 0 {
		return def
	}
	return v
}

// === Class Handlers ===

// ClassInfo is one entry of the class table.
type ClassInfo struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

func (s *Server) handleGalaxyClasses() (interface{}, error) {
	classes := make([]ClassInfo, 0, len(morphology.Classes))
	for _, c := range morphology.Classes {
		classes = append(classes, ClassInfo{ID: int(c), Name: c.String()})
	}
	return map[string]interface{}{"classes": classes}, nil
}

type galaxyClassifyArgs struct {
	ID            string             `json:"id"`
	Probabilities map[string]float64 `json:"probabilities"`
}

func (s *Server) handleGalaxyClassify(args json.RawMessage) (interface{}, error) {
	var a galaxyClassifyArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	class, err := morphology.Classify(morphology.SurveyRecord{ID: a.ID, Probabilities: a.Probabilities})
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"id":         a.ID,
		"class":      int(class),
		"class_name": class.String(),
	}, nil
}

// === Dataset Handlers ===

type datasetPrepareArgs struct {
	Archive    string  `json:"archive"`
	Labels     string  `json:"labels"`
	Output     string  `json:"output"`
	SampleSize int     `json:"sample_size"`
	ValSplit   float64 `json:"val_split"`
	Seed       *int64  `json:"seed"`
}

func (s *Server) handleDatasetPrepare(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a datasetPrepareArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	cfg := s.deps.Config
	seed := int64(dataset.DefaultSeed)
	if a.Seed != nil {
		seed = *a.Seed
	}
	return dataset.Materialize(ctx, dataset.Options{
		ArchivePath: orDefault(a.Archive, cfg.ArchivePath),
		LabelsPath:  orDefault(a.Labels, cfg.LabelsCSV),
		OutputRoot:  orDefault(a.Output, cfg.DatasetDir),
		SampleSize:  a.SampleSize,
		ValSplit:    orDefaultFloat(a.ValSplit, dataset.DefaultValSplit),
		Seed:        seed,
	})
}

// === Detection Handlers ===

// DetectResult is returned by galaxy_detect and galaxy_random_validation.
type DetectResult struct {
	*evaluate.ImageResult
	Count   int                   `json:"count"`
	Preview *imaging.EncodedImage `json:"preview,omitempty"`
	Truth   *ClassInfo            `json:"true_class,omitempty"`
}

type galaxyDetectArgs struct {
	Path         string  `json:"path"`
	URL          string  `json:"url"`
	Conf         float64 `json:"conf"`
	IoU          float64 `json:"iou"`
	OutputDir    string  `json:"output_dir"`
	IncludeImage bool    `json:"include_image"`
}

func (s *Server) handleGalaxyDetect(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a galaxyDetectArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if s.deps.Detector == nil {
		return nil, errNoDetector
	}

	path := a.Path
	switch {
	case a.URL != "":
		tmp, err := imaging.Download(ctx, a.URL)
		if err != nil {
			return nil, err
		}
		defer os.Remove(tmp)
		path = tmp
	case path == "":
		return nil, errors.New("either path or url is required")
	}

	return s.detect(ctx, path, a.OutputDir, a.Conf, a.IoU, a.IncludeImage)
}

func (s *Server) detect(ctx context.Context, path, outputDir string, conf, iou float64, preview bool) (*DetectResult, error) {
	cfg := s.deps.Config
	res, err := evaluate.PredictImage(ctx, s.deps.Detector, path,
		orDefault(outputDir, cfg.OutputDir), orDefaultFloat(conf, cfg.Conf), orDefaultFloat(iou, cfg.IoU))
	if err != nil {
		return nil, err
	}

	out := &DetectResult{ImageResult: res, Count: len(res.Detections)}
	if preview {
		out.Preview, err = imaging.EncodeFile(res.AnnotatedPath, PreviewSize)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

type randomValidationArgs struct {
	ImageDir     string `json:"image_dir"`
	LabelDir     string `json:"label_dir"`
	Seed         int64  `json:"seed"`
	IncludeImage bool   `json:"include_image"`
}

func (s *Server) handleRandomValidation(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a randomValidationArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if s.deps.Detector == nil {
		return nil, errNoDetector
	}

	cfg := s.deps.Config
	img, err := evaluate.RandomImage(orDefault(a.ImageDir, cfg.ValImages()), seedOrNow(a.Seed))
	if err != nil {
		return nil, err
	}

	res, err := s.detect(ctx, img, "", 0, 0, a.IncludeImage)
	if err != nil {
		return nil, err
	}
	stem := strings.TrimSuffix(filepath.Base(img), filepath.Ext(img))
	if gt, ok := evaluate.ReadGroundTruth(orDefault(a.LabelDir, cfg.ValLabels()), stem); ok {
		res.Truth = &ClassInfo{ID: gt, Name: morphology.Class(gt).String()}
	}
	return res, nil
}

// === Evaluation Handlers ===

type galaxyEvaluateArgs struct {
	Count     *int    `json:"count"`
	Folder    string  `json:"folder"`
	Labels    string  `json:"labels"`
	OutputDir string  `json:"output_dir"`
	Conf      float64 `json:"conf"`
	IoU       float64 `json:"iou"`
	Seed      int64   `json:"seed"`
	Chart     bool    `json:"chart"`
}

// EvaluateResult is returned by galaxy_evaluate.
type EvaluateResult struct {
	RunID     string            `json:"run_id,omitempty"`
	ChartPath string            `json:"chart_path,omitempty"`
	Summary   *evaluate.Summary `json:"summary"`
}

func (s *Server) handleGalaxyEvaluate(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a galaxyEvaluateArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if s.deps.Detector == nil {
		return nil, errNoDetector
	}

	cfg := s.deps.Config
	count := 10
	if a.Count != nil {
		count = *a.Count
	}
	folder := orDefault(a.Folder, cfg.ValImages())
	images, err := evaluate.SampleImages(folder, count, seedOrNow(a.Seed))
	if err != nil {
		return nil, err
	}

	labels := orDefault(a.Labels, cfg.ValLabels())
	if _, err := os.Stat(labels); err != nil {
		labels = ""
	}
	opts := evaluate.Options{
		OutputDir:     orDefault(a.OutputDir, cfg.OutputDir),
		LabelDir:      labels,
		ConfThreshold: orDefaultFloat(a.Conf, cfg.Conf),
		IoUThreshold:  orDefaultFloat(a.IoU, cfg.IoU),
	}

	summary, err := evaluate.Evaluate(ctx, s.deps.Detector, images, opts)
	if err != nil {
		return nil, err
	}

	out := &EvaluateResult{Summary: summary}
	if a.Chart {
		if out.ChartPath, err = evaluate.SaveCountsChart(summary); err != nil {
			return nil, err
		}
	}
	if s.deps.History != nil {
		run, err := s.deps.History.Record(summary, "mcp", folder, opts)
		if err != nil {
			return nil, err
		}
		out.RunID = run.RunID
	}
	return out, nil
}

type evaluationHistoryArgs struct {
	RunID string `json:"run_id"`
	Limit int    `json:"limit"`
}

func (s *Server) handleEvaluationHistory(args json.RawMessage) (interface{}, error) {
	var a evaluationHistoryArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if s.deps.History == nil {
		return nil, errNoHistory
	}
	if a.RunID != "" {
		return s.deps.History.Get(a.RunID)
	}
	if a.Limit == 0 {
		a.Limit = 20
	}
	runs, err := s.deps.History.List(a.Limit)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"runs": runs}, nil
}
