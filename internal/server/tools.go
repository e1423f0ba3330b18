package server

// Tool represents an MCP tool definition
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

func prop(typ, description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        typ,
		"description": description,
	}
}

// GetToolDefinitions returns all available tools
func GetToolDefinitions() []Tool {
	return []Tool{
		// Classes
		{
			Name:        "galaxy_classes",
			Description: "List the morphology classes with their integer ids as used in label files and the dataset manifest.",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			},
		},
		{
			Name:        "galaxy_classify",
			Description: "Assign a morphology class to one Galaxy Zoo record from its vote fractions. Requires Class1.1, Class1.2, Class1.3, Class2.1, Class3.1 and Class4.1.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"id": prop("string", "Optional record identifier echoed in the result"),
					"probabilities": map[string]interface{}{
						"type":                 "object",
						"description":          "Vote fractions keyed by survey column, e.g. {\"Class1.1\": 0.6}",
						"additionalProperties": map[string]interface{}{"type": "number"},
					},
				},
				"required": []string{"probabilities"},
			},
		},

		// Dataset
		{
			Name:        "dataset_prepare",
			Description: "Build a train/val detection dataset from the image archive and survey CSV. The output directory is wiped and rebuilt; dataset.yaml is written last.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"archive":     prop("string", "Zip of <id>.jpg images. Defaults to GALAXY_ARCHIVE"),
					"labels":      prop("string", "Survey CSV keyed by GalaxyID. Defaults to GALAXY_LABELS_CSV"),
					"output":      prop("string", "Dataset root. Defaults to GALAXY_DATASET_DIR"),
					"sample_size": prop("integer", "Number of records to use; 0 uses all"),
					"val_split": map[string]interface{}{
						"type":        "number",
						"description": "Validation fraction in (0,1). Default 0.2",
						"default":     0.2,
					},
					"seed": map[string]interface{}{
						"type":        "integer",
						"description": "Seed for sampling and splitting. Default 42",
						"default":     42,
					},
				},
			},
		},

		// Detection
		{
			Name:        "galaxy_detect",
			Description: "Run the galaxy detector on one local image or URL. Saves <stem>_pred.jpg and returns the detections, optionally with a base64 preview.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path":          prop("string", "Absolute path to the image file"),
					"url":           prop("string", "http(s) URL to download instead of path"),
					"conf":          prop("number", "Confidence threshold. Defaults to GALAXY_CONF"),
					"iou":           prop("number", "NMS IoU threshold. Defaults to GALAXY_IOU"),
					"output_dir":    prop("string", "Where to save the render. Defaults to GALAXY_OUTPUT_DIR"),
					"include_image": prop("boolean", "Return the annotated render as base64 JPEG"),
				},
			},
		},
		{
			Name:        "galaxy_random_validation",
			Description: "Pick a random validation image, run the detector on it and report its ground-truth class.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"image_dir":     prop("string", "Image folder. Defaults to the dataset's val/images"),
					"label_dir":     prop("string", "Label folder. Defaults to the dataset's val/labels"),
					"seed":          prop("integer", "Seed for the pick; 0 picks a fresh one"),
					"include_image": prop("boolean", "Return the annotated render as base64 JPEG"),
				},
			},
		},
		{
			Name:        "galaxy_evaluate",
			Description: "Evaluate the detector on a random sample of images: detection rate, top-1 accuracy against ground truth and per-class counts. The run is stored in the evaluation history.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"count": map[string]interface{}{
						"type":        "integer",
						"description": "Number of images to sample; 0 uses all. Default 10",
						"default":     10,
					},
					"folder":     prop("string", "Image folder. Defaults to the dataset's val/images"),
					"labels":     prop("string", "Ground-truth label folder. Defaults to the dataset's val/labels"),
					"output_dir": prop("string", "Where renders go. Defaults to GALAXY_OUTPUT_DIR"),
					"conf":       prop("number", "Confidence threshold. Defaults to GALAXY_CONF"),
					"iou":        prop("number", "NMS IoU threshold. Defaults to GALAXY_IOU"),
					"seed":       prop("integer", "Sampling seed; 0 picks a fresh one"),
					"chart":      prop("boolean", "Also save a class_counts.png bar chart"),
				},
			},
		},
		{
			Name:        "evaluation_history",
			Description: "List stored evaluation runs, newest first, or fetch one run by id.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"run_id": prop("string", "Return only this run"),
					"limit": map[string]interface{}{
						"type":        "integer",
						"description": "Maximum runs to list. Default 20",
						"default":     20,
					},
				},
			},
		},
	}
}

// handleToolsList returns the list of available tools
func (s *Server) handleToolsList(req *MCPRequest) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"tools": GetToolDefinitions(),
		},
	}
}
