package models

// CompensationEntry is one undo action recorded after a successful tool
// call. Entries are appended in forward execution order; rollback
// consumes them in reverse.
type CompensationEntry struct {
	NodeID           string         `json:"nodeId"`
	ToolName         string         `json:"toolName"`
	CompensateAction string         `json:"compensateAction"`
	CompensateArgs   map[string]any `json:"compensateArgs,omitempty"`
}

// CompensationResult is the outcome of executing one entry
type CompensationResult struct {
	NodeID           string `json:"nodeId"`
	CompensateAction string `json:"compensateAction"`
	Success          bool   `json:"success"`
	Error            string `json:"error,omitempty"`
}

// CompensationSummary reports a rollback pass. Total always equals
// Succeeded + Failed and len(Results) equals Total.
type CompensationSummary struct {
	Total     int                  `json:"total"`
	Succeeded int                  `json:"succeeded"`
	Failed    int                  `json:"failed"`
	Results   []CompensationResult `json:"results"`
}
