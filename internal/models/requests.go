package models

// ProgressEvent defines the structure for streaming progress events
type ProgressEvent struct {
	Type    string `json:"type"`    // "progress", "step", "result", "error"
	Step    string `json:"step"`    // Current step description
	Message string `json:"message"` // Progress message
	Data    any    `json:"data,omitempty"`
}

// GenerateResponse is returned by the generation endpoint.
type GenerateResponse struct {
	RunID    string   `json:"run_id"`
	Paths    []string `json:"paths"`
	Issues   []string `json:"issues"`
	Snapshot Snapshot `json:"snapshot"`
}

// ActionRequest carries a control-sheet decision on one register row.
type ActionRequest struct {
	Action   string `json:"action"`
	Register string `json:"sheet_name"`
	Row      int    `json:"row_idx"`
	Text     string `json:"text,omitempty"`
	Actor    string `json:"actor,omitempty"`
}

// ActionResponse reports the outcome of an ActionRequest.
type ActionResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// SearchHit is a register row matching a search query.
type SearchHit struct {
	Register string `json:"source_sheet"`
	Row      int    `json:"row_idx"`
	Title    string `json:"title"`
	Theme    string `json:"theme"`
	Comments string `json:"comments"`
	Status   string `json:"status"`
}
