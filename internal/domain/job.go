package domain

import (
	"strings"
	"time"
)

// Operation enumerates the transformations a job can request.
type Operation string

const (
	OperationRemoveBackground    Operation = "remove_background"
	OperationStyleTransfer       Operation = "style_transfer"
	OperationRegenerate          Operation = "regenerate"
	OperationAutoTag             Operation = "auto_tag_image"
	OperationAutoSEO             Operation = "auto_seo_image"
	OperationUpscaleFast         Operation = "upscale_fast"
	OperationUpscaleConservative Operation = "upscale_conservative"
	OperationUpscaleCreative     Operation = "upscale_creative"
	OperationOutpaint            Operation = "outpaint"
	OperationInpaint             Operation = "inpaint"
	OperationErase               Operation = "erase"
	OperationSearchReplace       Operation = "search_replace"
	OperationReplaceBackground   Operation = "replace_background"
	OperationSketch              Operation = "sketch"
	OperationStructure           Operation = "structure"
	OperationGenerateUltra       Operation = "generate_ultra"
	OperationGenerateCore        Operation = "generate_core"
)

var knownOperations = map[Operation]struct{}{
	OperationRemoveBackground:    {},
	OperationStyleTransfer:       {},
	OperationRegenerate:          {},
	OperationAutoTag:             {},
	OperationAutoSEO:             {},
	OperationUpscaleFast:         {},
	OperationUpscaleConservative: {},
	OperationUpscaleCreative:     {},
	OperationOutpaint:            {},
	OperationInpaint:             {},
	OperationErase:               {},
	OperationSearchReplace:       {},
	OperationReplaceBackground:   {},
	OperationSketch:              {},
	OperationStructure:           {},
	OperationGenerateUltra:       {},
	OperationGenerateCore:        {},
}

// Names used by older clients.
var operationAliases = map[string]Operation{
	"remove_bg": OperationRemoveBackground,
	"auto_tag":  OperationAutoTag,
	"auto_seo":  OperationAutoSEO,
}

// NormalizeOperation maps free-form input onto a known operation. The second
// return value is false when the operation is not part of the supported set.
func NormalizeOperation(raw string) (Operation, bool) {
	key := strings.ToLower(strings.TrimSpace(raw))
	if alias, ok := operationAliases[key]; ok {
		return alias, true
	}
	op := Operation(key)
	_, ok := knownOperations[op]
	return op, ok
}

// Operations returns the supported operation set.
func Operations() []Operation {
	out := make([]Operation, 0, len(knownOperations))
	for op := range knownOperations {
		out = append(out, op)
	}
	return out
}

// IsMetadata reports whether the operation writes metadata onto the source
// media instead of producing a new image.
func (o Operation) IsMetadata() bool {
	return o == OperationAutoTag || o == OperationAutoSEO
}

// JobStatus enumerates job lifecycle states.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Terminal reports whether no further transition is allowed.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Job is one requested asynchronous operation and its outcome.
type Job struct {
	ID           int64
	SourceID     int64
	Operation    string
	Params       Params
	Status       JobStatus
	Result       []int64
	ErrorMessage string
	CreatedBy    int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// JobView is the read-only snapshot returned to pollers.
type JobView struct {
	ID        int64     `json:"id"`
	Status    JobStatus `json:"status"`
	Operation string    `json:"operation"`
	SourceID  int64     `json:"source_id"`
	Params    Params    `json:"params"`
	Result    []int64   `json:"result"`
	Error     string    `json:"error"`
	CreatedBy int64     `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// View copies the job into a snapshot that shares no memory with it.
func (j Job) View() JobView {
	result := make([]int64, len(j.Result))
	copy(result, j.Result)
	return JobView{
		ID:        j.ID,
		Status:    j.Status,
		Operation: j.Operation,
		SourceID:  j.SourceID,
		Params:    j.Params.Clone(),
		Result:    result,
		Error:     j.ErrorMessage,
		CreatedBy: j.CreatedBy,
		CreatedAt: j.CreatedAt,
		UpdatedAt: j.UpdatedAt,
	}
}
