package domain

import "time"

// Media is a stored image resource. Sources are owned by the host
// application; outputs are created by successful jobs.
type Media struct {
	ID         int64
	Filename   string
	StorageKey string
	MIME       string
	Bytes      int64
	Width      int
	Height     int
	ParentID   *int64
	Operation  string
	Title      string
	Metadata   map[string]any
	CreatedBy  int64
	CreatedAt  time.Time
}

// Metadata keys written onto source media by metadata operations.
const (
	MetaAITags         = "ai_tags"
	MetaAITagsError    = "ai_tags_error"
	MetaAIAltText      = "ai_alt_text"
	MetaAITitle        = "ai_title"
	MetaAICaption      = "ai_caption"
	MetaAIDescription  = "ai_description"
	MetaAISEOError     = "ai_seo_error"
	MetaParentID       = "mm_parent_id"
	MetaOperation      = "mm_operation"
	MetaSourceJobID    = "mm_job_id"
	MetaProductContext = "product_context"
)
