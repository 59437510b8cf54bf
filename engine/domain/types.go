package domain

import "time"

// EngineState is the lifecycle state of a QueryEngine.
type EngineState string

const (
	EngineCreated  EngineState = "CREATED"
	EngineBuilding EngineState = "BUILDING"
	EngineReady    EngineState = "READY"
	EngineFailed   EngineState = "FAILED"
	EngineArchived EngineState = "ARCHIVED"
)

// Metric is a vector-store similarity metric.
type Metric string

const (
	MetricCosine        Metric = "cosine"
	MetricInnerProduct   Metric = "inner-product"
	MetricL2             Metric = "l2"
)

// VectorStoreKind names a concrete vector store backend.
type VectorStoreKind string

const (
	VectorStoreQdrant    VectorStoreKind = "ann"
	VectorStorePgVector  VectorStoreKind = "relational"
)

// QueryEngine is a named, immutable-after-build logical index.
type QueryEngine struct {
	ID               string          `json:"id"`
	Name             string          `json:"name"`
	Description      string          `json:"description"`
	EmbeddingModel   string          `json:"embedding_model"`
	VectorStore      VectorStoreKind `json:"vector_store"`
	Multimodal       bool            `json:"multimodal"`
	OwnerUserID      string          `json:"owner_user_id"`
	State            EngineState     `json:"state"`
	DepthLimit       int             `json:"depth_limit"`
	SourceURL        string          `json:"source_url"`
	Dimension        int             `json:"dimension"`
	Empty            bool            `json:"empty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// SourceFile is a discovered document staged for ingestion.
type SourceFile struct {
	ID              string `json:"id"`
	QueryEngineID   string `json:"query_engine_id"`
	DisplayName     string `json:"display_name"`
	SourceURL       string `json:"source_url"`
	StagingPath     string `json:"staging_path"`
	ObjectStorePath string `json:"object_store_path"`
	MimeType        string `json:"mime_type"`
	ContentHash     string `json:"content_hash"`
}

// Chunk is a bounded text (or text+image) fragment of a SourceFile.
type Chunk struct {
	ID            string `json:"id"`
	QueryEngineID string `json:"query_engine_id"`
	SourceFileID  string `json:"source_file_id"`
	Ordinal       int    `json:"ordinal"`
	Text          string `json:"text"`
	ImageRef      string `json:"image_ref,omitempty"`
	StartOffset   int    `json:"start_offset"`
	EndOffset     int    `json:"end_offset"`
}

// Embedding is a dense vector owned by exactly one Chunk.
type Embedding struct {
	ChunkID   string    `json:"chunk_id"`
	Model     string    `json:"model"`
	Dimension int       `json:"dimension"`
	Values    []float32 `json:"values"`
	Image     []float32 `json:"image,omitempty"`
}

// EntryKind discriminates UserChat entry payloads.
type EntryKind string

const (
	EntryHumanText EntryKind = "HumanText"
	EntryAIText    EntryKind = "AIText"
	EntryHumanFile EntryKind = "HumanFile"
	EntryAIFile    EntryKind = "AIFile"
	EntryPlanRef   EntryKind = "PlanRef"
	EntryQueryRefs EntryKind = "QueryRefs"
	EntryDbResult  EntryKind = "DbResult"
)

// ChatEntry is one append-only element of a UserChat's history.
type ChatEntry struct {
	Kind      EntryKind `json:"kind"`
	Payload   []byte    `json:"payload"` // json.RawMessage, kept as []byte to avoid import cycles
	Timestamp time.Time `json:"timestamp"`
}

// UserChat is an ordered, append-only sequence of ChatEntry values.
type UserChat struct {
	ID        string      `json:"id"`
	UserID    string      `json:"user_id"`
	AgentName string      `json:"agent_name"`
	Entries   []ChatEntry `json:"entries"`
	CreatedAt time.Time   `json:"created_at"`
}

// QueryReference is a citation produced by a retrieval.
type QueryReference struct {
	ChunkID   string  `json:"chunk_id"`
	SourceURL string  `json:"source_url"`
	Excerpt   string  `json:"excerpt"`
	ImageURL  string  `json:"image_url,omitempty"`
	Score     float32 `json:"score"`
}

// StepStatus is the lifecycle state of a PlanStep.
type StepStatus string

const (
	StepPending StepStatus = "PENDING"
	StepRunning StepStatus = "RUNNING"
	StepDone    StepStatus = "DONE"
	StepFailed  StepStatus = "FAILED"
)

// PlanStep is one action within a Plan.
type PlanStep struct {
	Description string     `json:"description"`
	Tool        string     `json:"tool"`
	Status      StepStatus `json:"status"`
	Skippable   bool       `json:"skippable"`
}

// Plan is an ordered, immutable-once-generated list of PlanSteps.
type Plan struct {
	ID        string     `json:"id"`
	ChatID    string     `json:"chat_id"`
	Prompt    string     `json:"prompt"`
	Steps     []PlanStep `json:"steps"`
	CreatedAt time.Time  `json:"created_at"`
}

// JobStatus is the lifecycle state of a BuildJob.
type JobStatus string

const (
	JobPending   JobStatus = "PENDING"
	JobRunning   JobStatus = "RUNNING"
	JobSucceeded JobStatus = "SUCCEEDED"
	JobFailed    JobStatus = "FAILED"
	JobCancelled JobStatus = "CANCELLED"
)

// BuildRequest is the input to the Build Job Coordinator.
type BuildRequest struct {
	EngineName     string
	SourceURL      string
	EmbeddingModel string
	VectorStore    VectorStoreKind
	Depth          int
	Description    string
	OwnerUserID    string
	Multimodal     bool
}

// BuildJob is the lifecycle record of one ingestion pipeline execution.
type BuildJob struct {
	ID            string       `json:"id"`
	QueryEngineID string       `json:"query_engine_id"`
	Request       BuildRequest `json:"-"`
	Status        JobStatus    `json:"status"`
	ErrorCode     Code         `json:"error_code,omitempty"`
	ErrorMessage  string       `json:"error_message,omitempty"`
	Manifest      []string     `json:"manifest"` // SourceFile IDs ingested
	DocsSeen      int          `json:"docs_seen"` // documents the adapter produced, success or not
	ChunksTotal   int          `json:"chunks_total"`
	ChunksFailed  int          `json:"chunks_failed"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

// Tool is a declared agent capability.
type Tool struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	InputSchema string `json:"input_schema"`
	OutputSchema string `json:"output_schema"`
}

// AgentConfig is the static configuration of a named Agent, loaded at startup.
type AgentConfig struct {
	Name         string   `json:"name"`
	Class        string   `json:"class"` // routing | chat | plan | dbquery | rag
	LLM          string   `json:"llm"`
	Tools        []Tool   `json:"tools"`
	Capabilities []string `json:"capabilities"`
}
