// Package schema is the explicit domain-type layer for the Segment
// Production Pipeline (§3, §9 "model the domain as an explicit schema
// layer"). Database DDL (pkg/store/migrations) and wire serializers
// (encoding/json struct tags) are both derived from these definitions;
// validation lives at the boundary (pkg/config, pkg/api) rather than as
// reflection over these types.
package schema

import "time"

// SourceType distinguishes the two kinds of source content a Chunk can be
// derived from.
type SourceType string

const (
	SourceUniverseDoc SourceType = "universe_doc"
	SourceEvent       SourceType = "event"
)

// DocStatus is the publication status of a UniverseDoc.
type DocStatus string

const (
	DocDraft     DocStatus = "draft"
	DocPublished DocStatus = "published"
	DocArchived  DocStatus = "archived"
)

// UniverseDoc is timeless worldbuilding content.
type UniverseDoc struct {
	ID        string
	Title     string
	Body      string
	Lang      string
	Tags      []string
	Status    DocStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Event is timestamped content with an importance rank used by recency
// scoring and retrieval tie-breaking (§4.4).
type Event struct {
	ID         string
	Title      string
	Body       string
	Lang       string
	Tags       []string
	EventDate  time.Time
	Importance int // 1..10
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Chunk is a token-bounded, hashed slice of source text (§3, §4.2).
// Chunks never mutate after creation; reindexing creates a new generation
// and atomically swaps the set belonging to a source.
type Chunk struct {
	ID          string
	SourceID    string
	SourceType  SourceType
	ChunkText   string
	ChunkIndex  int
	TokenCount  int
	ContentHash string // SHA-256 hex of the normalized chunk text
	Lang        string
	CreatedAt   time.Time
}

// Embedding is the current 1024-dimensional vector for a Chunk. Exactly
// one current embedding exists per chunk.
type Embedding struct {
	ID        string
	ChunkID   string
	Vector    []float32
	ModelName string
	CreatedAt time.Time
}

// EmbeddingDimension is the fixed vector width mandated by §3; mismatches
// fail an embedding job non-retryably.
const EmbeddingDimension = 1024

// IndexState is the lifecycle of a source's indexing pass.
type IndexState string

const (
	IndexPending    IndexState = "pending"
	IndexProcessing IndexState = "processing"
	IndexComplete   IndexState = "complete"
	IndexFailed     IndexState = "failed"
)

// IndexStatus tracks indexing progress per (source_id, source_type).
type IndexStatus struct {
	SourceID         string
	SourceType       SourceType
	State            IndexState
	ChunksCreated    int
	EmbeddingsCreated int
	Error            string
	UpdatedAt        time.Time
}

// JobState is the lifecycle of a queued unit of work (§4.1).
type JobState string

const (
	JobPending    JobState = "pending"
	JobProcessing JobState = "processing"
	JobCompleted  JobState = "completed"
	JobFailed     JobState = "failed"
)

// JobType enumerates the known job payload shapes (§6).
type JobType string

const (
	JobKBIndex        JobType = "kb_index"
	JobChunkEmbed     JobType = "chunk_embed"
	JobSegmentMake    JobType = "segment_make"
	JobSegmentRender  JobType = "segment_render"
	JobSegmentMaster  JobType = "segment_master"
	JobScheduleHour   JobType = "schedule_hour"
)

// Job is a durable unit of work claimed by a single worker at a time.
type Job struct {
	ID             string
	JobType        JobType
	Payload        []byte // JSON
	State          JobState
	Priority       int // 1..10, higher runs first
	ScheduledFor   time.Time
	Attempts       int
	MaxAttempts    int
	LockedUntil    *time.Time
	LockedBy       *string
	Error          string
	ErrorDetails   string
	IdempotencyKey *string
	CreatedAt      time.Time
	StartedAt      *time.Time
	CompletedAt    *time.Time
}

// DeadLetterEntry is the terminal resting place of a job that exhausted
// its retries or failed non-retryably.
type DeadLetterEntry struct {
	ID           string
	JobID        string
	JobType      JobType
	Payload      []byte
	LastError    string
	FailureCount int
	FrozenState  JobState
	CreatedAt    time.Time
}

// Voice is a synthesizable speaker identity handed to the opaque TTS
// adapter (§1 out of scope, referenced here only as an id/name pair).
type Voice struct {
	ID   string
	Name string
}

// DJ is an on-air persona. Consumed by the Segment Generation Worker (C7)
// only as prompt context — the pipeline never reasons about DJs beyond
// that.
type DJ struct {
	ID           string
	Name         string
	VoiceID      string
	Lang         string
	Personality  []string // ordered set of short labels
	Bio          string
}

// FormatSlot is one named interval of a FormatClock.
type FormatSlot struct {
	SlotType    string
	DurationSec int
	OrderIndex  int
	Required    bool
}

// FormatClockTotalSeconds is the invariant total every FormatClock's slots
// must sum to (§3, §9 Open Question — sum != 3600 is invalid, never
// guessed at).
const FormatClockTotalSeconds = 3600

// FormatClock is a named 60-minute template of slots.
type FormatClock struct {
	ID    string
	Name  string
	Slots []FormatSlot
}

// TotalSeconds sums the clock's slot durations.
func (fc FormatClock) TotalSeconds() int {
	total := 0
	for _, s := range fc.Slots {
		total += s.DurationSec
	}
	return total
}

// ConversationFormat classifies multi-DJ programs.
type ConversationFormat string

const (
	FormatInterview ConversationFormat = "interview"
	FormatPanel     ConversationFormat = "panel"
	FormatDialogue  ConversationFormat = "dialogue"
	FormatDebate    ConversationFormat = "debate"
)

// Program couples a FormatClock with one or more DJs.
type Program struct {
	ID                 string
	Name               string
	Genre              string
	FormatClockID      string
	DJIDs              []string // first is primary
	ConversationFormat *ConversationFormat
	Description        string
	Active             bool
}

// BroadcastSchedule assigns a Program to a recurring time window.
type BroadcastSchedule struct {
	ID         string
	ProgramID  string
	DayOfWeek  *int // 0=Sunday .. 6=Saturday; nil = every day
	StartTime  string // "HH:MM" in station-local time
	EndTime    string
	Priority   int
	Active     bool
	CreatedAt  time.Time
}

// SegmentState is a node in the C6 state machine (§4.6).
type SegmentState string

const (
	SegmentQueued      SegmentState = "queued"
	SegmentRetrieving  SegmentState = "retrieving"
	SegmentGenerating  SegmentState = "generating"
	SegmentRendering   SegmentState = "rendering"
	SegmentNormalizing SegmentState = "normalizing"
	SegmentReady       SegmentState = "ready"
	SegmentAiring      SegmentState = "airing"
	SegmentAired       SegmentState = "aired"
	SegmentArchived    SegmentState = "archived"
	SegmentFailed      SegmentState = "failed"
)

// Citation records one retrieved chunk used (or considered) while
// generating a Segment's script. Immutable once written (§3).
type Citation struct {
	SourceID       string
	ChunkID        string
	Title          string
	RelevanceScore float64
}

// GenerationMetrics captures the observability data recorded alongside a
// generated script (§4.7 step 5).
type GenerationMetrics struct {
	LatencyMS         int64
	PromptTokens      int
	CompletionTokens  int
	ModelID           string
	Temperature       float64
	RetrievalDegraded bool
}

// Segment is one playable piece of audio corresponding to a FormatSlot
// instance at a specific wall time.
type Segment struct {
	ID                string
	ProgramID         string
	SlotType          string
	SlotIndex         int
	State             SegmentState
	Lang              string
	ScriptMD          *string
	AssetID           *string
	DurationSec       *int
	ScheduledStartTS  time.Time
	AiredAt           *time.Time
	RetryCount        int
	MaxRetries        int
	LastError         *string
	Citations         []Citation
	CacheKey          *string
	ParentSegmentID   *string
	GenerationMetrics *GenerationMetrics
	IdempotencyKey    string
	UpdatedAt         time.Time
	Version           int // optimistic concurrency token
	CreatedAt         time.Time
}

// Asset is a content-addressed rendered audio artifact (§5).
type Asset struct {
	ID          string
	ContentHash string
	DurationSec float64
	Format      string
	URI         string
	CreatedAt   time.Time
}

// HealthCheck is a periodic self-reported liveness row, exposed through
// the /health endpoint (§6) and purged by the cleanup job (§6 CLI).
type HealthCheck struct {
	ID           string
	Component    string
	Status       string
	Detail       string
	RecordedAt   time.Time
}
