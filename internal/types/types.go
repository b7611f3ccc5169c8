// Package types defines the shared data model for the storage core: the
// Operation record that flows through the WAL, the per-backend health
// status the monitor maintains, content references, and columnar dataset
// artifact metadata.
package types

import "time"

// OperationType is the kind of request an Operation represents.
type OperationType string

const (
	OpAdd      OperationType = "ADD"
	OpGet      OperationType = "GET"
	OpPin      OperationType = "PIN"
	OpUnpin    OperationType = "UNPIN"
	OpRemove   OperationType = "RM"
	OpCat      OperationType = "CAT"
	OpList     OperationType = "LIST"
	OpMkdir    OperationType = "MKDIR"
	OpCopy     OperationType = "COPY"
	OpMove     OperationType = "MOVE"
	OpUpload   OperationType = "UPLOAD"
	OpDownload OperationType = "DOWNLOAD"
	OpCustom   OperationType = "CUSTOM"
)

// BackendKind identifies a storage backend an Operation targets.
type BackendKind string

const (
	BackendIPFS     BackendKind = "IPFS"
	BackendS3       BackendKind = "S3"
	BackendStoracha BackendKind = "STORACHA"
	BackendFilecoin BackendKind = "FILECOIN"
	BackendLocal    BackendKind = "LOCAL"
	BackendCustom   BackendKind = "CUSTOM"
)

// OperationStatus is the lifecycle state of an Operation.
type OperationStatus string

const (
	StatusPending    OperationStatus = "PENDING"
	StatusProcessing OperationStatus = "PROCESSING"
	StatusCompleted  OperationStatus = "COMPLETED"
	StatusFailed     OperationStatus = "FAILED"
	StatusRetrying   OperationStatus = "RETRYING"
)

// legalTransitions enumerates the operation status transition DAG.
// COMPLETED and FAILED are terminal: they have no outgoing edges.
var legalTransitions = map[OperationStatus]map[OperationStatus]bool{
	StatusPending:    {StatusProcessing: true, StatusFailed: true}, // PENDING->FAILED: cancellation only
	StatusProcessing: {StatusCompleted: true, StatusRetrying: true, StatusFailed: true},
	StatusRetrying:   {StatusProcessing: true, StatusFailed: true},
	StatusCompleted:  {},
	StatusFailed:     {},
}

// CanTransition reports whether moving from `from` to `to` is legal.
func CanTransition(from, to OperationStatus) bool {
	next, ok := legalTransitions[from]
	if !ok {
		return false
	}
	return next[to]
}

// Terminal reports whether a status has no further legal transitions.
func (s OperationStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Result carries the structured outcome of a successfully dispatched
// Operation.
type Result struct {
	CID         string `json:"cid,omitempty"`
	Size        int64  `json:"size,omitempty"`
	Destination string `json:"destination,omitempty"`
}

// Operation represents a single request against one backend, durably
// recorded in the WAL and mutated only by the processor or an explicit
// cancellation.
type Operation struct {
	OperationID string            `json:"operation_id"`
	Type        OperationType     `json:"operation_type"`
	Backend     BackendKind       `json:"backend"`
	Status      OperationStatus   `json:"status"`
	Timestamp   time.Time         `json:"timestamp"`
	UpdatedAt   time.Time         `json:"updated_at"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
	NextRetryAt *time.Time        `json:"next_retry_at,omitempty"`
	Parameters  map[string]string `json:"parameters,omitempty"`
	Result      *Result           `json:"result,omitempty"`
	Error       string            `json:"error,omitempty"`
	ErrorType   string            `json:"error_type,omitempty"`
	RetryCount  int               `json:"retry_count"`
	MaxRetries  int               `json:"max_retries"`
}

// Clone returns a deep-enough copy of the Operation for safe mutation by
// callers that must not alias the WAL's in-memory view.
func (o *Operation) Clone() *Operation {
	cp := *o
	if o.Parameters != nil {
		cp.Parameters = make(map[string]string, len(o.Parameters))
		for k, v := range o.Parameters {
			cp.Parameters[k] = v
		}
	}
	if o.Result != nil {
		r := *o.Result
		cp.Result = &r
	}
	if o.CompletedAt != nil {
		t := *o.CompletedAt
		cp.CompletedAt = &t
	}
	if o.NextRetryAt != nil {
		t := *o.NextRetryAt
		cp.NextRetryAt = &t
	}
	return &cp
}

// BackendHealthState is the hysteresis-smoothed health of a backend.
type BackendHealthState string

const (
	HealthUnknown  BackendHealthState = "unknown"
	HealthOnline   BackendHealthState = "online"
	HealthDegraded BackendHealthState = "degraded"
	HealthOffline  BackendHealthState = "offline"
)

// BackendStatus is the Health Monitor's view of one backend.
type BackendStatus struct {
	Backend      BackendKind
	State        BackendHealthState
	CheckHistory []bool
	LastCheck    time.Time
	Error        string
}

// ContentReference describes a content-addressed item stored in one or
// more backends.
type ContentReference struct {
	ContentID        string
	ContentHash      string
	BackendLocations map[BackendKind]string
	Metadata         map[string]string
	CreatedAt        time.Time
	LastAccessed     time.Time
	AccessCount      int64
}

// DatasetArtifact describes a columnar dataset stored by the Columnar
// Bridge.
type DatasetArtifact struct {
	CID               string            `json:"cid"`
	SchemaFingerprint string            `json:"schema_fingerprint"`
	RowCount          int64             `json:"row_count"`
	ColumnCount       int               `json:"column_count"`
	SizeBytes         int64             `json:"size_bytes"`
	Partitioned       bool              `json:"partitioned"`
	PartitionColumns  []string          `json:"partition_columns,omitempty"`
	Compression       string            `json:"compression"`
	Metadata          map[string]string `json:"metadata,omitempty"`
	Name              string            `json:"name,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
}
