package rewind

import "time"

// HistoryState is a point-in-time summary of the stack.
type HistoryState struct {
	PastCount     int
	FutureCount   int
	CanUndo       bool
	CanRedo       bool
	LastOperation string
}

// OpType identifies a recorded stack operation.
type OpType string

// Operation types recorded in OperationRecord.
const (
	OpPush  OpType = "push"
	OpUndo  OpType = "undo"
	OpRedo  OpType = "redo"
	OpClear OpType = "clear"
)

// OperationRecord captures timing and memory diagnostics for one operation.
type OperationRecord struct {
	ID          string
	Type        OpType
	Timestamp   time.Time
	Duration    time.Duration
	MemoryBytes int
	Label       string
	ActionSize  int
}

// ActionInfo describes one history entry without exposing the entry itself.
type ActionInfo struct {
	Label       string
	Timestamp   time.Time
	Size        int
	Compressed  bool
	IsMutation  bool
	TargetPaths []string
}

// maxRecords caps the operation record ring.
const maxRecords = 128
