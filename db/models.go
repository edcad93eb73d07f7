package db

// Project is a directory the wrapper has been started in at least once.
type Project struct {
	ID          int64
	RootPath    string
	ProjectHash string
	CreatedAt   string
}

// Instance is one running orchestrator process for a project.
type Instance struct {
	InstanceID   string
	ProjectID    int64
	Pid          int
	TTY          *string
	StartedAt    string
	EndedAt      *string
	ExitCode     *int
	MetadataJSON *string
}

// Session statuses. Terminal statuses are absorbing: a session never
// transitions back out of one.
const (
	SessionStatusActive      = "active"
	SessionStatusRunning     = "running"
	SessionStatusDone        = "done"
	SessionStatusFailed      = "failed"
	SessionStatusInterrupted = "interrupted"
	SessionStatusOrphaned    = "orphaned"
)

// TerminalStatuses are never re-entered once reached.
var TerminalStatuses = map[string]bool{
	SessionStatusDone:        true,
	SessionStatusFailed:      true,
	SessionStatusInterrupted: true,
	SessionStatusOrphaned:    true,
}

// Session is a logical unit of work: the TUI root session or a spawned
// agent session.
type Session struct {
	ID                  string
	ProjectID           int64
	ParentID            *string
	AgentType           string
	InstanceID          *string
	Title               *string
	Prompt              *string
	Status              string
	CreatedAt           string
	UpdatedAt           *string
	EndedAt             *string
	LastClaudeSessionID *string
	LastTranscriptPath  *string
	CurrentProcessPid   *int
	MetadataJSON        *string
}

// ClaudeSessionLink ties a logical session to one underlying TUI
// conversation id. At most one per session has EndedAt == nil — the
// "active link".
type ClaudeSessionLink struct {
	ID              int64
	KlaudeSessionID string
	ClaudeSessionID string
	TranscriptPath  *string
	Source          string
	StartedAt       string
	EndedAt         *string
}

// Link sources.
const (
	LinkSourceStartup = "startup"
	LinkSourceResume  = "resume"
)

// RuntimeProcess is the ledger of every spawned child (TUI or agent).
type RuntimeProcess struct {
	ID              int64
	KlaudeSessionID string
	Pid             int
	Kind            string
	StartedAt       string
	ExitedAt        *string
	ExitCode        *int
	IsCurrent       bool
}

// Runtime kinds.
const (
	RuntimeKindTUI      = "tui"
	RuntimeKindNative   = "native"
	RuntimeKindBackendA = "backend-a"
	RuntimeKindBackendB = "backend-b"
	RuntimeKindBackendC = "backend-c"
)

// Event is an append-only record, mirrored to the per-session JSONL file
// by the EventRecorder.
type Event struct {
	ID              int64
	ProjectID       *int64
	KlaudeSessionID *string
	Kind            string
	PayloadJSON     *string
	CreatedAt       string
}

// AgentUpdate is a "[UPDATE] ..." notification queued from a child session
// to its parent.
type AgentUpdate struct {
	ID              int64
	SessionID       string
	ParentSessionID *string
	UpdateText      string
	Acknowledged    bool
	CreatedAt       string
}
