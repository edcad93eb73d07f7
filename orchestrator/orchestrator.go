// Package orchestrator is the composition root: it owns the database
// connection, the event recorder, the TUI and runtime lifecycles, the
// agent-definition cache, and the Unix socket — and implements
// server.ActionHandler so server.Router can dispatch into it without the
// server package ever importing this one.
package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/captaincrouton89/klaude-wrapper/agent"
	"github.com/captaincrouton89/klaude-wrapper/claude"
	"github.com/captaincrouton89/klaude-wrapper/config"
	"github.com/captaincrouton89/klaude-wrapper/db"
	"github.com/captaincrouton89/klaude-wrapper/events"
	"github.com/captaincrouton89/klaude-wrapper/log"
	"github.com/captaincrouton89/klaude-wrapper/server"
	"github.com/captaincrouton89/klaude-wrapper/ulid"
	"github.com/captaincrouton89/klaude-wrapper/workers"
	"github.com/captaincrouton89/klaude-wrapper/wraperr"
)

// Orchestrator wires every component together for one running instance
// of the wrapper in one project directory.
type Orchestrator struct {
	cfg *config.Config

	projectRoot string
	projectHash string
	project     *db.Project
	instance    *db.Instance

	recorder   *events.Recorder
	agentCache *agent.Cache
	tui        *claude.TuiLifecycle
	runtimes   *claude.RuntimeLifecycle
	socket     *server.Socket
	updates    *workers.UpdateWatcher

	rootSessionID string
}

// New constructs an Orchestrator for projectRoot but does not yet spawn
// anything (see Start).
func New(projectRoot string) (*Orchestrator, error) {
	cfg := config.Get()

	absRoot, err := filepath.Abs(projectRoot)
	if err != nil {
		return nil, err
	}
	projectHash := ProjectHash(absRoot)

	project, err := db.GetOrCreateProject(absRoot, projectHash)
	if err != nil {
		return nil, err
	}

	instanceID := ulid.New()
	instance := db.Instance{
		InstanceID: instanceID,
		ProjectID:  project.ID,
		Pid:        os.Getpid(),
		StartedAt:  time.Now().UTC().Format(time.RFC3339),
	}
	if err := db.CreateInstance(instance); err != nil {
		return nil, err
	}

	o := &Orchestrator{
		cfg:         cfg,
		projectRoot: absRoot,
		projectHash: projectHash,
		project:     project,
		instance:    &instance,
		recorder:    events.New(),
		agentCache:  agent.NewCache(absRoot, cfg.Home),
	}

	o.runtimes = claude.NewRuntimeLifecycle(project.ID, o.recorder, cfg.GPT)
	o.tui = claude.NewTuiLifecycle(
		claude.TuiConfig{
			ClaudeBinary: cfg.ClaudeBinary,
			GraceSeconds: cfg.SwitchGraceSeconds,
			ExtraArgs:    claude.SplitCommaList(cfg.ClaudeExtraArgs),
		},
		projectHash, instanceID, project.ID, o.recorder, o.runtimes, o.onTuiFinalExit,
	)
	o.updates = workers.NewUpdateWatcher(project.ID, o.recorder, o.runtimes, 0)

	return o, nil
}

// Start creates a new root TUI session for this instance, opens the
// socket, registers the instance, and launches the foreground TUI.
func (o *Orchestrator) Start() error {
	o.recorder.RecordProjectEvent(o.project.ID, events.KindWrapperStart, map[string]any{
		"instanceId":  o.instance.InstanceID,
		"projectRoot": o.projectRoot,
	})

	rootSessionID := ulid.New()
	now := time.Now().UTC().Format(time.RFC3339)
	if err := db.CreateSession(db.Session{
		ID:         rootSessionID,
		ProjectID:  o.project.ID,
		AgentType:  db.RuntimeKindTUI,
		InstanceID: &o.instance.InstanceID,
		Status:     db.SessionStatusActive,
		CreatedAt:  now,
	}); err != nil {
		return err
	}
	o.rootSessionID = rootSessionID
	o.recorder.RecordSessionEvent(&o.project.ID, rootSessionID, events.KindAgentSessionCreated, map[string]any{
		"agentType": db.RuntimeKindTUI,
	})
	o.updates.Track(rootSessionID)
	o.updates.Start()

	socketPath := filepath.Join(o.cfg.SocketDir, o.projectHash, o.instance.InstanceID+".sock")
	router := server.NewRouter(o)
	socket, err := server.NewSocket(socketPath, router)
	if err != nil {
		return err
	}
	o.socket = socket
	go socket.Serve()

	if err := PruneRegistry(o.cfg.Home, o.projectHash); err != nil {
		log.Warn().Err(err).Msg("failed to prune stale registry entries")
	}

	if err := RegisterInstance(o.cfg.Home, o.projectHash, registryEntry{
		InstanceID: o.instance.InstanceID,
		Pid:        o.instance.Pid,
		SocketPath: socketPath,
		StartedAt:  o.instance.StartedAt,
	}); err != nil {
		log.Warn().Err(err).Msg("failed to register instance")
	}

	return o.tui.LaunchForSession(rootSessionID, "")
}

// onTuiFinalExit is TuiLifecycle's FinalizeFunc: the root TUI exited with
// no pending switch, so the whole instance is done.
func (o *Orchestrator) onTuiFinalExit(exitCode int) {
	o.recorder.RecordSessionEvent(&o.project.ID, o.rootSessionID, events.KindWrapperFinalized, map[string]any{
		"exitCode": exitCode,
	})
	if err := db.FinalizeInstance(o.instance.InstanceID, exitCode); err != nil {
		log.Warn().Err(err).Msg("failed to finalize instance")
	}
	o.Shutdown()
	os.Exit(exitCode)
}

// Shutdown tears components down in order: stop the update watcher, stop
// accepting new socket connections, unregister from the instance
// registry, close the agent-definition watcher, then close the event
// recorder's queues. The database connection is process-global; Shutdown
// leaves it open.
func (o *Orchestrator) Shutdown() {
	if o.updates != nil {
		o.updates.Stop()
	}
	if o.socket != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := o.socket.Shutdown(ctx); err != nil {
			log.Warn().Err(err).Msg("socket shutdown error")
		}
	}

	if err := UnregisterInstance(o.cfg.Home, o.projectHash, o.instance.InstanceID); err != nil {
		log.Warn().Err(err).Msg("failed to unregister instance")
	}

	if o.agentCache != nil {
		o.agentCache.Close()
	}
	if o.recorder != nil {
		o.recorder.Close()
	}
}

// resolvedAgentTypeError builds an E_AGENT_TYPE_INVALID error listing the
// agent types currently available.
func resolvedAgentTypeError(o *Orchestrator) error {
	types := o.agentCache.Types()
	return wraperr.New(wraperr.EAgentTypeInvalid, "unknown agent type, available: "+joinOrNone(types))
}

func joinOrNone(types []string) string {
	if len(types) == 0 {
		return "(none)"
	}
	out := types[0]
	for _, t := range types[1:] {
		out += ", " + t
	}
	return out
}
