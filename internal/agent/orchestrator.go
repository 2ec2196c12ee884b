// Package agent runs the bounded decision loop that turns an utterance into a
// reply and an optional device action.
package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ent0n29/maxai/internal/actions"
	"github.com/ent0n29/maxai/internal/dialog"
	"github.com/ent0n29/maxai/internal/memory"
	"github.com/ent0n29/maxai/internal/observability"
	"github.com/ent0n29/maxai/internal/policy"
	"github.com/ent0n29/maxai/internal/prompt"
	"github.com/ent0n29/maxai/internal/provider"
	"github.com/ent0n29/maxai/internal/skills"
)

const DefaultMaxIterations = 3

var ErrEmptyInput = errors.New("empty input")

// Generator is the provider gateway surface the loop needs.
type Generator interface {
	Generate(ctx context.Context, req provider.Request) string
	GenerateStream(ctx context.Context, req provider.Request, onDelta provider.DeltaHandler) error
}

// Memory is the aggregator surface used by Handle and HandleStream.
type Memory interface {
	Context(ctx context.Context, userID, sessionID, query string) string
	History(ctx context.Context, sessionID string, limit int) ([]dialog.Turn, error)
	RecordTurn(ctx context.Context, sessionID, userText, assistantText string) error
	Preferences(ctx context.Context, userID string) (memory.Preferences, error)
}

// Input is everything one Process call needs.
type Input struct {
	UserID        string
	Utterance     string
	History       []dialog.Turn
	Preferences   memory.Preferences
	MemoryContext string
}

// Result is returned to the caller. Action is nil for a plain reply.
type Result struct {
	Message    string          `json:"response"`
	Action     *actions.Intent `json:"action"`
	Iterations int             `json:"-"`
}

// Turn identifies one user request.
type Turn struct {
	UserID    string
	SessionID string
	Text      string
}

type Config struct {
	MaxIterations int
	// ServerSkills are executed by the loop; every other skill is returned
	// to the caller.
	ServerSkills []string
}

type Orchestrator struct {
	gen      Generator
	registry *skills.Registry
	prompts  *prompt.Assembler
	mem      Memory
	server   map[string]bool
	maxIter  int
	logger   zerolog.Logger
	metrics  *observability.Metrics
}

func New(gen Generator, registry *skills.Registry, prompts *prompt.Assembler, mem Memory, cfg Config, logger zerolog.Logger, metrics *observability.Metrics) *Orchestrator {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultMaxIterations
	}
	if prompts == nil {
		prompts = prompt.NewAssembler()
	}
	server := make(map[string]bool, len(cfg.ServerSkills))
	for _, name := range cfg.ServerSkills {
		server[strings.TrimSpace(name)] = true
	}
	return &Orchestrator{
		gen:      gen,
		registry: registry,
		prompts:  prompts,
		mem:      mem,
		server:   server,
		maxIter:  cfg.MaxIterations,
		logger:   logger.With().Str("component", "agent").Logger(),
		metrics:  metrics,
	}
}

func (o *Orchestrator) Registry() *skills.Registry { return o.registry }

// IsServerSkill reports whether the loop resolves name itself.
func (o *Orchestrator) IsServerSkill(name string) bool { return o.server[name] }

// Process runs the loop: call the model, parse, validate, and either execute
// a server-side skill and go round again or finish. It makes at most
// MaxIterations model calls; when the bound is hit the last result is
// returned as is. Process never fails.
func (o *Orchestrator) Process(ctx context.Context, in Input) Result {
	ctx = skills.WithUserID(ctx, in.UserID)
	req := provider.Request{
		Prompt:       in.Utterance,
		SystemPrompt: o.prompts.Build(in.Preferences, in.MemoryContext, o.registry.Definitions()),
		History:      dialog.Clone(in.History),
	}
	allowed := allowSet(in.Preferences.AllowedSkills)

	var (
		res       Result
		raw       string
		iteration int
		state     = StateAwaitingModel
	)
	for state != StateDone {
		switch state {
		case StateAwaitingModel:
			iteration++
			start := time.Now()
			raw = o.gen.Generate(ctx, req)
			o.metrics.ObserveStage(observability.StageGenerate, time.Since(start))

			parsed := actions.Parse(raw)
			res = Result{Message: parsed.Message, Action: o.validate(parsed.Action, allowed)}

			next := StateDone
			if res.Action != nil && o.server[res.Action.Name] && iteration < o.maxIter {
				next = StateExecutingSkill
			}
			state = mustTransition(state, next)

		case StateExecutingSkill:
			// The utterance moves into the history so the observation follows
			// the exchange it answers.
			if req.Prompt != "" {
				req.History = append(req.History, dialog.Turn{Role: dialog.RoleUser, Content: req.Prompt})
				req.Prompt = ""
			}
			req.History = append(req.History,
				dialog.Turn{Role: dialog.RoleAssistant, Content: raw},
				o.execute(ctx, res.Action),
			)
			state = mustTransition(state, StateAwaitingModel)
		}
	}

	bound := res.Action != nil && o.server[res.Action.Name]
	if bound {
		o.logger.Warn().Int("iterations", iteration).Str("action", res.Action.Name).
			Msg("iteration bound reached; returning last result")
	}
	o.metrics.ObserveLoop(iteration, bound)
	res.Iterations = iteration
	return res
}

// ProcessStream forwards raw model fragments. It does not parse actions,
// execute skills or loop.
func (o *Orchestrator) ProcessStream(ctx context.Context, in Input, onDelta provider.DeltaHandler) error {
	req := provider.Request{
		Prompt:       in.Utterance,
		SystemPrompt: o.prompts.Build(in.Preferences, in.MemoryContext, o.registry.Definitions()),
		History:      dialog.Clone(in.History),
	}
	return o.gen.GenerateStream(ctx, req, onDelta)
}

// Handle gathers memory, runs Process and records the exchange.
func (o *Orchestrator) Handle(ctx context.Context, t Turn) (Result, error) {
	in, err := o.prepare(ctx, t)
	if err != nil {
		return Result{}, err
	}
	start := time.Now()
	res := o.Process(ctx, in)
	o.record(ctx, t, res.Message)
	o.metrics.ObserveStage(observability.StageTurn, time.Since(start))
	o.metrics.ObserveTurn("agent")

	ev := o.logger.Info().
		Str("session_id", t.SessionID).
		Int("iterations", res.Iterations)
	if res.Action != nil {
		ev = ev.Str("action", res.Action.Name)
	}
	ev.Msg("turn handled")
	return res, nil
}

// HandleStream is Handle for streaming callers. The concatenated fragments
// are recorded as the assistant turn. Only errors from onDelta are returned.
func (o *Orchestrator) HandleStream(ctx context.Context, t Turn, onDelta provider.DeltaHandler) error {
	in, err := o.prepare(ctx, t)
	if err != nil {
		return err
	}
	start := time.Now()
	var full strings.Builder
	err = o.ProcessStream(ctx, in, func(delta string) error {
		full.WriteString(delta)
		if onDelta == nil {
			return nil
		}
		return onDelta(delta)
	})
	if text := full.String(); text != "" {
		o.record(ctx, t, text)
	}
	o.metrics.ObserveStage(observability.StageTurn, time.Since(start))
	o.metrics.ObserveTurn("stream")
	return err
}

func (o *Orchestrator) prepare(ctx context.Context, t Turn) (Input, error) {
	text := strings.TrimSpace(t.Text)
	if text == "" {
		return Input{}, ErrEmptyInput
	}
	redacted, changed := policy.RedactPII(text)
	o.logger.Debug().Str("session_id", t.SessionID).Bool("pii_redacted", changed).
		Str("utterance", redacted).Msg("turn received")

	start := time.Now()
	prefs, err := o.mem.Preferences(ctx, t.UserID)
	if err != nil {
		o.logger.Warn().Err(err).Msg("preferences unavailable; using defaults")
		o.metrics.ObserveMemoryDegraded("profile")
		prefs = memory.DefaultPreferences(t.UserID)
	}
	history, err := o.mem.History(ctx, t.SessionID, 0)
	if err != nil {
		o.logger.Warn().Err(err).Msg("history unavailable; continuing without it")
		o.metrics.ObserveMemoryDegraded("short_term")
	}
	memCtx := o.mem.Context(ctx, t.UserID, t.SessionID, text)
	o.metrics.ObserveStage(observability.StageContext, time.Since(start))

	return Input{
		UserID:        t.UserID,
		Utterance:     text,
		History:       history,
		Preferences:   prefs,
		MemoryContext: memCtx,
	}, nil
}

func (o *Orchestrator) record(ctx context.Context, t Turn, reply string) {
	if err := o.mem.RecordTurn(ctx, t.SessionID, strings.TrimSpace(t.Text), reply); err != nil {
		o.logger.Warn().Err(err).Str("session_id", t.SessionID).Msg("failed to record turn")
		o.metrics.ObserveMemoryDegraded("short_term")
	}
}

// validate drops actions that are not registered or not allowed for the
// user. Dropping never touches the message. Risky client actions are kept
// and flagged for confirmation.
func (o *Orchestrator) validate(a *actions.Intent, allowed map[string]bool) *actions.Intent {
	if a == nil {
		return nil
	}
	if _, ok := o.registry.Lookup(a.Name); !ok {
		o.logger.Warn().Str("action", a.Name).Msg("unknown action dropped")
		o.metrics.ObserveUnknownAction()
		return nil
	}
	if allowed != nil && !allowed[a.Name] {
		o.logger.Warn().Str("action", a.Name).Msg("action not in user's allowed skills; dropped")
		o.metrics.ObserveUnknownAction()
		return nil
	}
	if o.server[a.Name] {
		return a
	}

	if decision := policy.DecideAction(a.Name, a.Params); decision.RequiresConfirmation {
		o.logger.Info().Str("action", a.Name).Str("risk", decision.Risk).Str("reason", decision.Reason).
			Msg("action needs confirmation")
		a.NeedsConfirmation = true
	}
	return a
}

// execute runs a server-side skill and renders the outcome as a system
// observation. Failures become observations too.
func (o *Orchestrator) execute(ctx context.Context, a *actions.Intent) (obs dialog.Turn) {
	start := time.Now()
	status, message := skills.StatusError, ""
	defer func() {
		if r := recover(); r != nil {
			status, message = skills.StatusError, fmt.Sprintf("skill panicked: %v", r)
		}
		o.metrics.ObserveSkill(a.Name, status)
		o.metrics.ObserveStage(observability.StageSkill, time.Since(start))
		obs = dialog.Turn{
			Role:    dialog.RoleSystem,
			Content: fmt.Sprintf("Observation from %s (%s): %s", a.Name, status, message),
		}
	}()

	skill, ok := o.registry.Lookup(a.Name)
	if !ok {
		message = "skill is not available"
		return
	}
	res, err := skill.Execute(ctx, a.Params)
	switch {
	case err != nil:
		o.logger.Warn().Err(err).Str("skill", a.Name).Msg("skill execution failed")
		message = err.Error()
	default:
		status, message = res.Status, res.Message
		if status == "" {
			status = skills.StatusSuccess
		}
	}
	return
}

func allowSet(names []string) map[string]bool {
	if len(names) == 0 {
		return nil
	}
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[strings.TrimSpace(n)] = true
	}
	return set
}
