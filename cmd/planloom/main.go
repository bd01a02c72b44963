package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"planloom/internal/adapters"
	"planloom/internal/config"
	"planloom/internal/daemon"
	"planloom/internal/draft"
	"planloom/internal/generator"
	"planloom/internal/notify"
	"planloom/internal/planstore"
	"planloom/internal/secrets"
	"planloom/internal/server"
	"planloom/internal/workspace"
)

const appName = "planloom"

func main() {
	flag.String("workspace", "", "Path to workspace root")
	flag.String("user", "", "Acting user id (default: local)")
	flag.Bool("debug", false, "Enable debug logging")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "%s: idea-to-execution plan engine\n\n", appName)
		fmt.Fprintf(os.Stderr, "Usage:\n  %s [command] [flags]\n\n", appName)
		fmt.Fprintln(os.Stderr, "Commands:")
		fmt.Fprintln(os.Stderr, "  init         Initialize a new workspace")
		fmt.Fprintln(os.Stderr, "  generate     Create a plan from an idea")
		fmt.Fprintln(os.Stderr, "  adjust       Revise a plan via the model")
		fmt.Fprintln(os.Stderr, "  plan         Inspect and manage plans")
		fmt.Fprintln(os.Stderr, "  outcome      Manage outcomes")
		fmt.Fprintln(os.Stderr, "  deliverable  Manage deliverables")
		fmt.Fprintln(os.Stderr, "  action       Manage actions")
		fmt.Fprintln(os.Stderr, "  history      Show a plan's adjustment history")
		fmt.Fprintln(os.Stderr, "  key          Manage secrets")
		fmt.Fprintln(os.Stderr, "  daemon       Run the background worker")
		fmt.Fprintln(os.Stderr, "  serve        Run the integration API and worker")
		fmt.Fprintln(os.Stderr, "  help         Show this help")
		fmt.Fprintln(os.Stderr, "\nFlags:")
		flag.PrintDefaults()
	}

	// .env is optional; real environments set variables directly.
	_ = godotenv.Load()

	global, args, err := extractGlobalFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if len(args) == 0 || args[0] == "help" || args[0] == "-h" || args[0] == "--help" {
		flag.Usage()
		return
	}

	var runErr error
	switch args[0] {
	case "init":
		runErr = runInit(args[1:], global)
	case "generate":
		runErr = runGenerate(args[1:], global)
	case "adjust":
		runErr = runAdjust(args[1:], global)
	case "plan":
		runErr = runPlanCmd(args[1:], global)
	case "history":
		runErr = runPlanCmd(append([]string{"history"}, args[1:]...), global)
	case "outcome":
		runErr = runOutcome(args[1:], global)
	case "deliverable":
		runErr = runDeliverable(args[1:], global)
	case "action":
		runErr = runAction(args[1:], global)
	case "key":
		runErr = runKey(args[1:], global)
	case "daemon":
		runErr = runDaemonCmd(args[1:], global)
	case "serve":
		runErr = runServe(args[1:], global)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", args[0])
		flag.Usage()
		os.Exit(1)
	}
	if runErr != nil {
		fmt.Fprintln(os.Stderr, runErr)
		os.Exit(1)
	}
}

type globalFlags struct {
	Workspace string
	UserID    string
	Debug     bool
}

// extractGlobalFlags pulls --workspace/--user/--debug out of the argument
// list regardless of position so subcommands keep their own flag sets.
func extractGlobalFlags(args []string) (globalFlags, []string, error) {
	global := globalFlags{UserID: "local"}
	var remaining []string

	for i := 0; i < len(args); i++ {
		arg := args[i]
		name, value, hasValue := strings.Cut(arg, "=")
		switch name {
		case "--workspace", "-workspace":
			if !hasValue {
				if i+1 >= len(args) {
					return global, nil, fmt.Errorf("%s requires a value", name)
				}
				i++
				value = args[i]
			}
			global.Workspace = value
		case "--user", "-user":
			if !hasValue {
				if i+1 >= len(args) {
					return global, nil, fmt.Errorf("%s requires a value", name)
				}
				i++
				value = args[i]
			}
			global.UserID = value
		case "--debug", "-debug":
			global.Debug = true
		default:
			remaining = append(remaining, arg)
		}
	}

	if global.Workspace == "" {
		global.Workspace = os.Getenv("PLANLOOM_WORKSPACE")
	}
	if global.Workspace == "" {
		global.Workspace = "."
	}
	return global, remaining, nil
}

// appEnv bundles everything a subcommand needs.
type appEnv struct {
	Workspace *workspace.Workspace
	Config    config.Config
	Store     *planstore.Store
	Secrets   *secrets.Store
	Logger    *zap.Logger
	UserID    string
}

func setup(global globalFlags) (*appEnv, error) {
	ws, err := workspace.Resolve(global.Workspace)
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(ws.ConfigPath)
	if err != nil {
		return nil, err
	}
	store, err := planstore.Open(ws.PlanDBPath)
	if err != nil {
		return nil, err
	}

	logger := newLogger(global.Debug)
	return &appEnv{
		Workspace: ws,
		Config:    cfg,
		Store:     store,
		Secrets:   secrets.NewStore(ws.SecretsDir),
		Logger:    logger,
		UserID:    global.UserID,
	}, nil
}

func (env *appEnv) Close() {
	if env.Store != nil {
		_ = env.Store.Close()
	}
	if env.Logger != nil {
		_ = env.Logger.Sync()
	}
}

func newLogger(debug bool) *zap.Logger {
	cfg := zap.NewProductionConfig()
	if debug {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

func (env *appEnv) bounds() draft.Bounds {
	b := draft.DefaultBounds()
	if env.Config.Bounds.MaxOutcomes > 0 {
		b.MaxOutcomes = env.Config.Bounds.MaxOutcomes
	}
	if env.Config.Bounds.MaxDeliverables > 0 {
		b.MaxDeliverables = env.Config.Bounds.MaxDeliverables
	}
	if env.Config.Bounds.MaxActions > 0 {
		b.MaxActions = env.Config.Bounds.MaxActions
	}
	return b
}

func (env *appEnv) adapter(ctx context.Context, override string) (adapters.ModelAdapter, error) {
	name := env.Config.Model.Adapter
	if override != "" {
		name = override
	}
	switch name {
	case "mock":
		return &adapters.MockAdapter{}, nil
	case "", "genai":
		key := os.Getenv(env.Config.Model.APIKeyEnv)
		if key == "" {
			stored, err := env.Secrets.ModelKey()
			if err != nil {
				return nil, err
			}
			key = stored
		}
		if key == "" {
			return nil, fmt.Errorf("no model API key: set %s or run `%s key set-model`", env.Config.Model.APIKeyEnv, appName)
		}
		return adapters.NewGenAIAdapter(ctx, key, env.Config.Model.Name)
	default:
		return nil, fmt.Errorf("unknown adapter: %s", name)
	}
}

func (env *appEnv) generator(ctx context.Context, adapterOverride string) (*generator.Generator, error) {
	adapter, err := env.adapter(ctx, adapterOverride)
	if err != nil {
		return nil, err
	}
	gen := generator.New(env.Store, adapter)
	gen.Bounds = env.bounds()
	gen.Logger = env.Logger
	gen.Notifier = &notify.Notifier{Enabled: env.Config.Notifications}
	return gen, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runInit(args []string, global globalFlags) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	ws, err := workspace.New(global.Workspace)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(ws.Root, 0o755); err != nil {
		return fmt.Errorf("create workspace root: %w", err)
	}
	if err := ws.EnsureDirs(); err != nil {
		return err
	}
	if _, err := os.Stat(ws.ConfigPath); os.IsNotExist(err) {
		if err := config.Write(ws.ConfigPath, config.Default()); err != nil {
			return err
		}
	}

	store, err := planstore.Open(ws.PlanDBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	jobs, err := daemon.Open(ws.JobsDBPath)
	if err != nil {
		return err
	}
	defer jobs.Close()

	fmt.Printf("initialized workspace at %s\n", ws.Root)
	return nil
}

func runGenerate(args []string, global globalFlags) error {
	fs := flag.NewFlagSet("generate", flag.ContinueOnError)
	idea := fs.String("idea", "", "Free-text idea to plan (required)")
	research := fs.Bool("research", false, "Gather research snippets before generating")
	wait := fs.Bool("wait", false, "Run generation inline instead of enqueueing")
	adapterOverride := fs.String("adapter", "", "Model adapter override (genai, mock)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*idea) == "" {
		return fmt.Errorf("--idea is required")
	}

	env, err := setup(global)
	if err != nil {
		return err
	}
	defer env.Close()

	ctx, cancel := signalContext()
	defer cancel()

	plan, err := env.Store.CreateShell(ctx, env.UserID, strings.TrimSpace(*idea), *research)
	if err != nil {
		return err
	}
	fmt.Printf("plan %s created (%s)\n", plan.ID, plan.Status)

	if *wait {
		gen, err := env.generator(ctx, *adapterOverride)
		if err != nil {
			return err
		}
		if err := gen.Generate(ctx, plan.ID, env.UserID); err != nil {
			return err
		}
		return printPlanDetail(ctx, env, plan.ID)
	}

	jobs, err := daemon.Open(env.Workspace.JobsDBPath)
	if err != nil {
		return err
	}
	defer jobs.Close()

	jobID, created, err := jobs.EnqueueUnique(daemon.JobPlanGenerate, daemon.Payload{
		PlanID: plan.ID,
		UserID: env.UserID,
	})
	if err != nil {
		return err
	}
	if created {
		fmt.Printf("generation queued (job %s); run `%s daemon run` to execute\n", jobID, appName)
	} else {
		fmt.Printf("generation already queued (job %s)\n", jobID)
	}
	return nil
}

func runAdjust(args []string, global globalFlags) error {
	fs := flag.NewFlagSet("adjust", flag.ContinueOnError)
	planID := fs.String("plan", "", "Plan id (required)")
	prompt := fs.String("prompt", "", "Adjustment instruction (required)")
	wait := fs.Bool("wait", false, "Run adjustment inline instead of enqueueing")
	adapterOverride := fs.String("adapter", "", "Model adapter override (genai, mock)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *planID == "" || strings.TrimSpace(*prompt) == "" {
		return fmt.Errorf("--plan and --prompt are required")
	}

	env, err := setup(global)
	if err != nil {
		return err
	}
	defer env.Close()

	ctx, cancel := signalContext()
	defer cancel()

	if *wait {
		gen, err := env.generator(ctx, *adapterOverride)
		if err != nil {
			return err
		}
		if err := gen.Adjust(ctx, *planID, env.UserID, *prompt); err != nil {
			return err
		}
		return printPlanDetail(ctx, env, *planID)
	}

	jobs, err := daemon.Open(env.Workspace.JobsDBPath)
	if err != nil {
		return err
	}
	defer jobs.Close()

	jobID, created, err := jobs.EnqueueUnique(daemon.JobPlanAdjust, daemon.Payload{
		PlanID:      *planID,
		UserID:      env.UserID,
		Instruction: *prompt,
	})
	if err != nil {
		return err
	}
	if created {
		fmt.Printf("adjustment queued (job %s)\n", jobID)
	} else {
		fmt.Printf("adjustment already queued (job %s)\n", jobID)
	}
	return nil
}

func runPlanCmd(args []string, global globalFlags) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: %s plan [list|show|next|history|delete]", appName)
	}

	env, err := setup(global)
	if err != nil {
		return err
	}
	defer env.Close()

	ctx, cancel := signalContext()
	defer cancel()

	switch args[0] {
	case "list":
		fs := flag.NewFlagSet("plan list", flag.ContinueOnError)
		limit := fs.Int("limit", 5, "Maximum plans to list")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		plans, err := env.Store.ListRecentPlans(ctx, env.UserID, *limit)
		if err != nil {
			return err
		}
		for _, p := range plans {
			title := p.Title
			if title == "" {
				title = "(untitled)"
			}
			fmt.Printf("%s  %-10s  %s\n", p.ID, p.Status, title)
		}
		return nil

	case "show":
		fs := flag.NewFlagSet("plan show", flag.ContinueOnError)
		planID := fs.String("plan", "", "Plan id (required)")
		asJSON := fs.Bool("json", false, "Emit JSON")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		if *planID == "" {
			return fmt.Errorf("--plan is required")
		}
		if *asJSON {
			detail, err := env.Store.ResolvePlanDetails(ctx, *planID, env.UserID)
			if err != nil {
				return err
			}
			data, err := json.MarshalIndent(detail, "", "  ")
			if err != nil {
				return fmt.Errorf("marshal plan detail: %w", err)
			}
			fmt.Println(string(data))
			return nil
		}
		return printPlanDetail(ctx, env, *planID)

	case "next":
		fs := flag.NewFlagSet("plan next", flag.ContinueOnError)
		planID := fs.String("plan", "", "Plan id (required)")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		if *planID == "" {
			return fmt.Errorf("--plan is required")
		}
		pending, err := env.Store.ResolvePendingWork(ctx, *planID, env.UserID)
		if err != nil {
			return err
		}
		for _, line := range pending.SummaryLines {
			fmt.Println(line)
		}
		return nil

	case "history":
		fs := flag.NewFlagSet("plan history", flag.ContinueOnError)
		planID := fs.String("plan", "", "Plan id (required)")
		limit := fs.Int("limit", 20, "Maximum events to list")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		if *planID == "" {
			return fmt.Errorf("--plan is required")
		}
		events, err := env.Store.ListEvents(ctx, *planID, env.UserID, *limit)
		if err != nil {
			return err
		}
		for _, e := range events {
			line := fmt.Sprintf("%s  %-7s  %s", e.CreatedAt.Format(time.RFC3339), e.Status, firstLine(e.Prompt))
			if e.Status == planstore.EventApplied {
				line += fmt.Sprintf("  (%dms)", e.LatencyMS)
			}
			if e.Status == planstore.EventError {
				line += fmt.Sprintf("  error: %s", firstLine(e.Error))
			}
			fmt.Println(line)
		}
		return nil

	case "delete":
		fs := flag.NewFlagSet("plan delete", flag.ContinueOnError)
		planID := fs.String("plan", "", "Plan id (required)")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		if *planID == "" {
			return fmt.Errorf("--plan is required")
		}
		if err := env.Store.DeletePlan(ctx, *planID, env.UserID); err != nil {
			return err
		}
		fmt.Printf("plan %s deleted\n", *planID)
		return nil

	default:
		return fmt.Errorf("unknown plan subcommand: %s", args[0])
	}
}

func runOutcome(args []string, global globalFlags) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: %s outcome [add|status|done|rm]", appName)
	}

	env, err := setup(global)
	if err != nil {
		return err
	}
	defer env.Close()

	ctx, cancel := signalContext()
	defer cancel()

	switch args[0] {
	case "add":
		fs := flag.NewFlagSet("outcome add", flag.ContinueOnError)
		planID := fs.String("plan", "", "Plan id (required)")
		title := fs.String("title", "", "Outcome title (required)")
		summary := fs.String("summary", "", "Outcome summary")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		if *planID == "" || *title == "" {
			return fmt.Errorf("--plan and --title are required")
		}
		outcome, err := env.Store.AddOutcome(ctx, *planID, env.UserID, *title, *summary)
		if err != nil {
			return err
		}
		fmt.Printf("outcome %s added at position %d\n", outcome.ID, outcome.Position)
		return nil

	case "status":
		fs := flag.NewFlagSet("outcome status", flag.ContinueOnError)
		id := fs.String("id", "", "Outcome id (required)")
		status := fs.String("status", "", "New status: todo, doing, done (required)")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		if *id == "" || *status == "" {
			return fmt.Errorf("--id and --status are required")
		}
		return env.Store.SetOutcomeStatus(ctx, *id, env.UserID, planstore.Status(*status))

	case "done":
		fs := flag.NewFlagSet("outcome done", flag.ContinueOnError)
		id := fs.String("id", "", "Outcome id (required)")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		if *id == "" {
			return fmt.Errorf("--id is required")
		}
		return env.Store.SetOutcomeStatus(ctx, *id, env.UserID, planstore.StatusDone)

	case "rm":
		fs := flag.NewFlagSet("outcome rm", flag.ContinueOnError)
		id := fs.String("id", "", "Outcome id (required)")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		if *id == "" {
			return fmt.Errorf("--id is required")
		}
		return env.Store.DeleteOutcome(ctx, *id, env.UserID)

	default:
		return fmt.Errorf("unknown outcome subcommand: %s", args[0])
	}
}

func runDeliverable(args []string, global globalFlags) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: %s deliverable [add|status|done|rm]", appName)
	}

	env, err := setup(global)
	if err != nil {
		return err
	}
	defer env.Close()

	ctx, cancel := signalContext()
	defer cancel()

	switch args[0] {
	case "add":
		fs := flag.NewFlagSet("deliverable add", flag.ContinueOnError)
		outcomeID := fs.String("outcome", "", "Outcome id (required)")
		title := fs.String("title", "", "Deliverable title (required)")
		doneWhen := fs.String("done-when", "", "Acceptance sentence (required)")
		notes := fs.String("notes", "", "Optional notes")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		if *outcomeID == "" || *title == "" || *doneWhen == "" {
			return fmt.Errorf("--outcome, --title, and --done-when are required")
		}
		deliverable, err := env.Store.AddDeliverable(ctx, *outcomeID, env.UserID, *title, *doneWhen, *notes)
		if err != nil {
			return err
		}
		fmt.Printf("deliverable %s added at position %d\n", deliverable.ID, deliverable.Position)
		return nil

	case "status":
		fs := flag.NewFlagSet("deliverable status", flag.ContinueOnError)
		id := fs.String("id", "", "Deliverable id (required)")
		status := fs.String("status", "", "New status: todo, doing, done (required)")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		if *id == "" || *status == "" {
			return fmt.Errorf("--id and --status are required")
		}
		return env.Store.SetDeliverableStatus(ctx, *id, env.UserID, planstore.Status(*status))

	case "done":
		fs := flag.NewFlagSet("deliverable done", flag.ContinueOnError)
		id := fs.String("id", "", "Deliverable id (required)")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		if *id == "" {
			return fmt.Errorf("--id is required")
		}
		return env.Store.SetDeliverableStatus(ctx, *id, env.UserID, planstore.StatusDone)

	case "rm":
		fs := flag.NewFlagSet("deliverable rm", flag.ContinueOnError)
		id := fs.String("id", "", "Deliverable id (required)")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		if *id == "" {
			return fmt.Errorf("--id is required")
		}
		return env.Store.DeleteDeliverable(ctx, *id, env.UserID)

	default:
		return fmt.Errorf("unknown deliverable subcommand: %s", args[0])
	}
}

func runAction(args []string, global globalFlags) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: %s action [add|status|done|rm]", appName)
	}

	env, err := setup(global)
	if err != nil {
		return err
	}
	defer env.Close()

	ctx, cancel := signalContext()
	defer cancel()

	switch args[0] {
	case "add":
		fs := flag.NewFlagSet("action add", flag.ContinueOnError)
		deliverableID := fs.String("deliverable", "", "Deliverable id (required)")
		title := fs.String("title", "", "Action title (required)")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		if *deliverableID == "" || *title == "" {
			return fmt.Errorf("--deliverable and --title are required")
		}
		action, err := env.Store.AddAction(ctx, *deliverableID, env.UserID, *title)
		if err != nil {
			return err
		}
		fmt.Printf("action %s added at position %d\n", action.ID, action.Position)
		return nil

	case "status":
		fs := flag.NewFlagSet("action status", flag.ContinueOnError)
		id := fs.String("id", "", "Action id (required)")
		status := fs.String("status", "", "New status: todo, doing, done (required)")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		if *id == "" || *status == "" {
			return fmt.Errorf("--id and --status are required")
		}
		return env.Store.SetActionStatus(ctx, *id, env.UserID, planstore.Status(*status))

	case "done":
		fs := flag.NewFlagSet("action done", flag.ContinueOnError)
		id := fs.String("id", "", "Action id (required)")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		if *id == "" {
			return fmt.Errorf("--id is required")
		}
		return env.Store.SetActionStatus(ctx, *id, env.UserID, planstore.StatusDone)

	case "rm":
		fs := flag.NewFlagSet("action rm", flag.ContinueOnError)
		id := fs.String("id", "", "Action id (required)")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		if *id == "" {
			return fmt.Errorf("--id is required")
		}
		return env.Store.DeleteAction(ctx, *id, env.UserID)

	default:
		return fmt.Errorf("unknown action subcommand: %s", args[0])
	}
}

func runKey(args []string, global globalFlags) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: %s key [set-model|issue|revoke]", appName)
	}

	ws, err := workspace.Resolve(global.Workspace)
	if err != nil {
		return err
	}
	sec := secrets.NewStore(ws.SecretsDir)

	switch args[0] {
	case "set-model":
		fs := flag.NewFlagSet("key set-model", flag.ContinueOnError)
		key := fs.String("key", "", "Model API key (required)")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		if *key == "" {
			return fmt.Errorf("--key is required")
		}
		if err := sec.SetModelKey(*key); err != nil {
			return err
		}
		fmt.Println("model key stored")
		return nil

	case "issue":
		fs := flag.NewFlagSet("key issue", flag.ContinueOnError)
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		key, err := sec.IssueIntegrationKey(global.UserID)
		if err != nil {
			return err
		}
		fmt.Printf("integration key (shown once): %s\n", key)
		return nil

	case "revoke":
		if err := sec.RevokeIntegrationKey(); err != nil {
			return err
		}
		fmt.Println("integration key revoked")
		return nil

	default:
		return fmt.Errorf("unknown key subcommand: %s", args[0])
	}
}

func runDaemonCmd(args []string, global globalFlags) error {
	if len(args) == 0 || args[0] != "run" {
		return fmt.Errorf("usage: %s daemon run", appName)
	}

	env, err := setup(global)
	if err != nil {
		return err
	}
	defer env.Close()

	ctx, cancel := signalContext()
	defer cancel()

	gen, err := env.generator(ctx, "")
	if err != nil {
		return err
	}

	jobs, err := daemon.Open(env.Workspace.JobsDBPath)
	if err != nil {
		return err
	}
	defer jobs.Close()

	d := daemon.New(daemon.Config{
		Store:        jobs,
		Generator:    gen,
		Logger:       env.Logger,
		LeaseFor:     env.Config.Daemon.LeaseFor.Std(),
		PollInterval: env.Config.Daemon.PollInterval.Std(),
	})
	return d.Run(ctx)
}

func runServe(args []string, global globalFlags) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	addr := fs.String("addr", "", "Listen address (overrides config)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	env, err := setup(global)
	if err != nil {
		return err
	}
	defer env.Close()

	ctx, cancel := signalContext()
	defer cancel()

	gen, err := env.generator(ctx, "")
	if err != nil {
		return err
	}

	jobs, err := daemon.Open(env.Workspace.JobsDBPath)
	if err != nil {
		return err
	}
	defer jobs.Close()

	d := daemon.New(daemon.Config{
		Store:        jobs,
		Generator:    gen,
		Logger:       env.Logger,
		LeaseFor:     env.Config.Daemon.LeaseFor.Std(),
		PollInterval: env.Config.Daemon.PollInterval.Std(),
	})

	listenAddr := env.Config.Server.ListenAddr
	if *addr != "" {
		listenAddr = *addr
	}
	srv := server.New(env.Store, env.Secrets, env.Logger)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return d.Run(groupCtx)
	})
	group.Go(func() error {
		return srv.ListenAndServe(groupCtx, listenAddr)
	})
	return group.Wait()
}

func printPlanDetail(ctx context.Context, env *appEnv, planID string) error {
	detail, err := env.Store.ResolvePlanDetails(ctx, planID, env.UserID)
	if err != nil {
		return err
	}

	title := detail.Plan.Title
	if title == "" {
		title = "(untitled)"
	}
	fmt.Printf("%s [%s]\n", title, detail.Plan.Status)
	if detail.Plan.Summary != "" {
		fmt.Printf("  %s\n", detail.Plan.Summary)
	}
	for _, od := range detail.Outcomes {
		fmt.Printf("- [%s] %s\n", od.Outcome.Status, od.Outcome.Title)
		for _, dd := range od.Deliverables {
			fmt.Printf("  - [%s] %s (done when: %s)\n", dd.Deliverable.Status, dd.Deliverable.Title, dd.Deliverable.DoneWhen)
			for _, a := range dd.Actions {
				fmt.Printf("    - [%s] %s\n", a.Status, a.Title)
			}
		}
	}
	return nil
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		s = s[:idx]
	}
	if len(s) > 80 {
		s = s[:80] + "…"
	}
	return s
}
