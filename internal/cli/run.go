package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ensembleworks/ensemble/internal/agent"
	"github.com/ensembleworks/ensemble/internal/agent/claude"
	"github.com/ensembleworks/ensemble/internal/cloud/gcp"
	"github.com/ensembleworks/ensemble/internal/config"
	"github.com/ensembleworks/ensemble/internal/engine"
	"github.com/ensembleworks/ensemble/internal/events"
	"github.com/ensembleworks/ensemble/internal/piece"
	"github.com/ensembleworks/ensemble/internal/receipt"
	"github.com/ensembleworks/ensemble/internal/report"
	"github.com/ensembleworks/ensemble/internal/routing"
	"github.com/ensembleworks/ensemble/internal/template"
	"github.com/google/uuid"
)

var runCmd = &cobra.Command{
	Use:   "run <piece.yaml>",
	Short: "Run a piece to completion",
	Long: `Run executes the piece's movements from the initial movement until a rule
routes to COMPLETE or ABORT. Session state, reports, and the event log
live under the working directory so an interrupted run leaves an
inspectable trail.`,
	Args: cobra.ExactArgs(1),
	RunE: runPiece,
}

func init() {
	runCmd.Flags().String("workdir", "", "working directory for agent calls (default: current directory)")
	runCmd.Flags().String("report-dir", "", "report directory (default from config, else ./reports)")
	runCmd.Flags().Bool("interactive", false, "enable interactive rules and stdin prompts")
	runCmd.Flags().StringSlice("param", nil, "instruction template parameter, KEY=VALUE (repeatable)")
	runCmd.Flags().String("model", "", "default model, optionally provider-qualified (adapter:model)")
	runCmd.Flags().StringSlice("movement-model", nil, "per-movement model override, MOVEMENT=adapter:model (repeatable)")
	runCmd.Flags().Int("max-iterations", 0, "override the piece's iteration budget")
	runCmd.Flags().Bool("strict-aggregates", false, "treat aggregate condition-count mismatches as errors")
	runCmd.Flags().Bool("no-events", false, "disable the JSONL event log")
	rootCmd.AddCommand(runCmd)
}

func runPiece(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nReceived interrupt signal, stopping after the current call...")
		cancel()
	}()

	global, err := config.LoadFile(globalConfigPath())
	if err != nil {
		return fmt.Errorf("failed to load global config: %w", err)
	}
	project, err := config.LoadFile(projectConfigPath())
	if err != nil {
		return fmt.Errorf("failed to load project config: %w", err)
	}
	cfg := config.Merge(global, project)

	p, err := piece.Load(args[0])
	if err != nil {
		return fmt.Errorf("failed to load piece: %w", err)
	}

	workDir, _ := cmd.Flags().GetString("workdir")
	if workDir == "" {
		workDir = cfg.Run.WorkDir
	}
	if workDir == "" {
		if workDir, err = os.Getwd(); err != nil {
			return fmt.Errorf("failed to resolve working directory: %w", err)
		}
	}
	workDir, err = filepath.Abs(workDir)
	if err != nil {
		return fmt.Errorf("invalid workdir: %w", err)
	}

	params, err := parseParams(cmd)
	if err != nil {
		return err
	}
	renderInstructions(p, workDir, params)

	router, err := buildRouter(cmd, cfg)
	if err != nil {
		return err
	}
	if unknown := router.UnknownMovements(p); len(unknown) > 0 {
		return fmt.Errorf("routing overrides name unknown movements: %s", strings.Join(unknown, ", "))
	}

	runID := fmt.Sprintf("run-%s", uuid.New().String()[:8])
	logger := gcp.NewLogger(ctx, runID)
	defer logger.Close()

	adapter, err := buildAdapter(ctx, cfg)
	if err != nil {
		return err
	}

	reportDir, _ := cmd.Flags().GetString("report-dir")
	if reportDir == "" {
		reportDir = cfg.Run.ReportDir
	}
	reports, err := report.NewDir(resolveUnder(workDir, reportDir))
	if err != nil {
		return fmt.Errorf("failed to prepare report directory: %w", err)
	}

	interactive, _ := cmd.Flags().GetBool("interactive")
	if cfg.Run.Interactive {
		interactive = true
	}
	strict, _ := cmd.Flags().GetBool("strict-aggregates")
	if cfg.Run.StrictAggregates {
		strict = true
	}
	if maxIter, _ := cmd.Flags().GetInt("max-iterations"); maxIter > 0 {
		p.MaxIterations = maxIter
	} else if cfg.Run.MaxIterations > 0 && p.MaxIterations == 0 {
		p.MaxIterations = cfg.Run.MaxIterations
	}

	hooks := consoleHooks(logger, interactive)
	noEvents, _ := cmd.Flags().GetBool("no-events")
	if !noEvents {
		sink, err := events.NewFileSink(resolveUnder(workDir, cfg.Run.EventsDir))
		if err != nil {
			return fmt.Errorf("failed to open event log: %w", err)
		}
		defer sink.Close()
		logf := func(format string, args ...interface{}) { logger.LogWarning(fmt.Sprintf(format, args...)) }
		hooks = events.NewRecorder(sink, runID, p.Name, logf).Hooks(hooks)
	}

	defaultModel := router.ModelForMovement("")
	eng, err := engine.New(engine.Config{
		Piece:            p,
		Caller:           adapter,
		Judge:            adapter,
		RunID:            runID,
		Reports:          reports,
		Hooks:            hooks,
		WorkDir:          workDir,
		Provider:         providerOr(defaultModel.Provider, cfg.Provider.Name),
		Model:            modelOr(defaultModel.Model, cfg.Provider.Model),
		RouteModel:       routeFunc(router),
		Interactive:      interactive,
		StrictAggregates: strict,
		ProjectProfiles:  project.PermissionProfiles(),
		GlobalProfiles:   global.PermissionProfiles(),
		Loop:             cfg.LoopConfig(),
		Out:              os.Stdout,
		OnStream:         streamPrinter(),
		Logf:             func(format string, args ...interface{}) { logger.LogWarning(fmt.Sprintf(format, args...)) },
	})
	if err != nil {
		return err
	}

	fmt.Printf("Run ID:  %s\n", runID)
	fmt.Printf("Piece:   %s (%d movements)\n", p.Name, len(p.Movements))
	fmt.Printf("Workdir: %s\n", workDir)
	fmt.Println()

	st, err := eng.Run(ctx)
	if err != nil {
		if ctx.Err() != nil {
			fmt.Println("Run interrupted by user")
			return nil
		}
		return fmt.Errorf("run failed: %w", err)
	}

	if st.Status == engine.StatusAborted {
		return fmt.Errorf("run aborted: %s", st.AbortReason)
	}

	if cfg.Receipt.KeySecret != "" {
		if err := mintReceipt(ctx, cfg, st); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to mint run receipt: %v\n", err)
		}
	}

	fmt.Printf("\nRun %s completed after %d iterations\n", runID, st.Iteration+1)
	return nil
}

// parseParams collects --param KEY=VALUE flags into a variable map.
func parseParams(cmd *cobra.Command) (map[string]string, error) {
	raw, _ := cmd.Flags().GetStringSlice("param")
	params := make(map[string]string, len(raw))
	for _, kv := range raw {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 || parts[0] == "" {
			return nil, fmt.Errorf("invalid --param value %q: expected format KEY=VALUE", kv)
		}
		params[parts[0]] = parts[1]
	}
	return params, nil
}

// renderInstructions substitutes template variables into every movement's
// instruction, including sub-movements. User parameters win over builtins.
func renderInstructions(p *piece.Piece, workDir string, params map[string]string) {
	builtins := map[string]string{
		template.VarPiece:   p.Name,
		template.VarWorkDir: workDir,
	}
	for _, mv := range p.Movements {
		render := func(m *piece.Movement) {
			vars := template.MergeVariables(builtins, params)
			vars[template.VarMovement] = m.Name
			m.Instruction = template.Render(m.Instruction, vars)
		}
		render(mv)
		for _, sub := range mv.Parallel {
			render(sub)
		}
	}
}

// buildRouter folds config-file routing and CLI model flags into a router.
// CLI flags win: --model replaces the default, --movement-model entries
// replace individual overrides.
func buildRouter(cmd *cobra.Command, cfg *config.Config) (*routing.Router, error) {
	mr := routing.MovementRouting{
		Default: cfg.Routing.Default,
	}
	if len(cfg.Routing.Overrides) > 0 {
		mr.Overrides = make(map[string]routing.ModelConfig, len(cfg.Routing.Overrides))
		for name, spec := range cfg.Routing.Overrides {
			mr.Overrides[name] = spec
		}
	}

	if model, _ := cmd.Flags().GetString("model"); model != "" {
		mr.Default = routing.ParseModelSpec(model)
	}
	if overrides, _ := cmd.Flags().GetStringSlice("movement-model"); len(overrides) > 0 {
		if mr.Overrides == nil {
			mr.Overrides = make(map[string]routing.ModelConfig, len(overrides))
		}
		for _, mm := range overrides {
			parts := strings.SplitN(mm, "=", 2)
			if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
				return nil, fmt.Errorf("invalid --movement-model value %q: expected format MOVEMENT=adapter:model", mm)
			}
			mr.Overrides[parts[0]] = routing.ParseModelSpec(parts[1])
		}
	}

	return routing.NewRouter(&mr), nil
}

// routeFunc adapts a router to the engine's per-movement resolution hook.
func routeFunc(router *routing.Router) func(string) (string, string) {
	if !router.IsConfigured() {
		return nil
	}
	return func(movement string) (string, string) {
		cfg := router.ModelForMovement(movement)
		return cfg.Provider, cfg.Model
	}
}

// buildAdapter constructs the provider adapter, fetching the API key from
// Secret Manager when the config names a secret.
func buildAdapter(ctx context.Context, cfg *config.Config) (*claude.Adapter, error) {
	if cfg.Provider.Name != "" && cfg.Provider.Name != "claude" {
		return nil, fmt.Errorf("unsupported provider %q (only claude is available)", cfg.Provider.Name)
	}

	var opts []claude.Option
	if cfg.Provider.Binary != "" {
		opts = append(opts, claude.WithBinary(cfg.Provider.Binary))
	}
	if cfg.Provider.APIKeySecret != "" {
		sm, err := gcp.NewSecretManagerClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create secret manager client: %w", err)
		}
		defer sm.Close()
		key, err := sm.FetchSecret(ctx, cfg.Provider.APIKeySecret)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch provider API key: %w", err)
		}
		opts = append(opts, claude.WithAPIKey(key))
	}
	return claude.New(opts...), nil
}

// consoleHooks builds the lifecycle callbacks for an interactive terminal run.
func consoleHooks(logger gcp.LoggerInterface, interactive bool) *engine.Hooks {
	h := &engine.Hooks{
		OnMovementStart: func(movement string, iteration int) {
			logger.SetMovement(movement)
			logger.LogInfo(fmt.Sprintf("movement %s started (iteration %d)", movement, iteration+1))
			fmt.Printf("\n=== %s (iteration %d) ===\n", movement, iteration+1)
		},
		OnMovementComplete: func(movement string, match engine.RuleMatch, next string) {
			logger.LogInfo(fmt.Sprintf("movement %s matched rule %d via %s, next %s", movement, match.Index+1, match.Method, next))
			fmt.Printf("--- %s: rule %d matched (%s), next: %s ---\n", movement, match.Index+1, match.Method, next)
		},
		OnReport: func(movement, file string, exists bool) {
			if !exists {
				fmt.Fprintf(os.Stderr, "Warning: movement %s report %s was not written\n", movement, file)
			}
		},
		OnRunComplete: func(st *engine.State) {
			logger.LogInfo(fmt.Sprintf("run completed after %d iterations", st.Iteration+1))
		},
		OnRunAbort: func(st *engine.State, reason string) {
			logger.LogError(fmt.Sprintf("run aborted: %s", reason))
		},
	}

	if interactive {
		h.OnUserInput = promptUserInput
		h.OnIterationLimit = promptIterationExtension
	}
	return h
}

// promptUserInput relays a blocked agent's question to the terminal and
// returns the operator's reply. An empty reply cancels the run.
func promptUserInput(prompt string) (string, error) {
	fmt.Printf("\nAgent is waiting for input:\n%s\n> ", prompt)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return "", fmt.Errorf("empty input")
	}
	return line, nil
}

// promptIterationExtension asks whether to extend the iteration budget.
func promptIterationExtension(st *engine.State) int {
	fmt.Printf("\nIteration limit reached at movement %s. Grant 5 more iterations? [y/N] ", st.Current)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return 0
	}
	if strings.EqualFold(strings.TrimSpace(line), "y") {
		return 5
	}
	return 0
}

// streamPrinter renders the current movement's stream events to stdout.
func streamPrinter() func(agent.StreamEvent) {
	verbose := viper.GetBool("verbose")
	return func(ev agent.StreamEvent) {
		switch ev.Type {
		case agent.StreamText:
			fmt.Print(ev.Text)
		case agent.StreamToolUse:
			if verbose {
				fmt.Printf("\n[tool: %s]\n", ev.ToolName)
			}
		case agent.StreamError:
			fmt.Fprintf(os.Stderr, "\n[agent error] %s\n", ev.Text)
		}
	}
}

// mintReceipt signs and prints a completion receipt for the run.
func mintReceipt(ctx context.Context, cfg *config.Config, st *engine.State) error {
	sm, err := gcp.NewSecretManagerClient(ctx)
	if err != nil {
		return fmt.Errorf("failed to create secret manager client: %w", err)
	}
	defer sm.Close()

	key, err := sm.FetchSecret(ctx, cfg.Receipt.KeySecret)
	if err != nil {
		return fmt.Errorf("failed to fetch receipt key: %w", err)
	}

	minter, err := receipt.NewMinter([]byte(key), cfg.Receipt.Issuer)
	if err != nil {
		return err
	}
	token, err := minter.Mint(st.RunID, st.Piece, string(st.Status), st.Iteration+1)
	if err != nil {
		return err
	}
	fmt.Printf("\nRun receipt:\n%s\n", token)
	return nil
}

// resolveUnder joins a possibly-relative path under the base directory.
func resolveUnder(base, path string) string {
	if path == "" {
		path = "."
	}
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(base, path)
}

// providerOr returns the first non-empty provider name.
func providerOr(routed, fallback string) string {
	if routed != "" {
		return routed
	}
	return fallback
}

// modelOr returns the first non-empty model name.
func modelOr(routed, fallback string) string {
	if routed != "" {
		return routed
	}
	return fallback
}
