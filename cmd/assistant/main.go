// Command assistant runs an interactive coding assistant session: it wires
// the model selector, tool registry, workflow graph, and checkpoint store,
// then reads user messages from stdin and prompts for approval whenever the
// workflow suspends on a sensitive tool call.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/term"

	"assistant/pkg/checkpoint"
	"assistant/pkg/config"
	"assistant/pkg/facade"
	"assistant/pkg/logx"
	"assistant/pkg/middleware/metrics"
	"assistant/pkg/models"
	"assistant/pkg/msg"
	"assistant/pkg/sandbox"
	"assistant/pkg/tools"
	"assistant/pkg/workflow"
)

// Version information - set via ldflags.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	var (
		configPath  = flag.String("config", "", "Path to config file (optional)")
		workDir     = flag.String("workdir", ".", "Sandbox root directory")
		modelName   = flag.String("model", "", "Model to use (overrides config default)")
		threadID    = flag.String("thread", "", "Thread ID to resume (default: new thread)")
		metricsAddr = flag.String("metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")
		showVersion = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("assistant %s (%s)\n", version, commit)
		os.Exit(0)
	}

	logger := logx.NewLogger("main")

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.Error("failed to load config: %v", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := buildStore(*cfg)
	if err != nil {
		logger.Error("failed to open checkpoint store: %v", err)
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	registry, err := buildRegistry(*workDir)
	if err != nil {
		logger.Error("failed to build tool registry: %v", err)
		os.Exit(1)
	}

	recorder := metrics.NewPrometheusRecorder()
	if *metricsAddr != "" {
		go serveMetrics(*metricsAddr, logger)
	}

	selector := models.NewSelector(*cfg, recorder, logx.NewLogger("models"))
	classifier := workflow.NewClassifier(cfg.Review)
	graph := workflow.NewGraph(*cfg, selector, registry, classifier, store, recorder, logx.NewLogger("workflow"))

	id := *threadID
	if id == "" {
		id = uuid.New().String()
	}

	opts := facade.Options{SandboxID: "local", SandboxType: sandbox.TypeLocal}
	if *modelName != "" {
		opts.Model = &workflow.ModelConfig{Model: *modelName}
	}

	var pendingApproval *workflow.Interrupt
	callbacks := facade.Callbacks{
		OnMessage: func(m msg.Message) {
			switch m.Role {
			case msg.RoleSystem:
				fmt.Printf("\n[system] %s\n", m.Content)
			default:
				fmt.Printf("\nassistant> %s\n", m.Content)
			}
		},
		OnStateChange: func(state string) {
			logger.Debug("thread %s state: %s", id, state)
		},
		OnInterrupt: func(i workflow.Interrupt) {
			pendingApproval = &i
			fmt.Printf("\nThe assistant wants to run %d sensitive tool call(s):\n", len(i.ToolCalls))
			for _, call := range i.ToolCalls {
				fmt.Printf("  - %s %v\n", call.Name, call.Args)
			}
		},
	}

	agent := facade.New(id, graph, registry, nil, callbacks, opts, logx.NewLogger("facade"))

	if !term.IsTerminal(int(os.Stdin.Fd())) {
		logger.Warn("stdin is not a terminal; reading messages line by line")
	}
	fmt.Printf("assistant %s | thread %s | type 'exit' to quit\n", version, id)

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		if pendingApproval != nil {
			if !promptDecision(ctx, scanner, agent) {
				return
			}
			pendingApproval = nil
			continue
		}

		fmt.Print("you> ")
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			return
		}
		if ctx.Err() != nil {
			return
		}

		agent.ProcessMessage(ctx, line)
	}
}

// promptDecision asks the user to resolve a pending approval. Returns false
// when input is exhausted.
func promptDecision(ctx context.Context, scanner *bufio.Scanner, agent *facade.Agent) bool {
	for {
		fmt.Print("approve? [y]es / [n]o: ")
		if !scanner.Scan() {
			return false
		}
		switch strings.ToLower(strings.TrimSpace(scanner.Text())) {
		case "y", "yes":
			if err := agent.ResumeWithApproval(ctx); err != nil {
				fmt.Printf("error: %v\n", err)
			}
			return true
		case "n", "no":
			if err := agent.ResumeWithRejection(ctx); err != nil {
				fmt.Printf("error: %v\n", err)
			}
			return true
		default:
			fmt.Println("please answer y or n")
		}
	}
}

func buildStore(cfg config.Config) (checkpoint.Store, error) {
	if cfg.Checkpoint.Driver == "sqlite" {
		return checkpoint.NewSQLiteStore(cfg.Checkpoint.Path)
	}
	return checkpoint.NewMemoryStore(), nil
}

func buildRegistry(workDir string) (*tools.Registry, error) {
	sb, err := sandbox.NewLocal(workDir)
	if err != nil {
		return nil, fmt.Errorf("failed to create sandbox: %w", err)
	}

	registry := tools.NewRegistry()
	for _, tool := range []tools.Tool{
		tools.NewReadFileTool(sb),
		tools.NewWriteFileTool(sb),
		tools.NewExecuteCodeTool(sb),
		tools.NewWebSearchTool(),
		tools.NewSearchCodebaseTool(tools.NewKeywordBackend()),
	} {
		if err := registry.Register(tool); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

func serveMetrics(addr string, logger *logx.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	logger.Info("serving metrics on %s", addr)
	if err := server.ListenAndServe(); err != nil {
		logger.Error("metrics server: %v", err)
	}
}
