package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/nstogner/overseer/pkg/agent"
	"github.com/nstogner/overseer/pkg/conversation"
	"github.com/nstogner/overseer/pkg/domain"
	"github.com/nstogner/overseer/pkg/executor"
	"github.com/nstogner/overseer/pkg/model/gemini"
	"github.com/nstogner/overseer/pkg/retry"
	"github.com/nstogner/overseer/pkg/sandbox"
	sandboxdocker "github.com/nstogner/overseer/pkg/sandbox/docker"
	"github.com/nstogner/overseer/pkg/server"
	"github.com/nstogner/overseer/pkg/store/sqlite"
	"github.com/nstogner/overseer/pkg/tool"
	"github.com/nstogner/overseer/pkg/tool/builtin"
)

func main() {
	var (
		modelFlag   = flag.String("model", "gemini-2.0-flash", "Model ID to use.")
		maxTokens   = flag.Int("max-tokens", 200000, "Context token budget.")
		dbFlag      = flag.String("db", "", "SQLite database path (default: ./data/overseer.db).")
		addrFlag    = flag.String("addr", "", "If set, also serve the HTTP/websocket API on this address.")
		taskFlag    = flag.String("task", "", "The task description for this session.")
		sessionFlag = flag.String("session", "", "Resume an existing session by ID.")
		sandboxFlag = flag.Bool("sandbox", false, "Run shell commands in a per-session docker container.")
		debugFlag   = flag.Bool("debug", false, "Enable debug logging.")
	)
	flag.Parse()

	// Setup logger.
	level := slog.LevelInfo
	if *debugFlag {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	// Config.
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		slog.Error("GEMINI_API_KEY environment variable not set")
		os.Exit(1)
	}

	ctx := context.Background()

	// Initialize store.
	dbPath := *dbFlag
	if dbPath == "" {
		wd, _ := os.Getwd()
		dbPath = filepath.Join(wd, "data", "overseer.db")
	}
	os.MkdirAll(filepath.Dir(dbPath), 0755)

	db, err := sqlite.New(dbPath)
	if err != nil {
		slog.Error("Failed to initialize store", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Initialize model provider.
	provider, err := gemini.New(ctx, apiKey)
	if err != nil {
		slog.Error("Failed to initialize Gemini provider", "error", err)
		os.Exit(1)
	}

	// Load or create the session.
	sess, err := loadSession(ctx, db, *sessionFlag, *taskFlag, *modelFlag)
	if err != nil {
		slog.Error("Failed to load session", "error", err)
		os.Exit(1)
	}

	// Optional docker sandbox for shell commands.
	var shellRunner builtin.Runner
	if *sandboxFlag {
		sbMgr, err := sandboxdocker.New()
		if err != nil {
			slog.Error("Failed to initialize sandbox manager", "error", err)
			os.Exit(1)
		}
		defer sbMgr.Close()
		go func() {
			if err := sbMgr.Run(ctx, db); err != nil && ctx.Err() == nil {
				slog.Error("Sandbox manager stopped", "error", err)
			}
		}()
		shellRunner = &sandbox.SessionRunner{Manager: sbMgr, SessionID: sess.ID}
	}

	// Register tools.
	registry := tool.NewRegistry()
	registry.Register(&builtin.ReadFileTool{})
	registry.Register(&builtin.WriteFileTool{})
	registry.Register(&builtin.ListDirTool{})
	registry.Register(&builtin.SearchTool{})
	registry.Register(&builtin.ShellTool{Runner: shellRunner})

	// Build the conversation, restoring any persisted transcript. Usage
	// display gets exact counts where a tiktoken encoding exists for the
	// model; budget decisions stay on the conservative heuristic.
	conv := conversation.New(conversation.NewBudget(sess.Model, *maxTokens),
		conversation.WithDisplayEstimator(conversation.NewTiktokenEstimator(sess.Model)),
	)
	if transcript, err := db.LoadTranscript(ctx, sess.ID); err != nil {
		slog.Error("Failed to load transcript", "error", err)
		os.Exit(1)
	} else if len(transcript) > 0 {
		if err := conv.Restore(transcript); err != nil {
			slog.Error("Stored transcript is corrupt", "sessionID", sess.ID, "error", err)
			os.Exit(1)
		}
		slog.Info("Resumed session", "sessionID", sess.ID, "messages", len(transcript))
	}

	exec := executor.New(registry, retry.NewTracker())
	ag := agent.New(sess, conv, registry, exec, provider,
		agent.WithTranscriptStore(db),
	)

	// Optionally serve the HTTP/websocket API alongside the REPL.
	if *addrFlag != "" {
		srv := server.New(ag, registry, provider)
		go func() {
			if err := srv.Start(*addrFlag); err != nil {
				slog.Error("Server failed", "error", err)
			}
		}()
	}

	runREPL(ctx, ag)
}

// loadSession resumes a session by ID or creates a new one.
func loadSession(ctx context.Context, db *sqlite.Store, sessionID, task, modelID string) (*domain.Session, error) {
	if sessionID != "" {
		return db.GetSession(ctx, sessionID)
	}

	sess := &domain.Session{
		ID:    uuid.New().String(),
		Task:  task,
		Model: modelID,
	}
	if err := db.CreateSession(ctx, sess); err != nil {
		return nil, err
	}
	slog.Info("Created session", "sessionID", sess.ID)
	return sess, nil
}

// runREPL reads user input from stdin and feeds it to the agent.
func runREPL(ctx context.Context, ag *agent.Agent) {
	fmt.Printf("session %s (model %s)\n", ag.Session().ID, ag.Session().Model)
	fmt.Println("type a message, /usage for budget, /quit to exit")

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		switch line {
		case "/quit", "/exit":
			return
		case "/usage":
			u := ag.Usage()
			fmt.Printf("tokens: %d / %d (%.0f%%)\n", u.EstimatedTokens, u.MaxTokens, u.BudgetFraction*100)
			continue
		}

		reply, err := ag.Submit(ctx, line)
		if err != nil {
			fmt.Printf("error: %v\n", err)
			continue
		}
		fmt.Println(reply)
	}
}
