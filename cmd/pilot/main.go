// pilot 是一个终端 AI 编程助手：把模型回复中的 shell 命令与文件写入
// 解析为动作队列，经用户确认后在工作区内执行。
// pilot is a terminal AI coding assistant: it parses shell commands and
// file writes out of model replies into an action queue and executes them
// inside the workspace after user confirmation.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/chzyer/readline"

	"pilot/internal/config"
	"pilot/internal/contextmgr"
	"pilot/internal/executor"
	"pilot/internal/i18n"
	"pilot/internal/logging"
	"pilot/internal/orchestrator"
	"pilot/internal/provider"
	"pilot/internal/security"
	"pilot/internal/storage"
	"pilot/internal/tui"
	"pilot/internal/update"
)

// 通过 -ldflags "-X main.version=... -X main.commit=..." 注入
// injected via -ldflags "-X main.version=... -X main.commit=..."
var (
	version = "dev"
	commit  = ""
)

func main() {
	var (
		configPath  string
		cwdOverride string
		useTUI      bool
		showVersion bool
		debug       bool
	)
	flag.StringVar(&configPath, "config", "", "path to config file (default: ~/.pilot/config.json)")
	flag.StringVar(&cwdOverride, "cwd", "", "workspace root (default: current directory)")
	flag.BoolVar(&useTUI, "tui", false, "run the full-screen TUI instead of the REPL")
	flag.BoolVar(&showVersion, "version", false, "print version and exit")
	flag.BoolVar(&debug, "debug", false, "enable debug logging on stderr")
	flag.Parse()

	if showVersion {
		fmt.Println(versionLine())
		return
	}

	if err := run(configPath, cwdOverride, useTUI, debug); err != nil {
		fmt.Fprintf(os.Stderr, "pilot: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, cwdOverride string, useTUI, debug bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logging.Nop()
	if debug {
		log = logging.New(os.Stderr, true)
	}
	i18n.Init(cfg.UI.Lang)

	root, err := resolveWorkspaceRoot(cwdOverride, cfg)
	if err != nil {
		return err
	}
	ws, err := security.NewWorkspace(root)
	if err != nil {
		return fmt.Errorf("workspace: %w", err)
	}

	store, err := storage.NewSQLiteStore(filepath.Join(cfg.Storage.BaseDir, "pilot.db"))
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	meta := storage.SessionMeta{
		ID:    storage.NewSessionID(),
		Model: cfg.Provider.Model,
		CWD:   ws.Root(),
	}
	if err := store.CreateSession(meta); err != nil {
		return fmt.Errorf("create session: %w", err)
	}

	providerClient := provider.NewOpenAIProvider(cfg.Provider)
	tokenizer := contextmgr.NewTokenizerForModel(cfg.Provider.Model)
	manager, err := contextmgr.NewManager(tokenizer, cfg.Context, log)
	if err != nil {
		return fmt.Errorf("context manager: %w", err)
	}
	runner := executor.New(ws, cfg.Executor, log)

	orch := orchestrator.New(providerClient, manager, runner, orchestrator.Options{
		Store:          store,
		SessionID:      meta.ID,
		Models:         normalizedModels(cfg.Provider.Models, cfg.Provider.Model),
		Version:        version,
		Commit:         commit,
		AutoCompact:    cfg.Context.AutoCompact,
		WorkspaceRoot:  ws.Root(),
		ConfigBasePath: ws.Root(),
		Log:            log,
	})

	updates := update.NewChecker(cfg.Update, version, cfg.Storage.BaseDir, log).Start(context.Background())

	if useTUI {
		return tui.Run(orch, tui.Options{
			Workspace: ws.Root(),
			Version:   version,
			Updates:   updates,
		})
	}
	return runREPL(orch, cfg, ws.Root(), updates)
}

// runREPL 运行行式交互循环。Ctrl+C 清空当前行，EOF 或 /exit 退出。
// runREPL runs the line-based loop. Ctrl+C clears the current line, EOF or
// /exit quits.
func runREPL(orch *orchestrator.Orchestrator, cfg config.Config, workspaceRoot string, updates <-chan string) error {
	input := newLineInput(filepath.Join(cfg.Storage.BaseDir, "repl.history"))
	defer input.Close()

	orch.SetConfirmCallback(confirmPrompt(input, os.Stdout))

	fmt.Println(i18n.T("startup.welcome", workspaceRoot))
	fmt.Println(i18n.T("startup.session", orch.SessionID(), orch.CurrentModel()))
	fmt.Println(i18n.T("startup.repl_mode"))
	fmt.Println("Type /help for commands, /exit to quit.")
	fmt.Println()

	for {
		updates = drainUpdateNotices(os.Stdout, updates)

		line, err := input.ReadLine(">>> ")
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				fmt.Println("(interrupted, /exit to quit)")
				continue
			}
			if errors.Is(err, io.EOF) {
				fmt.Println("Bye!")
				return nil
			}
			return fmt.Errorf("read input: %w", err)
		}

		if isExitCommand(line) {
			fmt.Println("Bye!")
			return nil
		}

		if _, err := orch.RunInput(context.Background(), line, os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "turn failed: %v\n", err)
		}
		fmt.Println()
	}
}
