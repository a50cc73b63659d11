package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/evaproject/eva/internal/agent"
	"github.com/evaproject/eva/internal/config"
	"github.com/evaproject/eva/internal/inference"
	"github.com/evaproject/eva/internal/memory"
)

const version = "0.1.0"

func main() {
	configPath := flag.String("config", "config/eva.yaml", "path to config file")
	flag.Parse()

	printBanner()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Printf("❌ Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		for _, e := range errs {
			fmt.Printf("❌ Config: %v\n", e)
		}
		os.Exit(1)
	}

	logger, err := buildLogger(cfg.LogLevel)
	if err != nil {
		fmt.Printf("❌ Failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Inference stack.
	client := inference.NewClient(cfg.Backend)
	advisor := inference.NewAdvisor(
		inference.SMIMeter{FallbackGB: cfg.Hardware.TotalVRAMGB},
		cfg.Hardware, logger)
	advisor.Start(ctx)
	manager := inference.NewManager(client, cfg, advisor, logger)

	// Memory stack.
	episodic, err := memory.NewSQLiteEpisodic(cfg.Memory.EpisodicPath, cfg.Memory.MaxEpisodicEntries, logger)
	if err != nil {
		fmt.Printf("❌ Failed to open episodic memory: %v\n", err)
		os.Exit(1)
	}
	affective, err := memory.NewBadgerAffective(cfg.Memory.AffectivePath, cfg.Memory.MaxAffectiveEntries, logger)
	if err != nil {
		fmt.Printf("❌ Failed to open affective memory: %v\n", err)
		os.Exit(1)
	}

	var sessions memory.SessionCache
	redisSessions, err := memory.NewRedisSessions(ctx, cfg.Memory.RedisAddr, cfg.Memory.RedisDB,
		cfg.MaxConversationHistory, logger)
	if err != nil {
		logger.Warn("redis unavailable, session cache disabled", zap.Error(err))
		fmt.Printf("⚠️  Redis unavailable at %s, running without session cache\n", cfg.Memory.RedisAddr)
	} else {
		sessions = redisSessions
	}

	// Cognitive core.
	orchestrator := agent.NewOrchestrator(
		ctx,
		cfg,
		agent.NewAttentionAnalyzer(cfg),
		agent.NewEmotionSensor(manager, cfg.DefaultModel, logger),
		agent.NewPersonaSynthesizer(manager, cfg, logger),
		episodic,
		affective,
		sessions,
		logger,
	)

	shutdown := func() {
		fmt.Println("\n\nEncerrando...")
		orchestrator.Shutdown()
		shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
		defer done()
		if err := manager.Shutdown(shutdownCtx); err != nil {
			logger.Warn("model shutdown failed", zap.Error(err))
		}
		advisor.Stop()
		episodic.Close()
		affective.Close()
		if sessions != nil {
			sessions.Close()
		}
		logger.Sync()
	}

	go func() {
		<-sigChan
		shutdown()
		os.Exit(0)
	}()

	fmt.Printf("✓ Sessão: %s | Modelo: %s\n", orchestrator.SessionID(), cfg.DefaultModel)
	fmt.Println("Digite /help para ver os comandos.")
	fmt.Println()

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("Você: ")
		if !scanner.Scan() {
			break
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			if handleCommand(ctx, input, cfg, orchestrator, manager, episodic, affective, shutdown) {
				return
			}
			continue
		}

		fmt.Println()
		reply := orchestrator.ProcessTurn(ctx, input)
		fmt.Printf("EVA: %s\n\n", reply)
	}

	shutdown()
}

// handleCommand runs one slash command. Returns true when the program
// should exit.
func handleCommand(
	ctx context.Context,
	cmd string,
	cfg *config.Config,
	orchestrator *agent.Orchestrator,
	manager *inference.Manager,
	episodic memory.EpisodicStore,
	affective memory.AffectiveStore,
	shutdown func(),
) bool {
	switch strings.Fields(cmd)[0] {
	case "/help":
		fmt.Println("\nComandos: /help /status /models /history /new /exit")
		fmt.Println()

	case "/status":
		stats := orchestrator.Stats()
		mgrStats := manager.Stats()
		fmt.Printf("\nSessão: %s\n", orchestrator.SessionID())
		fmt.Printf("Interações: %d (%d com sucesso)\n", stats.InteractionCount, stats.SuccessfulInteractions)
		fmt.Printf("Reflexões: %d\n", stats.ReflectionCount)
		fmt.Printf("Tempo médio de resposta: %.2fs\n", stats.AvgResponseTime.Seconds())
		fmt.Printf("Modelo atual: %s | Trocas: %d | Inferências: %d\n",
			manager.Current(), mgrStats.Switches, mgrStats.TotalInferences)
		if epStats, err := episodic.Stats(ctx); err == nil {
			fmt.Printf("Memória episódica: %d entradas em %d sessões\n",
				epStats.TotalEntries, epStats.UniqueSessions)
		}
		if afStats, err := affective.Stats(ctx); err == nil {
			fmt.Printf("Memória afetiva: %d entradas, %d reflexões\n",
				afStats.TotalEntries, afStats.TotalReflections)
		}
		fmt.Println()

	case "/models":
		fmt.Println("\nModelos configurados:")
		for name, m := range cfg.Models {
			marker := " "
			if name == manager.Current() {
				marker = "•"
			}
			fmt.Printf("  %s %s (ctx=%d, camadas=%d, %s)\n",
				marker, name, m.ContextLength, m.GPULayers, manager.State(name))
		}
		fmt.Println()

	case "/history":
		history, err := episodic.SessionHistory(ctx, orchestrator.SessionID(), 10)
		if err != nil || len(history) == 0 {
			fmt.Println("\nSem histórico nesta sessão.")
			fmt.Println()
			return false
		}
		fmt.Println("\n=== Histórico ===")
		for i, turn := range history {
			fmt.Printf("%d. Você: %s\n   EVA: %s\n", i+1,
				truncate(turn.User, 60), truncate(turn.Assistant, 60))
		}
		fmt.Println()

	case "/new", "/clear":
		id := orchestrator.NewSession()
		fmt.Printf("\n✓ Nova sessão: %s\n\n", id)

	case "/exit", "/quit":
		shutdown()
		return true

	default:
		fmt.Println("\nComando desconhecido. Digite /help.")
		fmt.Println()
	}
	return false
}

func buildLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}

	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(lvl)
	zc.OutputPaths = []string{"eva.log"}
	zc.ErrorOutputPaths = []string{"eva.log"}
	return zc.Build()
}

func printBanner() {
	fmt.Printf(`
╔═════════════════════════════════════════════════════════╗
║              EVA — Assistente Pessoal %s             ║
║        Atenção cognitiva + síntese de personas          ║
╚═════════════════════════════════════════════════════════╝

`, version)
}

func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-3]) + "..."
}
