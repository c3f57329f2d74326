package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/zhouzirui/doctor-chat/internal/backend"
	"github.com/zhouzirui/doctor-chat/internal/config"
	"github.com/zhouzirui/doctor-chat/internal/service/chat"
	"github.com/zhouzirui/doctor-chat/internal/tui"
	"github.com/zhouzirui/doctor-chat/pkg/logging"
)

// defaultLogFile keeps log output off the terminal the UI draws on.
const defaultLogFile = "chat.log"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "doctor-chat: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()

	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	logFile := cfg.Log.File
	if logFile == "" {
		logFile = defaultLogFile
	}
	logger, err := logging.New(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format, File: logFile})
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	if envErr != nil {
		logger.Debug("no .env file loaded, using system environment only", zap.Error(envErr))
	}

	client, err := backend.New(cfg.Backend.BaseURL,
		backend.WithChatTimeout(cfg.Backend.ChatTimeout),
		backend.WithResetTimeout(cfg.Backend.ResetTimeout),
	)
	if err != nil {
		return err
	}
	logger.Info("starting terminal chat", zap.String("backend", client.BaseURL()))

	sessionLogger := logger.Named("session")
	model := tui.NewModel(ctx, func() *chat.Session {
		return chat.NewSession(client, chat.WithLogger(sessionLogger))
	})

	_, err = tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("run terminal ui: %w", err)
	}
	return nil
}
