package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/zhouzirui/doctor-chat/internal/backend"
	"github.com/zhouzirui/doctor-chat/internal/config"
	model "github.com/zhouzirui/doctor-chat/internal/model/chat"
	"github.com/zhouzirui/doctor-chat/internal/service/chat"
	"github.com/zhouzirui/doctor-chat/pkg/logging"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("chatprobe", flag.ContinueOnError)
	fs.SetOutput(stderr)
	reset := fs.Bool("reset", false, "reset the backend conversation before sending")
	date := fs.String("date", "", "send a booking request for this date (YYYY-MM-DD) instead of a message")
	timeout := fs.Duration("timeout", 45*time.Second, "overall exchange timeout")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: chatprobe [-reset] [-date YYYY-MM-DD] [message...]")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}

	message := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if message == "" && *date == "" {
		fs.Usage()
		return 2
	}

	if err := godotenv.Load(); err != nil {
		fmt.Fprintf(stderr, "[WARN] no .env loaded, using system environment: %v\n", err)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(stderr, "load configuration: %v\n", err)
		return 1
	}

	logger, err := logging.New(logging.Options{Level: cfg.Log.Level, Format: "console", File: cfg.Log.File})
	if err != nil {
		fmt.Fprintf(stderr, "init logger: %v\n", err)
		return 1
	}
	defer func() { _ = logger.Sync() }()

	client, err := backend.New(cfg.Backend.BaseURL,
		backend.WithChatTimeout(cfg.Backend.ChatTimeout),
		backend.WithResetTimeout(cfg.Backend.ResetTimeout),
	)
	if err != nil {
		fmt.Fprintf(stderr, "backend: %v\n", err)
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	return runExchange(ctx, client, exchangeOptions{reset: *reset, date: *date, message: message}, logger, stdout, stderr)
}

type exchangeOptions struct {
	reset   bool
	date    string
	message string
}

// runExchange runs one exchange through a session and prints the transcript.
// Without -reset the greeting is added locally and the backend keeps its conversation.
func runExchange(ctx context.Context, b chat.Backend, opts exchangeOptions, logger *zap.Logger, stdout, stderr io.Writer) int {
	if !opts.reset {
		b = skipReset{b}
	}
	session := chat.NewSession(b, chat.WithLogger(logger))
	session.Bootstrap(ctx)

	var err error
	if opts.date != "" {
		day, parseErr := chat.ParseDate(opts.date, time.Local)
		if parseErr != nil {
			fmt.Fprintf(stderr, "invalid -date: %v\n", parseErr)
			return 2
		}
		_, err = session.SelectDate(ctx, day)
	} else {
		_, err = session.Send(ctx, opts.message)
	}

	printTranscript(stdout, session.Snapshot())

	if err != nil {
		fmt.Fprintf(stderr, "exchange failed: %v\n", err)
		return 1
	}
	return 0
}

func printTranscript(w io.Writer, snap model.Snapshot) {
	for _, msg := range snap.Messages {
		label := "bot "
		if msg.FromUser() {
			label = "user"
		}
		for _, line := range msg.Lines() {
			fmt.Fprintf(w, "[%s] %s\n", label, line)
		}
	}
	fmt.Fprintf(w, "state: %s\n", snap.State)
}

type skipReset struct{ chat.Backend }

func (skipReset) Reset(context.Context) error { return nil }
