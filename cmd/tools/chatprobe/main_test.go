package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/zhouzirui/doctor-chat/internal/backend"
)

type scriptedBackend struct {
	resets   int
	messages []string
	reply    backend.ChatReply
	err      error
}

func (b *scriptedBackend) Reset(context.Context) error {
	b.resets++
	return nil
}

func (b *scriptedBackend) Chat(_ context.Context, message string) (backend.ChatReply, error) {
	b.messages = append(b.messages, message)
	return b.reply, b.err
}

func TestExchangeSendsMessage(t *testing.T) {
	b := &scriptedBackend{reply: backend.ChatReply{Reply: "Booked!", ConversationEnd: true}}
	var stdout, stderr bytes.Buffer

	code := runExchange(context.Background(), b, exchangeOptions{reset: true, message: "book me"}, zap.NewNop(), &stdout, &stderr)

	if code != 0 {
		t.Fatalf("expected exit code 0, got %d (stderr %q)", code, stderr.String())
	}
	if b.resets != 1 {
		t.Fatalf("expected one reset, got %d", b.resets)
	}
	out := stdout.String()
	for _, want := range []string{"[user] book me", "[bot ] Booked!", "state: ended"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestExchangeSkipsResetByDefault(t *testing.T) {
	b := &scriptedBackend{reply: backend.ChatReply{Reply: "ok"}}
	var stdout, stderr bytes.Buffer

	runExchange(context.Background(), b, exchangeOptions{message: "hi"}, zap.NewNop(), &stdout, &stderr)

	if b.resets != 0 {
		t.Fatalf("expected no reset, got %d", b.resets)
	}
}

func TestExchangeDateRequest(t *testing.T) {
	b := &scriptedBackend{reply: backend.ChatReply{Reply: "ok"}}
	var stdout, stderr bytes.Buffer

	code := runExchange(context.Background(), b, exchangeOptions{date: "2999-01-02"}, zap.NewNop(), &stdout, &stderr)

	if code != 0 {
		t.Fatalf("expected exit code 0, got %d", code)
	}
	if len(b.messages) != 1 || b.messages[0] != "I would like to book an appointment on 2999-01-02" {
		t.Fatalf("unexpected messages %v", b.messages)
	}
}

func TestExchangeFailureExitCode(t *testing.T) {
	b := &scriptedBackend{err: errors.Join(backend.ErrTransport, errors.New("connection refused"))}
	var stdout, stderr bytes.Buffer

	code := runExchange(context.Background(), b, exchangeOptions{message: "hi"}, zap.NewNop(), &stdout, &stderr)

	if code != 1 {
		t.Fatalf("expected exit code 1, got %d", code)
	}
	if !strings.Contains(stdout.String(), "Server error. Please try again.") {
		t.Fatalf("expected error reply in transcript:\n%s", stdout.String())
	}
}

func TestRunRequiresInput(t *testing.T) {
	var stdout, stderr bytes.Buffer

	if code := run(nil, &stdout, &stderr); code != 2 {
		t.Fatalf("expected usage exit code 2, got %d", code)
	}
	if !strings.Contains(stderr.String(), "usage: ") {
		t.Fatalf("expected usage text, got %q", stderr.String())
	}
}
