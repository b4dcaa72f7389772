package console

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/charla-ai/charla/internal/chat"
	"github.com/charla-ai/charla/internal/log"
	"github.com/charla-ai/charla/internal/session"
)

type fakeAssistant struct {
	text     string
	degraded bool
	err      error

	gotSessionIDs []string
	gotMessages   []string
}

func (f *fakeAssistant) Chat(_ context.Context, sessionID, message string) (*chat.Answer, error) {
	f.gotSessionIDs = append(f.gotSessionIDs, sessionID)
	f.gotMessages = append(f.gotMessages, message)
	if f.err != nil {
		return nil, f.err
	}
	return &chat.Answer{SessionID: sessionID, Text: f.text, Degraded: f.degraded}, nil
}

func newTestStore(t *testing.T) *session.Store {
	t.Helper()
	store, err := session.NewStore(filepath.Join(t.TempDir(), "history.json"), log.NewNop())
	if err != nil {
		t.Fatalf("NewStore() error: %v", err)
	}
	return store
}

func TestConsolePrint(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	c := NewConsole(nil, &out)

	c.Print("Hola", " ", "mundo")

	if got := out.String(); got != "Hola mundo" {
		t.Errorf("Print() = %q, want %q", got, "Hola mundo")
	}
}

func TestConsolePrintf(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	c := NewConsole(nil, &out)

	c.Printf("charla %s", "v1")

	if got := out.String(); got != "charla v1" {
		t.Errorf("Printf() = %q, want %q", got, "charla v1")
	}
}

func TestConsoleScan(t *testing.T) {
	t.Parallel()

	c := NewConsole(strings.NewReader("línea1\nlínea2"), nil)

	if !c.Scan() {
		t.Fatal("Scan() = false, want true")
	}
	if got := c.Text(); got != "línea1" {
		t.Errorf("Text() = %q, want %q", got, "línea1")
	}
	if !c.Scan() {
		t.Fatal("Scan() = false on second line")
	}
	if got := c.Text(); got != "línea2" {
		t.Errorf("Text() = %q, want %q", got, "línea2")
	}
	if c.Scan() {
		t.Error("Scan() = true at EOF, want false")
	}
}

func TestConsoleStream(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	c := NewConsole(nil, &out)

	c.Stream("trozo1")
	c.Stream("trozo2")

	if got := out.String(); got != "trozo1trozo2" {
		t.Errorf("Stream() output = %q, want %q", got, "trozo1trozo2")
	}
}

func TestRunAsksAndExits(t *testing.T) {
	t.Parallel()

	fa := &fakeAssistant{text: "El gazpacho es una sopa fría."}
	var out bytes.Buffer
	c := NewConsole(strings.NewReader("¿qué es el gazpacho?\n/exit\n"), &out)

	if err := c.Run(context.Background(), fa, newTestStore(t), "test"); err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	if len(fa.gotMessages) != 1 || fa.gotMessages[0] != "¿qué es el gazpacho?" {
		t.Errorf("Run() messages = %v, want the typed question", fa.gotMessages)
	}
	if !strings.Contains(out.String(), "sopa fría") {
		t.Errorf("Run() output missing the answer:\n%s", out.String())
	}
	if !strings.Contains(out.String(), "hasta luego") {
		t.Error("Run() output missing the exit message")
	}
}

func TestRunStopsAtEOF(t *testing.T) {
	t.Parallel()

	fa := &fakeAssistant{text: "hola"}
	var out bytes.Buffer
	c := NewConsole(strings.NewReader(""), &out)

	if err := c.Run(context.Background(), fa, newTestStore(t), "test"); err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if len(fa.gotMessages) != 0 {
		t.Errorf("Run() sent %d messages on empty input, want 0", len(fa.gotMessages))
	}
}

func TestRunNewStartsFreshSession(t *testing.T) {
	t.Parallel()

	fa := &fakeAssistant{text: "ok"}
	var out bytes.Buffer
	input := "primera\n/new\nsegunda\n/exit\n"
	c := NewConsole(strings.NewReader(input), &out)

	if err := c.Run(context.Background(), fa, newTestStore(t), "test"); err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	if len(fa.gotSessionIDs) != 2 {
		t.Fatalf("Run() made %d calls, want 2", len(fa.gotSessionIDs))
	}
	if fa.gotSessionIDs[0] == fa.gotSessionIDs[1] {
		t.Error("Run() /new should switch to a different session ID")
	}
}

func TestRunReportsAssistantErrors(t *testing.T) {
	t.Parallel()

	fa := &fakeAssistant{err: errors.New("modelo no disponible")}
	var out bytes.Buffer
	c := NewConsole(strings.NewReader("hola\n/exit\n"), &out)

	if err := c.Run(context.Background(), fa, newTestStore(t), "test"); err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if !strings.Contains(out.String(), "modelo no disponible") {
		t.Errorf("Run() output missing the error message:\n%s", out.String())
	}
}

func TestRunUnknownCommand(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	c := NewConsole(strings.NewReader("/nada\n/exit\n"), &out)

	if err := c.Run(context.Background(), &fakeAssistant{text: "ok"}, newTestStore(t), "test"); err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if !strings.Contains(out.String(), "comando desconocido") {
		t.Error("Run() should report unknown commands")
	}
}

func TestRunRequiresAssistant(t *testing.T) {
	t.Parallel()

	c := NewConsole(strings.NewReader(""), &bytes.Buffer{})
	if err := c.Run(context.Background(), nil, nil, "test"); err == nil {
		t.Fatal("Run(nil assistant) expected error")
	}
}

func TestMarkdownRendererFallsBackToPlainText(t *testing.T) {
	t.Parallel()

	var m *markdownRenderer
	if got := m.Render("**hola**"); got != "**hola**" {
		t.Errorf("nil renderer Render() = %q, want input unchanged", got)
	}
}
