// Package console implements the interactive terminal client. It reads
// user messages line by line, runs them through the assistant, and
// renders answers as styled Markdown with their citations.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charla-ai/charla/internal/chat"
	"github.com/charla-ai/charla/internal/session"
)

// Assistant is the conversational surface the console drives.
// Implemented by chat.Assistant.
type Assistant interface {
	Chat(ctx context.Context, sessionID, message string) (*chat.Answer, error)
}

// Console is a line-oriented terminal frontend.
type Console struct {
	scanner *bufio.Scanner
	out     io.Writer
	styles  Styles
	md      *markdownRenderer
}

// NewConsole creates a console reading from in and writing to out.
// Either may be nil when only the other direction is used.
func NewConsole(in io.Reader, out io.Writer) *Console {
	c := &Console{
		out:    out,
		styles: DefaultStyles(),
		md:     newMarkdownRenderer(100),
	}
	if in != nil {
		c.scanner = bufio.NewScanner(in)
	}
	return c
}

// Print writes values without a trailing newline.
func (c *Console) Print(args ...any) {
	_, _ = fmt.Fprint(c.out, args...)
}

// Println writes values followed by a newline.
func (c *Console) Println(args ...any) {
	_, _ = fmt.Fprintln(c.out, args...)
}

// Printf writes a formatted string.
func (c *Console) Printf(format string, args ...any) {
	_, _ = fmt.Fprintf(c.out, format, args...)
}

// Stream writes a text chunk without buffering or styling, for
// incremental model output.
func (c *Console) Stream(chunk string) {
	_, _ = fmt.Fprint(c.out, chunk)
}

// Scan advances to the next input line. Returns false at EOF.
func (c *Console) Scan() bool {
	if c.scanner == nil {
		return false
	}
	return c.scanner.Scan()
}

// Text returns the most recently scanned line.
func (c *Console) Text() string {
	if c.scanner == nil {
		return ""
	}
	return c.scanner.Text()
}

// Run drives the interactive loop until EOF, /exit, or ctx cancellation.
func (c *Console) Run(ctx context.Context, assistant Assistant, sessions *session.Store, version string) error {
	if assistant == nil {
		return errors.New("assistant is required")
	}

	c.printBanner(version)
	sessionID := session.NewID()

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		c.Print(c.styles.Prompt.Render("tú> "))
		if !c.Scan() {
			c.Println()
			return nil
		}

		line := strings.TrimSpace(c.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			if done := c.runCommand(line, sessions, &sessionID, version); done {
				return nil
			}
			continue
		}

		c.ask(ctx, assistant, sessionID, line)
	}
}

// ask sends one message and renders the answer.
func (c *Console) ask(ctx context.Context, assistant Assistant, sessionID, message string) {
	ans, err := assistant.Chat(ctx, sessionID, message)
	if err != nil {
		c.Println(c.styles.Error.Render("error: " + err.Error()))
		return
	}

	c.Println()
	c.Println(c.styles.Assistant.Render("charla:"))
	c.Println(c.md.Render(ans.Text))

	if ans.Degraded {
		c.Println(c.styles.System.Render("(sin acceso a la web, respuesta basada en el historial)"))
	}
	c.Println()
}

// runCommand handles slash commands. Returns true when the loop should
// terminate.
func (c *Console) runCommand(line string, sessions *session.Store, sessionID *string, version string) bool {
	switch strings.Fields(line)[0] {
	case "/exit", "/quit":
		c.Println(c.styles.System.Render("hasta luego"))
		return true
	case "/help":
		c.printCommandHelp()
	case "/version":
		c.Println("charla " + version)
	case "/new":
		*sessionID = session.NewID()
		c.Println(c.styles.System.Render("nueva conversación"))
	case "/clear":
		if sessions != nil {
			if err := sessions.Clear(*sessionID); err != nil && !errors.Is(err, session.ErrSessionNotFound) {
				c.Println(c.styles.Error.Render("error: " + err.Error()))
				return false
			}
		}
		c.Println(c.styles.System.Render("historial borrado"))
	case "/sessions":
		if sessions == nil {
			return false
		}
		for _, id := range sessions.Sessions() {
			marker := "  "
			if id == *sessionID {
				marker = "* "
			}
			c.Println(marker + id)
		}
	default:
		c.Println(c.styles.Error.Render("comando desconocido: " + line))
	}
	return false
}

func (c *Console) printBanner(version string) {
	c.Println(c.styles.Banner.Render("charla"))
	c.Println(c.styles.System.Render("asistente conversacional · " + version))
	c.Println(c.styles.System.Render("escribe /help para ver los comandos"))
	c.Println()
}

func (c *Console) printCommandHelp() {
	c.Println("  /new        Empezar una conversación nueva")
	c.Println("  /clear      Borrar el historial de la conversación actual")
	c.Println("  /sessions   Listar las conversaciones guardadas")
	c.Println("  /version    Mostrar la versión")
	c.Println("  /exit       Salir")
}
