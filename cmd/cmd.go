// Package cmd provides the charla CLI commands.
//
// Commands:
//   - cli: interactive terminal chat
//   - serve: HTTP API server with SSE streaming
//
// Both commands handle SIGINT/SIGTERM via context cancellation for
// graceful shutdown.
package cmd

import (
	"fmt"
	"os"
)

// Execute is the main entry point for the charla CLI.
func Execute() error {
	if len(os.Args) < 2 {
		runHelp()
		return nil
	}

	switch os.Args[1] {
	case "cli":
		return runCLI()
	case "serve":
		return runServe()
	case "version", "--version", "-v":
		runVersion()
		return nil
	case "help", "--help", "-h":
		runHelp()
		return nil
	default:
		return fmt.Errorf("unknown command: %s", os.Args[1])
	}
}

// runHelp displays the help message.
func runHelp() {
	fmt.Println("charla - conversational assistant with web-grounded answers")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  charla cli           Start interactive chat mode")
	fmt.Println("  charla serve [addr]  Start HTTP API server (default: 127.0.0.1:8420)")
	fmt.Println("  charla --version     Show version information")
	fmt.Println("  charla --help        Show this help")
	fmt.Println()
	fmt.Println("CLI Commands (in interactive mode):")
	fmt.Println("  /help                Show available commands")
	fmt.Println("  /new                 Start a new conversation")
	fmt.Println("  /clear               Clear current conversation history")
	fmt.Println("  /sessions            List saved conversations")
	fmt.Println("  /exit, /quit         Exit charla")
	fmt.Println()
	fmt.Println("Environment Variables:")
	fmt.Println("  GEMINI_API_KEY       Gemini API key (default provider)")
	fmt.Println("  GOOGLE_API_KEY       Custom Search API key")
	fmt.Println("  GOOGLE_CX            Custom Search engine ID")
	fmt.Println("  REDIS_URL            Optional: knowledge base cache")
	fmt.Println("  DEBUG                Optional: enable debug logging")
}
