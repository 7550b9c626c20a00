package services

import (
	"log/slog"
	"strings"
	"time"
)

// HelloWorld greets the caller. Used as a connectivity smoke test for
// the tool transport; it never touches Graph.
func HelloWorld(name string) Result {
	slog.Info("hello_world called", "name", name)

	name = strings.TrimSpace(name)
	if name == "" {
		name = "World"
	}

	return Result{
		"message": "Hello, " + name + "! Welcome to pox-mcp.",
		"name":    name,
		"service": "hello_world",
	}
}

// Echo returns the message with metadata, optionally uppercased.
func Echo(message string, uppercase bool) Result {
	slog.Info("echo called", "length", len(message), "uppercase", uppercase)

	if message == "" {
		return errorf("Message parameter must be a non-empty string")
	}

	echoed := message
	if uppercase {
		echoed = strings.ToUpper(message)
	}

	return Result{
		"original":  message,
		"echoed":    echoed,
		"uppercase": uppercase,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"length":    len(message),
		"service":   "echo",
	}
}
