package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"concierge/internal/usecase"
)

// runREPL is the interactive chat loop. Slash commands manage
// checkpoints and inspect the session; everything else is a turn.
func runREPL(ctx context.Context, orch *usecase.Orchestrator, sessionID string) error {
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	fmt.Println("concierge ready. Type a message, or /help for commands.")
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			if quit := handleCommand(ctx, orch, &sessionID, line); quit {
				return nil
			}
			continue
		}

		result := orch.ProcessTurn(ctx, sessionID, line)
		if sessionID == "" {
			// The orchestrator generated a session; keep using it.
			if sid, ok := result.Metadata["session_id"].(string); ok {
				sessionID = sid
			}
		}
		printTurn(result)
	}
}

func handleCommand(ctx context.Context, orch *usecase.Orchestrator, sessionID *string, line string) (quit bool) {
	fields := strings.Fields(line)
	arg := ""
	if len(fields) > 1 {
		arg = fields[1]
	}

	switch fields[0] {
	case "/quit", "/exit":
		return true

	case "/help":
		fmt.Println(`Commands:
  /checkpoint <name>   snapshot the current session state
  /rollback [name]     restore a checkpoint (latest when omitted)
  /checkpoints         list checkpoints
  /agents              list agents with metrics
  /session             show session info
  /quit                exit`)

	case "/checkpoint":
		if arg == "" {
			fmt.Println("usage: /checkpoint <name>")
			break
		}
		cp, err := orch.CreateCheckpoint(ctx, *sessionID, arg)
		if err != nil {
			fmt.Printf("checkpoint failed: %v\n", err)
			break
		}
		fmt.Printf("checkpoint %q created (%s)\n", cp.CheckpointName, cp.ID)

	case "/rollback":
		restored, err := orch.Rollback(ctx, *sessionID, arg)
		if err != nil {
			fmt.Printf("rollback failed: %v\n", err)
			break
		}
		fmt.Printf("rolled back to %q (%d messages)\n",
			restored.CheckpointName, len(restored.Data.Messages))

	case "/checkpoints":
		cps, err := orch.ListCheckpoints(ctx, *sessionID)
		if err != nil {
			fmt.Printf("list failed: %v\n", err)
			break
		}
		if len(cps) == 0 {
			fmt.Println("no checkpoints")
			break
		}
		for _, cp := range cps {
			fmt.Printf("  %-20s %s\n", cp.Name, cp.CreatedAt.Format("2006-01-02 15:04:05"))
		}

	case "/agents":
		for _, a := range orch.ListAgents() {
			fmt.Printf("  %-28s %-10s requests=%d errors=%d avg=%s\n",
				a.Name, a.Type, a.Metrics.Requests, a.Metrics.Errors, a.Metrics.AvgProcessing)
		}

	case "/session":
		info, err := orch.SessionInfo(ctx, *sessionID)
		if err != nil {
			fmt.Printf("session info failed: %v\n", err)
			break
		}
		fmt.Printf("session %s: messages=%d states=%d checkpoints=%d last_update=%s\n",
			*sessionID, info.Messages, info.States, info.Checkpoints, info.LastUpdate.Format("15:04:05"))

	default:
		fmt.Printf("unknown command %s (try /help)\n", fields[0])
	}
	return false
}

func printTurn(r usecase.TurnResult) {
	fmt.Println(r.Response)
	if r.AgentName != "" {
		fmt.Printf("  [%s via %s, confidence %.2f]\n", r.AgentName, r.Method, r.Confidence)
	} else {
		fmt.Printf("  [%s, confidence %.2f]\n", r.Method, r.Confidence)
	}
	if !r.Success {
		if code, ok := r.Metadata["error_code"]; ok {
			fmt.Printf("  [error: %v]\n", code)
		}
	}
}
