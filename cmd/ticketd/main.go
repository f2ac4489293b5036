package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/xXKillerNoobYT/ticketd/internal/daemon"
	"github.com/xXKillerNoobYT/ticketd/internal/model"
	"github.com/xXKillerNoobYT/ticketd/internal/setup"
	"github.com/xXKillerNoobYT/ticketd/internal/uds"
)

const version = "1.0.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "daemon":
		runDaemon(os.Args[2:])
	case "init":
		runInit(os.Args[2:])
	case "status":
		runStatus(os.Args[2:])
	case "queue":
		runQueue(os.Args[2:])
	case "next":
		runNext(os.Args[2:])
	case "done":
		runDone(os.Args[2:])
	case "ticket":
		runTicket(os.Args[2:])
	case "plan":
		runPlan(os.Args[2:])
	case "verify":
		runVerify(os.Args[2:])
	case "answer":
		runAnswer(os.Args[2:])
	case "refresh":
		runRefresh(os.Args[2:])
	case "down":
		runDown(os.Args[2:])
	case "version":
		fmt.Printf("ticketd %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func runDaemon(_ []string) {
	stateDir := mustStateDir()

	cfg, err := loadConfig(stateDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	d, err := daemon.New(stateDir, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "create daemon: %v\n", err)
		os.Exit(1)
	}

	if err := d.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "daemon: %v\n", err)
		os.Exit(1)
	}
}

func runInit(args []string) {
	dir := "."
	if len(args) > 0 {
		dir = args[0]
	}

	stateDir, err := setup.Run(dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("initialized %s\n", stateDir)
}

func runStatus(args []string) {
	jsonOutput := parseJSONFlag(args, "status")

	resp := mustSend("status", nil)

	if jsonOutput {
		fmt.Println(string(resp.Data))
		return
	}

	var status struct {
		PendingCount   int `json:"pending_count"`
		BlockedP1Count int `json:"blocked_p1_count"`
	}
	if err := json.Unmarshal(resp.Data, &status); err != nil {
		fmt.Fprintf(os.Stderr, "status: parse response: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("pending:    %d\n", status.PendingCount)
	fmt.Printf("blocked P1: %d\n", status.BlockedP1Count)
}

func runQueue(args []string) {
	jsonOutput := parseJSONFlag(args, "queue")

	resp := mustSend("details", nil)

	if jsonOutput {
		fmt.Println(string(resp.Data))
		return
	}

	var details struct {
		PendingTitles   []string `json:"pending_titles"`
		PickedTitles    []string `json:"picked_titles"`
		BlockedP1Titles []string `json:"blocked_p1_titles"`
		LastPickedTitle string   `json:"last_picked_title"`
	}
	if err := json.Unmarshal(resp.Data, &details); err != nil {
		fmt.Fprintf(os.Stderr, "queue: parse response: %v\n", err)
		os.Exit(1)
	}

	printTitles := func(header string, titles []string) {
		fmt.Printf("%s (%d):\n", header, len(titles))
		for _, title := range titles {
			fmt.Printf("  - %s\n", title)
		}
	}
	printTitles("pending", details.PendingTitles)
	printTitles("in flight", details.PickedTitles)
	printTitles("blocked P1", details.BlockedP1Titles)
	if details.LastPickedTitle != "" {
		fmt.Printf("last picked: %s\n", details.LastPickedTitle)
	}
}

func runNext(_ []string) {
	resp := mustSend("next", nil)

	var result struct {
		Task *struct {
			ID    string `json:"id"`
			Title string `json:"title"`
		} `json:"task"`
	}
	if err := json.Unmarshal(resp.Data, &result); err != nil {
		fmt.Fprintf(os.Stderr, "next: parse response: %v\n", err)
		os.Exit(1)
	}
	if result.Task == nil {
		fmt.Println("no task available")
		return
	}
	fmt.Printf("%s\t%s\n", result.Task.ID, result.Task.Title)
}

func runDone(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "usage: ticketd done <id> [--summary <text>]")
		os.Exit(1)
	}
	id := args[0]
	summary := ""
	for i := 1; i < len(args); i++ {
		switch args[i] {
		case "--summary":
			if i+1 >= len(args) {
				fmt.Fprintln(os.Stderr, "--summary requires a value")
				os.Exit(1)
			}
			i++
			summary = args[i]
		default:
			fmt.Fprintf(os.Stderr, "unknown flag: %s\n", args[i])
			os.Exit(1)
		}
	}

	mustSend("done", map[string]string{"id": id, "summary": summary})
	fmt.Printf("ticket %s marked done\n", id)
}

func runTicket(args []string) {
	if len(args) < 1 || args[0] != "create" {
		fmt.Fprintln(os.Stderr, "usage: ticketd ticket create --title <text> [options]")
		os.Exit(1)
	}

	var title, description, ticketType, status string
	var priority int
	rest := args[1:]
	for i := 0; i < len(rest); i++ {
		needValue := func(flag string) string {
			if i+1 >= len(rest) {
				fmt.Fprintf(os.Stderr, "%s requires a value\n", flag)
				os.Exit(1)
			}
			i++
			return rest[i]
		}
		switch rest[i] {
		case "--title":
			title = needValue("--title")
		case "--description":
			description = needValue("--description")
		case "--type":
			ticketType = needValue("--type")
		case "--status":
			status = needValue("--status")
		case "--priority":
			v := needValue("--priority")
			p, err := strconv.Atoi(v)
			if err != nil {
				fmt.Fprintf(os.Stderr, "invalid priority: %s\n", v)
				os.Exit(1)
			}
			priority = p
		default:
			fmt.Fprintf(os.Stderr, "unknown flag: %s\n", rest[i])
			os.Exit(1)
		}
	}
	if title == "" {
		fmt.Fprintln(os.Stderr, "usage: ticketd ticket create --title <text> [options]")
		os.Exit(1)
	}

	resp := mustSend("ticket_create", map[string]any{
		"title":       title,
		"description": description,
		"type":        ticketType,
		"status":      status,
		"priority":    priority,
	})

	var ticket struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(resp.Data, &ticket); err != nil {
		fmt.Fprintf(os.Stderr, "ticket create: parse response: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("created ticket %s\n", ticket.ID)
}

func runPlan(_ []string) {
	resp := mustSend("plan", nil)

	var result struct {
		Plan *struct {
			TaskID string `json:"task_id"`
			Title  string `json:"title"`
			Body   string `json:"body"`
		} `json:"plan"`
	}
	if err := json.Unmarshal(resp.Data, &result); err != nil {
		fmt.Fprintf(os.Stderr, "plan: parse response: %v\n", err)
		os.Exit(1)
	}
	if result.Plan == nil {
		fmt.Println("no task available")
		return
	}
	fmt.Printf("# %s (%s)\n\n%s\n", result.Plan.Title, result.Plan.TaskID, result.Plan.Body)
}

func runVerify(args []string) {
	if len(args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: ticketd verify <id> <report>")
		os.Exit(1)
	}

	resp := mustSend("verify", map[string]string{"id": args[0], "report": args[1]})

	var verdict struct {
		Pass    bool   `json:"pass"`
		Summary string `json:"summary"`
	}
	if err := json.Unmarshal(resp.Data, &verdict); err != nil {
		fmt.Fprintf(os.Stderr, "verify: parse response: %v\n", err)
		os.Exit(1)
	}
	if verdict.Pass {
		fmt.Printf("PASS: %s\n", verdict.Summary)
		return
	}
	fmt.Printf("FAIL: %s\n", verdict.Summary)
	os.Exit(1)
}

func runAnswer(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "usage: ticketd answer <id>")
		os.Exit(1)
	}

	resp := mustSend("answer", map[string]string{"id": args[0]})

	var result struct {
		Answer string `json:"answer"`
	}
	if err := json.Unmarshal(resp.Data, &result); err != nil {
		fmt.Fprintf(os.Stderr, "answer: parse response: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(result.Answer)
}

func runRefresh(_ []string) {
	mustSend("refresh", nil)
	fmt.Println("queue refreshed")
}

func runDown(_ []string) {
	mustSend("shutdown", nil)
	fmt.Println("shutdown requested")
}

func parseJSONFlag(args []string, command string) bool {
	jsonOutput := false
	for _, a := range args {
		switch a {
		case "--json":
			jsonOutput = true
		default:
			fmt.Fprintf(os.Stderr, "unknown flag: %s\nusage: ticketd %s [--json]\n", a, command)
			os.Exit(1)
		}
	}
	return jsonOutput
}

// mustSend sends a command to the daemon and exits on any failure.
func mustSend(command string, params any) *uds.Response {
	stateDir := mustStateDir()

	client := uds.NewClient(filepath.Join(stateDir, uds.DefaultSocketName))
	resp, err := client.SendCommand(command, params)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", command, err)
		os.Exit(1)
	}
	if !resp.Success {
		fmt.Fprintf(os.Stderr, "%s: %s (%s)\n", command, resp.Error.Message, resp.Error.Code)
		os.Exit(1)
	}
	return resp
}

func mustStateDir() string {
	dir := findStateDir()
	if dir == "" {
		fmt.Fprintln(os.Stderr, "error: .ticketd/ directory not found. Run 'ticketd init [dir]' first.")
		os.Exit(1)
	}
	return dir
}

// findStateDir walks up from the working directory looking for .ticketd/.
func findStateDir() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		candidate := filepath.Join(dir, ".ticketd")
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

func loadConfig(stateDir string) (model.Config, error) {
	data, err := os.ReadFile(filepath.Join(stateDir, "config.yaml"))
	if err != nil {
		return model.Config{}, fmt.Errorf("read config.yaml: %w", err)
	}
	var cfg model.Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return model.Config{}, fmt.Errorf("parse config.yaml: %w", err)
	}
	return cfg, nil
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `ticketd %s — ticket orchestration daemon

Usage: ticketd <command> [options]

Setup:
  init [dir]        Initialize .ticketd/ state directory
  daemon            Run the daemon (foreground)
  down              Ask the daemon to shut down

Queue:
  status [--json]   Pending count and blocked-P1 count
  queue [--json]    Full queue details
  next              Claim the next pending task
  done <id>         Report a task completed [--summary <text>]
  refresh           Force a queue refresh

Tickets:
  ticket create --title <text> [--description <text>] [--type <type>]
                [--status <status>] [--priority <n>]

Agents:
  plan              Claim the next task and draft an implementation plan
  verify <id> <report>  Judge reported work; passing tickets are closed
  answer <id>       Answer a question ticket

Other:
  version           Print version
  help              This message
`, version)
}
