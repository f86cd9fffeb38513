// Package main is the headless editor session CLI. It opens a workflow (or
// a YAML template), optionally runs it, and tails the run telemetry to
// stdout.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/tcmartin/floweditor/pkg/auth"
	"github.com/tcmartin/floweditor/pkg/client"
	"github.com/tcmartin/floweditor/pkg/config"
	"github.com/tcmartin/floweditor/pkg/editor"
	"github.com/tcmartin/floweditor/pkg/loader"
	"github.com/tcmartin/floweditor/pkg/session"
)

var (
	// Command-line flags
	configPath   = flag.String("config", "", "Path to config file")
	workflowID   = flag.String("workflow", "", "ID of the workflow to open")
	templatePath = flag.String("template", "", "Path to a YAML workflow template to open")
	runFlag      = flag.Bool("run", false, "Run the workflow after opening it")
	version      = flag.Bool("version", false, "Print version information")
)

// Version information
const (
	AppVersion = "0.1.0"
	AppName    = "floweditor"
)

func main() {
	// Load environment variables from .env file
	_ = godotenv.Load()

	flag.Parse()

	if *version {
		fmt.Printf("%s version %s\n", AppName, AppVersion)
		return
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	tokens := auth.NewTokenSource(cfg.API.Token)
	api := client.New(cfg.API.BaseURL, client.WithTokenSource(tokens))
	sess := session.New(api, cfg)
	defer sess.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-stop
		cancel()
	}()

	switch {
	case *workflowID != "":
		if err := sess.LoadWorkflow(ctx, *workflowID); err != nil {
			log.Fatalf("Failed to load workflow %s: %v", *workflowID, err)
		}
	case *templatePath != "":
		tmpl, err := loader.LoadTemplate(*templatePath)
		if err != nil {
			log.Fatalf("Failed to load template: %v", err)
		}
		sess.LoadGraph(tmpl.Metadata.Name, tmpl.WireGraph())
	default:
		log.Fatal("One of -workflow or -template is required")
	}

	state := sess.Editor().State()
	nodes, edges := sess.Graph().Snapshot()
	fmt.Printf("Opened %q: %d nodes, %d edges\n", state.WorkflowName, len(nodes), len(edges))

	if !*runFlag {
		return
	}

	// Print each new log entry as the stream delivers it
	printed := 0
	unsubscribe := sess.Editor().Subscribe(func(s editor.State) {
		for ; printed < len(s.SelectedRunLogs); printed++ {
			entry := s.SelectedRunLogs[printed]
			fmt.Printf("[%s] %v\n", entry.Level, entry.Message)
		}
	})
	defer unsubscribe()

	runID, err := sess.RunWorkflow(ctx)
	if err != nil {
		log.Fatalf("Failed to run workflow: %v", err)
	}
	fmt.Printf("Started run %s\n", runID)

	// Wait for the run to complete, the stream to drop, or a signal
	select {
	case <-sess.ChannelDone():
	case <-ctx.Done():
	case <-time.After(10 * time.Minute):
		log.Println("Timed out waiting for run completion")
	}
}
