package main

import (
	"fmt"
	"log"
	"os"

	"github.com/ironsheep/galaxy-tools/internal/config"
	"github.com/ironsheep/galaxy-tools/internal/monitoring"
)

// Version information - set by ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func usage() {
	fmt.Println("galaxy-tools - Galaxy Zoo dataset preparation and detector evaluation")
	fmt.Println()
	fmt.Println("Usage: galaxy-tools <command> [options]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  prepare       Build the train/val dataset from the image archive and survey CSV")
	fmt.Println("  predict       Detect galaxies in one image (--image or --url)")
	fmt.Println("  evaluate      Run the detector over a sample of validation images")
	fmt.Println("  history       List recorded evaluation runs")
	fmt.Println("  serve-mcp     Serve MCP over stdin/stdout")
	fmt.Println("  serve-http    Serve the HTTP API")
	fmt.Println("  version       Print version information")
	fmt.Println()
	fmt.Println("Run 'galaxy-tools <command> -h' for command options.")
	fmt.Println()
	fmt.Println("Environment variables (also read from .env):")
	fmt.Println("  GALAXY_MODEL_PATH, GALAXY_ORT_LIBRARY, GALAXY_INPUT_SIZE")
	fmt.Println("  GALAXY_CONF, GALAXY_IOU")
	fmt.Println("  GALAXY_ARCHIVE, GALAXY_LABELS_CSV, GALAXY_DATASET_DIR")
	fmt.Println("  GALAXY_OUTPUT_DIR, GALAXY_HISTORY_DB, GALAXY_HTTP_ADDR")
	fmt.Println("  GALAXY_LOG_LEVEL=debug    Enable debug logging")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cmd, args := os.Args[1], os.Args[2:]
	switch cmd {
	case "--version", "-v", "version":
		fmt.Printf("galaxy-tools %s\n", Version)
		fmt.Printf("  Build time: %s\n", BuildTime)
		fmt.Printf("  Git commit: %s\n", GitCommit)
		return
	case "--help", "-h", "help":
		usage()
		return
	}

	// Logging goes to stderr; stdout carries reports and the MCP protocol.
	log.SetOutput(os.Stderr)
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	monitoring.SetDebug(cfg.Debug())
	monitoring.Debugf("galaxy-tools v%s (built %s, commit %s)", Version, BuildTime, GitCommit)

	switch cmd {
	case "prepare":
		err = runPrepare(cfg, args)
	case "predict":
		err = runPredict(cfg, args)
	case "evaluate":
		err = runEvaluate(cfg, args)
	case "history":
		err = runHistory(cfg, args)
	case "serve-mcp":
		err = runServeMCP(cfg)
	case "serve-http":
		err = runServeHTTP(cfg, args)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", cmd)
		usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("%s: %v", cmd, err)
	}
}
