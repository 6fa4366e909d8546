package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"github.com/texforge/texforge/internal/config"
	"github.com/texforge/texforge/internal/version"
)

var CLI struct {
	Config  string `short:"c" help:"Configuration file path" default:"config.yaml"`
	Verbose bool   `short:"v" help:"Enable verbose logging"`

	Serve struct{} `cmd:"" help:"Start the render service"`

	Compile struct {
		Input     string `arg:"" help:"LaTeX source file to compile"`
		Output    string `short:"o" help:"Output PDF path" default:"document.pdf"`
		Engine    string `short:"e" help:"Engine override (pdflatex|xelatex|lualatex)"`
		MaxPasses int    `short:"p" help:"Maximum engine passes (0 uses config)"`
	} `cmd:"" help:"Compile a single document and exit"`

	Version struct{} `cmd:"" help:"Print version information"`
}

func main() {
	ctx := kong.Parse(&CLI)

	cfg, err := config.Load(CLI.Config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}
	config.SetupLogging(cfg.Logging, CLI.Verbose)

	switch ctx.Command() {
	case "serve":
		if err := runServe(cfg); err != nil {
			slog.Error("Service failed", "error", err)
			os.Exit(1)
		}
	case "compile <input>":
		if err := runCompile(cfg); err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}
	case "version":
		fmt.Printf("texforge %s (commit %s, built %s)\n", version.Version, version.GitCommit, version.BuildTime)
	}
}
