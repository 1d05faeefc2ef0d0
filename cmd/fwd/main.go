package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/TermuxHackz/Enhanced-IPSW-Firmware-Analysis-Tool/internal/cli"
	"github.com/TermuxHackz/Enhanced-IPSW-Firmware-Analysis-Tool/pkg/version"
)

// Package main provides the fwd CLI tool for firmware container comparison
// and change classification.

func main() {
	// Configure help text
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `fwd - Firmware Delta CLI

Compares two firmware containers (IPSW/zip/tar.gz) and classifies every
changed file by subsystem and severity.

Usage:
  fwd compare <old.ipsw> <new.ipsw>     Diff two firmware containers
  fwd inspect <firmware.ipsw>           Extract and print one container's file tree
  fwd rules [--rules <table.yaml>]      Print the active classification rule table
  fwd version [--check]                 Display version, optionally check for updates

Commands:
  compare  Extract, hash and diff both containers, then classify each change
           and compute an overall update priority.
           Flags:
             --rules      Custom YAML classification rule table
             --cache      Tree cache directory; repeat comparisons skip extraction
             --workers    Extraction/hashing workers per container
             --format     json (default) or text report
             --progress   Stage progress on stderr

  inspect  Flatten a single container to its file tree (paths, sizes, digests)
  rules    Validate and print the rule table; the built-in table by default
  version  Display the CLI and engine version

Examples:
  fwd compare iPhone_18.2.ipsw iPhone_18.3.ipsw
  fwd compare --format text --cache ~/.fwd-cache old.ipsw new.ipsw
  fwd inspect firmware.ipsw
  fwd rules > my-rules.yaml
  fwd version --check
`)
	}

	if len(os.Args) < 2 {
		flag.Usage()
		os.Exit(1)
	}

	cmd := os.Args[1]

	switch cmd {
	case "compare":
		if err := cli.RunCompare(os.Args[2:]); err != nil {
			cli.ExitError(err)
		}

	case "inspect":
		if err := cli.RunInspect(os.Args[2:]); err != nil {
			cli.ExitError(err)
		}

	case "rules":
		if err := cli.RunRules(os.Args[2:]); err != nil {
			cli.ExitError(err)
		}

	case "version":
		versionCmd := flag.NewFlagSet("version", flag.ExitOnError)
		check := versionCmd.Bool("check", false, "Check GitHub for a newer release")
		if err := versionCmd.Parse(os.Args[2:]); err != nil {
			cli.ExitError(err)
		}
		fmt.Println("Firmware Delta CLI")
		// Automatically pulls the tag from build info, or "(devel)" locally
		fmt.Printf("Build: %s\n", version.EngineVersion())
		if *check {
			rel, err := version.CheckLatest(context.Background())
			if err != nil {
				cli.ExitError(err)
			}
			if rel.IsNewer(version.EngineVersion()) {
				fmt.Printf("Update available: %s (%s)\n", rel.TagName, rel.HTMLURL)
			} else {
				fmt.Println("Up to date.")
			}
		}

	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		if suggestion := cli.SuggestCommand(cmd); suggestion != "" {
			fmt.Fprintf(os.Stderr, "Did you mean '%s'?\n", suggestion)
		}
		flag.Usage()
		os.Exit(1)
	}
}
