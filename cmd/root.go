package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	mtp "github.com/modeltoolsprotocol/go-sdk"
	"github.com/rogersnm/skillmap/internal/adapter"
	"github.com/rogersnm/skillmap/internal/config"
	"github.com/rogersnm/skillmap/internal/id"
	"github.com/rogersnm/skillmap/internal/logging"
	"github.com/rogersnm/skillmap/internal/repofile"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	version   = "dev"
	dataDir   string
	remoteURL string
	cfg       *config.Config
	logger    *zap.Logger
	local     *stack
	client    *adapter.Client
)

func defaultDataDir() string {
	if d := os.Getenv("SKILLMAP_DATA_DIR"); d != "" {
		return d
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".skillmap")
	}
	return filepath.Join(home, ".skillmap")
}

func isConfigCmd(cmd *cobra.Command) bool {
	return cmd.Name() == "config" || (cmd.Parent() != nil && cmd.Parent().Name() == "config")
}

var rootCmd = &cobra.Command{
	Use:     "skillmap",
	Short:   "Offline-first skill tree store",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := os.MkdirAll(dataDir, 0755); err != nil {
			return fmt.Errorf("creating data directory: %w", err)
		}

		var err error
		cfg, err = config.Load(dataDir)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		cfg.ApplyEnv()
		if err := cfg.Validate(); err != nil {
			return err
		}

		logger, err = logging.New(cfg.LogLevel, cfg.LogFormat)
		if err != nil {
			return err
		}

		// Config commands work without a store
		if isConfigCmd(cmd) {
			return nil
		}

		if remoteURL != "" {
			client = adapter.NewClient(adapter.HTTPCaller{BaseURL: remoteURL}, cfg.RequestTimeout())
			return nil
		}
		local = newStack(cfg, dataDir, logger)
		local.start()
		client = adapter.NewClient(adapter.QueueCaller{Queue: local.queue}, cfg.RequestTimeout())
		return nil
	},
	SilenceUsage: true,
}

func shutdown() {
	if local != nil {
		local.close()
		local = nil
	}
	client = nil
	if logger != nil {
		_ = logger.Sync()
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", defaultDataDir(), "data directory path")
	rootCmd.PersistentFlags().StringVar(&remoteURL, "remote", "", "talk to a running 'skillmap serve --http' at this base URL")

	mtpOpts := &mtp.DescribeOptions{
		Commands: map[string]*mtp.CommandAnnotation{
			"tree get": {
				Stdout: &mtp.IODescriptor{
					ContentType: "application/json",
					Description: "The skill tree document; created with defaults if it did not exist",
				},
				Examples: []mtp.Example{
					{Description: "Get the linked or default tree", Command: "skillmap tree get"},
					{Description: "Get a specific tree", Command: "skillmap tree get magic-K7Q2M"},
				},
			},
			"tree new": {
				Examples: []mtp.Example{
					{Description: "Create a tree with a generated id", Command: "skillmap tree new \"Backend Roadmap\""},
				},
			},
			"tree save": {
				Stdin: &mtp.IODescriptor{
					ContentType: "application/json",
					Description: "Skill tree JSON document when the file argument is -",
				},
				Examples: []mtp.Example{
					{Description: "Save a tree document, keeping the newer version on conflict", Command: "skillmap tree save tree.json"},
					{Description: "Save from stdin", Command: "cat tree.json | skillmap tree save -"},
				},
			},
			"tree import": {
				Examples: []mtp.Example{
					{Description: "Replace a tree with an exported file", Command: "skillmap tree import magic.md"},
				},
			},
			"tree export": {
				Stdout: &mtp.IODescriptor{
					ContentType: "application/json",
					Description: "Tree document as JSON, or markdown with YAML frontmatter when --format markdown",
				},
				Examples: []mtp.Example{
					{Description: "Export as markdown", Command: "skillmap tree export magic-K7Q2M --format markdown -o magic.md"},
				},
			},
			"tree delete": {
				Examples: []mtp.Example{
					{Description: "Delete a tree and its status (interactive confirm)", Command: "skillmap tree delete magic-K7Q2M"},
					{Description: "Delete without confirmation", Command: "skillmap tree delete magic-K7Q2M --force"},
				},
			},
			"tree list": {
				Stdout: &mtp.IODescriptor{
					ContentType: "text/plain",
					Description: "Table of trees, newest first, with id, name, skill count, updated time and source",
				},
			},
			"tree show": {
				Stdout: &mtp.IODescriptor{
					ContentType: "text/plain",
					Description: "Tree header and ASCII prerequisite graph, or rendered markdown with --pretty",
				},
			},
			"tree add-skill": {
				Examples: []mtp.Example{
					{Description: "Add a skill requiring two others", Command: "skillmap tree add-skill fireball --name Fireball --cost 2 --reqs spark,focus"},
				},
			},
			"tree link": {
				Examples: []mtp.Example{
					{Description: "Link the current directory to a tree", Command: "skillmap tree link magic-K7Q2M"},
				},
			},
			"status set": {
				Examples: []mtp.Example{
					{Description: "Unlock a skill and spend points", Command: "skillmap status set --unlock fireball --points 1"},
				},
			},
			"serve": {
				Stdin: &mtp.IODescriptor{
					ContentType: "application/x-ndjson",
					Description: "One request per line: {type, treeId?, payload?, requestId}",
				},
				Stdout: &mtp.IODescriptor{
					ContentType: "application/x-ndjson",
					Description: "One response per request: {ok, data?, error?, requestId}",
				},
				Examples: []mtp.Example{
					{Description: "Serve requests over stdio", Command: "echo '{\"type\":\"list-skill-trees\",\"requestId\":\"1\"}' | skillmap serve"},
					{Description: "Serve over HTTP", Command: "skillmap serve --http 127.0.0.1:8787"},
				},
			},
			"watch": {
				Stdout: &mtp.IODescriptor{
					ContentType: "application/x-ndjson",
					Description: "Change events: {type, treeId, updatedAt}",
				},
			},
		},
	}

	mtp.WithDescribe(rootCmd, mtpOpts)
}

func Execute() error {
	defer shutdown()
	return rootCmd.Execute()
}

// resolveTree returns the tree id from the argument, the --tree flag, the
// repo-local link file, the configured default, or the built-in default.
func resolveTree(cmd *cobra.Command, args []string) (string, error) {
	treeID := ""
	if len(args) > 0 {
		treeID = args[0]
	}
	if treeID == "" {
		treeID, _ = cmd.Flags().GetString("tree")
	}
	if treeID == "" {
		if cwd, err := os.Getwd(); err == nil {
			if linked, _, _ := repofile.Find(cwd); linked != "" {
				treeID = linked
			}
		}
	}
	if treeID == "" && cfg != nil {
		treeID = cfg.DefaultTree
	}
	if treeID == "" {
		treeID = id.DefaultTreeID
	}
	if !id.Valid(treeID) {
		return "", fmt.Errorf("invalid tree id %q (letters, digits, '-' and '_', at most 64)", treeID)
	}
	return treeID, nil
}

func confirmDelete(cmd *cobra.Command, what string) error {
	if force, _ := cmd.Flags().GetBool("force"); force {
		return nil
	}
	var ok bool
	if err := huh.NewConfirm().
		Title(fmt.Sprintf("Delete %s?", what)).
		Affirmative("Delete").
		Negative("Cancel").
		Value(&ok).
		Run(); err != nil {
		return fmt.Errorf("confirmation cancelled (use --force to skip)")
	}
	if !ok {
		return fmt.Errorf("aborted")
	}
	return nil
}

// readInput reads a file argument, with "-" meaning stdin.
func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(path)
}

func splitIDs(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// nextStamp is a timestamp strictly after prev, so an edit always wins the
// last-writer-wins merge against the document it was based on.
func nextStamp(prev time.Time) time.Time {
	now := time.Now().UTC().Truncate(time.Millisecond)
	if !now.After(prev) {
		now = prev.Add(time.Millisecond)
	}
	return now
}
