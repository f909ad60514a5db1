package cli

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/becomeliminal/nim-memory/config"
	"github.com/becomeliminal/nim-memory/memory"
	"github.com/becomeliminal/nim-memory/memory/embedder"
	"github.com/becomeliminal/nim-memory/memory/store/bolt"
	"github.com/becomeliminal/nim-memory/memory/store/chromem"
)

// DefaultConfigFile is loaded from the working directory when --config is
// not given and the file exists.
const DefaultConfigFile = "nim-memory.yaml"

// app carries state shared by the subcommands of one invocation.
type app struct {
	configPath string
	collection string
	verbose    bool

	cfg *config.Config
}

// NewRootCmd creates the root nim-memory command with all subcommands registered.
func NewRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "nim-memory",
		Short: "Vector memory for agents",
		Long: `nim-memory stores free-text memories with typed metadata in a vector
store and retrieves the most similar ones for a query.

Example usage:
  nim-memory add "User prefers oat milk" --meta topic=preferences
  nim-memory search -q "coffee order" -k 3
  nim-memory ingest "notes/**/*.md"
  nim-memory serve`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.loadConfig()
		},
	}

	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "config file (default is ./"+DefaultConfigFile+" if present)")
	root.PersistentFlags().StringVar(&a.collection, "collection", "", "collection name (overrides config)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "enable log output")

	root.AddCommand(
		newAddCmd(a),
		newGetCmd(a),
		newDeleteCmd(a),
		newSearchCmd(a),
		newIngestCmd(a),
		newServeCmd(a),
		newConfigCmd(a),
	)

	return root
}

// Execute runs the CLI and exits non-zero on failure.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func (a *app) loadConfig() error {
	if !a.verbose {
		log.SetOutput(io.Discard)
	}

	// .env in the working directory may hold API keys and NIM_MEMORY_* overrides.
	_ = godotenv.Load()

	path := a.configPath
	if path == "" {
		if _, err := os.Stat(DefaultConfigFile); err == nil {
			path = DefaultConfigFile
		}
	}

	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if a.collection != "" {
		cfg.Collection.Name = a.collection
	}
	a.cfg = cfg
	return nil
}

// openRetriever builds the embedder, store and retriever described by the
// config. The returned cleanup closes all three.
func (a *app) openRetriever(ctx context.Context) (*memory.Retriever, func(), error) {
	cfg := a.cfg

	emb, err := embedder.New(cfg.EmbedderConfig())
	if err != nil {
		return nil, nil, err
	}

	var store memory.Store
	switch cfg.Store.Backend {
	case "bolt":
		store, err = bolt.Open(cfg.Store.Path, emb)
	default:
		if cfg.Store.Path == "" {
			log.Printf("[CLI] store.path is empty: memories are kept in memory and lost on exit")
		}
		store, err = chromem.New(emb, chromem.Options{Path: cfg.Store.Path, Compress: cfg.Store.Compress})
	}
	if err != nil {
		_ = embedder.Close(emb)
		return nil, nil, fmt.Errorf("failed to open %s store: %w", cfg.Store.Backend, err)
	}

	r, err := memory.NewRetriever(ctx, store, cfg.RetrieverConfig())
	if err != nil {
		_ = store.Close()
		_ = embedder.Close(emb)
		return nil, nil, err
	}

	cleanup := func() {
		if err := r.Close(); err != nil {
			log.Printf("[CLI] Failed to close store: %v", err)
		}
		if err := embedder.Close(emb); err != nil {
			log.Printf("[CLI] Failed to close embedder: %v", err)
		}
	}
	return r, cleanup, nil
}
