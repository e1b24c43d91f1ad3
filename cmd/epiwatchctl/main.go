package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/epiwatch/backend/internal/bootstrap"
	"github.com/epiwatch/backend/internal/storage/models"
	"github.com/epiwatch/backend/internal/storage/sqlite"
	"github.com/epiwatch/backend/pkg/config"
	appLogger "github.com/epiwatch/backend/pkg/logger"
)

// version is set at build time via -ldflags "-X main.version=x.y.z".
var version = "dev"

// exitErr carries a numeric exit code through the cobra error path.
type exitErr struct {
	code int
	msg  string
}

func (e *exitErr) Error() string { return e.msg }

func codeError(code int, format string, args ...any) error {
	return &exitErr{code: code, msg: fmt.Sprintf(format, args...)}
}

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		var ee *exitErr
		if errors.As(err, &ee) {
			fmt.Fprintln(os.Stderr, "Error:", ee.msg)
			os.Exit(ee.code)
		}
		os.Exit(1)
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "epiwatchctl",
		Short:         "Operate the EpiWatch ingest store from the command line",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to a config file (default: search ./config.yaml, ./config, /etc/epiwatch)")

	loadConfig := func() (*config.Config, error) {
		cfg, err := config.LoadFrom(configPath)
		if err != nil {
			return nil, codeError(3, "loading config: %s", err)
		}
		// stdout carries command output
		if err := appLogger.Init(cfg.Logging.Level, "console", "stderr"); err != nil {
			return nil, codeError(3, "initializing logger: %s", err)
		}
		return cfg, nil
	}

	root.AddCommand(
		newIngestCmd(out, loadConfig),
		newSeedCmd(out, loadConfig),
		newSignalsCmd(out, loadConfig),
		newGeocacheCmd(out, loadConfig),
	)
	return root
}

func newIngestCmd(out io.Writer, loadConfig func() (*config.Config, error)) *cobra.Command {
	var (
		file    string
		verbose bool
	)
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Run one ingest batch from a JSON file",
		Long:  `Reads {"articles": [...]} (or a bare array) from --file, or stdin when --file is "-", and prints the batch response.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			defer appLogger.Sync()

			articles, err := readArticles(file, cmd.InOrStdin())
			if err != nil {
				return codeError(2, "reading articles: %s", err)
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			svc, err := bootstrap.Open(ctx, cfg)
			if err != nil {
				return err
			}
			defer svc.Close()

			if t := cfg.Ingestion.BatchTimeout(); t > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, t)
				defer cancel()
			}

			result, err := svc.Pipeline.Run(ctx, articles)
			if err != nil {
				return err
			}

			if verbose {
				for _, r := range result.Reports {
					fmt.Fprintf(cmd.ErrOrStderr(), "%-24s %d %s\n", r.Outcome, r.Signals, r.URL)
				}
			}

			resp := map[string]any{
				"success":   true,
				"processed": result.Processed,
				"articles":  result.Articles,
			}
			if result.Truncated {
				resp["truncated"] = true
			}
			return writeJSON(out, resp)
		},
	}
	cmd.Flags().StringVar(&file, "file", "-", "Batch file, or - for stdin")
	cmd.Flags().BoolVar(&verbose, "verbose", false, "Print the outcome of every article to stderr")
	return cmd
}

func newSeedCmd(out io.Writer, loadConfig func() (*config.Config, error)) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load sources, diseases, keywords and countries from a YAML file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			defer appLogger.Sync()

			if file == "" {
				file = cfg.Reference.SeedFile
			}
			if file == "" {
				return codeError(2, "no seed file: pass --file or set reference.seedFile")
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			store, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			stats, err := bootstrap.Seed(ctx, store, file)
			if err != nil {
				return err
			}
			return writeJSON(out, stats)
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "Reference seed YAML (default: reference.seedFile)")
	return cmd
}

func newSignalsCmd(out io.Writer, loadConfig func() (*config.Config, error)) *cobra.Command {
	var (
		days    int
		disease string
		country string
		limit   uint64
	)
	cmd := &cobra.Command{
		Use:   "signals",
		Short: "List recent outbreak signals",
		RunE: func(cmd *cobra.Command, args []string) error {
			if days < 1 {
				return codeError(2, "--days must be at least 1")
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			defer appLogger.Sync()

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			store, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			signals, err := store.ListSignals(ctx, models.SignalFilter{
				Since:     time.Now().UTC().AddDate(0, 0, -days),
				DiseaseID: disease,
				CountryID: country,
				Limit:     limit,
			})
			if err != nil {
				return err
			}
			if signals == nil {
				signals = []models.OutbreakSignal{}
			}
			return writeJSON(out, signals)
		},
	}
	f := cmd.Flags()
	f.IntVar(&days, "days", 30, "Only signals detected in the last N days")
	f.StringVar(&disease, "disease", "", "Filter by disease id")
	f.StringVar(&country, "country", "", "Filter by country id")
	f.Uint64Var(&limit, "limit", 100, "Maximum signals to print")
	return cmd
}

func newGeocacheCmd(out io.Writer, loadConfig func() (*config.Config, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "geocache",
		Short: "Manage the shared geocode cache",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "purge",
		Short: "Drop every cached geocode result from redis",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			defer appLogger.Sync()

			if !strings.EqualFold(cfg.GeoCache.Backend, "redis") {
				return codeError(2, "geocache backend %q is not shared across processes, nothing to purge", cfg.GeoCache.Backend)
			}

			_, client, err := bootstrap.NewSharedCache(cfg)
			if err != nil {
				return err
			}
			defer client.Close()

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			if err := client.Invalidate(ctx); err != nil {
				return err
			}
			fmt.Fprintln(out, "geocache purged")
			return nil
		},
	})
	return cmd
}

func openStore(ctx context.Context, cfg *config.Config) (*sqlite.Client, error) {
	store, err := sqlite.NewClient(cfg.SQLite.Path)
	if err != nil {
		return nil, err
	}
	if err := store.InitSchema(ctx); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}

func readArticles(path string, stdin io.Reader) ([]models.RawArticle, error) {
	var data []byte
	var err error
	if path == "" || path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, err
	}

	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		var articles []models.RawArticle
		if err := json.Unmarshal(data, &articles); err != nil {
			return nil, err
		}
		return articles, nil
	}

	var batch struct {
		Articles []models.RawArticle `json:"articles"`
	}
	if err := json.Unmarshal(data, &batch); err != nil {
		return nil, err
	}
	if batch.Articles == nil {
		return nil, errors.New("articles array required")
	}
	return batch.Articles, nil
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
