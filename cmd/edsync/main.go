package main

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ajitpratap0/edsync/pkg/catalog"
	"github.com/ajitpratap0/edsync/pkg/config"
	"github.com/ajitpratap0/edsync/pkg/connector/registry"
	jsonpool "github.com/ajitpratap0/edsync/pkg/json"
	"github.com/ajitpratap0/edsync/pkg/logger"

	// Import all available connectors to register them
	_ "github.com/ajitpratap0/edsync/pkg/connector/destinations"
	_ "github.com/ajitpratap0/edsync/pkg/connector/sources"
)

var version = "0.1.0"

// sourceName is the registry name of the change-feed source
const sourceName = "edfi"

// app carries state shared by every subcommand, resolved before it runs.
type app struct {
	configPath string
	tables     []string

	cfg     *config.Config
	catalog *catalog.Catalog
	log     *zap.Logger
	out     io.Writer
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	a := &app{out: out}

	root := &cobra.Command{
		Use:   "edsync",
		Short: "edsync - incremental extraction from Ed-Fi change feeds",
		Long: `edsync extracts Ed-Fi API resources into an object store as newline-delimited
JSON partitions. Incremental runs only fetch records changed since the last
committed change version; the watermark advances only when every endpoint
succeeded.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "Path to the YAML configuration file")
	root.PersistentFlags().StringSliceVar(&a.tables, "tables", nil, "Restrict the catalog to these tables")

	// Version command
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(a.out, "edsync v%s\n", version)
			fmt.Fprintf(a.out, "Go version: %s\n", runtime.Version())
			fmt.Fprintf(a.out, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	})

	// List command to show available connectors
	root.AddCommand(&cobra.Command{
		Use:   "connectors",
		Short: "List available sources and object stores",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(a.out, "Available Sources:")
			for _, info := range registry.Sources() {
				printConnector(a.out, info)
			}
			fmt.Fprintln(a.out, "\nAvailable Object Stores:")
			for _, info := range registry.Stores() {
				printConnector(a.out, info)
			}
		},
	})

	root.AddCommand(
		a.runCmd(),
		a.planCmd(),
		a.endpointsCmd(),
		a.watermarkCmd(),
		a.postCmd(),
		a.deleteCmd(),
	)
	return root
}

func printConnector(out io.Writer, info registry.Info) {
	fmt.Fprintf(out, "  - %s v%s: %s\n", info.Name, info.Version, info.Description)
	if len(info.Settings) > 0 {
		fmt.Fprintf(out, "      settings: %s\n", strings.Join(info.Settings, ", "))
	}
}

// setup loads configuration, initializes logging and resolves the catalog.
func (a *app) setup() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}
	if err := logger.Init(cfg.Logging); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	cat, err := catalog.Load(cfg.Extraction.CatalogPath)
	if err != nil {
		return fmt.Errorf("catalog error: %w", err)
	}
	if len(a.tables) > 0 {
		if cat, err = cat.Select(a.tables...); err != nil {
			return fmt.Errorf("catalog error: %w", err)
		}
	}

	a.cfg = cfg
	a.catalog = cat
	a.log = logger.Get().With(zap.String("component", "edsync-cli"))
	return nil
}

// printJSON writes v to the command output as indented JSON.
func (a *app) printJSON(v interface{}) error {
	data, err := jsonpool.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	_, err = fmt.Fprintln(a.out, string(data))
	return err
}
