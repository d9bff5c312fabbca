package main

import (
	"bufio"
	"bytes"
	"context"
	stdjson "encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ajitpratap0/edsync/pkg/connector/core"
	"github.com/ajitpratap0/edsync/pkg/connector/registry"
	jsonpool "github.com/ajitpratap0/edsync/pkg/json"
	"github.com/ajitpratap0/edsync/pkg/models"
	"github.com/ajitpratap0/edsync/pkg/watermark"
)

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func (a *app) endpointsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "endpoints",
		Short: "List the endpoint catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.setup(); err != nil {
				return err
			}
			for _, ep := range a.catalog.Endpoints() {
				fmt.Fprintf(a.out, "%-50s %-40s %s\n", ep.Path, ep.Table, ep.Kind())
			}
			fmt.Fprintf(a.out, "\n%d endpoints, %d tables\n", a.catalog.Len(), len(a.catalog.Tables()))
			return nil
		},
	}
}

// openWatermarks opens the configured watermark backend on its own.
func (a *app) openWatermarks(ctx context.Context) (*watermark.Store, error) {
	backend, err := watermark.Open(ctx, a.cfg.Watermark, a.log)
	if err != nil {
		return nil, fmt.Errorf("failed to open watermark backend '%s': %w", a.cfg.Watermark.Backend, err)
	}
	return watermark.NewStore(backend, a.log), nil
}

func (a *app) watermarkCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watermark",
		Short: "Inspect or seed committed change versions",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get <source-key>",
		Short: "Show the last committed change version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.setup(); err != nil {
				return err
			}
			ctx := commandContext(cmd)
			store, err := a.openWatermarks(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			w, ok, err := store.Latest(ctx, args[0])
			if err != nil {
				return err
			}
			if !ok {
				w = models.Watermark{SourceKey: args[0], Value: models.NoWatermark}
			}
			return a.printJSON(w)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set <source-key> <change-version>",
		Short: "Append a change version, e.g. to seed or rewind incremental runs",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid change version %q: %w", args[1], err)
			}
			if err := a.setup(); err != nil {
				return err
			}
			ctx := commandContext(cmd)
			store, err := a.openWatermarks(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.Commit(ctx, args[0], value, time.Now().UTC()); err != nil {
				return err
			}
			a.log.Info("watermark set manually", zap.String("source_key", args[0]), zap.Int64("change_version", value))
			return nil
		},
	})
	return cmd
}

// resolveEndpoint finds path in the catalog; unknown paths are still
// accepted for write-back.
func (a *app) resolveEndpoint(path string) models.Endpoint {
	if ep, ok := a.catalog.Lookup(path); ok {
		return ep
	}
	return models.Endpoint{Path: path}
}

func (a *app) openSource() (core.WritableSource, error) {
	source, err := registry.CreateSource(sourceName, a.cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create source '%s': %w", sourceName, err)
	}
	return source, nil
}

func (a *app) postCmd() *cobra.Command {
	var sourceKey, endpoint, file string

	cmd := &cobra.Command{
		Use:   "post",
		Short: "Create records from a JSON array or NDJSON file",
		Long: `Post records to an endpoint one request at a time. The first rejected record
stops the batch; locations of records created before it are still printed.
A record is re-sent only when the connection failed before any response
arrived, so a record the server received just before the connection dropped
may be created twice.

Example:
  edsync post --source-key 2024 --endpoint /ed-fi/students --file students.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(file) //nolint:gosec // path is supplied by the operator
			if err != nil {
				return fmt.Errorf("failed to read records: %w", err)
			}
			records, err := parseRecords(data)
			if err != nil {
				return err
			}
			if err := a.setup(); err != nil {
				return err
			}
			source, err := a.openSource()
			if err != nil {
				return err
			}
			defer source.Close()

			locations, err := source.Post(commandContext(cmd), sourceKey, a.resolveEndpoint(endpoint), records)
			if printErr := a.printJSON(locations); printErr != nil {
				a.log.Warn("failed to print locations", zap.Error(printErr))
			}
			return err
		},
	}

	cmd.Flags().StringVarP(&sourceKey, "source-key", "k", "", "Source key, the school year in YearSpecific mode")
	cmd.Flags().StringVarP(&endpoint, "endpoint", "e", "", "Endpoint path, e.g. /ed-fi/students (required)")
	cmd.Flags().StringVarP(&file, "file", "f", "", "JSON array or NDJSON file of records (required)")
	_ = cmd.MarkFlagRequired("endpoint")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

// parseRecords accepts a JSON array of objects or one object per line.
func parseRecords(data []byte) ([][]byte, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("no records to post")
	}

	if trimmed[0] == '[' {
		var raw []stdjson.RawMessage
		if err := jsonpool.Unmarshal(trimmed, &raw); err != nil {
			return nil, fmt.Errorf("failed to parse records: %w", err)
		}
		records := make([][]byte, len(raw))
		for i, r := range raw {
			records[i] = []byte(r)
		}
		return records, nil
	}

	var records [][]byte
	scanner := bufio.NewScanner(bytes.NewReader(trimmed))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for line := 1; scanner.Scan(); line++ {
		text := bytes.TrimSpace(scanner.Bytes())
		if len(text) == 0 {
			continue
		}
		if !stdjson.Valid(text) {
			return nil, fmt.Errorf("line %d is not valid JSON", line)
		}
		records = append(records, append([]byte(nil), text...))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read records: %w", err)
	}
	return records, nil
}

func (a *app) deleteCmd() *cobra.Command {
	var sourceKey, endpoint string
	var ids []string

	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete records by id; records already gone count as deleted",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.setup(); err != nil {
				return err
			}
			source, err := a.openSource()
			if err != nil {
				return err
			}
			defer source.Close()

			ctx := commandContext(cmd)
			ep := a.resolveEndpoint(endpoint)
			for _, id := range ids {
				outcome, err := source.Delete(ctx, sourceKey, ep, id)
				if err != nil {
					return fmt.Errorf("failed to delete %s: %w", id, err)
				}
				fmt.Fprintf(a.out, "%s\t%s\n", id, outcome)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&sourceKey, "source-key", "k", "", "Source key, the school year in YearSpecific mode")
	cmd.Flags().StringVarP(&endpoint, "endpoint", "e", "", "Endpoint path, e.g. /ed-fi/students (required)")
	cmd.Flags().StringSliceVar(&ids, "id", nil, "Record id to delete (repeatable, required)")
	_ = cmd.MarkFlagRequired("endpoint")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}
