package main

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"
	"github.com/natefinch/atomic"
	"github.com/spf13/cobra"

	"github.com/kubusdb/kubus"
	"github.com/kubusdb/kubus/pkg/view"
)

func (c *cli) syncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Replace the server design documents with the local definitions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := c.context(cmd)
			defer cancel()

			db, err := kubus.Setup(ctx, c.options(cmd))
			if err != nil {
				return err
			}
			defer db.Close()

			for _, b := range db.Builders() {
				fmt.Fprintln(cmd.OutOrStdout(), b.ID())
			}
			return nil
		},
	}
}

func (c *cli) getCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Print a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := c.context(cmd)
			defer cancel()

			opts := c.options(cmd)
			opts.SkipSync = true
			db, err := kubus.Setup(ctx, opts)
			if err != nil {
				return err
			}
			defer db.Close()

			var doc map[string]any
			if err := db.Store().Get(ctx, args[0], &doc); err != nil {
				return err
			}
			return printJSON(cmd, doc)
		},
	}
}

func (c *cli) viewsCmd() *cobra.Command {
	views := &cobra.Command{
		Use:   "views",
		Short: "Inspect local view definitions",
	}

	views.AddCommand(&cobra.Command{
		Use:   "print",
		Short: "Print the design documents built from the views folder",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			builders, err := c.loadViews()
			if err != nil {
				return err
			}
			docs := make([]view.DesignDocument, 0, len(builders))
			for _, b := range builders {
				docs = append(docs, b.DesignDocument())
			}
			return printJSON(cmd, docs)
		},
	})

	export := &cobra.Command{
		Use:   "export",
		Short: "Write every design document to <out>/<name>.json",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out, _ := cmd.Flags().GetString("out")
			if out == "" {
				return errors.New("--out is required")
			}
			builders, err := c.loadViews()
			if err != nil {
				return err
			}
			if err := os.MkdirAll(out, 0o755); err != nil {
				return err
			}
			for _, b := range builders {
				data, err := json.MarshalIndent(b.DesignDocument(), "", "  ")
				if err != nil {
					return err
				}
				path := filepath.Join(out, b.Name()+".json")
				if err := atomic.WriteFile(path, bytes.NewReader(append(data, '\n'))); err != nil {
					return fmt.Errorf("write %s: %w", path, err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), path)
			}
			return nil
		},
	}
	export.Flags().String("out", "", "target directory")
	views.AddCommand(export)

	return views
}

func (c *cli) loadViews() ([]*view.Builder, error) {
	builders, err := view.LoadDir(c.v.GetString(flagViewsFolder), c.v.GetString(flagViewsSuffix))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	return builders, err
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return err
}
