package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/jacentio/grove/cascade"
	"github.com/jacentio/grove/clone"
	"github.com/jacentio/grove/internal/env"
	"github.com/jacentio/grove/store"
)

// app holds the components shared by every subcommand.
type app struct {
	settings env.Settings
	logger   *slog.Logger
	store    *store.Store
	registry prometheus.Registerer
	push     func(context.Context) error
}

func (a *app) open(ctx context.Context) error {
	s, err := env.Load()
	if err != nil {
		return err
	}
	a.settings = s
	a.logger = s.Logger()
	a.registry, a.push = s.Metrics("grove")
	a.store, err = s.Open(ctx)
	return err
}

// pushMetrics sends the metrics of the command to the Pushgateway, if one is
// configured. Failures are logged, not returned.
func (a *app) pushMetrics(ctx context.Context) {
	if a.push == nil {
		return
	}
	if err := a.push(ctx); err != nil {
		a.logger.Warn("push metrics failed", "error", err)
	}
}

func (a *app) engine() *clone.Engine {
	c := a.settings.Clone(a.logger)
	c.Registerer = a.registry
	return clone.New(a.store, c)
}

func (a *app) executor() *cascade.Executor {
	c := a.settings.Cascade(a.logger)
	c.Registerer = a.registry
	return cascade.NewExecutor(a.store, c)
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "grove",
		Short:         "Clone, delete and restore document trees stored in DynamoDB",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.open(cmd.Context())
		},
	}
	root.AddCommand(
		newCloneCmd(a),
		newDuplicateCmd(a),
		newDescendantsCmd(a),
		newDeleteCmd(a),
		newRestoreCmd(a),
		newPurgeCmd(a),
	)
	return root
}

func newCloneCmd(a *app) *cobra.Command {
	var (
		creatorID   int64
		spaceID     int64
		parentID    string
		replaceID   string
		titlePrefix string
		index       int
		recurse     bool
		attachment  bool
	)
	cmd := &cobra.Command{
		Use:   "clone <document-id>",
		Short: "Deep clone a document, optionally with its child documents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := clone.DefaultPolicy(creatorID)
			p.TitlePrefix = titlePrefix
			p.Index = index
			p.Recurse = recurse
			p.KeepTypeAttachment = attachment
			if spaceID != 0 {
				p.SpaceID = &spaceID
			}
			if parentID != "" {
				p.ParentID = &parentID
			}
			if replaceID != "" {
				p.ReplaceTargetID = &replaceID
			}

			doc, err := a.engine().DeepClone(cmd.Context(), args[0], p)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), doc)
		},
	}
	defaults := clone.DefaultPolicy(0)
	f := cmd.Flags()
	f.Int64Var(&creatorID, "creator", 0, "user id recorded as creator of the copies (required)")
	f.Int64Var(&spaceID, "space", 0, "space of the copy")
	f.StringVar(&parentID, "parent", "", "parent document of the copy")
	f.StringVar(&replaceID, "replace", "", "overwrite this document instead of creating one")
	f.StringVar(&titlePrefix, "title-prefix", "", "text prepended to the copied title")
	f.IntVar(&index, "index", defaults.Index, "sibling index of the copy")
	f.BoolVar(&recurse, "recurse", defaults.Recurse, "also clone active child documents")
	f.BoolVar(&attachment, "keep-type-attachment", defaults.KeepTypeAttachment, "also clone the assignment or submission")
	_ = cmd.MarkFlagRequired("creator")
	return cmd
}

func newDuplicateCmd(a *app) *cobra.Command {
	var creatorID, spaceID int64
	cmd := &cobra.Command{
		Use:   "duplicate <document-id>",
		Short: "Copy a document tree next to the original",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			docs, err := a.engine().Duplicate(cmd.Context(), spaceID, args[0], creatorID)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), docs)
		},
	}
	cmd.Flags().Int64Var(&creatorID, "creator", 0, "user id recorded as creator of the copies (required)")
	cmd.Flags().Int64Var(&spaceID, "space", 0, "space the document belongs to (required)")
	_ = cmd.MarkFlagRequired("creator")
	_ = cmd.MarkFlagRequired("space")
	return cmd
}

func newDescendantsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "descendants <document-id>",
		Short: "List the active descendants of a document in depth-first order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := cascade.NewCollector(a.store, a.logger).CollectDescendants(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			for _, id := range ids {
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			return nil
		},
	}
}

func newDeleteCmd(a *app) *cobra.Command {
	var children, hard bool
	cmd := &cobra.Command{
		Use:   "delete <document-id>...",
		Short: "Soft delete documents, or hard delete a single childless document",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e := a.executor()
			switch {
			case hard:
				if len(args) != 1 {
					return fmt.Errorf("%w: --hard takes exactly one document", store.ErrInvalidRequest)
				}
				return e.HardDelete(cmd.Context(), args[0])
			case len(args) == 1:
				return e.SoftDelete(cmd.Context(), args[0], children)
			case children:
				return fmt.Errorf("%w: --children takes exactly one document", store.ErrInvalidRequest)
			}
			return e.SoftDeleteMany(cmd.Context(), args)
		},
	}
	cmd.Flags().BoolVar(&children, "children", false, "also soft delete every active descendant")
	cmd.Flags().BoolVar(&hard, "hard", false, "remove the document and its pages permanently")
	return cmd
}

func newRestoreCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "restore <document-id>...",
		Short: "Clear the deletion marker of exactly the given documents",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.executor().Restore(cmd.Context(), args)
		},
	}
}

func newPurgeCmd(a *app) *cobra.Command {
	var parentRef string
	cmd := &cobra.Command{
		Use:   "purge <document-id>",
		Short: "Remove what is left of a soft-deleted or expired document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := a.executor().Purge(cmd.Context(), args[0], parentRef)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d owned entities\n", n)
			return nil
		},
	}
	cmd.Flags().StringVar(&parentRef, "parent-ref", "", "relationship parent when the document item is already gone")
	return cmd
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
