package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"kb-rag-api/internal/domain/entity"
)

func newListCmd(a *app) *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List indexed documents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if err := a.init(ctx); err != nil {
				return err
			}
			docs, err := a.core.Indexer.ListDocuments(ctx)
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), docs)
			}
			printDocuments(cmd.OutOrStdout(), docs)
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func printDocuments(out io.Writer, docs []entity.DocumentSummary) {
	if len(docs) == 0 {
		fmt.Fprintln(out, "no documents indexed")
		return
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SOURCE\tCATEGORY\tCHUNKS")
	for _, d := range docs {
		fmt.Fprintf(tw, "%s\t%s\t%d\n", d.Source, d.Category, d.ChunkCount)
	}
	_ = tw.Flush()
}

func newDeleteCmd(a *app) *cobra.Command {
	var category string
	cmd := &cobra.Command{
		Use:   "delete <source>",
		Short: "Remove one document",
		Long:  "Remove a document by source name. Without --category it is removed from every category.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := a.init(ctx); err != nil {
				return err
			}
			if err := a.core.Indexer.DeleteDocument(ctx, args[0], category); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return nil
		},
	}
	cmd.Flags().StringVarP(&category, "category", "c", "", "Only delete from this category")
	return cmd
}

func newDeleteCategoryCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete-category <category>",
		Short: "Remove every document in a category",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := a.init(ctx); err != nil {
				return err
			}
			if err := a.core.Indexer.DeleteCategory(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted category %s\n", args[0])
			return nil
		},
	}
}

func newClearCmd(a *app) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove every document from the knowledge base",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return errors.New("refusing to clear without --yes")
			}
			ctx := cmd.Context()
			if err := a.init(ctx); err != nil {
				return err
			}
			if err := a.core.Indexer.Clear(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "knowledge base cleared")
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Confirm the deletion")
	return cmd
}

func newStatsCmd(a *app) *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show collection statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if err := a.init(ctx); err != nil {
				return err
			}
			st := a.core.Indexer.Stats(ctx)
			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), st)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "status:      %s\n", st.Status)
			fmt.Fprintf(out, "backend:     %s\n", st.Backend)
			fmt.Fprintf(out, "collection:  %s\n", st.Collection)
			fmt.Fprintf(out, "embedder:    %s\n", st.Embedder)
			fmt.Fprintf(out, "chunks:      %d\n", st.TotalChunks)
			if st.Error != "" {
				fmt.Fprintf(out, "error:       %s\n", st.Error)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
