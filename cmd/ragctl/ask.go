package main

import (
	"strings"

	"github.com/spf13/cobra"

	"docrag/internal/bootstrap"
)

func newAskCmd() *cobra.Command {
	var topK int
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer a question from the indexed documents",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			question := strings.Join(args, " ")
			return withApp(cmd.Context(), func(a *bootstrap.App) error {
				result, err := a.Queries.Query(cmd.Context(), question, topK)
				if err != nil {
					return err
				}
				cmd.Println(result.Answer)
				if len(result.References) > 0 {
					cmd.Println()
					cmd.Println("References:")
					for i, ref := range result.References {
						cmd.Printf("  [%d] %s (score %.3f)\n", i+1, ref.DocumentName, ref.Score)
					}
				}
				cmd.Printf("\n(%d ms)\n", result.ResponseTimeMs)
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "number of chunks to retrieve (default from config)")
	return cmd
}

func newHistoryCmd() *cobra.Command {
	var page, size int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List past questions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), func(a *bootstrap.App) error {
				result, err := a.Queries.ListHistory(cmd.Context(), page, size)
				if err != nil {
					return err
				}
				for _, item := range result.Items {
					cmd.Printf("%s  %5d ms  %s\n", item.QueryTime.Format("2006-01-02 15:04:05"), item.ResponseTimeMs, item.QueryText)
				}
				cmd.Printf("page %d, %d of %d total\n", result.Page, len(result.Items), result.Total)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&page, "page", 1, "page number")
	cmd.Flags().IntVar(&size, "size", 10, "page size")
	return cmd
}
