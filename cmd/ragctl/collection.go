package main

import (
	"github.com/spf13/cobra"

	"docrag/internal/bootstrap"
)

func newCollectionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "collection",
		Short: "Inspect and create the Qdrant collection",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "init",
			Short: "Create the collection if it does not exist",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				cfg, err := loadConfig()
				if err != nil {
					return err
				}
				created, err := bootstrap.NewQdrant(cfg).EnsureCollection(cmd.Context(), cfg.Embedding.Dimension, cfg.Qdrant.Distance)
				if err != nil {
					return err
				}
				if created {
					cmd.Printf("created collection %s (dimension %d, %s)\n", cfg.Qdrant.Collection, cfg.Embedding.Dimension, cfg.Qdrant.Distance)
				} else {
					cmd.Printf("collection %s already exists\n", cfg.Qdrant.Collection)
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "info",
			Short: "Show point count and vector parameters",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				cfg, err := loadConfig()
				if err != nil {
					return err
				}
				info, err := bootstrap.NewQdrant(cfg).CollectionInfo(cmd.Context())
				if err != nil {
					return err
				}
				cmd.Printf("name:     %s\n", info.Name)
				cmd.Printf("status:   %s\n", info.Status)
				cmd.Printf("points:   %d\n", info.PointsCount)
				cmd.Printf("segments: %d\n", info.SegmentCount)
				cmd.Printf("vectors:  %d, %s\n", info.VectorSize, info.Distance)
				return nil
			},
		},
		&cobra.Command{
			Use:   "list",
			Short: "List every collection on the server",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				cfg, err := loadConfig()
				if err != nil {
					return err
				}
				names, err := bootstrap.NewQdrant(cfg).ListCollections(cmd.Context())
				if err != nil {
					return err
				}
				if len(names) == 0 {
					cmd.Println("No collections.")
					return nil
				}
				for _, name := range names {
					cmd.Println(name)
				}
				return nil
			},
		},
	)
	return cmd
}
