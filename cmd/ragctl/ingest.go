package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"docrag/internal/app"
	"docrag/internal/bootstrap"
	"docrag/internal/model"
)

func newIngestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ingest <file>...",
		Short: "Upload files and wait for their ingestion to finish",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *bootstrap.App) error {
				var ids []uint
				for _, path := range args {
					doc, err := uploadFile(cmd, a, path)
					if err != nil {
						return err
					}
					ids = append(ids, doc.ID)
				}

				// drains the local queue; every upload above has been processed after this
				a.Pool.Close()

				failed := 0
				for _, id := range ids {
					detail, err := a.Documents.Get(cmd.Context(), id)
					if err != nil {
						return err
					}
					doc := detail.Document
					switch doc.Status {
					case model.DocumentStatusCompleted:
						cmd.Printf("%-6d %-40s COMPLETED  %d chunks\n", doc.ID, doc.FileName, doc.ChunkCount)
					default:
						failed++
						cmd.Printf("%-6d %-40s %-10s %s\n", doc.ID, doc.FileName, doc.Status, doc.ErrorMessage)
					}
				}
				if failed > 0 {
					return fmt.Errorf("%d of %d documents failed", failed, len(ids))
				}
				return nil
			})
		},
	}
}

func uploadFile(cmd *cobra.Command, a *bootstrap.App, path string) (*model.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	return a.Documents.Upload(cmd.Context(), app.UploadInput{
		FileName: filepath.Base(path),
		Size:     info.Size(),
		Content:  f,
	})
}
