package main

import (
	"github.com/spf13/cobra"

	"github.com/fluidzero/fz-cli/internal/api"
)

func newDocumentsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "documents",
		Short: "Manage documents",
	}

	var statusFilter string

	list := &cobra.Command{
		Use:   "list",
		Short: "List documents in the selected project",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			projectID, err := requireProject()
			if err != nil {
				return err
			}

			client, _ := newAPIClient(buildLogger())

			docs, err := client.Documents(cmd.Context(), projectID, statusFilter)
			if err != nil {
				return err
			}

			return renderDocuments(docs)
		},
	}
	list.Flags().StringVar(&statusFilter, "status", "", "filter by status: processing, ready, or failed")

	cmd.AddCommand(list)

	cmd.AddCommand(&cobra.Command{
		Use:   "get <document-id>",
		Short: "Show one document",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _ := newAPIClient(buildLogger())

			doc, err := client.Document(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			return renderDocuments([]api.Document{*doc})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <document-id>",
		Short: "Delete a document",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _ := newAPIClient(buildLogger())

			if err := client.DeleteDocument(cmd.Context(), args[0]); err != nil {
				return err
			}

			statusf("Deleted document %s.\n", args[0])

			return nil
		},
	})

	return cmd
}

func renderDocuments(docs []api.Document) error {
	rows := make([][]string, 0, len(docs))
	for _, d := range docs {
		rows = append(rows, []string{d.ID, d.FileName, formatSize(d.FileSizeBytes), d.Status, d.CreatedAt})
	}

	return render([]string{"ID", "FILE", "SIZE", "STATUS", "CREATED"}, rows, docs)
}
