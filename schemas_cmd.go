package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/fluidzero/fz-cli/internal/api"
)

func newSchemasCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schemas",
		Short: "Manage extraction schemas",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List schemas in the selected project",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			projectID, err := requireProject()
			if err != nil {
				return err
			}

			client, _ := newAPIClient(buildLogger())

			schemas, err := client.Schemas(cmd.Context(), projectID)
			if err != nil {
				return err
			}

			return renderSchemas(schemas)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "get <schema-id>",
		Short: "Show one schema including its definition",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _ := newAPIClient(buildLogger())

			schema, err := client.Schema(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			// A schema's value is its definition; always show the full record.
			return printJSON(schema)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "create <name> <definition.json>",
		Short: "Create a schema from a JSON definition file",
		Args:  exactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			projectID, err := requireProject()
			if err != nil {
				return err
			}

			definition, err := readSchemaDefinition(args[1])
			if err != nil {
				return err
			}

			client, _ := newAPIClient(buildLogger())

			schema, err := client.CreateSchema(cmd.Context(), projectID, args[0], definition)
			if err != nil {
				return err
			}

			statusf("Created schema %s.\n", schema.ID)

			return renderSchemas([]api.Schema{*schema})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <schema-id>",
		Short: "Delete a schema",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _ := newAPIClient(buildLogger())

			if err := client.DeleteSchema(cmd.Context(), args[0]); err != nil {
				return err
			}

			statusf("Deleted schema %s.\n", args[0])

			return nil
		},
	})

	return cmd
}

func readSchemaDefinition(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading schema definition: %w", err)
	}

	var definition map[string]any
	if err := json.Unmarshal(data, &definition); err != nil {
		return nil, fmt.Errorf("parsing schema definition %s: %w", path, err)
	}

	return definition, nil
}

func renderSchemas(schemas []api.Schema) error {
	rows := make([][]string, 0, len(schemas))
	for _, s := range schemas {
		rows = append(rows, []string{s.ID, s.Name, strconv.Itoa(s.Version), s.CreatedAt})
	}

	return render([]string{"ID", "NAME", "VERSION", "CREATED"}, rows, schemas)
}
