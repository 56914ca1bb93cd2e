package main

import (
	"github.com/spf13/cobra"

	"github.com/fluidzero/fz-cli/internal/api"
)

func newProjectsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "projects",
		Short: "Manage projects",
	}

	var description string

	create := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a project",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _ := newAPIClient(buildLogger())

			proj, err := client.CreateProject(cmd.Context(), args[0], description)
			if err != nil {
				return err
			}

			statusf("Created project %s.\n", proj.ID)

			return renderProjects([]api.Project{*proj})
		},
	}
	create.Flags().StringVar(&description, "description", "", "project description")

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List projects",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, _ := newAPIClient(buildLogger())

			projects, err := client.Projects(cmd.Context())
			if err != nil {
				return err
			}

			return renderProjects(projects)
		},
	})

	cmd.AddCommand(create)

	cmd.AddCommand(&cobra.Command{
		Use:   "get <project-id>",
		Short: "Show one project",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _ := newAPIClient(buildLogger())

			proj, err := client.Project(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			return renderProjects([]api.Project{*proj})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <project-id>",
		Short: "Delete a project",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _ := newAPIClient(buildLogger())

			if err := client.DeleteProject(cmd.Context(), args[0]); err != nil {
				return err
			}

			statusf("Deleted project %s.\n", args[0])

			return nil
		},
	})

	return cmd
}

func renderProjects(projects []api.Project) error {
	rows := make([][]string, 0, len(projects))
	for _, p := range projects {
		rows = append(rows, []string{p.ID, p.Name, p.Description, p.CreatedAt})
	}

	return render([]string{"ID", "NAME", "DESCRIPTION", "CREATED"}, rows, projects)
}
