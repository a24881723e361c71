package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"sprintdeck/internal/config"
	"sprintdeck/internal/db"
	"sprintdeck/internal/domain"
	"sprintdeck/internal/orchestrator"
	"sprintdeck/internal/server"
	"sprintdeck/internal/storage"
)

var rootCmd = &cobra.Command{
	Use:   "sd",
	Short: "SprintDeck CLI",
	Long: `SprintDeck tracks multi-project work and orchestrates agent-run sprints.
- Workspace: the .sprintdeck directory holding the database and config.
- Projects hold phases, phases hold sprints, tickets live on a board.
- Sprints can be handed to an external driver: configure a target repo,
  start, and the driver reports progress through checkpoints. A crashed
  driver resumes from the last checkpoint instead of starting over.
- Event log: diary of orchestrator activity, view with 'sd log tail'.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("SPRINTDECK")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func registerCommands() {
	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(tagCmd())
	rootCmd.AddCommand(ticketCmd())
	rootCmd.AddCommand(phaseCmd())
	rootCmd.AddCommand(sprintCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(serveCmd())
}

func projectCmd() *cobra.Command {
	prj := &cobra.Command{Use: "project", Short: "Manage projects"}
	prj.AddCommand(projectListCmd())
	prj.AddCommand(projectCreateCmd())
	prj.AddCommand(projectShowCmd())
	prj.AddCommand(projectUpdateCmd())
	prj.AddCommand(projectDeleteCmd())
	return prj
}

func projectListCmd() *cobra.Command {
	var active bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, store storage.Storage) error {
				items, err := store.ListProjects(ctx, "", active)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Active", "Path"})
				for _, p := range items {
					tw.AppendRow(table.Row{p.ID, p.Name, p.IsActive, p.Path})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&active, "active", false, "only active projects")
	return cmd
}

func projectCreateCmd() *cobra.Command {
	var name, path, desc string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create project",
		RunE: func(cmd *cobra.Command, args []string) error {
			if name == "" {
				return fmt.Errorf("--name required")
			}
			return withStore(cmd.Context(), func(ctx context.Context, store storage.Storage) error {
				p, err := store.CreateProject(ctx, "", storage.CreateProjectData{
					Name:        name,
					Path:        path,
					Description: desc,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "project name")
	cmd.Flags().StringVar(&path, "path", "", "local repository path")
	cmd.Flags().StringVar(&desc, "description", "", "description")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func projectShowCmd() *cobra.Command {
	var id int64
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show project",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, store storage.Storage) error {
				p, err := store.GetProject(ctx, "", id)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().Int64Var(&id, "id", 0, "project id")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func projectUpdateCmd() *cobra.Command {
	var id int64
	var name, path, desc string
	var active bool
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Update project",
		RunE: func(cmd *cobra.Command, args []string) error {
			var data storage.UpdateProjectData
			if cmd.Flags().Changed("name") {
				data.Name = &name
			}
			if cmd.Flags().Changed("path") {
				data.Path = &path
			}
			if cmd.Flags().Changed("description") {
				data.Description = &desc
			}
			if cmd.Flags().Changed("active") {
				data.IsActive = &active
			}
			return withStore(cmd.Context(), func(ctx context.Context, store storage.Storage) error {
				p, err := store.UpdateProject(ctx, "", id, data)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().Int64Var(&id, "id", 0, "project id")
	cmd.Flags().StringVar(&name, "name", "", "project name")
	cmd.Flags().StringVar(&path, "path", "", "local repository path")
	cmd.Flags().StringVar(&desc, "description", "", "description")
	cmd.Flags().BoolVar(&active, "active", true, "active flag")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func projectDeleteCmd() *cobra.Command {
	var id int64
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete project",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, store storage.Storage) error {
				return store.DeleteProject(ctx, "", id)
			})
		},
	}
	cmd.Flags().Int64Var(&id, "id", 0, "project id")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func tagCmd() *cobra.Command {
	tag := &cobra.Command{Use: "tag", Short: "Manage tags"}
	tag.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List tags",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, store storage.Storage) error {
				items, err := store.ListTags(ctx, "")
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	})
	tag.AddCommand(tagCreateCmd())
	tag.AddCommand(tagDeleteCmd())
	return tag
}

func tagCreateCmd() *cobra.Command {
	var name, color string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create tag",
		RunE: func(cmd *cobra.Command, args []string) error {
			if name == "" {
				return fmt.Errorf("--name required")
			}
			return withStore(cmd.Context(), func(ctx context.Context, store storage.Storage) error {
				t, err := store.CreateTag(ctx, "", name, color)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "tag name")
	cmd.Flags().StringVar(&color, "color", "", "hex color, e.g. #3b82f6")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func tagDeleteCmd() *cobra.Command {
	var id int64
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete tag",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, store storage.Storage) error {
				return store.DeleteTag(ctx, "", id)
			})
		},
	}
	cmd.Flags().Int64Var(&id, "id", 0, "tag id")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func ticketCmd() *cobra.Command {
	ticket := &cobra.Command{
		Use:   "ticket",
		Short: "Manage tickets",
		Long:  "Tickets are the board items. They flow backlog -> in_progress -> review -> done and can be attached to a project, phase and sprint.",
	}
	ticket.AddCommand(ticketCreateCmd())
	ticket.AddCommand(ticketListCmd())
	ticket.AddCommand(ticketGetCmd())
	ticket.AddCommand(ticketUpdateCmd())
	ticket.AddCommand(ticketDeleteCmd())
	return ticket
}

func ticketCreateCmd() *cobra.Command {
	var title, desc, status string
	var projectID, phaseID, sprintID int64
	var priority int
	var tagIDs []int64
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a ticket",
		RunE: func(cmd *cobra.Command, args []string) error {
			if title == "" {
				return fmt.Errorf("--title required")
			}
			data := storage.CreateTicketData{
				Title:       title,
				Description: desc,
				Status:      domain.TicketStatus(status),
				Priority:    priority,
				TagIDs:      tagIDs,
			}
			if projectID != 0 {
				data.ProjectID = &projectID
			}
			if phaseID != 0 {
				data.PhaseID = &phaseID
			}
			if sprintID != 0 {
				data.SprintID = &sprintID
			}
			return withStore(cmd.Context(), func(ctx context.Context, store storage.Storage) error {
				t, err := store.CreateTicket(ctx, "", data)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "title")
	cmd.Flags().StringVar(&desc, "description", "", "description")
	cmd.Flags().StringVar(&status, "status", "backlog", "status")
	cmd.Flags().Int64Var(&projectID, "project", 0, "project id")
	cmd.Flags().Int64Var(&phaseID, "phase", 0, "phase id")
	cmd.Flags().Int64Var(&sprintID, "sprint", 0, "sprint id")
	cmd.Flags().IntVar(&priority, "priority", 1, "priority 0-3")
	cmd.Flags().Int64SliceVar(&tagIDs, "tag", []int64{}, "tag id (repeatable)")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func ticketListCmd() *cobra.Command {
	var projectID, phaseID, sprintID, tagID int64
	var status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tickets",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, store storage.Storage) error {
				items, err := store.ListTickets(ctx, "", storage.TicketFilters{
					ProjectID: projectID,
					PhaseID:   phaseID,
					SprintID:  sprintID,
					Status:    domain.TicketStatus(status),
					TagID:     tagID,
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Status", "Priority", "Sprint"})
				for _, t := range items {
					sprint := ""
					if t.SprintID != nil {
						sprint = fmt.Sprint(*t.SprintID)
					}
					tw.AppendRow(table.Row{t.ID, t.Title, t.Status, t.Priority, sprint})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&projectID, "project", 0, "project id")
	cmd.Flags().Int64Var(&phaseID, "phase", 0, "phase id")
	cmd.Flags().Int64Var(&sprintID, "sprint", 0, "sprint id")
	cmd.Flags().Int64Var(&tagID, "tag", 0, "tag id")
	cmd.Flags().StringVar(&status, "status", "", "status filter")
	return cmd
}

func ticketGetCmd() *cobra.Command {
	var id int64
	cmd := &cobra.Command{
		Use:   "get",
		Short: "Get ticket",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, store storage.Storage) error {
				t, err := store.GetTicket(ctx, "", id)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().Int64Var(&id, "id", 0, "ticket id")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func ticketUpdateCmd() *cobra.Command {
	var id, projectID, phaseID, sprintID int64
	var title, desc, status string
	var priority, position int
	var tagIDs []int64
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Update ticket",
		RunE: func(cmd *cobra.Command, args []string) error {
			var data storage.UpdateTicketData
			if cmd.Flags().Changed("title") {
				data.Title = &title
			}
			if cmd.Flags().Changed("description") {
				data.Description = &desc
			}
			if cmd.Flags().Changed("status") {
				st := domain.TicketStatus(status)
				if !st.Valid() {
					return fmt.Errorf("invalid status %q", status)
				}
				data.Status = &st
			}
			if cmd.Flags().Changed("priority") {
				data.Priority = &priority
			}
			if cmd.Flags().Changed("position") {
				data.Position = &position
			}
			if cmd.Flags().Changed("project") {
				data.ProjectID = &projectID
			}
			if cmd.Flags().Changed("phase") {
				data.PhaseID = &phaseID
			}
			if cmd.Flags().Changed("sprint") {
				data.SprintID = &sprintID
			}
			if cmd.Flags().Changed("tag") {
				data.TagIDs = tagIDs
				data.TagsSet = true
			}
			return withStore(cmd.Context(), func(ctx context.Context, store storage.Storage) error {
				t, err := store.UpdateTicket(ctx, "", id, data)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().Int64Var(&id, "id", 0, "ticket id")
	cmd.Flags().StringVar(&title, "title", "", "title")
	cmd.Flags().StringVar(&desc, "description", "", "description")
	cmd.Flags().StringVar(&status, "status", "", "status")
	cmd.Flags().IntVar(&priority, "priority", 1, "priority 0-3")
	cmd.Flags().IntVar(&position, "position", 0, "board position")
	cmd.Flags().Int64Var(&projectID, "project", 0, "project id")
	cmd.Flags().Int64Var(&phaseID, "phase", 0, "phase id")
	cmd.Flags().Int64Var(&sprintID, "sprint", 0, "sprint id")
	cmd.Flags().Int64SliceVar(&tagIDs, "tag", []int64{}, "tag id (repeatable)")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func ticketDeleteCmd() *cobra.Command {
	var id int64
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete ticket",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, store storage.Storage) error {
				return store.DeleteTicket(ctx, "", id)
			})
		},
	}
	cmd.Flags().Int64Var(&id, "id", 0, "ticket id")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func phaseCmd() *cobra.Command {
	phase := &cobra.Command{Use: "phase", Short: "Manage phases"}
	phase.AddCommand(phaseListCmd())
	phase.AddCommand(phaseCreateCmd())
	phase.AddCommand(phaseUpdateCmd())
	phase.AddCommand(phaseDeleteCmd())
	return phase
}

func phaseListCmd() *cobra.Command {
	var projectID int64
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List phases of a project",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, store storage.Storage) error {
				items, err := store.ListPhases(ctx, "", projectID)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	cmd.Flags().Int64Var(&projectID, "project", 0, "project id")
	_ = cmd.MarkFlagRequired("project")
	return cmd
}

func phaseCreateCmd() *cobra.Command {
	var projectID int64
	var name, desc, status string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create phase",
		RunE: func(cmd *cobra.Command, args []string) error {
			if name == "" {
				return fmt.Errorf("--name required")
			}
			return withStore(cmd.Context(), func(ctx context.Context, store storage.Storage) error {
				p, err := store.CreatePhase(ctx, "", storage.CreatePhaseData{
					ProjectID:   projectID,
					Name:        name,
					Description: desc,
					Status:      status,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().Int64Var(&projectID, "project", 0, "project id")
	cmd.Flags().StringVar(&name, "name", "", "phase name")
	cmd.Flags().StringVar(&desc, "description", "", "description")
	cmd.Flags().StringVar(&status, "status", "planned", "status")
	_ = cmd.MarkFlagRequired("project")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func phaseUpdateCmd() *cobra.Command {
	var id int64
	var name, desc, status string
	var position int
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Update phase",
		RunE: func(cmd *cobra.Command, args []string) error {
			var data storage.UpdatePhaseData
			if cmd.Flags().Changed("name") {
				data.Name = &name
			}
			if cmd.Flags().Changed("description") {
				data.Description = &desc
			}
			if cmd.Flags().Changed("status") {
				data.Status = &status
			}
			if cmd.Flags().Changed("position") {
				data.Position = &position
			}
			return withStore(cmd.Context(), func(ctx context.Context, store storage.Storage) error {
				p, err := store.UpdatePhase(ctx, "", id, data)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().Int64Var(&id, "id", 0, "phase id")
	cmd.Flags().StringVar(&name, "name", "", "phase name")
	cmd.Flags().StringVar(&desc, "description", "", "description")
	cmd.Flags().StringVar(&status, "status", "", "status")
	cmd.Flags().IntVar(&position, "position", 0, "position")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func phaseDeleteCmd() *cobra.Command {
	var id int64
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete phase",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, store storage.Storage) error {
				return store.DeletePhase(ctx, "", id)
			})
		},
	}
	cmd.Flags().Int64Var(&id, "id", 0, "phase id")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func sprintCmd() *cobra.Command {
	sprint := &cobra.Command{
		Use:   "sprint",
		Short: "Manage sprints and their orchestration",
		Long:  "Sprints belong to phases. Beyond scheduling, a sprint can be handed to the agent driver: configure points it at a repo, start seeds the roster, status shows driver progress, resume revives a paused or failed run, reset returns a stuck sprint to idle.",
	}
	sprint.AddCommand(sprintListCmd())
	sprint.AddCommand(sprintCreateCmd())
	sprint.AddCommand(sprintGetCmd())
	sprint.AddCommand(sprintDeleteCmd())
	sprint.AddCommand(sprintConfigureCmd())
	sprint.AddCommand(sprintStartCmd())
	sprint.AddCommand(sprintStatusCmd())
	sprint.AddCommand(sprintResumeCmd())
	sprint.AddCommand(sprintResetCmd())
	return sprint
}

func sprintListCmd() *cobra.Command {
	var phaseID int64
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List sprints of a phase",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, store storage.Storage) error {
				items, err := store.ListSprints(ctx, "", phaseID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Status", "Orchestrator", "Progress"})
				for _, sp := range items {
					tw.AppendRow(table.Row{sp.ID, sp.Name, sp.Status, sp.OrchestratorStatus, fmt.Sprintf("%d%%", sp.OrchestratorProgress)})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&phaseID, "phase", 0, "phase id")
	_ = cmd.MarkFlagRequired("phase")
	return cmd
}

func sprintCreateCmd() *cobra.Command {
	var phaseID int64
	var name, desc, goal string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create sprint",
		RunE: func(cmd *cobra.Command, args []string) error {
			if name == "" {
				return fmt.Errorf("--name required")
			}
			return withStore(cmd.Context(), func(ctx context.Context, store storage.Storage) error {
				sp, err := store.CreateSprint(ctx, "", storage.CreateSprintData{
					PhaseID:     phaseID,
					Name:        name,
					Description: desc,
					Goal:        goal,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(sp)
			})
		},
	}
	cmd.Flags().Int64Var(&phaseID, "phase", 0, "phase id")
	cmd.Flags().StringVar(&name, "name", "", "sprint name")
	cmd.Flags().StringVar(&desc, "description", "", "description")
	cmd.Flags().StringVar(&goal, "goal", "", "sprint goal")
	_ = cmd.MarkFlagRequired("phase")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func sprintGetCmd() *cobra.Command {
	var id int64
	cmd := &cobra.Command{
		Use:   "get",
		Short: "Get sprint",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, store storage.Storage) error {
				sp, err := store.GetSprint(ctx, "", id)
				if err != nil {
					return err
				}
				return printJSONOrTable(sp)
			})
		},
	}
	cmd.Flags().Int64Var(&id, "id", 0, "sprint id")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func sprintDeleteCmd() *cobra.Command {
	var id int64
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete sprint",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, store storage.Storage) error {
				return store.DeleteSprint(ctx, "", id)
			})
		},
	}
	cmd.Flags().Int64Var(&id, "id", 0, "sprint id")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func sprintConfigureCmd() *cobra.Command {
	var id int64
	var repoPath, repoURL, baseBranch string
	cmd := &cobra.Command{
		Use:   "configure",
		Short: "Point a sprint at its target repository",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := orchestrator.ConfigureOptions{BaseBranch: baseBranch}
			if cmd.Flags().Changed("repo-path") {
				opts.RepoPath = &repoPath
			}
			if cmd.Flags().Changed("repo-url") {
				opts.RepoURL = &repoURL
			}
			return withOrchestrator(cmd.Context(), func(ctx context.Context, orch *orchestrator.Orchestrator) error {
				sp, err := orch.Configure(ctx, "", id, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(sp)
			})
		},
	}
	cmd.Flags().Int64Var(&id, "id", 0, "sprint id")
	cmd.Flags().StringVar(&repoPath, "repo-path", "", "local repository path")
	cmd.Flags().StringVar(&repoURL, "repo-url", "", "repository url")
	cmd.Flags().StringVar(&baseBranch, "base-branch", "", "base branch (default main)")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func sprintStartCmd() *cobra.Command {
	var id int64
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start sprint orchestration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withOrchestrator(cmd.Context(), func(ctx context.Context, orch *orchestrator.Orchestrator) error {
				sp, err := orch.Start(ctx, "", id)
				if err != nil {
					return err
				}
				return printJSONOrTable(sp)
			})
		},
	}
	cmd.Flags().Int64Var(&id, "id", 0, "sprint id")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func sprintStatusCmd() *cobra.Command {
	var id int64
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show orchestration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withOrchestrator(cmd.Context(), func(ctx context.Context, orch *orchestrator.Orchestrator) error {
				res, err := orch.Status(ctx, "", id)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				fmt.Printf("Sprint %d: %s\n", res.SprintID, res.Name)
				fmt.Printf("Orchestrator: %s (%d%%)\n", res.Status, res.Progress)
				if res.Stage != nil {
					fmt.Printf("Stage: %s\n", *res.Stage)
				}
				if res.Error != nil {
					fmt.Printf("Error: %s\n", *res.Error)
				}
				if res.TargetRepoPath != nil {
					fmt.Printf("Repo: %s\n", *res.TargetRepoPath)
				} else if res.TargetRepoURL != nil {
					fmt.Printf("Repo: %s\n", *res.TargetRepoURL)
				}
				if res.SprintBranch != nil {
					fmt.Printf("Branch: %s (base %s)\n", *res.SprintBranch, res.BaseBranch)
				}
				if res.CurrentStep != nil {
					pos := string(*res.CurrentStep)
					if res.CurrentSubstep != nil {
						pos += "/" + *res.CurrentSubstep
					}
					fmt.Printf("Checkpoint: %s", pos)
					if res.LastCheckpointAt != nil {
						fmt.Printf(" at %s", *res.LastCheckpointAt)
					}
					fmt.Println()
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Agent", "Status", "Started", "Completed"})
				for _, run := range res.AgentRuns {
					tw.AppendRow(table.Row{run.AgentName, run.Status, deref(run.StartedAt), deref(run.CompletedAt)})
				}
				tw.Render()
				tw = table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Gate", "Status", "Score"})
				for _, gate := range res.QualityGates {
					score := ""
					if gate.Score != nil {
						score = fmt.Sprint(*gate.Score)
						if gate.MaxScore != nil {
							score += "/" + fmt.Sprint(*gate.MaxScore)
						}
					}
					tw.AppendRow(table.Row{gate.GateName, gate.Status, score})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&id, "id", 0, "sprint id")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func sprintResumeCmd() *cobra.Command {
	var id int64
	cmd := &cobra.Command{
		Use:   "resume",
		Short: "Resume a paused or failed sprint from its checkpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withOrchestrator(cmd.Context(), func(ctx context.Context, orch *orchestrator.Orchestrator) error {
				res, err := orch.Resume(ctx, "", id)
				if err != nil {
					return err
				}
				return printJSONOrTable(res)
			})
		},
	}
	cmd.Flags().Int64Var(&id, "id", 0, "sprint id")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func sprintResetCmd() *cobra.Command {
	var id int64
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Force a sprint back to idle",
		Long:  "Clears branch, checkpoint and error state. Use when a driver died between start and its first checkpoint and the sprint is stuck initializing.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withOrchestrator(cmd.Context(), func(ctx context.Context, orch *orchestrator.Orchestrator) error {
				sp, err := orch.Reset(ctx, "", id)
				if err != nil {
					return err
				}
				return printJSONOrTable(sp)
			})
		},
	}
	cmd.Flags().Int64Var(&id, "id", 0, "sprint id")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Event log",
		Long:  "The diary of orchestrator activity: configure, start, checkpoints, resumes.",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	var sprintID int64
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, store storage.Storage) error {
				kind := ""
				if sprintID != 0 {
					kind = "sprint"
				}
				events, err := store.ListEvents(ctx, "", kind, sprintID, n)
				if err != nil {
					return err
				}
				return printJSONOrTable(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().Int64Var(&sprintID, "sprint", 0, "filter by sprint id")
	return cmd
}

func apikeyCmd() *cobra.Command {
	key := &cobra.Command{Use: "apikey", Short: "Manage API keys"}
	key.AddCommand(apikeyCreateCmd())
	key.AddCommand(apikeyListCmd())
	key.AddCommand(apikeyDeleteCmd())
	return key
}

func apikeyCreateCmd() *cobra.Command {
	var owner, name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an API key (secret printed once)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if owner == "" {
				return fmt.Errorf("--owner required")
			}
			raw := make([]byte, 24)
			if _, err := rand.Read(raw); err != nil {
				return err
			}
			secret := "sd_" + hex.EncodeToString(raw)
			key := domain.APIKey{
				ID:        uuid.NewString(),
				OwnerID:   owner,
				Name:      name,
				KeyHash:   storage.HashAPIKey(secret),
				CreatedAt: time.Now().UTC().Format(time.RFC3339),
			}
			return withStore(cmd.Context(), func(ctx context.Context, store storage.Storage) error {
				if err := store.InsertAPIKey(ctx, key); err != nil {
					return err
				}
				return printJSONOrTable(map[string]string{
					"id":    key.ID,
					"owner": key.OwnerID,
					"key":   secret,
				})
			})
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "owner id the key authenticates as")
	cmd.Flags().StringVar(&name, "name", "", "key label")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}

func apikeyListCmd() *cobra.Command {
	var owner string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, store storage.Storage) error {
				keys, err := store.ListAPIKeys(cmd.Context(), owner)
				if err != nil {
					return err
				}
				for i := range keys {
					keys[i].KeyHash = "" // never print hashes
				}
				return printJSONOrTable(keys)
			})
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "filter by owner id")
	return cmd
}

func apikeyDeleteCmd() *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete API key",
		RunE: func(cmd *cobra.Command, args []string) error {
			if id == "" {
				return fmt.Errorf("--id required")
			}
			return withStore(cmd.Context(), func(ctx context.Context, store storage.Storage) error {
				return store.DeleteAPIKey(ctx, id)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "key id")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			cfg, err := config.Load(workspace)
			if err != nil {
				return err
			}
			cfg.Storage.Workspace = workspace
			if cmd.Flags().Changed("addr") {
				cfg.Server.Addr = addr
			}
			if cmd.Flags().Changed("base-path") {
				cfg.Server.BasePath = basePath
			}
			if v := os.Getenv("SPRINTDECK_JWT_SECRET"); v != "" {
				cfg.Auth.JWTSecret = v
			}
			if v := os.Getenv("SPRINTDECK_ORCHESTRATOR_KEY"); v != "" {
				cfg.Auth.OrchestratorKey = v
			}
			store, err := storage.Open(cfg)
			if err != nil {
				return err
			}
			defer store.Close()
			handler, err := server.New(server.Config{
				Store:    store,
				Orch:     orchestrator.New(store),
				BasePath: cfg.Server.BasePath,
				Auth: server.AuthConfig{
					JWTSecret:       cfg.Auth.JWTSecret,
					OrchestratorKey: cfg.Auth.OrchestratorKey,
				},
			})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: cfg.Server.Addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving SprintDeck API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n",
				cfg.Server.Addr, cfg.Server.BasePath, cfg.Server.BasePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8780", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	return cmd
}

// --- helpers ---

func withStore(ctx context.Context, fn func(context.Context, storage.Storage) error) error {
	workspace := viper.GetString("workspace")
	cfg, err := config.Load(workspace)
	if err != nil {
		return err
	}
	cfg.Storage.Workspace = workspace
	store, err := storage.Open(cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(ctx, store)
}

func withOrchestrator(ctx context.Context, fn func(context.Context, *orchestrator.Orchestrator) error) error {
	return withStore(ctx, func(ctx context.Context, store storage.Storage) error {
		return fn(ctx, orchestrator.New(store))
	})
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
