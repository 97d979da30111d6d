package main

import (
	"context"
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"crewline/internal/domain"
	"crewline/internal/engine"
)

func missionCmd() *cobra.Command {
	m := &cobra.Command{
		Use:   "mission",
		Short: "Manage missions",
		Long:  "Missions are created Open by their Chief, started once they have crew, then completed or failed.",
	}
	m.AddCommand(missionCreateCmd())
	m.AddCommand(missionListCmd())
	m.AddCommand(missionShowCmd())
	m.AddCommand(missionEditCmd())
	m.AddCommand(missionRemoveCmd())
	m.AddCommand(missionTransitionCmd("start", "Start an Open or Failed mission", engine.Engine.Start))
	m.AddCommand(missionTransitionCmd("complete", "Complete an InProgress mission", engine.Engine.Complete))
	m.AddCommand(missionTransitionCmd("fail", "Fail an InProgress mission", engine.Engine.Fail))
	return m
}

func missionCreateCmd() *cobra.Command {
	var name, desc, chiefName string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a mission led by --actor-id",
		RunE: func(cmd *cobra.Command, args []string) error {
			chief, err := actorID()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				m, err := e.CreateMission(ctx, engine.MissionCreateOptions{
					Name:        name,
					Description: desc,
					ChiefID:     chief,
					ChiefName:   chiefName,
				})
				if err != nil {
					return err
				}
				return printMission(m)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "mission name")
	cmd.Flags().StringVar(&desc, "description", "", "description")
	cmd.Flags().StringVar(&chiefName, "chief-name", "", "display name to record for the chief")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func missionListCmd() *cobra.Command {
	var status, name string
	var f domain.MissionFilter
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List missions, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			if status != "" {
				st, err := domain.ParseStatus(status)
				if err != nil {
					return err
				}
				f.Status = st
			}
			f.Name = name
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListMissions(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable("ID", "Name", "Status", "Chief", "Crew", "Updated")
				for _, m := range items {
					tw.AppendRow(table.Row{m.ID, m.Name, m.Status, m.ChiefID, fmt.Sprintf("%d/%d", m.CrewCount, e.MaxCrew), m.UpdatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "status filter (Open, InProgress, Completed, Failed)")
	cmd.Flags().StringVar(&name, "name", "", "name substring filter")
	cmd.Flags().Int64Var(&f.ChiefID, "chief-id", 0, "chief filter")
	cmd.Flags().IntVar(&f.Limit, "limit", 50, "maximum missions to list")
	cmd.Flags().Int64Var(&f.Cursor, "cursor", 0, "list missions older than this id")
	return cmd
}

func missionShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <mission-id>",
		Short: "Show a mission and its crew",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "mission")
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				m, err := e.GetMission(ctx, id)
				if err != nil {
					return err
				}
				crew, err := e.Crew(ctx, id)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"mission": m, "crew": crew})
				}
				if err := printMission(m); err != nil {
					return err
				}
				return printCrew(crew)
			})
		},
	}
	return cmd
}

func missionEditCmd() *cobra.Command {
	var name, desc string
	cmd := &cobra.Command{
		Use:   "edit <mission-id>",
		Short: "Change the name or description of an Open mission (Chief only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "mission")
			if err != nil {
				return err
			}
			actor, err := actorID()
			if err != nil {
				return err
			}
			var opts engine.MissionEditOptions
			if cmd.Flags().Changed("name") {
				opts.Name = &name
			}
			if cmd.Flags().Changed("description") {
				opts.Description = &desc
			}
			if opts.Name == nil && opts.Description == nil {
				return fmt.Errorf("nothing to change; pass --name or --description")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				m, err := e.EditMission(ctx, id, actor, opts)
				if err != nil {
					return err
				}
				return printMission(m)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "new name")
	cmd.Flags().StringVar(&desc, "description", "", "new description")
	return cmd
}

func missionRemoveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "remove <mission-id>",
		Aliases: []string{"rm"},
		Short:   "Remove an Open mission and clear its crew (Chief only)",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "mission")
			if err != nil {
				return err
			}
			actor, err := actorID()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.RemoveMission(ctx, id, actor); err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"mission_id": id, "removed": true})
				}
				fmt.Printf("mission %d removed\n", id)
				return nil
			})
		},
	}
	return cmd
}

type transitionFunc func(e engine.Engine, ctx context.Context, missionID, actorID int64) (int64, error)

func missionTransitionCmd(use, short string, run transitionFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use + " <mission-id>",
		Short: short + " (Chief only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "mission")
			if err != nil {
				return err
			}
			actor, err := actorID()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if _, err := run(e, ctx, id, actor); err != nil {
					return err
				}
				m, err := e.GetMission(ctx, id)
				if err != nil {
					return err
				}
				return printMission(m)
			})
		},
	}
	return cmd
}

func printMission(m domain.Mission) error {
	if viper.GetBool("json") {
		return printJSON(m)
	}
	tw := newTable("Field", "Value")
	tw.AppendRows([]table.Row{
		{"ID", m.ID},
		{"Name", m.Name},
		{"Description", m.Description},
		{"Status", m.Status},
		{"Chief", m.ChiefID},
		{"Crew", m.CrewCount},
		{"Created", m.CreatedAt},
		{"Updated", m.UpdatedAt},
	})
	tw.Render()
	return nil
}
