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

func crewCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "crew",
		Short: "Join, leave and list mission crews",
		Long:  "Crews change only while a mission is Open or Failed. A brawler acts for themselves: --actor-id is the one joining or leaving.",
	}
	c.AddCommand(crewJoinCmd())
	c.AddCommand(crewLeaveCmd())
	c.AddCommand(crewListCmd())
	return c
}

func crewJoinCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "join <mission-id>",
		Short: "Join a mission crew",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "mission")
			if err != nil {
				return err
			}
			brawler, err := actorID()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				ms, err := e.Join(ctx, id, brawler)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(ms)
				}
				fmt.Printf("brawler %d joined mission %d\n", ms.BrawlerID, ms.MissionID)
				return nil
			})
		},
	}
	return cmd
}

func crewLeaveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "leave <mission-id>",
		Short: "Leave a mission crew",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "mission")
			if err != nil {
				return err
			}
			brawler, err := actorID()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.Leave(ctx, id, brawler); err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"mission_id": id, "brawler_id": brawler, "left": true})
				}
				fmt.Printf("brawler %d left mission %d\n", brawler, id)
				return nil
			})
		},
	}
	return cmd
}

func crewListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list <mission-id>",
		Short: "List a mission's crew in join order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "mission")
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				crew, err := e.Crew(ctx, id)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(crew)
				}
				return printCrew(crew)
			})
		},
	}
	return cmd
}

func printCrew(crew []domain.CrewMember) error {
	tw := newTable("Brawler", "Name", "Joined")
	for _, c := range crew {
		tw.AppendRow(table.Row{c.BrawlerID, c.DisplayName, c.JoinedAt})
	}
	tw.AppendFooter(table.Row{"", "Total", len(crew)})
	tw.Render()
	return nil
}

func brawlerCmd() *cobra.Command {
	b := &cobra.Command{
		Use:   "brawler",
		Short: "Brawler registry",
	}
	var name string
	register := &cobra.Command{
		Use:   "register",
		Short: "Record the display name of --actor-id",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := actorID()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.RegisterBrawler(ctx, id, name); err != nil {
					return err
				}
				return printJSONOrTable(domain.Brawler{ID: id, DisplayName: name})
			})
		},
	}
	register.Flags().StringVar(&name, "name", "", "display name")
	_ = register.MarkFlagRequired("name")
	b.AddCommand(register)
	return b
}
