package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"crewline/internal/config"
	"crewline/internal/server"
)

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Inspect workspace config",
		Long:  "crewline.yml in the workspace sets the stage, crew capacity, server and webhooks. Missing keys use defaults.",
	}
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configValidateCmd())
	cfg.AddCommand(configInitCmd())
	return cfg
}

func configShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOptional(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			if n := viper.GetInt("max-crew"); n > 0 {
				cfg.Crew.MaxPerMission = n
			}
			return printJSONOrTable(cfg)
		},
	}
	return cmd
}

func configValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate crewline.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := config.Load(viper.GetString("workspace"))
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": fmt.Sprint(err)})
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	}
	return cmd
}

func configInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default crewline.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists; use --force to overwrite", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func authCmd() *cobra.Command {
	a := &cobra.Command{
		Use:   "auth",
		Short: "API credentials",
	}
	var ttl time.Duration
	token := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for --actor-id (needs CREWLINE_JWT_SECRET)",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := actorID()
			if err != nil {
				return err
			}
			cfg, err := config.LoadOptional(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			if ttl <= 0 {
				ttl = cfg.TokenTTL()
			}
			signed, expires, err := server.IssueToken(jwtSecret(), id, ttl, time.Now())
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(server.DevLoginResponse{Token: signed, ExpiresAt: expires.Format(time.RFC3339)})
			}
			fmt.Println(signed)
			return nil
		},
	}
	token.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (default auth.token_ttl_hours)")
	a.AddCommand(token)
	return a
}

func jwtSecret() string {
	return os.Getenv("CREWLINE_JWT_SECRET")
}
