package main

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/dharsanguruparan/mindstash/internal/auth"
	"github.com/dharsanguruparan/mindstash/internal/database"
	"github.com/dharsanguruparan/mindstash/internal/model"
	"github.com/dharsanguruparan/mindstash/internal/repository"
	"github.com/dharsanguruparan/mindstash/internal/rules"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the PostgreSQL schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cfg.DatabaseURL == "" {
				return errors.New("MINDSTASH_DATABASE_URL is not set")
			}
			pool, err := database.Connect(cmd.Context(), cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer pool.Close()
			if err := database.EnsureSchema(cmd.Context(), pool); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema applied")
			return nil
		},
	}
}

func newRulesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rules",
		Short: "Print the rule catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTITLE\tDESCRIPTION")
			for _, r := range rules.All() {
				fmt.Fprintf(w, "%s\t%s\t%s\n", r.ID, r.Title, r.Description)
			}
			return w.Flush()
		},
	}
}

func newTokenCmd() *cobra.Command {
	var (
		userID string
		ttl    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for local testing",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := cfg.RequireSecret(); err != nil {
				return err
			}
			tok, err := auth.NewTokens(cfg.JWTSecret).Issue(userID, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "User id placed in the token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newUserCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Provision users in PostgreSQL",
	}
	cmd.AddCommand(newUserAddCmd())
	return cmd
}

func newUserAddCmd() *cobra.Command {
	var u model.User
	var role string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create or update a user profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			switch model.Role(role) {
			case model.RoleUser, model.RoleModerator:
				u.Role = model.Role(role)
			default:
				return fmt.Errorf("unknown role %q", role)
			}
			u.ProfileCompleted = u.Program != ""
			if u.ProfileCompleted {
				if err := model.ValidateAcademic(u.Program, u.Branch, u.Semester); err != nil {
					return err
				}
			}
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cfg.DatabaseURL == "" {
				return errors.New("MINDSTASH_DATABASE_URL is not set")
			}
			pool, err := database.Connect(cmd.Context(), cfg.DatabaseURL)
			if err != nil {
				return err
			}
			repo := repository.New(pool)
			defer repo.Close()
			if err := repo.UpsertUser(cmd.Context(), &u); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "user %s saved\n", u.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&u.ID, "id", "", "User id (token subject)")
	cmd.Flags().StringVar(&u.Name, "name", "", "Display name")
	cmd.Flags().StringVar(&role, "role", string(model.RoleUser), "user or moderator")
	cmd.Flags().StringVar(&u.Program, "program", "", "Academic program; empty leaves the profile incomplete")
	cmd.Flags().StringVar(&u.Branch, "branch", "", "Branch within the program")
	cmd.Flags().IntVar(&u.Semester, "semester", 0, "Semester")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}
