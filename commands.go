package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/deemkeen/quill/activitypub"
	"github.com/deemkeen/quill/domain"
	"github.com/deemkeen/quill/util"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

const tokenLength = 40

func validName(name string) error {
	if name == "" || strings.ContainsAny(name, "/@ \t\n?#") {
		return fmt.Errorf("invalid name %q", name)
	}
	return nil
}

func useraddCmd() *cobra.Command {
	var displayName string

	cmd := &cobra.Command{
		Use:   "useradd <username>",
		Short: "Create a local user with a fresh keypair",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			username := args[0]
			if err := validName(username); err != nil {
				return err
			}
			conf, err := loadConfig()
			if err != nil {
				return err
			}
			database, err := openDB(conf)
			if err != nil {
				return err
			}
			defer database.Close()

			ctx := context.Background()
			if conf.Conf.Single {
				users, err := database.LocalUsers(ctx)
				if err != nil {
					return err
				}
				if len(users) > 0 {
					return errors.New("this is a single-user instance and it already has a user")
				}
			}
			if displayName == "" {
				displayName = username
			}

			user, err := database.CreateLocalUser(ctx, conf.Domain(), username, displayName, activitypub.GenerateKeypair())
			if errors.Is(err, domain.ErrDuplicate) {
				return fmt.Errorf("user %q already exists", username)
			}
			if err != nil {
				return err
			}
			fmt.Printf("Created %s (%s)\n", user.Username, user.ApURL)
			return nil
		},
	}
	cmd.Flags().StringVar(&displayName, "display-name", "", "display name, defaults to the username")
	return cmd
}

func blogaddCmd() *cobra.Command {
	var (
		title string
		owner string
	)

	cmd := &cobra.Command{
		Use:   "blogadd <name>",
		Short: "Create a local blog owned by a local user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			if err := validName(name); err != nil {
				return err
			}
			conf, err := loadConfig()
			if err != nil {
				return err
			}
			database, err := openDB(conf)
			if err != nil {
				return err
			}
			defer database.Close()

			ctx := context.Background()
			user, err := database.LocalUserByName(ctx, owner)
			if errors.Is(err, domain.ErrNotFound) {
				return fmt.Errorf("no local user %q", owner)
			}
			if err != nil {
				return err
			}
			if title == "" {
				title = name
			}

			blog, err := database.CreateLocalBlog(ctx, conf.Domain(), name, title, user, activitypub.GenerateKeypair())
			if errors.Is(err, domain.ErrDuplicate) {
				return fmt.Errorf("blog %q already exists", name)
			}
			if err != nil {
				return err
			}
			fmt.Printf("Created %s (%s), owned by %s\n", blog.Name, blog.ApURL, user.Username)
			return nil
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "blog title, defaults to the name")
	cmd.Flags().StringVar(&owner, "owner", "", "username of the owning local user")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}

func tokenCmd() *cobra.Command {
	var scopes []string

	cmd := &cobra.Command{
		Use:   "token <username>",
		Short: "Issue an API token for a local user",
		Long: `Issues a bearer token for the /api/v1 endpoints. Scopes are "read", "write"
or endpoint-limited forms like "write:posts"; a write scope also grants read.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, err := loadConfig()
			if err != nil {
				return err
			}
			database, err := openDB(conf)
			if err != nil {
				return err
			}
			defer database.Close()

			ctx := context.Background()
			user, err := database.LocalUserByName(ctx, args[0])
			if errors.Is(err, domain.ErrNotFound) {
				return fmt.Errorf("no local user %q", args[0])
			}
			if err != nil {
				return err
			}

			token := &domain.ApiToken{
				Id:        uuid.New(),
				Value:     util.RandomString(tokenLength),
				Scopes:    scopes,
				UserId:    user.Id,
				CreatedAt: time.Now(),
			}
			if err := database.InsertApiToken(ctx, token); err != nil {
				return err
			}
			fmt.Println(token.Value)
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&scopes, "scope", []string{"read", "write"}, "token scopes")
	return cmd
}

func revokeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <token>",
		Short: "Revoke an API token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, err := loadConfig()
			if err != nil {
				return err
			}
			database, err := openDB(conf)
			if err != nil {
				return err
			}
			defer database.Close()

			ctx := context.Background()
			token, err := database.ApiTokenByValue(ctx, args[0])
			if errors.Is(err, domain.ErrNotFound) {
				return errors.New("unknown token")
			}
			if err != nil {
				return err
			}
			if err := database.DeleteApiToken(ctx, token.Id); err != nil {
				return err
			}
			fmt.Println("Token revoked")
			return nil
		},
	}
}

func keygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Print a fresh RSA keypair in PEM form",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			keys := activitypub.GenerateKeypair()
			fmt.Print(keys.PrivatePEM)
			fmt.Print(keys.PublicPEM)
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, err := loadConfig()
			if err != nil {
				return err
			}
			database, err := openDB(conf)
			if err != nil {
				return err
			}
			return database.Close()
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(util.GetNameAndVersion())
		},
	}
}
