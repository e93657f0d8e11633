package cmd

import (
	"fmt"
	"time"

	"github.com/goliatone/go-command/dispatcher"
	"github.com/goliatone/go-command/runner"
	identity "github.com/goliatone/go-identity"
	"github.com/goliatone/go-identity/repository"
	"github.com/spf13/cobra"
)

// cliActor is recorded as the actor of role changes made from the CLI.
const cliActor = "identityd"

var rolesCmd = &cobra.Command{
	Use:   "roles",
	Short: "Role assignment commands",
}

var rolesAssignCmd = &cobra.Command{
	Use:   "assign <login> <ROLE...>",
	Short: "Replace the roles of an identity",
	Long: `Replaces the whole role set of an identity. Use it to bootstrap the first
ADMIN, since the HTTP endpoint already requires one.`,
	Example: "  identityd roles assign alice USER ADMIN",
	Args:    cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		db, err := openDB(ctx)
		if err != nil {
			return err
		}
		defer repository.Close(db)

		roles := identity.NewRoleService(repository.NewStore(db)).
			WithLoggerProvider(logger)

		sub := dispatcher.SubscribeCommand(
			identity.NewAssignRolesHandler(roles),
			runner.WithTimeout(30*time.Second),
			runner.WithErrorHandler(func(error) {}),
		)
		defer sub.Unsubscribe()

		ctx = identity.WithPrincipal(ctx, identity.Principal{
			Login:       cliActor,
			Authorities: []string{identity.AdminAuthority},
		})

		msg := identity.AssignRolesMessage{Login: args[0], Roles: args[1:]}
		if err := dispatcher.Dispatch(ctx, msg); err != nil {
			return fmt.Errorf("failed to assign roles: %w", err)
		}

		current, err := roles.RolesOf(ctx, msg.Login)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %v\n", msg.Login, identity.Authorities(current))
		return nil
	},
}

func init() {
	rolesCmd.AddCommand(rolesAssignCmd)
	rootCmd.AddCommand(rolesCmd)
}
