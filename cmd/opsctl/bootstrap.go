package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/solarvest/platform/internal/model"
	"github.com/solarvest/platform/internal/service"
)

var bootstrapOpts struct {
	tenantID  string
	email     string
	password  string
	firstName string
	lastName  string
	withKey   bool
}

var bootstrapCmd = &cobra.Command{
	Use:   "bootstrap",
	Short: "Create the first admin user for a tenant",
	Long: `Create an admin user for a tenant and optionally an admin API key.

The password may be passed with --password or the OPSCTL_ADMIN_PASSWORD
environment variable. The API key is printed once and cannot be recovered.`,
	Args: cobra.NoArgs,
	RunE: runBootstrap,
}

func init() {
	f := bootstrapCmd.Flags()
	f.StringVar(&bootstrapOpts.tenantID, "tenant", "", "tenant ID (generated when empty)")
	f.StringVar(&bootstrapOpts.email, "email", "", "admin email")
	f.StringVar(&bootstrapOpts.password, "password", "", "admin password")
	f.StringVar(&bootstrapOpts.firstName, "first-name", "Admin", "admin first name")
	f.StringVar(&bootstrapOpts.lastName, "last-name", "", "admin last name")
	f.BoolVar(&bootstrapOpts.withKey, "api-key", false, "also issue an admin API key")
	_ = bootstrapCmd.MarkFlagRequired("email")
}

func runBootstrap(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	password := bootstrapOpts.password
	if password == "" {
		password = os.Getenv("OPSCTL_ADMIN_PASSWORD")
	}
	if password == "" {
		return errors.New("a password is required (--password or OPSCTL_ADMIN_PASSWORD)")
	}

	e, err := setup(ctx)
	if err != nil {
		return err
	}
	defer e.Close()

	tenantID := bootstrapOpts.tenantID
	if tenantID == "" {
		tenantID = model.NewID()
	}
	opts := service.Options{Logger: e.logger}

	user, err := service.NewUserService(e.repo, opts).Create(ctx, tenantID, service.CreateUserInput{
		Email:     bootstrapOpts.email,
		Password:  password,
		FirstName: bootstrapOpts.firstName,
		LastName:  bootstrapOpts.lastName,
		Role:      model.RoleAdmin,
	})
	if err != nil {
		return fmt.Errorf("create admin: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "tenant_id: %s\nuser_id:   %s\nemail:     %s\n", tenantID, user.ID, user.Email)

	if !bootstrapOpts.withKey {
		return nil
	}
	key, err := service.NewAPIKeyService(e.repo, nil, e.cfg.AppEnv, opts).Create(ctx, tenantID, user.ID, model.APIKeyCreateRequest{
		Name:   "bootstrap",
		Scopes: []string{model.ScopeRead, model.ScopeWrite, model.ScopeExport, model.ScopeAdmin},
	})
	if err != nil {
		return fmt.Errorf("create api key: %w", err)
	}
	fmt.Fprintf(out, "api_key:   %s\n", key.Key)
	return nil
}
