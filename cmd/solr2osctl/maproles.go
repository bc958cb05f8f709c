package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/patelbharav/SolrMigration-To-OpenSearch/internal/awsclient"
	"github.com/patelbharav/SolrMigration-To-OpenSearch/internal/naming"
	"github.com/patelbharav/SolrMigration-To-OpenSearch/internal/rolemapping"
)

func newMapRolesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "map-roles",
		Short: "Map IAM role ARNs to an internal role of the domain",
		Long: `Merges the given IAM role ARNs into the backend roles of an internal role,
or removes them with --action delete. Entries not named on the command line
are left alone. The domain's master credentials are read from Secrets Manager.

Without --arns the pipeline and workbench roles of the stack named by --prefix
in the caller's account are mapped. Without --secret-name the stack's master
user secret is used.`,
		PreRunE: a.bindFlags("endpoint", "role", "arns", "secret-name", "action", "timeout"),
		RunE: func(cmd *cobra.Command, args []string) error {
			action, err := rolemapping.ParseAction(a.v.GetString("action"))
			if err != nil {
				return err
			}
			names, err := a.names()
			if err != nil {
				return err
			}
			if _, err := rolemapping.EndpointURL(a.v.GetString("endpoint")); err != nil {
				return err
			}

			clients, err := a.aws(cmd.Context())
			if err != nil {
				return err
			}

			arns := a.v.GetString("arns")
			if arns == "" {
				account, err := awsclient.AccountID(cmd.Context(), clients.STS)
				if err != nil {
					return err
				}
				arns = strings.Join([]string{
					naming.RoleArn(account, names.PipelineRole),
					naming.RoleArn(account, names.WorkbenchRole),
				}, ",")
				a.log.WithField("arns", arns).Debug("Mapping the stack's roles")
			}
			secretName := a.v.GetString("secret-name")
			if secretName == "" {
				secretName = names.MasterSecret
			}

			req := rolemapping.Request{
				DomainEndpoint: a.v.GetString("endpoint"),
				RoleName:       a.v.GetString("role"),
				IamRoleArns:    arns,
				Region:         clients.Region(),
			}
			if err := req.Validate(); err != nil {
				return err
			}
			mapper := &rolemapping.Mapper{
				Secrets: rolemapping.NewSecretsManagerSource(clients.SecretsManager, secretName),
				Timeout: a.v.GetDuration("timeout"),
				Log:     a.log,
			}
			res, err := mapper.Apply(cmd.Context(), rolemapping.Change{Action: action, Request: req})
			if err != nil {
				return err
			}
			for _, r := range res.BackendRoles {
				fmt.Fprintln(cmd.OutOrStdout(), r)
			}
			return nil
		},
	}

	cmd.Flags().String("endpoint", "", "domain endpoint (host name)")
	cmd.Flags().String("role", rolemapping.DefaultRoleName, "internal role to map")
	cmd.Flags().String("arns", "", "comma-separated IAM role ARNs")
	cmd.Flags().String("secret-name", "", "Secrets Manager secret holding the master user")
	cmd.Flags().String("action", string(rolemapping.ActionCreate), "create, update or delete")
	cmd.Flags().Duration("timeout", rolemapping.DefaultTimeout, "timeout for the security API calls")
	return cmd
}
