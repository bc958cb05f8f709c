package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/patelbharav/SolrMigration-To-OpenSearch/internal/awsclient"
	"github.com/patelbharav/SolrMigration-To-OpenSearch/internal/naming"
)

const envPrefix = "SOLR2OS"

// app carries state shared by the subcommands.
type app struct {
	v   *viper.Viper
	log *logrus.Logger

	// newAWS is replaced in tests.
	newAWS func(ctx context.Context, region, profile string) (*awsclient.Client, error)
}

func newApp() *app {
	return &app{
		v:      viper.New(),
		log:    logrus.New(),
		newAWS: awsclient.NewClient,
	}
}

func newRootCmd(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "solr2osctl",
		Short: "Operate a Solr to OpenSearch migration stack",
		Long: `solr2osctl works against a deployed migration stack: it re-runs the
role mapping of the pipeline and workbench identities, renders the ingestion
pipeline document locally, uploads schema and data artifacts to the
migration bucket and runs the migration itself: it converts a Solr schema to
an OpenSearch index, keeps analyzer dictionaries as domain packages and
exports the collection's documents for the pipeline.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			a.log.SetOutput(cmd.ErrOrStderr())
			a.log.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
			if a.v.GetBool("verbose") {
				a.log.SetLevel(logrus.DebugLevel)
			}
		},
	}

	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringP("region", "r", "", "AWS region")
	rootCmd.PersistentFlags().StringP("profile", "p", "", "AWS profile")
	rootCmd.PersistentFlags().String("prefix", naming.DefaultPrefix, "name prefix of the stack")

	a.v.SetEnvPrefix(envPrefix)
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()
	for _, name := range []string{"verbose", "region", "profile", "prefix"} {
		cobra.CheckErr(a.v.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name)))
	}

	rootCmd.AddCommand(
		newMapRolesCmd(a),
		newRenderPipelineCmd(a),
		newUploadCmd(a),
		newMigrateSchemaCmd(a),
		newExportDataCmd(a),
		newCreatePackageCmd(a),
	)
	return rootCmd
}

// bindFlags exposes the flags of the running command through viper, so each
// can also be set as SOLR2OS_<FLAG>. Subcommands share flag names, so binding
// happens when the command runs rather than when it is built.
func (a *app) bindFlags(names ...string) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		for _, name := range names {
			if err := a.v.BindPFlag(name, cmd.Flags().Lookup(name)); err != nil {
				return fmt.Errorf("failed to bind --%s: %w", name, err)
			}
		}
		return nil
	}
}

func (a *app) aws(ctx context.Context) (*awsclient.Client, error) {
	c, err := a.newAWS(ctx, a.v.GetString("region"), a.v.GetString("profile"))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize AWS client: %w", err)
	}
	return c, nil
}

func (a *app) names() (naming.Names, error) {
	return naming.Derive(a.v.GetString("prefix"), naming.Overrides{})
}

// bucket resolves the migration bucket: name when set, then the bucket of the
// stack named by an explicit --prefix, then the account fallback the stack
// uses without a prefix.
func (a *app) bucket(ctx context.Context, clients *awsclient.Client, name string) (string, error) {
	if name != "" {
		return name, nil
	}
	if a.v.IsSet("prefix") {
		names, err := a.names()
		if err != nil {
			return "", err
		}
		return names.Bucket, nil
	}
	account, err := awsclient.AccountID(ctx, clients.STS)
	if err != nil {
		return "", err
	}
	return naming.BucketName("", account, clients.Region())
}
