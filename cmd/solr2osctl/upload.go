package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/patelbharav/SolrMigration-To-OpenSearch/internal/artifacts"
)

func newUploadCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "upload PATH",
		Short: "Upload schema packages or exported documents to the migration bucket",
		Long: `Uploads a file, or every file below a directory, to migration_schema/
(--kind schema) or migration_data/ (--kind data). Without --bucket the bucket
of the stack named by --prefix is used, or the account's default migration
bucket when no prefix is given.`,
		Args:    cobra.ExactArgs(1),
		PreRunE: a.bindFlags("kind", "bucket"),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := artifacts.ParseKind(a.v.GetString("kind"))
			if err != nil {
				return err
			}
			clients, err := a.aws(cmd.Context())
			if err != nil {
				return err
			}

			bucket, err := a.bucket(cmd.Context(), clients, a.v.GetString("bucket"))
			if err != nil {
				return err
			}

			keys, err := artifacts.NewUploader(clients.S3, bucket, a.log).Upload(cmd.Context(), kind, args[0])
			if err != nil {
				return err
			}
			for _, k := range keys {
				fmt.Fprintf(cmd.OutOrStdout(), "s3://%s/%s\n", bucket, k)
			}
			return nil
		},
	}

	cmd.Flags().String("kind", string(artifacts.KindData), "schema or data")
	cmd.Flags().String("bucket", "", "migration bucket name")
	return cmd
}
