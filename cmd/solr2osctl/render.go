package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/patelbharav/SolrMigration-To-OpenSearch/internal/naming"
	"github.com/patelbharav/SolrMigration-To-OpenSearch/internal/pipelineconfig"
)

func newRenderPipelineCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "render-pipeline",
		Short:   "Render the ingestion pipeline document from its template",
		PreRunE: a.bindFlags("template", "account", "role-arn", "endpoint", "bucket", "index", "out"),
		RunE: func(cmd *cobra.Command, args []string) error {
			tmpl, err := pipelineconfig.Load(a.v.GetString("template"))
			if err != nil {
				return err
			}
			out, err := pipelineconfig.Render(tmpl, pipelineconfig.Values{
				Region:                      a.v.GetString("region"),
				AccountID:                   a.v.GetString("account"),
				PipelineRoleArn:             a.v.GetString("role-arn"),
				OpenSearchDomainVPCEndpoint: a.v.GetString("endpoint"),
				BucketName:                  a.v.GetString("bucket"),
				IndexName:                   a.v.GetString("index"),
			})
			if err != nil {
				return err
			}

			if path := a.v.GetString("out"); path != "" {
				if err := os.WriteFile(path, []byte(out), 0o644); err != nil {
					return fmt.Errorf("failed to write %s: %w", path, err)
				}
				a.log.WithField("path", path).Info("Wrote pipeline configuration")
				return nil
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), out)
			return err
		},
	}

	cmd.Flags().String("template", "infrastructure/pipeline/pipeline.yaml", "pipeline template file")
	cmd.Flags().String("account", "", "AWS account id")
	cmd.Flags().String("role-arn", "", "pipeline role ARN")
	cmd.Flags().String("endpoint", "", "domain VPC endpoint")
	cmd.Flags().String("bucket", "", "migration bucket name")
	cmd.Flags().String("index", naming.DefaultIndexName, "target index name")
	cmd.Flags().StringP("out", "o", "", "write to file instead of stdout")
	return cmd
}
