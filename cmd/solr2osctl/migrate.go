package main

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/patelbharav/SolrMigration-To-OpenSearch/internal/artifacts"
	"github.com/patelbharav/SolrMigration-To-OpenSearch/internal/awsclient"
	"github.com/patelbharav/SolrMigration-To-OpenSearch/internal/export"
	"github.com/patelbharav/SolrMigration-To-OpenSearch/internal/migration"
	"github.com/patelbharav/SolrMigration-To-OpenSearch/internal/packages"
	"github.com/patelbharav/SolrMigration-To-OpenSearch/internal/report"
	"github.com/patelbharav/SolrMigration-To-OpenSearch/internal/rolemapping"
	"github.com/patelbharav/SolrMigration-To-OpenSearch/internal/schema"
	"github.com/patelbharav/SolrMigration-To-OpenSearch/internal/solr"
)

// lazyAWS builds the AWS clients on first use, so commands only need
// credentials for the steps that call AWS.
type lazyAWS struct {
	a       *app
	region  string
	clients *awsclient.Client
}

func (l *lazyAWS) get(ctx context.Context) (*awsclient.Client, error) {
	if l.clients != nil {
		return l.clients, nil
	}
	if l.region != "" && !l.a.v.IsSet("region") {
		l.a.v.Set("region", l.region)
	}
	c, err := l.a.aws(ctx)
	if err != nil {
		return nil, err
	}
	l.clients = c
	return c, nil
}

func (a *app) loadConfig() (*migration.Config, string, error) {
	cfg, err := migration.Load(a.v.GetString("config"))
	if err != nil {
		return nil, "", err
	}
	out := a.v.GetString("out")
	if out == "" {
		out = cfg.WorkDir()
	}
	return cfg, out, nil
}

func (a *app) packageManager(ctx context.Context, l *lazyAWS, domain, bucket, prefix string) (*packages.Manager, error) {
	clients, err := l.get(ctx)
	if err != nil {
		return nil, err
	}
	if domain == "" {
		names, err := a.names()
		if err != nil {
			return nil, err
		}
		domain = names.Domain
	}
	bucket, err = a.bucket(ctx, clients, bucket)
	if err != nil {
		return nil, err
	}
	return &packages.Manager{
		API:      clients.OpenSearch,
		Objects:  clients.S3,
		Uploader: artifacts.NewUploader(clients.S3, bucket, a.log),
		Domain:   domain,
		Prefix:   prefix,
		Log:      a.log,
	}, nil
}

// indexAuth signs requests when the config asks for it, and otherwise uses
// the configured user or the stack's master user.
func (a *app) indexAuth(ctx context.Context, l *lazyAWS, cfg migration.OpenSearch) (migration.Auth, error) {
	if !cfg.UseSigV4 && cfg.Username != "" {
		return migration.Auth{Credentials: rolemapping.Credentials{Username: cfg.Username, Password: cfg.Password}}, nil
	}
	clients, err := l.get(ctx)
	if err != nil {
		return migration.Auth{}, err
	}
	if cfg.UseSigV4 {
		awsCfg := clients.Config()
		return migration.Auth{AWS: &awsCfg}, nil
	}
	names, err := a.names()
	if err != nil {
		return migration.Auth{}, err
	}
	creds, err := rolemapping.NewSecretsManagerSource(clients.SecretsManager, names.MasterSecret).Credentials(ctx)
	if err != nil {
		return migration.Auth{}, err
	}
	return migration.Auth{Credentials: creds}, nil
}

func newMigrateSchemaCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate-schema",
		Short: "Convert a Solr schema to an OpenSearch index",
		Long: `Reads the schema of the collection named in the config and writes the
OpenSearch index document (index.json) and a conversion report (report.html)
to --out, migration_schema/<collection> by default.

With create_package set, files referenced by filters are kept as packages of
the domain; with expand_files_array set they are inlined. With create_index set
the index is created on the domain. Elements that cannot be converted are
listed in the report; --strict makes them an error.`,
		PreRunE: a.bindFlags("config", "out", "mappings", "strict"),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, out, err := a.loadConfig()
			if err != nil {
				return err
			}
			if !cfg.Migration.MigrateSchema {
				a.log.Info("Schema migration is disabled, set migration.migrate_schema to enable it")
				return nil
			}
			tables, err := schema.LoadTables(a.v.GetString("mappings"))
			if err != nil {
				return err
			}
			src, err := solr.NewClient(cfg.Solr, nil, a.log)
			if err != nil {
				return err
			}
			solrSchema, err := src.Schema(ctx)
			if err != nil {
				return err
			}

			l := &lazyAWS{a: a, region: cfg.Region()}
			conv := &schema.Converter{
				Collection: cfg.Solr.Collection,
				Tables:     tables,
				Files:      src,
				Options: schema.Options{
					CreatePackage: cfg.Migration.CreatePackage,
					ExpandFiles:   cfg.Migration.ExpandFilesArray,
				},
				Log: a.log,
			}
			if cfg.Migration.CreatePackage {
				m, err := a.packageManager(ctx, l, cfg.OpenSearch.Domain, cfg.OpenSearch.Bucket, path.Join(cfg.Solr.Collection, "packages"))
				if err != nil {
					return err
				}
				conv.Packages = m
			}

			index, rep, err := conv.Convert(ctx, solrSchema)
			if err != nil {
				return err
			}
			body, err := index.JSON()
			if err != nil {
				return err
			}
			if err := os.MkdirAll(out, 0o755); err != nil {
				return fmt.Errorf("failed to create %s: %w", out, err)
			}
			indexPath := filepath.Join(out, "index.json")
			if err := os.WriteFile(indexPath, body, 0o644); err != nil {
				return fmt.Errorf("failed to write %s: %w", indexPath, err)
			}
			reportPath := filepath.Join(out, "report.html")
			if err := report.WriteFile(reportPath, rep.WriteHTML); err != nil {
				return err
			}
			rep.Log(a.log)
			fmt.Fprintln(cmd.OutOrStdout(), indexPath)
			fmt.Fprintln(cmd.OutOrStdout(), reportPath)

			if cfg.Migration.CreateIndex {
				auth, err := a.indexAuth(ctx, l, cfg.OpenSearch)
				if err != nil {
					return err
				}
				c, err := migration.NewIndexClient(cfg.OpenSearch, auth, nil, a.log)
				if err != nil {
					return err
				}
				if _, err := c.CreateIndex(ctx, cfg.OpenSearch.Index, body); err != nil {
					return err
				}
			}

			if a.v.GetBool("strict") {
				return rep.Err()
			}
			return nil
		},
	}

	cmd.Flags().StringP("config", "c", migration.DefaultConfigFile, "migration config file")
	cmd.Flags().StringP("out", "o", "", "output directory")
	cmd.Flags().String("mappings", "", "YAML file extending the built-in Solr to OpenSearch mappings")
	cmd.Flags().Bool("strict", false, "fail when schema elements could not be converted")
	return cmd
}

func newExportDataCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export-data",
		Short: "Export the documents of a Solr collection to the migration bucket",
		Long: `Pages through the collection named in the config and writes the documents,
with their child documents, as NDJSON batches to the export bucket, where the
ingestion pipeline picks them up. Without s3_export_bucket or --bucket the
migration bucket of the stack is used. A report (data_migration_report.html)
is written to --out.`,
		PreRunE: a.bindFlags("config", "out", "bucket", "concurrency"),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, out, err := a.loadConfig()
			if err != nil {
				return err
			}
			reportPath := filepath.Join(out, "data_migration_report.html")
			if !cfg.Data.MigrateData {
				a.log.Info("Data export is disabled, set data_migration.migrate_data to enable it")
				rep := &report.Data{Collection: cfg.Solr.Collection}
				return report.WriteFile(reportPath, rep.WriteHTML)
			}

			src, err := solr.NewClient(cfg.Solr, nil, a.log)
			if err != nil {
				return err
			}
			solrSchema, err := src.Schema(ctx)
			if err != nil {
				return err
			}

			l := &lazyAWS{a: a, region: cfg.Region()}
			clients, err := l.get(ctx)
			if err != nil {
				return err
			}
			name := a.v.GetString("bucket")
			if name == "" {
				name = cfg.ExportBucket()
			}
			bucket, err := a.bucket(ctx, clients, name)
			if err != nil {
				return err
			}

			e := &export.Exporter{
				Source:       src,
				Uploader:     artifacts.NewUploader(clients.S3, bucket, a.log),
				Collection:   cfg.Solr.Collection,
				Prefix:       cfg.Data.Prefix,
				RowsPerPage:  cfg.Data.RowsPerPage,
				MaxRows:      cfg.Data.MaxRows,
				Concurrency:  a.v.GetInt("concurrency"),
				BinaryFields: solrSchema.BinaryFields(),
				Log:          a.log,
			}
			rep, runErr := e.Run(ctx)
			if rep == nil {
				return runErr
			}
			rep.Log(a.log)
			if err := report.WriteFile(reportPath, rep.WriteHTML); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "s3://%s/%s\n", bucket, path.Dir(e.Key(1)))
			fmt.Fprintln(cmd.OutOrStdout(), reportPath)
			return runErr
		},
	}

	cmd.Flags().StringP("config", "c", migration.DefaultConfigFile, "migration config file")
	cmd.Flags().StringP("out", "o", "", "report directory")
	cmd.Flags().String("bucket", "", "export bucket name")
	cmd.Flags().Int("concurrency", export.DefaultConcurrency, "parallel batch uploads")
	return cmd
}

func newCreatePackageCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create-package FILE",
		Short: "Create or update a dictionary package and associate it with the domain",
		Long: `Uploads FILE to the migration bucket as a TXT-DICTIONARY package and waits
until it is active on the domain. An unchanged package is only associated.
Filters refer to the package as analyzers/<package id>.

Without --name the package is named after --collection and the file, as
migrate-schema names the packages it creates. Without --domain the domain of
the stack named by --prefix is used.`,
		Args:    cobra.ExactArgs(1),
		PreRunE: a.bindFlags("name", "collection", "domain", "bucket", "timeout"),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			collection := a.v.GetString("collection")
			name := a.v.GetString("name")
			if name == "" {
				if collection == "" {
					return fmt.Errorf("--name or --collection is required")
				}
				name = schema.PackageName(collection, filepath.Base(args[0]))
			}
			content, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", args[0], err)
			}

			l := &lazyAWS{a: a}
			m, err := a.packageManager(ctx, l, a.v.GetString("domain"), a.v.GetString("bucket"), path.Join(collection, "packages"))
			if err != nil {
				return err
			}
			m.WaitTimeout = a.v.GetDuration("timeout")
			p, err := m.Ensure(ctx, name, content)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", p.Name, p.ID, p.Version)
			return nil
		},
	}

	cmd.Flags().String("name", "", "package name")
	cmd.Flags().String("collection", "", "collection the file belongs to")
	cmd.Flags().String("domain", "", "domain name")
	cmd.Flags().String("bucket", "", "migration bucket name")
	cmd.Flags().Duration("timeout", packages.DefaultWaitTimeout, "how long to wait for the association")
	return cmd
}
