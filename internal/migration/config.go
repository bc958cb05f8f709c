// Package migration reads the migration config and creates the target index
// on the domain.
package migration

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/patelbharav/SolrMigration-To-OpenSearch/internal/export"
	"github.com/patelbharav/SolrMigration-To-OpenSearch/internal/naming"
	"github.com/patelbharav/SolrMigration-To-OpenSearch/internal/solr"
)

// DefaultConfigFile is read when no config path is given.
const DefaultConfigFile = "migrate.toml"

var (
	ErrExclusiveOptions = errors.New("create_package and expand_files_array are mutually exclusive")
	ErrMissingValue     = errors.New("missing config value")
)

type OpenSearch struct {
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	UseSSL      bool   `mapstructure:"use_ssl"`
	VerifyCerts bool   `mapstructure:"verify_certs"`
	Index       string `mapstructure:"index"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
	// UseSigV4 signs requests with the caller's AWS credentials instead of
	// basic auth.
	UseSigV4 bool   `mapstructure:"use_aws_auth_sigv4"`
	Domain   string `mapstructure:"domain"`
	Bucket   string `mapstructure:"bucket"`
	Region   string `mapstructure:"region"`
}

type Schema struct {
	MigrateSchema    bool `mapstructure:"migrate_schema"`
	CreatePackage    bool `mapstructure:"create_package"`
	ExpandFilesArray bool `mapstructure:"expand_files_array"`
	CreateIndex      bool `mapstructure:"create_index"`
}

type Data struct {
	MigrateData bool   `mapstructure:"migrate_data"`
	Bucket      string `mapstructure:"s3_export_bucket"`
	Prefix      string `mapstructure:"s3_export_prefix"`
	Region      string `mapstructure:"region"`
	RowsPerPage int    `mapstructure:"rows_per_page"`
	MaxRows     int    `mapstructure:"max_rows"`
}

type Config struct {
	Solr       solr.Config `mapstructure:"solr"`
	OpenSearch OpenSearch  `mapstructure:"opensearch"`
	Migration  Schema      `mapstructure:"migration"`
	Data       Data        `mapstructure:"data_migration"`
}

var defaults = map[string]any{
	"solr.host":       "http://localhost",
	"solr.port":       8983,
	"solr.collection": "",
	"solr.username":   "",
	"solr.password":   "",

	"opensearch.host":               "",
	"opensearch.port":               443,
	"opensearch.use_ssl":            true,
	"opensearch.verify_certs":       true,
	"opensearch.index":              naming.DefaultIndexName,
	"opensearch.username":           "",
	"opensearch.password":           "",
	"opensearch.use_aws_auth_sigv4": false,
	"opensearch.domain":             "",
	"opensearch.bucket":             "",
	"opensearch.region":             "",

	"migration.migrate_schema":     true,
	"migration.create_package":     false,
	"migration.expand_files_array": false,
	"migration.create_index":       false,

	"data_migration.migrate_data":     false,
	"data_migration.s3_export_bucket": "",
	"data_migration.s3_export_prefix": naming.DataPrefix,
	"data_migration.region":           "",
	"data_migration.rows_per_page":    solr.DefaultRowsPerPage,
	"data_migration.max_rows":         export.DefaultMaxRows,
}

// Load reads the TOML file at path. Every key can be overridden from the
// environment as SOLR2OS_<SECTION>_<KEY>, e.g. SOLR2OS_OPENSEARCH_PASSWORD.
// Unknown keys are rejected.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFile
	}
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.SetEnvPrefix("SOLR2OS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	var cfg Config
	if err := v.UnmarshalExact(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Solr.Collection == "" {
		return fmt.Errorf("%w: solr.collection", ErrMissingValue)
	}
	if c.Migration.CreatePackage && c.Migration.ExpandFilesArray {
		return ErrExclusiveOptions
	}
	if c.Migration.CreateIndex && c.OpenSearch.Host == "" {
		return fmt.Errorf("%w: opensearch.host is required to create the index", ErrMissingValue)
	}
	if c.Data.RowsPerPage <= 0 {
		return fmt.Errorf("data_migration.rows_per_page must be positive, got %d", c.Data.RowsPerPage)
	}
	return nil
}

// Region is the first region set in the config, empty to use the AWS
// profile's.
func (c *Config) Region() string {
	if c.OpenSearch.Region != "" {
		return c.OpenSearch.Region
	}
	return c.Data.Region
}

// ExportBucket is the bucket named for exported documents, empty when the
// stack's bucket should be used.
func (c *Config) ExportBucket() string {
	if c.Data.Bucket != "" {
		return c.Data.Bucket
	}
	return c.OpenSearch.Bucket
}

// WorkDir is the local directory that receives the index document and the
// reports, as in migration_schema/techproducts.
func (c *Config) WorkDir() string {
	return naming.SchemaPrefix + "/" + c.Solr.Collection
}
