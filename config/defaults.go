package config

import (
	"github.com/spf13/viper"
)

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	// Working directories
	v.SetDefault("data.raw_dir", "data/raw")
	v.SetDefault("data.validated_dir", "data/validated")
	v.SetDefault("data.manifest", "")

	// HTTP acquisition
	v.SetDefault("http.timeout_seconds", 300) // large catalog spreadsheets
	v.SetDefault("http.max_retries", 3)
	v.SetDefault("http.retry_wait_min_ms", 1000)
	v.SetDefault("http.retry_wait_max_ms", 30000)
	v.SetDefault("http.user_agent", "") // empty = civicload/<version>
	v.SetDefault("http.block_private_ip", true)

	// Toronto open-data CKAN instance
	v.SetDefault("catalog.base_url", "https://ckan0.cf.opendata.inter.prod-toronto.ca")

	v.SetDefault("normalize.encoding_confidence", 0.7)

	v.SetDefault("validate.sample_rows", 1000)

	// Warehouse
	v.SetDefault("warehouse.driver", "sqlite3")
	v.SetDefault("warehouse.dsn", "civicload.db")
	v.SetDefault("warehouse.statement_timeout_seconds", 600)

	// Staging area
	v.SetDefault("stage.kind", StageKindLocal)
	v.SetDefault("stage.dir", "data/stage")
	v.SetDefault("stage.use_ssl", true)

	v.SetDefault("metrics.textfile_path", "")
	v.SetDefault("log.json", false)
}
