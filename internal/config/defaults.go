package config

const (
	defaultWorkspaceDir           = "~/.local/share/devicelink"
	defaultLogDir                 = "~/.local/share/devicelink/logs"
	defaultLogRetentionDays       = 30
	defaultLogFormat              = "console"
	defaultLogLevel               = "info"
	defaultSimilarityThreshold    = 90
	defaultSecondaryColumnPattern = `^identifiers_.*_id$`
	defaultSecondaryConfidence    = "MEDIUM"
	defaultLowCompliance          = 0.50
	defaultChunkSize              = 50000
	defaultS3Region               = "us-east-1"
	defaultS3Prefix               = "devicelink"
)

var (
	defaultEventDateFields    = []string{"date_of_event", "date_received", "date_report", "device_0_date_received"}
	defaultRegistryDateFields = []string{"publish_date", "public_version_date"}
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			WorkspaceDir:     defaultWorkspaceDir,
			LogDir:           defaultLogDir,
			LogRetentionDays: defaultLogRetentionDays,
		},
		Columns: Columns{
			Events: EventColumns{
				Identifier:   "udi_di",
				Public:       "udi_public",
				Manufacturer: "manufacturer",
				Brand:        "brand",
				Catalog:      "catalog_number",
				Model:        "model_number",
			},
			Registry: RegistryColumns{
				Identifier:   "udi_di",
				Manufacturer: "manufacturer",
				Brand:        "brand",
				Catalog:      "catalog_number",
				Model:        "model_number",
			},
		},
		Matching: Matching{
			SimilarityThreshold:    defaultSimilarityThreshold,
			SecondaryColumnPattern: defaultSecondaryColumnPattern,
			SecondaryConfidence:    defaultSecondaryConfidence,
		},
		Fallback: Fallback{
			LowComplianceThreshold: defaultLowCompliance,
		},
		Pipeline: Pipeline{
			ChunkSize:          defaultChunkSize,
			EventDateFields:    append([]string(nil), defaultEventDateFields...),
			RegistryDateFields: append([]string(nil), defaultRegistryDateFields...),
		},
		Export: Export{
			S3Prefix: defaultS3Prefix,
			S3Region: defaultS3Region,
		},
		Schedule: Schedule{
			FreshOnChange: true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
