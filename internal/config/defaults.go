package config

const (
	defaultSourceDir          = "~/.local/share/docintake/source_documents"
	defaultContentDir         = "~/.local/share/docintake/processed"
	defaultMetadataDir        = "~/.local/share/docintake/metadata"
	defaultStateDir           = "~/.local/share/docintake/state"
	defaultLogDir             = "~/.local/share/docintake/logs"
	defaultCheckpointFile     = "checkpoint.json"
	defaultWorkerCommand      = "python3"
	defaultStopTimeoutSeconds = 5
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
	defaultLogRetentionDays   = 30
)

// DefaultCompletionMarker is the summary line the classification worker prints
// once every batch has been handled.
const DefaultCompletionMarker = "processing complete"

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			SourceDir:   defaultSourceDir,
			ContentDir:  defaultContentDir,
			MetadataDir: defaultMetadataDir,
			StateDir:    defaultStateDir,
			LogDir:      defaultLogDir,
		},
		Worker: Worker{
			Command:             defaultWorkerCommand,
			Args:                []string{"main.py"},
			StopTimeoutSeconds:  defaultStopTimeoutSeconds,
			HeuristicCompletion: true,
			CompletionMarkers:   []string{DefaultCompletionMarker},
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
