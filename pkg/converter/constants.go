package converter

import "time"

// Default option values. The CLI registers them as viper defaults.
const (
	// DefaultConcurrency is the number of consumers. 0 means runtime.NumCPU().
	DefaultConcurrency = 0
	// DefaultQueueSize is the job queue capacity. 0 means twice the consumer count.
	DefaultQueueSize    = 0
	DefaultCacheEnabled = true
	DefaultCacheFormat  = "gob"
	DefaultTuiEnabled   = true
	DefaultOnErrorMode  = OnErrorFail
	// DefaultOrderedHooks makes PostProcessFile and the language hooks run in
	// queueing order.
	DefaultOrderedHooks   = true
	DefaultOutputFormat   = OutputFormatText
	DefaultPrettyJSON     = false
	DefaultVerbose        = false
	DefaultForceOverwrite = false
	// DefaultDispatchWarnThreshold is how long a put may block before the
	// queue logs a warning.
	DefaultDispatchWarnThreshold = time.Second
	// DefaultCleanupTimeout bounds the Cleanup calls made after a run.
	DefaultCleanupTimeout = 10 * time.Second
)

// DefaultContentExtensions lists the file extensions of content files.
var DefaultContentExtensions = []string{".md"}

// Output and bookkeeping file names.
const (
	ContentFileName  = "content.json"
	TOCFileName      = "toc.json"
	ManifestFileName = "manifest.json"
	// IgnoreFileName is read from the source root, gitignore syntax.
	IgnoreFileName = ".bookconverterignore"
	// LockSuffix is appended to the output path to name its lock file.
	LockSuffix = ".lock"
)

// ReportSchemaVersion is the version of the Report JSON structure.
const ReportSchemaVersion = "1.0"

// ManifestSchemaVersion is written to manifest.json under build.schemaVersion.
const ManifestSchemaVersion = "1.0"

// Cache status values reported per file.
const (
	CacheStatusHit      = "hit"
	CacheStatusMiss     = "miss"
	CacheStatusDisabled = "disabled"
)

// Reasons reported for skipped jobs.
const (
	SkipReasonMissingPage     = "missing_page"
	SkipReasonMissingFragment = "missing_fragment"
	SkipReasonIgnored         = "ignored_pattern"
)
