package config

import "sync/atomic"

const (
	defaultLogFile           = "oasis-meta.log"
	defaultLogLevel          = "info"
	defaultLogFileMaxSize    = 20
	defaultLogFileMaxBackups = 3
	defaultLogFileMaxAge     = 28
	defaultLogCompress       = false
	defaultLibraryPath       = "/var/opt/e-oasis/library"
	defaultMetaDBName        = "metadata.db"
	defaultLocale            = "en"
	defaultAuthorSortMethod  = "invert"
	defaultTitleSorting      = "library_order"
	defaultEventQueueSize    = 64
)

// Options is filled by viper, which only understands mapstructure tags.
type Options struct {
	// LogFile is the file to write logs to
	LogFile string `mapstructure:"log_file"`
	// LogLevel is the level of logging to show
	LogLevel string `mapstructure:"log_level"`
	// LogFileMaxSize is the maximum size in megabytes of the log file before it is rotated
	LogFileMaxSize int `mapstructure:"log_file_max_size"`
	// LogFileMaxBackups is the maximum number of log files to keep
	LogFileMaxBackups int `mapstructure:"log_file_max_backups"`
	// LogFileMaxAge is the maximum number of days to keep a log file
	LogFileMaxAge int `mapstructure:"log_file_max_age"`
	// LogCompress is whether or not to compress the log files
	LogCompress bool `mapstructure:"log_compress"`
	// LibraryPath is the directory holding metadata.db and the book folders
	LibraryPath string `mapstructure:"library_path"`
	// MetaDSN is the calibre database; derived from LibraryPath when empty
	MetaDSN string `mapstructure:"meta_dsn"`
	// Locale drives case folding of tag, series and author names
	Locale string `mapstructure:"locale"`
	// AuthorSortCopyMethod is one of invert, copy, comma, nocomma
	AuthorSortCopyMethod string `mapstructure:"author_sort_copy_method"`
	// TitleSeriesSorting is library_order (move leading articles) or strictly_alphabetic
	TitleSeriesSorting string `mapstructure:"title_series_sorting"`
	// EventQueueSize is the initial capacity of the change event queue
	EventQueueSize int `mapstructure:"event_queue_size"`
}

// active holds the options sorting and case folding read. It is never nil.
var active atomic.Pointer[Options]

func init() {
	active.Store(GetDefaultOptions())
}

// GetDefaultOptions returns a fresh set of defaults.
func GetDefaultOptions() *Options {
	return &Options{
		LogFile:              defaultLogFile,
		LogLevel:             defaultLogLevel,
		LogFileMaxSize:       defaultLogFileMaxSize,
		LogFileMaxBackups:    defaultLogFileMaxBackups,
		LogFileMaxAge:        defaultLogFileMaxAge,
		LogCompress:          defaultLogCompress,
		LibraryPath:          defaultLibraryPath,
		Locale:               defaultLocale,
		AuthorSortCopyMethod: defaultAuthorSortMethod,
		TitleSeriesSorting:   defaultTitleSorting,
		EventQueueSize:       defaultEventQueueSize,
	}
}

// Use makes o the active options. A nil o restores the defaults.
func Use(o *Options) {
	if o == nil {
		o = GetDefaultOptions()
	}
	active.Store(o)
}

// Current returns the active options.
func Current() *Options {
	return active.Load()
}
