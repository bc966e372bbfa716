package config

import (
	"path/filepath"
	"testing"
)

func TestLoadDefaultConfig(t *testing.T) {
	opts := GetDefaultOptions()
	if err := SetLibraryPath(opts, filepath.Join(t.TempDir(), "lib")); err != nil {
		t.Fatalf("Error resolving library path: %s", err)
	}

	t.Logf(`Config
		LibraryPath: %s
		MetaDSN: %s
		LogLevel: %s
		`, opts.LibraryPath, opts.MetaDSN, opts.LogLevel)

	if filepath.Base(opts.MetaDSN) != "metadata.db" {
		t.Errorf("meta dsn not derived from library path: %s", opts.MetaDSN)
	}
	if opts.AuthorSortCopyMethod != "invert" {
		t.Errorf("author_sort_copy_method incorrect")
	}
	if err := Validate(opts); err != nil {
		t.Errorf("default options should be valid: %v", err)
	}
}

func TestLoadConfigFile(t *testing.T) {
	opts, err := ParseFile("testdata/config_test.toml")
	if err != nil {
		t.Fatalf("Error loading config: %s", err)
	}
	if opts.LogFile != "test.log" {
		t.Errorf("log_file incorrect")
	}
	if opts.LogLevel != "debug" {
		t.Errorf("log_level incorrect")
	}
	if opts.Locale != "tr" {
		t.Errorf("locale incorrect")
	}
	if opts.AuthorSortCopyMethod != "comma" {
		t.Errorf("author_sort_copy_method incorrect")
	}
	if opts.TitleSeriesSorting != "strictly_alphabetic" {
		t.Errorf("title_series_sorting incorrect")
	}
	if opts.EventQueueSize != 8 {
		t.Errorf("event_queue_size incorrect")
	}
	// Keys missing from the file keep their defaults.
	if opts.LogFileMaxBackups != defaultLogFileMaxBackups {
		t.Errorf("log_file_max_backups should keep its default")
	}
}

func TestRejectInvalidConfig(t *testing.T) {
	if _, err := ParseFile("testdata/bad_method.toml"); err == nil {
		t.Fatal("expected an error for an unknown author sort method")
	}
	if _, err := ParseFile("testdata/missing.toml"); err == nil {
		t.Fatal("expected an error for a missing file")
	}
}

func TestUseActivatesOptions(t *testing.T) {
	t.Cleanup(func() { Use(nil) })

	opts := GetDefaultOptions()
	opts.AuthorSortCopyMethod = "copy"
	Use(opts)
	if Current() != opts {
		t.Fatal("Current should return the options passed to Use")
	}
	if GetDefaultOptions().AuthorSortCopyMethod != "invert" {
		t.Error("defaults should not share state with the active options")
	}

	Use(nil)
	if Current() == nil || Current().AuthorSortCopyMethod != "invert" {
		t.Error("Use(nil) should restore the defaults")
	}
}
