package config // import "github.com/Xunop/e-oasis-meta/internal/config"

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// GetConfig activates the default options and makes sure the library
// directory exists.
func GetConfig() (*Options, error) {
	opts := GetDefaultOptions()
	if err := resolve(opts); err != nil {
		return nil, err
	}
	Use(opts)
	return opts, nil
}

// ParseFile reads a config file (any format viper knows) over the defaults.
// The result is not activated; see Use.
func ParseFile(file string) (*Options, error) {
	if _, err := os.Stat(file); err != nil {
		return nil, errors.Wrapf(err, "unable to access config file %s", file)
	}
	opts := GetDefaultOptions()

	v := viper.New()
	v.SetConfigFile(file)
	v.SetEnvPrefix("oasis")
	v.AutomaticEnv()
	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "unable to read config file %s", file)
	}
	if err := v.Unmarshal(opts); err != nil {
		return nil, errors.Wrap(err, "unable to decode config")
	}
	if err := Validate(opts); err != nil {
		return nil, err
	}
	return opts, nil
}

// Validate rejects option values the library cannot work with.
func Validate(o *Options) error {
	switch o.AuthorSortCopyMethod {
	case "invert", "copy", "comma", "nocomma":
	default:
		return errors.Errorf("invalid author_sort_copy_method %q", o.AuthorSortCopyMethod)
	}
	switch o.TitleSeriesSorting {
	case "library_order", "strictly_alphabetic":
	default:
		return errors.Errorf("invalid title_series_sorting %q", o.TitleSeriesSorting)
	}
	if o.EventQueueSize < 0 {
		return errors.Errorf("invalid event_queue_size %d", o.EventQueueSize)
	}
	return nil
}

// SetLibraryPath points the options at another library and resolves MetaDSN.
func SetLibraryPath(o *Options, dir string) error {
	o.LibraryPath = dir
	o.MetaDSN = ""
	return resolve(o)
}

func resolve(o *Options) error {
	dir, err := checkLibraryDir(o.LibraryPath)
	if err != nil {
		return err
	}
	o.LibraryPath = dir
	if o.MetaDSN == "" {
		o.MetaDSN = filepath.Join(o.LibraryPath, defaultMetaDBName)
	}
	return nil
}

func checkLibraryDir(dir string) (string, error) {
	if dir == "" {
		return "", errors.New("library path is required")
	}
	// Convert to absolute path if relative path is supplied.
	if !filepath.IsAbs(dir) {
		abs, err := filepath.Abs(dir)
		if err != nil {
			return "", err
		}
		dir = abs
	}

	// Trim trailing \ or / in case user supplies
	dir = strings.TrimRight(dir, "\\/")
	if _, err := os.Stat(dir); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return "", errors.Wrapf(err, "unable to access library folder %s", dir)
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return "", errors.Wrapf(err, "unable to create library folder %s", dir)
		}
		fmt.Println("Library folder created: ", dir)
	}
	return dir, nil
}
