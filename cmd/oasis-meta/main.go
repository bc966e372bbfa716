package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Xunop/e-oasis-meta/internal/config"
	"github.com/Xunop/e-oasis-meta/internal/library"
	"github.com/Xunop/e-oasis-meta/internal/log"
)

const (
	greetingBanner = `
███████        ██████   █████  ███████ ██ ███████ 
██            ██    ██ ██   ██ ██      ██ ██      
█████   █████ ██    ██ ███████ ███████ ██ ███████ 
██            ██    ██ ██   ██      ██ ██      ██ 
███████        ██████  ██   ██ ███████ ██ ███████ 
`
)

var (
	configFile  string
	libraryPath string

	rootCmd = &cobra.Command{
		Use:           "oasis-meta",
		Short:         "Inspect and edit the metadata of an e-book library",
		Long:          greetingBanner + "\nReads and writes the metadata.db of a calibre compatible library.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (toml, yaml or json)")
	rootCmd.PersistentFlags().StringVarP(&libraryPath, "library", "l", "", "library directory holding metadata.db")
	rootCmd.AddCommand(fieldsCmd(), showCmd(), setCmd(), addCmd(), removeCmd(), dirtiedCmd(), createColumnCmd())
}

func loadOptions() (*config.Options, error) {
	var (
		opts *config.Options
		err  error
	)
	if configFile != "" {
		if opts, err = config.ParseFile(configFile); err != nil {
			return nil, err
		}
	} else {
		opts = config.GetDefaultOptions()
	}
	switch {
	case libraryPath != "":
		err = config.SetLibraryPath(opts, libraryPath)
	case opts.MetaDSN == "":
		err = config.SetLibraryPath(opts, opts.LibraryPath)
	}
	if err != nil {
		return nil, err
	}
	// A relative log file lives in the library.
	if !filepath.IsAbs(opts.LogFile) {
		opts.LogFile = filepath.Join(opts.LibraryPath, opts.LogFile)
	}
	return opts, nil
}

// withLibrary opens the library for the duration of fn.
func withLibrary(fn func(ctx context.Context, l *library.Library) error) error {
	opts, err := loadOptions()
	if err != nil {
		return err
	}
	config.Use(opts)
	log.Init()
	defer log.Logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	l, err := library.Open(ctx, opts)
	if err != nil {
		log.Error("Error opening library", zap.String("library", opts.LibraryPath), zap.Error(err))
		return err
	}
	defer l.Close(ctx)
	return fn(ctx, l)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
