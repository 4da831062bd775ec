package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/mitchellh/go-homedir"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/flashfs/flashfs/pkg/bd"
	"github.com/flashfs/flashfs/pkg/elog"
	"github.com/flashfs/flashfs/pkg/lfs"
)

const configFileName = "flashutil.yaml"

var log = &elog.CLI{}

var (
	flagVerbose bool
	flagDebug   bool
	flagConfig  string

	flagBlockSize     uint32
	flagBlockCount    uint32
	flagReadSize      uint32
	flagProgSize      uint32
	flagCacheSize     uint32
	flagLookaheadSize uint32
)

var rootCmd = &cobra.Command{
	Use:           "flashutil",
	Short:         "Inspect and manipulate flashfs volumes from the command line.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func commandInit() {
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVarP(&flagDebug, "debug", "d", false, "enable debug output")
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "config file (default $HOME/flashutil.yaml)")

	rootCmd.PersistentFlags().Uint32Var(&flagBlockSize, "block-size", 4096, "device block size in bytes")
	rootCmd.PersistentFlags().Uint32Var(&flagBlockCount, "block-count", 0, "device block count (format: required; other commands: inferred from the image file's size when zero)")
	rootCmd.PersistentFlags().Uint32Var(&flagReadSize, "read-size", 16, "device read granularity in bytes")
	rootCmd.PersistentFlags().Uint32Var(&flagProgSize, "prog-size", 16, "device program granularity in bytes")
	rootCmd.PersistentFlags().Uint32Var(&flagCacheSize, "cache-size", 0, "read/program cache size in bytes (0 = prog-size)")
	rootCmd.PersistentFlags().Uint32Var(&flagLookaheadSize, "lookahead-size", 32, "allocator lookahead window size in bytes")

	viper.BindPFlag("block-size", rootCmd.PersistentFlags().Lookup("block-size"))
	viper.BindPFlag("read-size", rootCmd.PersistentFlags().Lookup("read-size"))
	viper.BindPFlag("prog-size", rootCmd.PersistentFlags().Lookup("prog-size"))

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		log.IsVerbose = flagVerbose
		log.IsDebug = flagDebug
		logrus.SetFormatter(log)
		if flagDebug {
			logrus.SetLevel(logrus.DebugLevel)
		}
		initConfig()
		return nil
	}

	rootCmd.AddCommand(formatCmd, fsckCmd, lsCmd, catCmd, mkdirCmd, rmCmd, mvCmd, putCmd, getCmd, bootCountCmd)
}

// initConfig loads an optional config file holding default geometry
// values, falling back to $HOME/flashutil.yaml when --config is unset.
func initConfig() {
	if flagConfig != "" {
		viper.SetConfigFile(flagConfig)
	} else {
		home, err := homedir.Dir()
		if err != nil {
			return
		}
		viper.SetConfigFile(filepath.Join(home, configFileName))
	}

	if err := viper.ReadInConfig(); err == nil {
		log.Debugf("using config file: %s", viper.ConfigFileUsed())
	} else {
		log.Debugf("no config file found, using flag defaults: %v", err)
	}
}

// geometryFor resolves the active Geometry from flags/config, inferring
// BlockCount from the image file's size when the flag was left at 0.
func geometryFor(imagePath string, forFormat bool) (bd.Geometry, error) {
	geo := bd.Geometry{
		ReadSize:  viper.GetUint32("read-size"),
		ProgSize:  viper.GetUint32("prog-size"),
		BlockSize: viper.GetUint32("block-size"),
	}
	geo.BlockCount = flagBlockCount

	if geo.BlockCount == 0 && !forFormat {
		info, err := os.Stat(imagePath)
		if err != nil {
			return geo, err
		}
		geo.BlockCount = uint32(info.Size() / int64(geo.BlockSize))
	}
	if geo.BlockCount == 0 {
		return geo, fmt.Errorf("--block-count must be set to format a new image")
	}
	return geo, nil
}

func cacheSize(geo bd.Geometry) uint32 {
	if flagCacheSize != 0 {
		return flagCacheSize
	}
	return geo.ProgSize
}

// openMount opens imagePath as a device and mounts a flashfs volume on
// it, for every command except format.
func openMount(imagePath string) (*lfs.FS, *bd.File, error) {
	geo, err := geometryFor(imagePath, false)
	if err != nil {
		return nil, nil, err
	}
	dev, err := bd.OpenFile(imagePath, geo)
	if err != nil {
		return nil, nil, err
	}
	fs, err := lfs.Mount(lfs.Config{
		Device:        dev,
		CacheSize:     cacheSize(geo),
		LookaheadSize: flagLookaheadSize,
		Logger:        log,
	})
	if err != nil {
		dev.Close()
		return nil, nil, err
	}
	return fs, dev, nil
}
