package main

import (
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/flashfs/flashfs/pkg/bd"
	"github.com/flashfs/flashfs/pkg/lfs"
)

var formatCmd = &cobra.Command{
	Use:   "format IMAGE",
	Short: "Create a new, empty flashfs volume.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		imagePath := args[0]

		geo, err := geometryFor(imagePath, true)
		if err != nil {
			return err
		}

		dev, err := bd.CreateFile(imagePath, geo)
		if err != nil {
			return err
		}
		defer dev.Close()

		if err := lfs.Format(lfs.Config{
			Device:        dev,
			CacheSize:     cacheSize(geo),
			LookaheadSize: flagLookaheadSize,
			Logger:        log,
		}); err != nil {
			return err
		}

		log.Infof("formatted %s: %s capacity (%d blocks of %s)",
			imagePath,
			humanize.Bytes(uint64(geo.BlockSize)*uint64(geo.BlockCount)),
			geo.BlockCount,
			humanize.Bytes(uint64(geo.BlockSize)))
		return nil
	},
}
