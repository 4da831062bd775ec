package main

import (
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var fsckCmd = &cobra.Command{
	Use:   "fsck IMAGE",
	Short: "Check and repair a flashfs volume's consistency.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fs, dev, err := openMount(args[0])
		if err != nil {
			return err
		}
		defer dev.Close()

		if err := fs.ForceConsistency(); err != nil {
			return err
		}

		liveBlocks, err := fs.Size()
		if err != nil {
			return err
		}
		geo := dev.Geometry()
		log.Infof("%s: consistent, %s used of %s",
			args[0],
			humanize.Bytes(uint64(liveBlocks)*uint64(geo.BlockSize)),
			humanize.Bytes(uint64(geo.BlockCount)*uint64(geo.BlockSize)))
		return fs.Close()
	},
}
