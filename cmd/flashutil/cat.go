package main

import (
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/flashfs/flashfs/pkg/lfs"
)

var catCmd = &cobra.Command{
	Use:   "cat IMAGE PATH...",
	Short: "Print file contents to stdout.",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		fs, dev, err := openMount(args[0])
		if err != nil {
			return err
		}
		defer dev.Close()
		defer fs.Close()

		for _, path := range args[1:] {
			f, err := fs.Open(path, lfs.ORdOnly)
			if err != nil {
				return err
			}
			if _, err := io.Copy(os.Stdout, f); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
		}
		return nil
	},
}
