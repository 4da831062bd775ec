package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/flashfs/flashfs/pkg/lfs"
)

var lsCmd = &cobra.Command{
	Use:   "ls IMAGE [PATH]",
	Short: "List directory contents.",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "/"
		if len(args) > 1 {
			path = args[1]
		}

		fs, dev, err := openMount(args[0])
		if err != nil {
			return err
		}
		defer dev.Close()
		defer fs.Close()

		entries, err := fs.ReadDir(path)
		if err != nil {
			return err
		}

		for _, e := range entries {
			marker := " "
			size := humanize.Bytes(e.Size)
			if e.Type == lfs.TypeDir {
				marker = "/"
				size = "-"
			}
			fmt.Printf("%-8s %s%s\n", size, e.Name, marker)
		}
		return nil
	},
}
