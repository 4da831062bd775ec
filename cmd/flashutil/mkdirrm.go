package main

import "github.com/spf13/cobra"

var mkdirCmd = &cobra.Command{
	Use:   "mkdir IMAGE PATH",
	Short: "Create a directory.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		fs, dev, err := openMount(args[0])
		if err != nil {
			return err
		}
		defer dev.Close()
		defer fs.Close()
		return fs.Mkdir(args[1])
	},
}

var rmCmd = &cobra.Command{
	Use:   "rm IMAGE PATH",
	Short: "Remove a file or empty directory.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		fs, dev, err := openMount(args[0])
		if err != nil {
			return err
		}
		defer dev.Close()
		defer fs.Close()
		return fs.Remove(args[1])
	},
}

var mvCmd = &cobra.Command{
	Use:   "mv IMAGE SRC DST",
	Short: "Rename or move a file or directory within the volume.",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		fs, dev, err := openMount(args[0])
		if err != nil {
			return err
		}
		defer dev.Close()
		defer fs.Close()
		return fs.Rename(args[1], args[2])
	},
}
