package main

import (
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/flashfs/flashfs/pkg/lfs"
)

var putCmd = &cobra.Command{
	Use:   "put IMAGE LOCALFILE PATH",
	Short: "Copy a file from the host filesystem into the volume.",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		local, err := os.Open(args[1])
		if err != nil {
			return err
		}
		defer local.Close()

		fs, dev, err := openMount(args[0])
		if err != nil {
			return err
		}
		defer dev.Close()
		defer fs.Close()

		f, err := fs.Open(args[2], lfs.OCreate|lfs.OTrunc)
		if err != nil {
			return err
		}

		buf := make([]byte, 64*1024)
		for {
			n, rerr := local.Read(buf)
			if n > 0 {
				if _, werr := f.Write(buf[:n]); werr != nil {
					f.Close()
					return werr
				}
			}
			if rerr == io.EOF {
				break
			}
			if rerr != nil {
				f.Close()
				return rerr
			}
		}
		return f.Close()
	},
}

var getCmd = &cobra.Command{
	Use:   "get IMAGE PATH LOCALFILE",
	Short: "Copy a file from the volume to the host filesystem.",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		fs, dev, err := openMount(args[0])
		if err != nil {
			return err
		}
		defer dev.Close()
		defer fs.Close()

		f, err := fs.Open(args[1], 0)
		if err != nil {
			return err
		}
		defer f.Close()

		local, err := os.Create(args[2])
		if err != nil {
			return err
		}
		defer local.Close()

		_, err = io.Copy(local, f)
		return err
	},
}
