package main

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/flashfs/flashfs/pkg/lfs"
)

// bootCountCmd reproduces littlefs's canonical "boot count" demo
// (spec §8 scenario 1): mount, read a little-endian uint32 counter out
// of /boot_count (0 if the file is new), increment it, and write the
// new value back before unmounting. Run repeatedly against the same
// image, it proves writes survive a clean unmount/remount cycle.
var bootCountCmd = &cobra.Command{
	Use:   "boot-count IMAGE",
	Short: "Increment and print the /boot_count demo counter.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fs, dev, err := openMount(args[0])
		if err != nil {
			return err
		}
		defer dev.Close()
		defer fs.Close()

		var count uint32
		f, err := fs.Open("/boot_count", lfs.OCreate)
		if err != nil {
			return err
		}
		var buf [4]byte
		n, err := f.Read(buf[:])
		if err != nil && err != io.EOF {
			f.Close()
			return err
		}
		if n == 4 {
			count = binary.LittleEndian.Uint32(buf[:])
		}
		if err := f.Close(); err != nil {
			return err
		}

		count++

		f, err = fs.Open("/boot_count", lfs.OTrunc)
		if err != nil {
			return err
		}
		binary.LittleEndian.PutUint32(buf[:], count)
		if _, err := f.Write(buf[:]); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}

		fmt.Printf("boot_count: %d\n", count)
		return nil
	},
}
