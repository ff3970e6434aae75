package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/EclipseFox25/ANDnXOR-DC33-Badge-Tool/session"
)

/* ===================== Device copy ===================== */

// copyDeviceToImage reads a whole flash device (or any file) into imagePath.
func copyDeviceToImage(w io.Writer, devicePath, imagePath string, chunk int64) error {
	src, err := os.OpenFile(devicePath, os.O_RDONLY, 0)
	if err != nil {
		return fmt.Errorf("open device: %w", err)
	}
	defer src.Close()

	deviceSize, err := session.DeviceSize(src)
	if err != nil {
		return fmt.Errorf("get device size: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(imagePath), 0755); err != nil && !errors.Is(err, os.ErrExist) {
		return err
	}
	dst, err := os.Create(imagePath)
	if err != nil {
		return fmt.Errorf("create image: %w", err)
	}
	defer dst.Close()

	fmt.Fprintf(w, "Copying %s (%s) to %s...\n", devicePath, human(deviceSize), imagePath)
	copied, err := copyChunks(w, dst, src, deviceSize, chunk, "read device", "write image")
	if err != nil {
		return err
	}
	if err := dst.Sync(); err != nil {
		return fmt.Errorf("sync image: %w", err)
	}
	fmt.Fprintf(w, "\nCopy complete: %s copied\n", human(copied))
	logger.Info("device dumped", zap.String("device", devicePath), zap.String("image", imagePath), zap.Int64("bytes", copied))
	return nil
}

// copyImageToDevice writes imagePath to the start of a flash device.
func copyImageToDevice(w io.Writer, imagePath, devicePath string, chunk int64) error {
	src, err := os.Open(imagePath)
	if err != nil {
		return fmt.Errorf("open image: %w", err)
	}
	defer src.Close()

	imageStat, err := src.Stat()
	if err != nil {
		return fmt.Errorf("stat image: %w", err)
	}
	imageSize := imageStat.Size()

	dst, err := os.OpenFile(devicePath, os.O_WRONLY, 0)
	if err != nil {
		return fmt.Errorf("open device: %w", err)
	}
	defer dst.Close()

	deviceSize, err := session.DeviceSize(dst)
	if err != nil {
		return fmt.Errorf("get device size: %w", err)
	}
	if deviceSize < imageSize {
		return fmt.Errorf("device too small: has %s, need %s", human(deviceSize), human(imageSize))
	}

	fmt.Fprintf(w, "Copying %s (%s) to %s...\n", imagePath, human(imageSize), devicePath)
	if deviceSize > imageSize {
		fmt.Fprintf(w, "WARNING: device is %s, only writing %s\n", human(deviceSize), human(imageSize))
	}

	copied, err := copyChunks(w, dst, src, imageSize, chunk, "read image", "write device")
	if err != nil {
		return err
	}
	if err := dst.Sync(); err != nil {
		return fmt.Errorf("sync device: %w", err)
	}
	fmt.Fprintf(w, "\nCopy complete: %s written to device\n", human(copied))
	logger.Info("device flashed", zap.String("image", imagePath), zap.String("device", devicePath), zap.Int64("bytes", copied))
	return nil
}

// copyChunks copies up to total bytes, printing progress every 16 chunks.
func copyChunks(w io.Writer, dst io.Writer, src io.Reader, total, chunk int64, readOp, writeOp string) (int64, error) {
	buf := make([]byte, chunk)
	var copied int64
	for copied < total {
		if rest := total - copied; rest < chunk {
			buf = buf[:rest]
		}
		n, err := src.Read(buf)
		if err != nil && err != io.EOF {
			return copied, fmt.Errorf("%s: %w", readOp, err)
		}
		if n == 0 {
			break
		}
		if _, err := dst.Write(buf[:n]); err != nil {
			return copied, fmt.Errorf("%s: %w", writeOp, err)
		}
		copied += int64(n)

		if copied%(chunk*16) == 0 || copied >= total {
			percent := float64(copied) * 100.0 / float64(total)
			fmt.Fprintf(w, "\rProgress: %s / %s (%.1f%%)", human(copied), human(total), percent)
		}
	}
	return copied, nil
}

func newCopyCmd(g *globalFlags) *cobra.Command {
	copyCmd := &cobra.Command{
		Use:   "copy",
		Short: "Copy whole flash contents between a badge device and an image file",
	}

	// Device to image (backup)
	var (
		dumpDevice string
		dumpOut    string
		dumpForce  bool
	)
	dumpCmd := &cobra.Command{
		Use:   "dump --device <device> --out <image>",
		Short: "Read a flash device into an image file (backup)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := g.load(cmd, false); err != nil {
				return err
			}
			if !dumpForce {
				return fmt.Errorf("--force is required for device operations")
			}
			return copyDeviceToImage(os.Stdout, dumpDevice, dumpOut, int64(cfg.CopyChunk))
		},
	}
	dumpCmd.Flags().StringVar(&dumpDevice, "device", "", "source flash device (e.g. /dev/mtdblock0)")
	dumpCmd.Flags().StringVar(&dumpOut, "out", "", "output image file")
	dumpCmd.Flags().BoolVar(&dumpForce, "force", false, "confirm device operation")
	_ = dumpCmd.MarkFlagRequired("device")
	_ = dumpCmd.MarkFlagRequired("out")

	// Image to device (restore)
	var (
		flashIn     string
		flashDevice string
		flashForce  bool
		flashRaw    bool
	)
	flashCmd := &cobra.Command{
		Use:   "flash --in <image> --device <device>",
		Short: "Write an image file to a flash device (restore)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := g.load(cmd, false); err != nil {
				return err
			}
			if !flashForce {
				return fmt.Errorf("--force is required for device operations")
			}
			if !flashRaw {
				// refuse images whose filesystem region does not mount
				s, err := openImage(flashIn)
				if err != nil {
					return fmt.Errorf("check %s: %w (use --raw to skip)", flashIn, err)
				}
				_ = s.Close()
			}
			return copyImageToDevice(os.Stdout, flashIn, flashDevice, int64(cfg.CopyChunk))
		},
	}
	flashCmd.Flags().StringVar(&flashIn, "in", "", "source image file")
	flashCmd.Flags().StringVar(&flashDevice, "device", "", "target flash device (e.g. /dev/mtdblock0)")
	flashCmd.Flags().BoolVar(&flashForce, "force", false, "confirm device operation")
	flashCmd.Flags().BoolVar(&flashRaw, "raw", false, "write without checking that the image mounts")
	_ = flashCmd.MarkFlagRequired("in")
	_ = flashCmd.MarkFlagRequired("device")

	copyCmd.AddCommand(dumpCmd)
	copyCmd.AddCommand(flashCmd)
	return copyCmd
}
