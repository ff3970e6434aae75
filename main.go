// badgetool edits the LittleFS filesystem embedded in ANDnXOR DC33 badge
// flash images.
// Cobra CLI for scripting, tcell fullscreen explorer for interactive use.
//
// Build (LittleFS needs cgo):
//
//	CGO_ENABLED=1 go build -o badgetool .
package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/EclipseFox25/ANDnXOR-DC33-Badge-Tool/config"
	"github.com/EclipseFox25/ANDnXOR-DC33-Badge-Tool/explorer"
	"github.com/EclipseFox25/ANDnXOR-DC33-Badge-Tool/lfs"
	"github.com/EclipseFox25/ANDnXOR-DC33-Badge-Tool/logging"
	"github.com/EclipseFox25/ANDnXOR-DC33-Badge-Tool/preview"
	"github.com/EclipseFox25/ANDnXOR-DC33-Badge-Tool/session"
)

var (
	cfg    = config.DefaultConfig()
	logger = zap.NewNop()
)

func must(err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}
}

func human(b int64) string {
	if b >= 1024*1024 {
		return fmt.Sprintf("%dM", b/(1024*1024))
	}
	if b >= 1024 {
		return fmt.Sprintf("%dK", b/1024)
	}
	return fmt.Sprintf("%dB", b)
}

// globalFlags are the persistent flags that override the config file.
type globalFlags struct {
	config    string
	offset    string
	blockSize string
	logLevel  string
	logFile   string
}

// load reads the config file, applies flag overrides and builds the logger.
// Interactive commands never log to the terminal they draw on.
func (g *globalFlags) load(cmd *cobra.Command, interactive bool) error {
	c, err := config.LoadConfig(g.config)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("offset") {
		v, err := config.ParseSize(g.offset)
		if err != nil {
			return fmt.Errorf("--offset: %w", err)
		}
		c.Layout.Offset = config.Size(v)
	}
	if cmd.Flags().Changed("block-size") {
		v, err := config.ParseSize(g.blockSize)
		if err != nil {
			return fmt.Errorf("--block-size: %w", err)
		}
		c.Layout.BlockSize = config.Size(v)
	}
	if g.logLevel != "" {
		c.Log.Level = g.logLevel
	}
	if g.logFile != "" {
		c.Log.Output = g.logFile
	}
	if err := c.Validate(); err != nil {
		return err
	}

	out := c.Log.Output
	if out == "" {
		out = "stderr"
	}
	if interactive && (out == "stderr" || out == "stdout") {
		out = "off"
	}
	l, err := logging.Init(logging.Config{Level: c.Log.Level, Format: c.Log.Format, OutputPath: out})
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	cfg, logger = c, l
	return nil
}

func sessionOptions() []session.Option {
	return []session.Option{
		session.WithLayout(int64(cfg.Layout.Offset), int64(cfg.Layout.BlockSize)),
		session.WithGeometry(cfg.Layout.Geometry()),
		session.WithChunkSize(int(cfg.CopyChunk)),
		session.WithLogger(logger),
	}
}

func openImage(path string) (*session.Session, error) {
	if !lfs.Available() {
		return nil, lfs.ErrUnavailable
	}
	return session.Open(path, sessionOptions()...)
}

// saveIfChanged writes the image back to out, or in place when out is empty.
func saveIfChanged(s *session.Session, out string) error {
	if !s.Dirty() && (out == "" || out == s.Path()) {
		return nil
	}
	if err := s.Save(out); err != nil {
		return err
	}
	fmt.Printf("Saved %s (%s)\n", s.Path(), human(int64(len(s.Image()))))
	return nil
}

func runExplore(path string) error {
	if !lfs.Available() {
		return lfs.ErrUnavailable
	}
	s, err := explorer.NewScreen()
	if err != nil {
		return fmt.Errorf("init screen: %w", err)
	}
	ui := explorer.New(s, openImage,
		explorer.WithLogger(logger),
		explorer.WithPreviewOptions(
			preview.WithInterval(cfg.Preview.Interval),
			preview.WithSize(cfg.Preview.Size),
			preview.WithExtensions(cfg.Preview.Extensions),
			preview.WithLogger(logger),
		),
	)
	defer ui.Close()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGHUP)
	defer func() {
		signal.Stop(sigChan)
		close(sigChan)
	}()
	go func() {
		if _, ok := <-sigChan; ok {
			ui.RequestStop()
		}
	}()

	if path != "" {
		ui.Load(path)
	}
	ui.Run()
	return nil
}

func main() {
	var g globalFlags

	root := &cobra.Command{
		Use:           "badgetool [image]",
		Short:         "Flash image editor for ANDnXOR DC33 badges",
		Long:          "Browse, add, delete and extract files in the LittleFS filesystem of a badge flash image, and preview animated GIFs",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return cmd.Help()
			}
			if err := g.load(cmd, true); err != nil {
				return err
			}
			return runExplore(args[0])
		},
	}
	pf := root.PersistentFlags()
	pf.StringVar(&g.config, "config", "badgetool.yaml", "config file (defaults are used when it does not exist)")
	pf.StringVar(&g.offset, "offset", "", "byte offset of the filesystem region (e.g. 0x200000 or 2m)")
	pf.StringVar(&g.blockSize, "block-size", "", "erase block size (e.g. 4096 or 4k)")
	pf.StringVar(&g.logLevel, "log-level", "", "debug, info, warn or error")
	pf.StringVar(&g.logFile, "log-file", "", "log destination: stderr, a file path, or off")

	exploreCmd := &cobra.Command{
		Use:   "explore [image]",
		Short: "Open the interactive explorer",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := g.load(cmd, true); err != nil {
				return err
			}
			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			return runExplore(path)
		},
	}
	root.AddCommand(exploreCmd)

	// ls
	var lsHash bool
	lsCmd := &cobra.Command{
		Use:   "ls <image>",
		Short: "List every entry of the image filesystem",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := g.load(cmd, false); err != nil {
				return err
			}
			s, err := openImage(args[0])
			if err != nil {
				return err
			}
			defer s.Close()
			return listTree(os.Stdout, s, lsHash)
		},
	}
	lsCmd.Flags().BoolVar(&lsHash, "hash", false, "print an xxhash64 of every file")
	root.AddCommand(lsCmd)

	// add
	var addOut string
	addCmd := &cobra.Command{
		Use:   "add <image> <file>...",
		Short: "Copy local files into the root of the image",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := g.load(cmd, false); err != nil {
				return err
			}
			s, err := openImage(args[0])
			if err != nil {
				return err
			}
			defer s.Close()
			res, rerr := s.AddFiles(args[1:])
			return finishBatch(s, res, rerr, "Added", addOut)
		},
	}
	addCmd.Flags().StringVar(&addOut, "out", "", "write the result here instead of in place")
	root.AddCommand(addCmd)

	// rm
	var rmOut string
	rmCmd := &cobra.Command{
		Use:   "rm <image> <path>...",
		Short: "Delete files or directories (with their contents) from the image",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := g.load(cmd, false); err != nil {
				return err
			}
			s, err := openImage(args[0])
			if err != nil {
				return err
			}
			defer s.Close()
			res, rerr := s.Delete(args[1:])
			return finishBatch(s, res, rerr, "Deleted", rmOut)
		},
	}
	rmCmd.Flags().StringVar(&rmOut, "out", "", "write the result here instead of in place")
	root.AddCommand(rmCmd)

	// mkdir
	var mkdirOut string
	mkdirCmd := &cobra.Command{
		Use:   "mkdir <image> <path>",
		Short: "Create a directory in the image",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := g.load(cmd, false); err != nil {
				return err
			}
			s, err := openImage(args[0])
			if err != nil {
				return err
			}
			defer s.Close()
			return mkdirAndSave(os.Stdout, s, args[1], mkdirOut)
		},
	}
	mkdirCmd.Flags().StringVar(&mkdirOut, "out", "", "write the result here instead of in place")
	root.AddCommand(mkdirCmd)

	// extract
	var extractDest string
	extractCmd := &cobra.Command{
		Use:   "extract <image> [path]...",
		Short: "Copy files or directories out of the image (everything when no path is given)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := g.load(cmd, false); err != nil {
				return err
			}
			s, err := openImage(args[0])
			if err != nil {
				return err
			}
			defer s.Close()
			paths := args[1:]
			if len(paths) == 0 {
				paths = []string{"/"}
			}
			res := s.Extract(paths, extractDest)
			return reportBatch(res, "Extracted")
		},
	}
	extractCmd.Flags().StringVar(&extractDest, "dest", ".", "local destination directory")
	root.AddCommand(extractCmd)

	// format
	var (
		formatOut    string
		formatBlocks int64
		formatSize   string
		formatForce  bool
	)
	formatCmd := &cobra.Command{
		Use:   "format --out <image> (--blocks N | --size S)",
		Short: "Create a new image with an empty LittleFS region",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := g.load(cmd, false); err != nil {
				return err
			}
			if formatOut == "" {
				return fmt.Errorf("--out is required")
			}
			blocks, err := regionBlocks(formatBlocks, formatSize, int64(cfg.Layout.BlockSize))
			if err != nil {
				return err
			}
			if _, err := os.Stat(formatOut); err == nil && !formatForce {
				return fmt.Errorf("%s exists; use --force to overwrite", formatOut)
			}
			if !lfs.Available() {
				return lfs.ErrUnavailable
			}
			s, err := session.Create(formatOut, blocks, sessionOptions()...)
			if err != nil {
				return err
			}
			defer s.Close()
			if err := s.Save(""); err != nil {
				return err
			}
			fmt.Printf("Formatted %s: %d blocks of %s at offset 0x%X (%s total)\n",
				formatOut, blocks, human(int64(cfg.Layout.BlockSize)), int64(cfg.Layout.Offset), human(int64(len(s.Image()))))
			return nil
		},
	}
	formatCmd.Flags().StringVar(&formatOut, "out", "", "image file to create")
	formatCmd.Flags().Int64Var(&formatBlocks, "blocks", 0, "size of the filesystem region in erase blocks")
	formatCmd.Flags().StringVar(&formatSize, "size", "", "size of the filesystem region (e.g. 2m)")
	formatCmd.Flags().BoolVar(&formatForce, "force", false, "overwrite an existing file")
	formatCmd.MarkFlagsMutuallyExclusive("blocks", "size")
	_ = formatCmd.MarkFlagRequired("out")
	root.AddCommand(formatCmd)

	// info
	infoCmd := &cobra.Command{
		Use:   "info <image>",
		Short: "Show the layout and usage of an image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := g.load(cmd, false); err != nil {
				return err
			}
			s, err := openImage(args[0])
			if err != nil {
				return err
			}
			defer s.Close()
			printInfo(os.Stdout, s)
			return nil
		},
	}
	root.AddCommand(infoCmd)

	root.AddCommand(newCopyCmd(&g))

	err := root.Execute()
	_ = logging.Sync()
	if errors.Is(err, lfs.ErrUnavailable) {
		err = fmt.Errorf("%w (rebuild with CGO_ENABLED=1)", err)
	}
	must(err)
}
