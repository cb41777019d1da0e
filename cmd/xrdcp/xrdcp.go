package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/bbockelm/XrdAdaptor/adaptor"
	"github.com/bbockelm/XrdAdaptor/rc"
	"github.com/bbockelm/XrdAdaptor/xrd"
	"github.com/bbockelm/XrdAdaptor/xrdclient"
	_ "github.com/bbockelm/XrdAdaptor/xrdtest" // register the mem:// scheme for demos
)

var (
	logLevel    string
	rcAddr      string
	bufferSize  int
	checkEvery  time.Duration
	openBackoff time.Duration
)

// Root is the top-level command.
var Root = &cobra.Command{
	Use:           "xrdcp",
	Short:         "Read files through the multi-source adaptor",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return xrd.SetLogLevel(logLevel)
	},
}

func init() {
	flags := Root.PersistentFlags()
	flags.StringVar(&logLevel, "log-level", "info", "logging verbosity")
	flags.StringVar(&rcAddr, "rc-addr", "", "serve /status and /metrics on this address")
	flags.IntVar(&bufferSize, "buffer-size", 4*1024*1024, "read buffer size in bytes")
	flags.DurationVar(&checkEvery, "check-horizon", xrd.SourceCheckHorizon, "spacing between source reconsiderations")
	flags.DurationVar(&openBackoff, "open-backoff", xrd.OpenBackoff, "back-off after a failed replacement open")
	Root.AddCommand(catCmd, statCmd)
	pflag.CommandLine.AddFlagSet(flags)
}

func openManager(ctx context.Context, name string) (*adaptor.RequestManager, error) {
	client, err := xrdclient.NewClient(ctx, name)
	if err != nil {
		return nil, err
	}
	opts := xrd.DefaultOptions()
	opts.SourceCheckHorizon = checkEvery
	opts.OpenBackoff = openBackoff
	return adaptor.OpenWithClient(ctx, client, name, xrdclient.OpenRead, xrdclient.AccessNone, opts, nil)
}

var catCmd = &cobra.Command{
	Use:   "cat <url>",
	Short: "Stream a remote file to stdout",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		m, err := openManager(ctx, args[0])
		if err != nil {
			return err
		}
		defer func() {
			if err := m.Close(); err != nil {
				xrd.Errorf(m, "close: %v", err)
			}
		}()

		if rcAddr != "" {
			srv := rc.NewServer(rcAddr, m)
			addr, err := srv.Start()
			if err != nil {
				return fmt.Errorf("rc server: %w", err)
			}
			xrd.Infof(m, "rc server listening on %s", addr)
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = srv.Shutdown(shutdownCtx)
			}()
		}

		info, err := m.ActiveFile().Stat()
		if err != nil {
			return fmt.Errorf("stat %q: %w", args[0], err)
		}

		buf := make([]byte, bufferSize)
		var off int64
		for off < info.Size {
			n, err := m.Read(buf, off).Wait(ctx)
			if err != nil {
				return err
			}
			if n == 0 {
				break
			}
			if _, err := os.Stdout.Write(buf[:n]); err != nil {
				return err
			}
			off += n
		}
		return nil
	},
}

var statCmd = &cobra.Command{
	Use:   "stat <url>",
	Short: "Print file metadata and the source the redirector chose",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := openManager(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		defer func() { _ = m.Close() }()

		info, err := m.ActiveFile().Stat()
		if err != nil {
			return fmt.Errorf("stat %q: %w", args[0], err)
		}
		fmt.Printf("Name:   %s\n", m.Filename())
		fmt.Printf("Size:   %d\n", info.Size)
		fmt.Printf("Mode:   %v\n", info.Mode)
		for _, src := range m.ActiveSourceNames() {
			fmt.Printf("Source: %s\n", src)
		}
		return nil
	},
}
