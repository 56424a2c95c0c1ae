package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/spf13/cobra"

	"github.com/ayusman/fallguard/internal/telemetry"
)

func newCollectCmd() *cobra.Command {
	var (
		addr       string
		showRemote bool
	)

	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Receive telemetry lines from detectors and print them",
		RunE: func(cmd *cobra.Command, args []string) error {
			return collect(cmd.Context(), addr, showRemote, os.Stdout)
		},
	}
	cmd.Flags().StringVarP(&addr, "listen", "l", ":9000", "address to listen on")
	cmd.Flags().BoolVar(&showRemote, "remote", false, "prefix each line with the sender address")

	return cmd
}

func collect(ctx context.Context, addr string, showRemote bool, out io.Writer) error {
	c, err := telemetry.Listen(addr)
	if err != nil {
		return err
	}
	slog.Info("collecting telemetry", "addr", c.Addr().String())

	go func() {
		<-ctx.Done()
		c.Close()
	}()

	var mu sync.Mutex
	err = c.Serve(func(remote, line string) {
		mu.Lock()
		defer mu.Unlock()
		if showRemote {
			fmt.Fprintf(out, "%s %s\n", remote, line)
			return
		}
		fmt.Fprintln(out, line)
	})
	if ctx.Err() != nil {
		return nil
	}
	return err
}
