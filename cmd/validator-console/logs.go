package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nxadm/tail"

	"github.com/pushchain/validator-console/internal/exitcodes"
)

// followLog tails the console's engine log until interrupted. The TUI
// owns stdout while the console runs, so operators read the structured
// zerolog stream here, from a second terminal or after a session.
func followLog(ctx context.Context, logPath string) error {
	if logPath == "" {
		return exitcodes.ConfigErr("no log file configured", nil)
	}
	if _, err := os.Stat(logPath); err != nil {
		return exitcodes.ConfigErr(fmt.Sprintf("log file not found: %s", logPath), nil)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)
	go func() {
		<-sigs
		cancel()
	}()

	t, err := tail.TailFile(logPath, tail.Config{
		Follow:    true, // keep following
		ReOpen:    true, // handle rotation
		MustExist: true,
	})
	if err != nil {
		return fmt.Errorf("failed to tail log: %w", err)
	}
	defer t.Cleanup()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line := <-t.Lines:
			if line == nil {
				return nil
			}
			if line.Err != nil {
				return line.Err
			}
			fmt.Println(line.Text)
		}
	}
}
