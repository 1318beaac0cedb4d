package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/pagecast/internal/playback"
)

// runHeadless reads the loaded document aloud without the TUI. Each page is
// reported to out. Pages that fail to synthesize are skipped. It returns when
// the last page is done or ctx is cancelled.
func runHeadless(ctx context.Context, ctl *playback.Controller, done <-chan uint64, out io.Writer) error {
	ctl.SetAutoAdvance(true)

	snap, err := ctl.RequestAudio(ctx)
	for {
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err() //nolint:wrapcheck
			}
			if errors.Is(err, playback.ErrNoDocument) {
				return err
			}
			log.Warn("skipping page", "page", snap.Page+1, "error", err)
			fmt.Fprintf(out, "page %d/%d: %v\n", snap.Page+1, snap.TotalPages, err)
		} else {
			report(out, snap)
		}

		switch {
		case snap.State == playback.StateFinished:
			return nil
		case snap.State != playback.StatePlaying:
			if snap.AtLastPage() {
				return nil
			}
			snap, err = ctl.NavigateNext(ctx)
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err() //nolint:wrapcheck
		case instance := <-done:
			prev := snap.Instance
			snap, err = ctl.PlaybackCompleted(ctx, instance)
			for err == nil && snap.State == playback.StatePlaying && snap.Instance == prev {
				// completion of an older instance; keep waiting
				select {
				case <-ctx.Done():
					return ctx.Err() //nolint:wrapcheck
				case instance = <-done:
					snap, err = ctl.PlaybackCompleted(ctx, instance)
				}
			}
		}
	}
}

func report(out io.Writer, snap playback.Snapshot) {
	switch {
	case snap.State == playback.StateFinished:
		fmt.Fprintln(out, "finished")
	case snap.NoAudio:
		fmt.Fprintf(out, "page %d/%d: no text\n", snap.Page+1, snap.TotalPages)
	default:
		fmt.Fprintf(out, "page %d/%d\n", snap.Page+1, snap.TotalPages)
	}
}
