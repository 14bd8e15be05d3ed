// Package piklog provides the control loop's diagnostic logging. The
// source codec drives this kind of output through process-wide mutable
// flags (FLAGS_log_search_state, FLAGS_dump_quant_state); per spec this is
// re-architected into an explicit logger threaded through the config
// struct instead, so nothing here is package-level mutable state.
package piklog

import (
	"io"
	"log/slog"
)

// New returns a no-op logger (writes to io.Discard) suitable as a default
// when the caller doesn't supply one via pikcfg.Params.Logger.
func New() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
