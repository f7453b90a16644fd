package worker

import (
	"fmt"
	"io"
	"log/slog"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func timeIDFmt(t time.Time) string {
	return fmt.Sprintf("%d-1", t.UnixMilli())
}
