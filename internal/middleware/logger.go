package middleware

import (
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
)

// Logger logs only slow or failed requests. Websocket sessions are long
// lived, so /ws is left to the gateway's own connect/disconnect lines.
func Logger(slow time.Duration) fiber.Handler {
	return logger.New(logger.Config{
		Format:     "${time} | ${status} | ${latency} | ${method} ${path}\n",
		TimeFormat: "15:04:05",
		Next: func(c *fiber.Ctx) bool {
			return c.Path() == "/ws"
		},
		Output: &filteredWriter{
			dest:             os.Stdout,
			slowThreshold:    slow,
			errorStatusFloor: 400,
		},
	})
}

// filteredWriter drops lines of fast successful requests. It reads status and
// latency back from the line format "15:04:05 | 200 | 1.23ms | GET /path".
type filteredWriter struct {
	dest             io.Writer
	slowThreshold    time.Duration
	errorStatusFloor int
}

func (w *filteredWriter) Write(p []byte) (int, error) {
	parts := strings.Split(string(p), " | ")
	if len(parts) < 3 {
		return w.dest.Write(p)
	}

	if status, err := strconv.Atoi(strings.TrimSpace(parts[1])); err == nil && status >= w.errorStatusFloor {
		return w.dest.Write(p)
	}
	if d, err := time.ParseDuration(strings.TrimSpace(parts[2])); err == nil && d >= w.slowThreshold {
		return w.dest.Write(p)
	}
	return len(p), nil
}
