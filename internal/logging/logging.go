// Package logging configures the process-wide logger. Diagnostics share
// standard output with the histogram stream, one line each, prefixed with
// their level.
package logging

import (
	"fmt"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
)

// lineFormatter renders `LEVEL: message` lines.
type lineFormatter struct{}

func (lineFormatter) Format(e *log.Entry) ([]byte, error) {
	return []byte(fmt.Sprintf("%s: %s\n", strings.ToUpper(e.Level.String()), e.Message)), nil
}

// Setup points the default logger at standard output with the line
// formatter. verbose enables debug logging.
func Setup(verbose bool) {
	log.SetOutput(os.Stdout)
	log.SetFormatter(lineFormatter{})
	if verbose {
		log.SetLevel(log.DebugLevel)
	}
}
