// Package sdlog configures the process-wide logrus logger used by every
// component of the update core and its surrounding CLI.
package sdlog

import (
	"bytes"
	"io"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	log "github.com/sirupsen/logrus"
)

type formatter struct{}

func (f *formatter) Format(entry *log.Entry) ([]byte, error) {
	b := &bytes.Buffer{}
	b.WriteString(entry.Time.Format("2006/01/02 15:04:05.000 "))
	b.WriteString("[" + strings.ToUpper(entry.Level.String()) + "] ")
	b.WriteString(entry.Message)
	b.WriteByte('\n')
	return b.Bytes(), nil
}

// Init configures the logrus standard logger: level filtering plus an
// optional tee to a log file. It may be called more than once (e.g. once
// for CLI flag defaults, again once the config file is known).
func Init(level log.Level, logFile string) error {
	log.SetLevel(level)
	log.SetFormatter(&formatter{})

	if logFile == "" {
		log.SetOutput(os.Stderr)
		return nil
	}

	f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}
	log.SetOutput(io.MultiWriter(os.Stderr, f))
	return nil
}

// Bytes renders n bytes the way every size in this module's log output
// is rendered: "64 kB", "512 B", etc.
func Bytes(n uint64) string {
	return humanize.Bytes(n)
}
