// contains some misc helper functions etc. for BIGSI
package misc

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/mattn/go-colorable"
	"github.com/pkg/errors"
	logging "github.com/shenwei356/go-logging"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var log = logging.MustGetLogger("bigsi")

// logFormat is used for every log backend
var logFormat = logging.MustStringFormatter(`%{time:2006/01/02 15:04:05} [%{level:.4s}] %{message}`)

// ErrorCheck is a function to throw error to the log and exit the program
func ErrorCheck(msg error) {
	if msg != nil {
		log.Criticalf("terminated\n\nERROR --> %v\n\n", msg)
		os.Exit(1)
	}
}

// CheckRequiredFlags is a function to check for required flags before running BIGSI
func CheckRequiredFlags(flags *pflag.FlagSet) error {
	requiredError := false
	flagName := ""

	flags.VisitAll(func(flag *pflag.Flag) {
		requiredAnnotation := flag.Annotations[cobra.BashCompOneRequiredFlag]
		if len(requiredAnnotation) == 0 {
			return
		}
		flagRequired := requiredAnnotation[0] == "true"
		if flagRequired && !flag.Changed {
			requiredError = true
			flagName = flag.Name
		}
	})

	if requiredError {
		return errors.New("Required flag `" + flagName + "` has not been set")
	}

	return nil
}

// StartLogging is a function to send the log to stderr and, if logFile is set, to that file as well.
// Quiet drops everything below a warning. The returned file is nil when no log file was requested.
func StartLogging(logFile string, quiet bool) (*os.File, error) {
	writers := []io.Writer{colorable.NewColorableStderr()}
	var logFH *os.File
	if logFile != "" {
		if dir := filepath.Dir(logFile); dir != "." {
			if err := os.MkdirAll(dir, 0700); err != nil {
				return nil, errors.Wrap(err, "can't create specified directory for log")
			}
		}
		fh, err := os.OpenFile(logFile, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
		if err != nil {
			return nil, err
		}
		logFH = fh
		writers = append(writers, fh)
	}
	backends := make([]logging.Backend, len(writers))
	for i, w := range writers {
		backends[i] = logging.NewBackendFormatter(logging.NewLogBackend(w, "", 0), logFormat)
	}
	leveled := logging.SetBackend(backends...)
	level := logging.INFO
	if quiet {
		level = logging.WARNING
	}
	leveled.SetLevel(level, "")
	return logFH, nil
}

// CheckSTDIN is a function to check that STDIN can be read
func CheckSTDIN() error {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return fmt.Errorf("error with STDIN")
	}
	if (stat.Mode() & os.ModeNamedPipe) == 0 {
		return fmt.Errorf("no STDIN found")
	}
	return nil
}

// CheckDir is a function to check that a directory exists
func CheckDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("no directory specified")
	}
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("directory does not exist: %v", dir)
		}
		return fmt.Errorf("can't access a directory (check permissions): %v", dir)
	}
	if !info.IsDir() {
		return fmt.Errorf("not a directory: %v", dir)
	}
	return nil
}

// CheckFile is a function to check that a file can be read
func CheckFile(file string) error {
	if _, err := os.Stat(file); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("file does not exist: %v", file)
		}
		return fmt.Errorf("can't access file (check permissions): %v", file)
	}
	return nil
}

// CheckExt is a function to check the extensions of a file, a trailing .gz is ignored
func CheckExt(file string, exts []string) error {
	splitFilename := strings.Split(file, ".")
	finalIdx := len(splitFilename) - 1
	if finalIdx > 0 && splitFilename[finalIdx] == "gz" {
		finalIdx--
	}
	err := fmt.Errorf("file does not have recognised extension: %v", file)
	if finalIdx == 0 {
		return err
	}
	for _, ext := range exts {
		if splitFilename[finalIdx] == ext {
			err = nil
			break
		}
	}
	return err
}

// PrintMemUsage outputs the current, total and OS memory being used. As well as the number
// of garage collection cycles completed.
// lifted from: https://golangcode.com/print-the-current-memory-usage/
func PrintMemUsage() string {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return fmt.Sprintf("[ Heap Allocations: %vMb, OS Memory: %vMb, Num. GC cycles: %v ]", bToMb(m.HeapAlloc), bToMb(m.Sys), m.NumGC)
}

// bToMb converts bytes to megabytes
func bToMb(b uint64) uint64 {
	return b / 1024 / 1024
}
