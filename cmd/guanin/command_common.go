package main

import (
	"fmt"
	"io"
	"os"
	"runtime/debug"
	"strings"
	"text/tabwriter"
	"time"

	"guanin/internal/types"
)

const version = "dev"

func printRuns(output io.Writer, runs []types.StageRun) {
	writer := tabwriter.NewWriter(output, 0, 8, 2, ' ', 0)
	fmt.Fprintln(writer, "STARTED\tSESSION\tSTAGE\tVERSION\tSTATUS\tDETAIL")
	for _, run := range runs {
		detail := run.Message
		if run.Error != "" {
			detail = run.Error
		}
		version := "-"
		if run.Version > 0 {
			version = fmt.Sprintf("%d", run.Version)
		}
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\t%s\n",
			run.StartedAt.Local().Format(time.DateTime), run.SessionID, run.Stage, version, run.Status, detail)
	}
	_ = writer.Flush()
}

type stringList []string

func (s *stringList) String() string {
	return strings.Join(*s, ",")
}

func (s *stringList) Set(value string) error {
	*s = append(*s, value)
	return nil
}

func exitOnErr(label string, err error, stderr io.Writer) {
	if err == nil {
		return
	}
	fmt.Fprintf(stderr, "%s error: %v\n", label, err)
	os.Exit(1)
}

// buildVersion reports the VCS revision the binary was built from.
func buildVersion() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return version
	}
	var revision, modified string
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			revision = setting.Value
		case "vcs.modified":
			modified = setting.Value
		}
	}
	if revision == "" {
		return version
	}
	if modified == "true" {
		return revision + "-dirty"
	}
	return revision
}
