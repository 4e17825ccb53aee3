package main

import (
	"errors"
	"flag"
	"fmt"
	"io"

	"github.com/snarg/callscribe/internal/config"
)

// cliFlags are the options that only make sense on the command line.
// Everything that can also come from the environment travels in overrides.
type cliFlags struct {
	input     string
	output    string
	leftJSON  string
	rightJSON string
	version   bool

	overrides config.Overrides
}

// segmented reports whether pre-recognized segment files were given.
func (f cliFlags) segmented() bool {
	return f.leftJSON != "" || f.rightJSON != ""
}

func parseFlags(args []string, stderr io.Writer) (cliFlags, error) {
	var f cliFlags
	o := &f.overrides

	fs := flag.NewFlagSet("callscribe", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: callscribe -input CALL.m4a [-output FILE|-] [options]")
		fmt.Fprintln(stderr, "       callscribe -watch DIR [options]")
		fs.PrintDefaults()
	}

	fs.StringVar(&f.input, "input", "", "stereo call recording to transcribe")
	fs.StringVar(&f.output, "output", "", "transcript path, - for stdout (default <input>.lrc)")
	fs.StringVar(&f.leftJSON, "left-json", "", "pre-recognized segments for the left channel")
	fs.StringVar(&f.rightJSON, "right-json", "", "pre-recognized segments for the right channel")
	fs.BoolVar(&f.version, "version", false, "print version and exit")

	fs.StringVar(&o.EnvFile, "env", "", "env file to load (default .env)")
	fs.StringVar(&o.OtherOn, "other-on", "", "channel carrying the other party: left or right")
	fs.StringVar(&o.YouName, "you-name", "", "display name for the recording owner")
	fs.StringVar(&o.OtherName, "other-name", "", "display name for the other party (skips file name inference)")
	fs.StringVar(&o.Normalize, "normalize", "", "per-channel normalization: loudnorm, dynaudnorm or none")
	fs.StringVar(&o.OutputDir, "output-dir", "", "directory for transcripts")
	fs.StringVar(&o.WatchDir, "watch", "", "watch DIR for new recordings instead of converting one file")
	fs.StringVar(&o.HTTPAddr, "http-addr", "", "listen address for the watch-mode HTTP API")
	fs.StringVar(&o.LogLevel, "log-level", "", "log level: debug, info, warn, error")
	fs.StringVar(&o.DatabaseURL, "database-url", "", "PostgreSQL URL for the transcript index")

	mergeGap := fs.Float64("merge-gap", 0, "max silence in seconds joined into one line")
	eventConf := fs.Float64("event-confidence", 0, "confidence below which speech renders as indistinct")
	noHeaders := fs.Bool("no-headers", false, "omit the [ti:] and [ar:] header lines")

	if err := fs.Parse(args); err != nil {
		return f, err
	}
	if fs.NArg() > 0 {
		return f, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}

	// Numeric flags only override when given, so 0 stays expressible.
	fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "merge-gap":
			o.MergeGap = mergeGap
		case "event-confidence":
			o.EventConfidence = eventConf
		case "no-headers":
			headers := !*noHeaders
			o.LRCHeaders = &headers
		}
	})

	if f.segmented() && (f.leftJSON == "" || f.rightJSON == "") {
		return f, errors.New("-left-json and -right-json must be given together")
	}
	if o.WatchDir != "" && (f.input != "" || f.segmented()) {
		return f, errors.New("-watch cannot be combined with -input or segment files")
	}
	if o.WatchDir != "" && f.output == "-" {
		return f, errors.New("-output - is not supported in watch mode")
	}
	return f, nil
}
