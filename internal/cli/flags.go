package cli

import "github.com/spf13/pflag"

// Flags holds the persistent command line flags.
type Flags struct {
	Workspace       string
	Config          string
	JSON            bool
	Verbose         bool
	SkipCompilation bool
	AllowBreaking   bool
	LogLevel        string
	LogFormat       string
}

// Register binds the flags to fs.
func (f *Flags) Register(fs *pflag.FlagSet) {
	fs.StringVarP(&f.Workspace, "workspace", "w", ".", "path to the workspace root")
	fs.StringVar(&f.Config, "config", "", "settings file (default: nearest .goextract.yaml)")
	fs.BoolVar(&f.JSON, "json", false, "print results as JSON")
	fs.BoolVarP(&f.Verbose, "verbose", "v", false, "print every change")
	fs.BoolVar(&f.SkipCompilation, "skip-compilation", false, "do not type-check the result before writing")
	fs.BoolVar(&f.AllowBreaking, "allow-breaking", false, "write even when the result does not type-check")
	fs.StringVar(&f.LogLevel, "log-level", "", "log level: debug, info, warn or error")
	fs.StringVar(&f.LogFormat, "log-format", "", "log format: text or json")
}
