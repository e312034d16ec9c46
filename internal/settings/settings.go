// Package settings loads the optional on-disk configuration file
// (SPEC_FULL §6 ambient stack) and merges it under whatever the CLI
// flags specify — flags always win, matching spec.md's CLI-first model
// where everything this package loads may also be passed explicitly.
package settings

import (
	"os"
	"path/filepath"

	"github.com/hashicorp/hcl/v2/hclsimple"

	"github.com/opal-lang/skonfig/internal/engine"
)

// Settings is the full set of knobs spec.md's CLI and SPEC_FULL's
// ambient config loader both populate.
type Settings struct {
	ConfDir          []string `hcl:"conf_dir,optional"`
	Jobs             int      `hcl:"jobs,optional"`
	RemoteExec       string   `hcl:"remote_exec,optional"`
	RemoteCopy       string   `hcl:"remote_copy,optional"`
	Archive          string   `hcl:"archive,optional"`
	CachePathPattern string   `hcl:"cache_path_pattern,optional"`
	ObjectMarker     string   `hcl:"object_marker,optional"`
	LogLevel         string   `hcl:"log_level,optional"`
}

// Default returns the built-in fallback values used when neither a
// config file nor a CLI flag sets a field.
func Default() Settings {
	return Settings{
		Jobs:             1,
		RemoteExec:       "ssh -o User=root",
		RemoteCopy:       "scp -o User=root -r",
		Archive:          "gzip",
		CachePathPattern: "%N",
		ObjectMarker:     ".skonfig-object",
		LogLevel:         "info",
	}
}

// ConfigPath resolves the optional HCL config file location: the
// SKONFIG_CONFIG environment variable if set, else
// ~/.skonfig/config.hcl.
func ConfigPath() string {
	if p := os.Getenv("SKONFIG_CONFIG"); p != "" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".skonfig", "config.hcl")
}

// Load reads and decodes the HCL file at path. A missing file is not
// an error — it simply yields a zero-value Settings to merge under.
func Load(path string) (Settings, error) {
	var s Settings
	if path == "" {
		return s, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return s, nil
	}
	if err := hclsimple.DecodeFile(path, nil, &s); err != nil {
		return Settings{}, &engine.ConfigurationError{Field: "config", Msg: err.Error()}
	}
	return s, nil
}

// Merge layers cli over file over Default(): a field set in cli wins,
// else a field set in file wins, else the built-in default applies.
// "Set" for a string means non-empty; for Jobs it means > 0; ConfDir
// from cli always replaces (flags are taken as authoritative once any
// --conf-dir is given, matching cdist/skonfig's own repeatable-flag
// convention — a partial override of a list makes no sense).
func Merge(file, cli Settings) Settings {
	out := Default()

	apply := func(fileVal, cliVal string, dst *string) {
		switch {
		case cliVal != "":
			*dst = cliVal
		case fileVal != "":
			*dst = fileVal
		}
	}

	apply(file.RemoteExec, cli.RemoteExec, &out.RemoteExec)
	apply(file.RemoteCopy, cli.RemoteCopy, &out.RemoteCopy)
	apply(file.Archive, cli.Archive, &out.Archive)
	apply(file.CachePathPattern, cli.CachePathPattern, &out.CachePathPattern)
	apply(file.ObjectMarker, cli.ObjectMarker, &out.ObjectMarker)
	apply(file.LogLevel, cli.LogLevel, &out.LogLevel)

	switch {
	case cli.Jobs > 0:
		out.Jobs = cli.Jobs
	case file.Jobs > 0:
		out.Jobs = file.Jobs
	}

	switch {
	case len(cli.ConfDir) > 0:
		out.ConfDir = cli.ConfDir
	case len(file.ConfDir) > 0:
		out.ConfDir = file.ConfDir
	}

	return out
}
