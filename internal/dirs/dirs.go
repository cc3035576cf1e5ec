// Package dirs centralizes the well-known relative paths the launcher reads
// from and writes to, mirroring the layout of the original HPE SHARP
// launcher (launcher/, backends/, runlogs/ alongside the launcher script).
package dirs

// BackendsDir is searched for auto-loaded backend configuration files
// (backends/<name>.yaml or .json), relative to the launcher binary's
// working directory.
const BackendsDir = "backends"

// DefaultLogRoot is the top-level directory for experiment logs when
// Options.Directory is not overridden by config or --directory.
const DefaultLogRoot = "runlogs"

// DefaultSysSpecFile, if present in the working directory, is always merged first
// (lowest priority after --repro) so experiments get baseline host-inspection
// commands without every config file repeating them.
const DefaultSysSpecFile = "sys_spec.yaml"

// DefaultFunctionsDir is searched for `<func>/<func>.*` executables when no
// function-path override is configured.
const DefaultFunctionsDir = "fns"
