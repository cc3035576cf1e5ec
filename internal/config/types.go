package config

// StartMode controls whether a backend's reset template runs before each
// repetition.
type StartMode string

const (
	StartNormal StartMode = "normal"
	StartCold   StartMode = "cold"
	StartWarm   StartMode = "warm"
)

// WriteMode selects whether the CSV sink truncates or appends.
type WriteMode string

const (
	ModeWrite  WriteMode = "write"
	ModeAppend WriteMode = "append"
)

// Options is the fully merged, read-only configuration for one experiment
// run. OptionsPipeline is the only producer; every other package only reads
// from it.
type Options struct {
	Function     string `yaml:"function" json:"function"`
	Arguments    string `yaml:"arguments" json:"arguments"`
	Task         string `yaml:"task" json:"task"`
	Experiment   string `yaml:"experiment" json:"experiment"`
	Description  string `yaml:"description" json:"description"`
	Directory    string `yaml:"directory" json:"directory"`
	FunctionPath string `yaml:"function_path" json:"function_path"`
	FunctionDir  string `yaml:"function_dir" json:"function_dir"`

	Copies  int    `yaml:"copies" json:"copies"`
	Repeats string `yaml:"repeats" json:"repeats"`
	Timeout int    `yaml:"timeout" json:"timeout"`

	Start StartMode `yaml:"start" json:"start"`
	Mode  WriteMode `yaml:"mode" json:"mode"`

	Verbose      bool   `yaml:"verbose" json:"verbose"`
	Datafile     string `yaml:"datafile" json:"datafile"`
	SkipSysSpecs bool   `yaml:"skip_sys_specs" json:"skip_sys_specs"`

	Backends       []string                 `yaml:"backends" json:"backends"`
	BackendOptions map[string]BackendConfig `yaml:"backend_options" json:"backend_options"`
	Metrics        map[string]MetricSpec    `yaml:"metrics" json:"metrics"`

	SysSpecCommands map[string]map[string]string `yaml:"sys_spec_commands" json:"sys_spec_commands"`
	RepeaterOptions map[string]any               `yaml:"repeater_options" json:"repeater_options"`
}

// BackendConfig is the per-backend template set. Run is the only required
// field; everything else has a well-defined default.
type BackendConfig struct {
	Run        string `yaml:"run" json:"run"`
	Reset      string `yaml:"reset" json:"reset"`
	RunSysSpec string `yaml:"run_sys_spec" json:"run_sys_spec"`
	Hosts      string `yaml:"hosts" json:"hosts"`
	HostFile   string `yaml:"hostfile" json:"hostfile"`
	MPIFlags   string `yaml:"mpiflags" json:"mpiflags"`
	TmpPath    string `yaml:"tmp_path" json:"tmp_path"`
}

// MetricSpec describes how to pull one named metric out of a scratch file.
type MetricSpec struct {
	Extract       string `yaml:"extract" json:"extract"`
	Type          string `yaml:"type" json:"type"`
	Units         string `yaml:"units" json:"units"`
	Description   string `yaml:"description" json:"description"`
	LowerIsBetter bool   `yaml:"lower_is_better" json:"lower_is_better"`
}

// DefaultOptions returns the baseline Options every merge starts from: one
// copy, a single repetition, normal start mode, write mode.
func DefaultOptions() *Options {
	return &Options{
		Copies:  1,
		Repeats: "1",
		Start:   StartNormal,
		Mode:    ModeWrite,
		Metrics: map[string]MetricSpec{},
	}
}
