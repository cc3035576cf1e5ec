package config

// Merge deep-merges overlay onto base and returns the result: scalars and
// lists in overlay replace base's, dict-valued fields (BackendOptions,
// Metrics, SysSpecCommands, RepeaterOptions) are merged key-by-key with
// overlay winning on conflicts, and Backends is special-cased to append
// rather than replace — every backend named across every layer stays in
// the chain instead of the last layer silently dropping the others.
//
// base is never mutated; Merge always returns a new *Options.
func Merge(base, overlay *Options) *Options {
	if base == nil {
		base = DefaultOptions()
	}
	if overlay == nil {
		return cloneOptions(base)
	}

	result := cloneOptions(base)

	mergeScalar(&result.Function, overlay.Function)
	mergeScalar(&result.Arguments, overlay.Arguments)
	mergeScalar(&result.Task, overlay.Task)
	mergeScalar(&result.Experiment, overlay.Experiment)
	mergeScalar(&result.Description, overlay.Description)
	mergeScalar(&result.Directory, overlay.Directory)
	mergeScalar(&result.FunctionPath, overlay.FunctionPath)
	mergeScalar(&result.FunctionDir, overlay.FunctionDir)
	mergeScalar(&result.Repeats, overlay.Repeats)
	mergeScalar(&result.Datafile, overlay.Datafile)

	if overlay.Copies != 0 {
		result.Copies = overlay.Copies
	}
	if overlay.Timeout != 0 {
		result.Timeout = overlay.Timeout
	}
	if overlay.Start != "" {
		result.Start = overlay.Start
	}
	if overlay.Mode != "" {
		result.Mode = overlay.Mode
	}
	if overlay.Verbose {
		result.Verbose = true
	}
	if overlay.SkipSysSpecs {
		result.SkipSysSpecs = true
	}

	result.Backends = appendBackends(result.Backends, overlay.Backends)
	result.BackendOptions = mergeBackendOptions(result.BackendOptions, overlay.BackendOptions)
	result.Metrics = mergeMetrics(result.Metrics, overlay.Metrics)
	result.SysSpecCommands = mergeSysSpecCommands(result.SysSpecCommands, overlay.SysSpecCommands)
	result.RepeaterOptions = mergeRepeaterOptions(result.RepeaterOptions, overlay.RepeaterOptions)

	return result
}

func mergeScalar(dst *string, src string) {
	if src != "" {
		*dst = src
	}
}

// appendBackends appends overlay's backend names onto base, skipping any
// name base already holds from an earlier layer; repeats within overlay
// itself are all kept, so `-b local -b local` nests two local backends.
// This is the one list field that grows across merge layers instead of
// being replaced by the last one.
func appendBackends(base, overlay []string) []string {
	if len(overlay) == 0 {
		return base
	}
	seen := make(map[string]bool, len(base))
	for _, name := range base {
		seen[name] = true
	}
	result := append([]string(nil), base...)
	for _, name := range overlay {
		if !seen[name] {
			result = append(result, name)
		}
	}
	return result
}

func mergeBackendOptions(base, overlay map[string]BackendConfig) map[string]BackendConfig {
	if len(overlay) == 0 {
		return base
	}
	result := make(map[string]BackendConfig, len(base)+len(overlay))
	for name, cfg := range base {
		result[name] = cfg
	}
	for name, cfg := range overlay {
		result[name] = mergeBackendConfig(result[name], cfg)
	}
	return result
}

// mergeBackendConfig field-merges one backend's templates: a field left
// empty in overlay keeps whatever base already had.
func mergeBackendConfig(base, overlay BackendConfig) BackendConfig {
	mergeScalar(&base.Run, overlay.Run)
	mergeScalar(&base.Reset, overlay.Reset)
	mergeScalar(&base.RunSysSpec, overlay.RunSysSpec)
	mergeScalar(&base.Hosts, overlay.Hosts)
	mergeScalar(&base.HostFile, overlay.HostFile)
	mergeScalar(&base.MPIFlags, overlay.MPIFlags)
	mergeScalar(&base.TmpPath, overlay.TmpPath)
	return base
}

func mergeMetrics(base, overlay map[string]MetricSpec) map[string]MetricSpec {
	if len(overlay) == 0 {
		return base
	}
	result := make(map[string]MetricSpec, len(base)+len(overlay))
	for name, spec := range base {
		result[name] = spec
	}
	for name, spec := range overlay {
		result[name] = spec
	}
	return result
}

func mergeSysSpecCommands(base, overlay map[string]map[string]string) map[string]map[string]string {
	if len(overlay) == 0 {
		return base
	}
	result := make(map[string]map[string]string, len(base)+len(overlay))
	for group, commands := range base {
		inner := make(map[string]string, len(commands))
		for k, v := range commands {
			inner[k] = v
		}
		result[group] = inner
	}
	for group, commands := range overlay {
		inner, ok := result[group]
		if !ok {
			inner = make(map[string]string, len(commands))
			result[group] = inner
		}
		for k, v := range commands {
			inner[k] = v
		}
	}
	return result
}

func mergeRepeaterOptions(base, overlay map[string]any) map[string]any {
	if len(overlay) == 0 {
		return base
	}
	result := make(map[string]any, len(base)+len(overlay))
	for k, v := range base {
		result[k] = v
	}
	for k, v := range overlay {
		if baseSub, ok := result[k].(map[string]any); ok {
			if overlaySub, ok := v.(map[string]any); ok {
				result[k] = mergeRepeaterOptions(baseSub, overlaySub)
				continue
			}
		}
		result[k] = v
	}
	return result
}

func cloneOptions(o *Options) *Options {
	clone := *o
	clone.Backends = append([]string(nil), o.Backends...)
	clone.BackendOptions = mergeBackendOptions(nil, o.BackendOptions)
	clone.Metrics = mergeMetrics(nil, o.Metrics)
	clone.SysSpecCommands = mergeSysSpecCommands(nil, o.SysSpecCommands)
	clone.RepeaterOptions = mergeRepeaterOptions(nil, o.RepeaterOptions)
	return &clone
}
