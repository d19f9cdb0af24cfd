package logger

// Output controls what categories of information are shown at each verbosity level.
//
// Unlike log levels (which filter by severity), output categories control
// WHAT types of information are displayed regardless of severity.
//
// Verbosity Levels:
//
//	0 (default) - User-facing output only: connection status, errors with hints
//	1 (-v)      - + Progress, startup info, scene load/despawn, permission prompts
//	2 (-vv)     - + CRDT dispatch detail, timing, config loaded, transport frames
//	3 (-vvv)    - + Scene worker stdout/stderr, scheduler tick grants, internal flow
//	4 (-vvvv)   - + Raw CRDT wire buffers, full packet bodies, data dumps

// OutputCategory defines a category of output that can be enabled/disabled
type OutputCategory int

const (
	// Level 0 (default) - Always shown
	OutputResults    OutputCategory = iota // Command output, connection status
	OutputErrors                           // Errors with hints and resolution steps
	OutputUserStatus                       // Final success/failure status

	// Level 1 (-v) - Informational
	OutputProgress      // Progress indicators (e.g., "loaded 12/40 scenes")
	OutputStartup       // Startup banners, config summary
	OutputSceneLifecyle // Scene load/spawn/despawn events
	OutputOperationInfo // High-level operation summaries
	OutputPermission    // Permission broker prompts and decisions

	// Level 2 (-vv) - Detailed
	OutputCRDTDispatch    // CRDT update apply/drop decisions
	OutputTiming          // Operation timing (e.g., "tick took 4ms")
	OutputConfig          // Config values loaded/applied
	OutputTransportFrames // Transport connect/send/event summaries
	OutputTransportStatus // Room handshake status

	// Level 3 (-vvv) - Debug
	OutputWorkerStdout  // Scene worker stdout
	OutputWorkerStderr  // Scene worker stderr
	OutputSchedulerTick // Scheduler tick grant accounting
	OutputInternalFlow  // Internal operation flow (function entry/exit)
	OutputHierarchyWalk // Transform-and-parent hierarchy resolution steps

	// Level 4 (-vvvv) - Full dump
	OutputCRDTWireBuffer // Raw CRDT wire buffers
	OutputPacketBody     // Full Peer packet bodies
	OutputDataDump       // Full data structure contents
)

// categoryLevels maps each output category to its minimum verbosity level
var categoryLevels = map[OutputCategory]int{
	// Level 0 - Always shown
	OutputResults:    VerbosityUser,
	OutputErrors:     VerbosityUser,
	OutputUserStatus: VerbosityUser,

	// Level 1 - Informational
	OutputProgress:      VerbosityInfo,
	OutputStartup:       VerbosityInfo,
	OutputSceneLifecyle: VerbosityInfo,
	OutputOperationInfo: VerbosityInfo,
	OutputPermission:    VerbosityInfo,

	// Level 2 - Detailed
	OutputCRDTDispatch:    VerbosityDebug,
	OutputTiming:          VerbosityDebug,
	OutputConfig:          VerbosityDebug,
	OutputTransportFrames: VerbosityDebug,
	OutputTransportStatus: VerbosityDebug,

	// Level 3 - Debug
	OutputWorkerStdout:  VerbosityTrace,
	OutputWorkerStderr:  VerbosityTrace,
	OutputSchedulerTick: VerbosityTrace,
	OutputInternalFlow:  VerbosityTrace,
	OutputHierarchyWalk: VerbosityTrace,

	// Level 4 - Full dump
	OutputCRDTWireBuffer: VerbosityAll,
	OutputPacketBody:     VerbosityAll,
	OutputDataDump:       VerbosityAll,
}

// ShouldOutput returns true if the given category should be shown at the given verbosity
func ShouldOutput(verbosity int, category OutputCategory) bool {
	minLevel, ok := categoryLevels[category]
	if !ok {
		// Unknown category, default to highest verbosity required
		return verbosity >= VerbosityAll
	}
	return verbosity >= minLevel
}

// categoryNames provides human-readable names for output categories
var categoryNames = map[OutputCategory]string{
	OutputResults:         "results",
	OutputErrors:          "errors",
	OutputUserStatus:      "status",
	OutputProgress:        "progress",
	OutputStartup:         "startup",
	OutputSceneLifecyle:   "scene-lifecycle",
	OutputOperationInfo:   "operation-info",
	OutputPermission:      "permission",
	OutputCRDTDispatch:    "crdt-dispatch",
	OutputTiming:          "timing",
	OutputConfig:          "config",
	OutputTransportFrames: "transport-frames",
	OutputTransportStatus: "transport-status",
	OutputWorkerStdout:    "worker-stdout",
	OutputWorkerStderr:    "worker-stderr",
	OutputSchedulerTick:   "scheduler-tick",
	OutputInternalFlow:    "internal-flow",
	OutputHierarchyWalk:   "hierarchy-walk",
	OutputCRDTWireBuffer:  "crdt-wire-buffer",
	OutputPacketBody:      "packet-body",
	OutputDataDump:        "data-dump",
}

// CategoryName returns the human-readable name for an output category
func CategoryName(category OutputCategory) string {
	if name, ok := categoryNames[category]; ok {
		return name
	}
	return "unknown"
}

// EnabledCategories returns all output categories enabled at the given verbosity
func EnabledCategories(verbosity int) []OutputCategory {
	var enabled []OutputCategory
	for cat, minLevel := range categoryLevels {
		if verbosity >= minLevel {
			enabled = append(enabled, cat)
		}
	}
	return enabled
}

// VerbosityDescription returns a description of what's shown at each level
func VerbosityDescription(verbosity int) string {
	switch verbosity {
	case VerbosityUser:
		return "results and errors only"
	case VerbosityInfo:
		return "above + progress, scene lifecycle, permission prompts"
	case VerbosityDebug:
		return "above + CRDT dispatch, timing, config, transport frames"
	case VerbosityTrace:
		return "above + worker logs, scheduler ticks, hierarchy walks"
	case VerbosityAll:
		return "above + raw CRDT buffers, full packet bodies"
	default:
		if verbosity > VerbosityAll {
			return "maximum verbosity"
		}
		return "unknown verbosity level"
	}
}

// Scene output helpers

// ShouldShowSceneLifecycle returns true if scene load/despawn events should be displayed
func ShouldShowSceneLifecycle(verbosity int) bool {
	return ShouldOutput(verbosity, OutputSceneLifecyle)
}

// ShouldShowCRDTDispatch returns true if CRDT apply/drop decisions should be displayed
func ShouldShowCRDTDispatch(verbosity int) bool {
	return ShouldOutput(verbosity, OutputCRDTDispatch)
}

// ShouldShowCRDTWireBuffer returns true if raw CRDT wire buffers should be dumped
func ShouldShowCRDTWireBuffer(verbosity int) bool {
	return ShouldOutput(verbosity, OutputCRDTWireBuffer)
}

// Worker output helpers

// ShouldShowWorkerStdout returns true if scene worker stdout should be forwarded
func ShouldShowWorkerStdout(verbosity int) bool {
	return ShouldOutput(verbosity, OutputWorkerStdout)
}

// ShouldShowWorkerStderr returns true if scene worker stderr should be forwarded
func ShouldShowWorkerStderr(verbosity int) bool {
	return ShouldOutput(verbosity, OutputWorkerStderr)
}

// Timing helpers

// SlowThresholdMS is the threshold in milliseconds above which timing is always shown
const SlowThresholdMS = 100

// ShouldShowTiming returns true if timing info should be displayed.
// Shows if: verbosity >= 2 (-vv) OR operation exceeded slow threshold.
func ShouldShowTiming(verbosity int, durationMS int64) bool {
	if durationMS >= SlowThresholdMS {
		return true // Always show slow operations
	}
	return ShouldOutput(verbosity, OutputTiming)
}

// ShouldShowTimingAlways returns true if timing should always be shown (slow operation)
func ShouldShowTimingAlways(durationMS int64) bool {
	return durationMS >= SlowThresholdMS
}
