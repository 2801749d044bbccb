package depot

// ProfilerHook receives scope markers around query passes and command-buffer
// commits. Configure one through Config.Profiler; absent, scopes are no-ops.
type ProfilerHook interface {
	ScopeStart(name string)
	ScopeEnd(name string)
}
