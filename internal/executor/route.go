package executor

import "context"

// RouteRunner dispatches each host to the local or the remote runner,
// so one fleet can mix connection=local nodes with SSH nodes.
type RouteRunner struct {
	Local   Runner
	Remote  Runner
	IsLocal func(host string) bool
}

// Run executes the command through whichever runner the predicate
// selects for the host. A nil predicate routes everything remote.
func (r *RouteRunner) Run(ctx context.Context, host string, command string) *HostResult {
	if r.IsLocal != nil && r.IsLocal(host) {
		return r.Local.Run(ctx, host, command)
	}
	return r.Remote.Run(ctx, host, command)
}
