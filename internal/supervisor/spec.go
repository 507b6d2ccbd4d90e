package supervisor

import "time"

// Defaults for the tunnel process.
const (
	DefaultName         = "cloudflared"
	DefaultCommand      = "cloudflared"
	DefaultRestartDelay = 5 * time.Second
)

// Spec describes the supervised process. The process is restarted after
// every exit, always after the same RestartDelay; there is no backoff and
// no retry limit.
type Spec struct {
	Name         string        `json:"name"`
	Command      string        `json:"command"`
	Args         []string      `json:"args"`
	RestartDelay time.Duration `json:"restart_delay"`
	// Env holds extra "K=V" entries layered over the inherited environment.
	Env []string `json:"env,omitempty"`
}

// TunnelSpec returns the spec for `<command> tunnel --url <forward>`.
// An empty command means DefaultCommand.
func TunnelSpec(command, forward string, restartDelay time.Duration) Spec {
	if command == "" {
		command = DefaultCommand
	}
	return Spec{
		Name:         DefaultName,
		Command:      command,
		Args:         []string{"tunnel", "--url", forward},
		RestartDelay: restartDelay,
	}
}

func (s Spec) withDefaults() Spec {
	if s.Name == "" {
		s.Name = DefaultName
	}
	if s.Command == "" {
		s.Command = DefaultCommand
	}
	if s.RestartDelay <= 0 {
		s.RestartDelay = DefaultRestartDelay
	}
	return s
}
