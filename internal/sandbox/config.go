package sandbox

import (
	"slices"

	"github.com/michaelbrown/pylearn/internal/config"
)

// FromConfig builds the configured backend. Every entry point that runs
// user code goes through here so they all get the same isolation.
func FromConfig(rc config.RunnerConfig) Sandbox {
	p := DefaultPolicy()
	p.MaxMemoryMB = rc.MaxMemoryMB
	p.MaxOutputBytes = rc.MaxOutputKB << 10
	p.UID = rc.RunAsUID
	p.GID = rc.RunAsGID

	if rc.Backend == "docker" {
		if !slices.Contains(p.Images, rc.DockerImage) {
			p.Images = append(p.Images, rc.DockerImage)
		}
		return NewDockerSandbox(rc.DockerImage, p)
	}
	return NewLocalSandbox(rc.Python, p)
}
