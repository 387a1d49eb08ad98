package sandbox

import (
	"fmt"
	"math"
	"time"
)

// Policy defines resource limits for sandbox execution.
type Policy struct {
	MaxMemoryMB    int  // address space (local) or cgroup memory (docker)
	MaxOutputBytes int  // per stream; 0 means unlimited
	MaxFileSizeMB  int  // largest file the program may write
	MaxOpenFiles   int  // descriptor limit
	PidsLimit      int  // docker only
	Network        bool // docker only; local runs inherit the host network
	UID            int  // local only; 0 keeps the server's credentials
	GID            int
	Images         []string // allowed Docker images
}

// DefaultPolicy returns safe defaults for code execution.
func DefaultPolicy() Policy {
	return Policy{
		MaxMemoryMB:    256,
		MaxOutputBytes: 256 << 10,
		MaxFileSizeMB:  8,
		MaxOpenFiles:   64,
		PidsLimit:      64,
		Network:        false,
		Images: []string{
			"python:3.12-slim",
			"python:3.13-slim",
		},
	}
}

// IsImageAllowed checks if an image is on the allowlist.
func (p Policy) IsImageAllowed(image string) bool {
	for _, allowed := range p.Images {
		if allowed == image {
			return true
		}
	}
	return false
}

// cpuSeconds gives a CPU budget one second above the wall clock timeout
// so the wall clock normally fires first.
func cpuSeconds(timeout time.Duration) int {
	if timeout <= 0 {
		return 0
	}
	return int(math.Ceil(timeout.Seconds())) + 1
}

// bootstrap runs the user file after lowering resource limits. It also
// drops its own frame from tracebacks so errors point at the user's code.
const bootstrap = `import sys, resource, traceback
def _limit(name, value):
    value = int(value)
    if value <= 0 or not hasattr(resource, name):
        return
    try:
        resource.setrlimit(getattr(resource, name), (value, value))
    except (ValueError, OSError):
        pass
_path, _cpu, _mem, _fsize, _nofile = sys.argv[1:6]
_limit("RLIMIT_CPU", _cpu)
_limit("RLIMIT_AS", _mem)
_limit("RLIMIT_FSIZE", _fsize)
_limit("RLIMIT_NOFILE", _nofile)
sys.argv = [_path]
with open(_path, encoding="utf-8") as _f:
    _src = _f.read()
try:
    exec(compile(_src, _path, "exec"), {"__name__": "__main__", "__file__": _path})
except SystemExit:
    raise
except BaseException as _e:
    traceback.print_exception(type(_e), _e, _e.__traceback__.tb_next)
    sys.exit(1)
`

// interpreterArgs builds the python argument list that runs file through
// the bootstrap. memBytes of 0 leaves the address space unlimited.
func interpreterArgs(file string, timeout time.Duration, memBytes int64, p Policy) []string {
	return []string{
		"-I", "-B", "-c", bootstrap,
		file,
		fmt.Sprint(cpuSeconds(timeout)),
		fmt.Sprint(memBytes),
		fmt.Sprint(int64(p.MaxFileSizeMB) << 20),
		fmt.Sprint(p.MaxOpenFiles),
	}
}
