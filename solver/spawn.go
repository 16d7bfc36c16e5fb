package solver

import (
	"bytes"
	"fmt"
	"os/exec"
	"path/filepath"

	"github.com/containerd/cgroups/v3"
	"github.com/containerd/cgroups/v3/cgroup1"
	"github.com/opencontainers/runtime-spec/specs-go"
	"github.com/satori/uuid"
)

// Spawner starts solver processes inside a cgroup v1 group carrying the
// configured CPU and memory limits.
type Spawner struct {
	cgroupBasePath string
	res            *ResourceControl
}

var ErrCgroupsV1NotAvailable = fmt.Errorf("cgroups v1 not available")

func NewSpawner(cgroupBasePath string, res *ResourceControl) *Spawner {
	return &Spawner{
		cgroupBasePath: cgroupBasePath,
		res:            res,
	}
}

func (s *Spawner) calcCgroupPath(sub string) string {
	sb := []byte(sub)
	haystack := []byte("abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ1234567890-_.")
	for i := range sb {
		if !bytes.Contains(haystack, []byte{sb[i]}) {
			sb[i] = '-'
		}
	}
	return filepath.Join(s.cgroupBasePath, string(sb))
}

func (s *Spawner) Init() error {
	if cgroups.Mode() != cgroups.Legacy && cgroups.Mode() != cgroups.Hybrid {
		return ErrCgroupsV1NotAvailable
	}
	return nil
}

var cgroupCPUPeriod uint64 = 50000 // in us

func (s *Spawner) resources() *specs.LinuxResources {
	r := &specs.LinuxResources{}
	if s.res == nil {
		return r
	}
	if s.res.Memory > 0 {
		mem := s.res.Memory * 1024 * 1024
		r.Memory = &specs.LinuxMemory{
			Limit: &mem,
		}
	}
	if s.res.CPU > 0 {
		quota := int64(cgroupCPUPeriod) * s.res.CPU / 100
		r.CPU = &specs.LinuxCPU{
			Quota:  &quota,
			Period: &cgroupCPUPeriod,
		}
	}
	return r
}

// Spawn starts cmd and moves it into its own cgroup. The caller waits for
// the command and deletes the returned cgroup.
func (s *Spawner) Spawn(cmd *exec.Cmd, id string) (cgroup1.Cgroup, error) {
	if id == "" {
		id = uuid.NewV4().String()
	}
	cg, err := cgroup1.New(cgroup1.StaticPath(s.calcCgroupPath(id)), s.resources())
	if err != nil {
		return nil, err
	}
	err = cmd.Start()
	if err != nil {
		cg.Delete()
		return nil, err
	}
	err = cg.AddProc(uint64(cmd.Process.Pid))
	if err != nil {
		cmd.Process.Kill()
		cmd.Wait()
		cg.Delete()
		return nil, err
	}
	return cg, nil
}
