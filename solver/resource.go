package solver

import "github.com/lcpu-club/optdeadline/configure"

type ResourceControl struct {
	Memory int64 `json:"memory" yaml:"memory" toml:"memory"` // Memory limit in MBytes
	CPU    int64 `json:"cpu" yaml:"cpu" toml:"cpu"`          // 100 for one cpu, 200 for two, 300 for three...
}

func ResourceControlFromConfigure(rc *configure.ResourceControlConfigure) *ResourceControl {
	if rc == nil {
		return nil
	}
	return &ResourceControl{
		Memory: rc.Memory,
		CPU:    rc.CPU,
	}
}

func (rc *ResourceControl) limited() bool {
	return rc != nil && (rc.Memory > 0 || rc.CPU > 0)
}
