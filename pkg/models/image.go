package models

// ScalerKind names the backend an image's jobs are scheduled onto.
type ScalerKind string

const (
	ScalerCluster   ScalerKind = "cluster"
	ScalerBareMetal ScalerKind = "bare_metal"
	ScalerWindows   ScalerKind = "windows"
	ScalerVM        ScalerKind = "vm"
	ScalerExternal  ScalerKind = "external"
)

// Pool selects the scaler's resource-accounting lane for an image.
type Pool string

const (
	PoolDeadline  Pool = "deadline"
	PoolFairShare Pool = "fair_share"
)

// Resources is a request for compute resources.
type Resources struct {
	CPUMillis       int64 `json:"cpu_millis"`
	MemoryBytes     int64 `json:"memory_bytes"`
	EphemeralBytes  int64 `json:"ephemeral_bytes"`
	GPU             int64 `json:"gpu"`
}

// SecurityContext mirrors the subset of a pod security context the
// platform controls directly.
type SecurityContext struct {
	RunAsUser    *int64 `json:"run_as_user,omitempty"`
	RunAsGroup   *int64 `json:"run_as_group,omitempty"`
	Privileged   bool   `json:"privileged,omitempty"`
	ReadOnlyRoot bool   `json:"read_only_root,omitempty"`
}

// Volume is a named volume mounted into a job's container.
type Volume struct {
	Name      string `json:"name"`
	MountPath string `json:"mount_path"`
	HostPath  string `json:"host_path,omitempty"`
}

// ArgStrategy controls how per-image CLI arguments are assembled.
type ArgStrategy string

const (
	ArgStrategyPositional ArgStrategy = "positional"
	ArgStrategyKwargs     ArgStrategy = "kwargs"
	ArgStrategySwitches   ArgStrategy = "switches"
)

// OutputHandler describes how a stage's tool output becomes a Result.
type OutputHandler struct {
	Kind   string         `json:"kind"`
	Config map[string]any `json:"config,omitempty"`
}

// Image is the execution descriptor for one stage's container.
type Image struct {
	Name              string            `json:"name"`
	Group             string            `json:"group"`
	Image             string            `json:"image"` // container reference
	Resources         Resources         `json:"resources"`
	ScalerKind        ScalerKind        `json:"scaler_kind"`
	Pool              Pool              `json:"pool"`
	SecurityContext   SecurityContext   `json:"security_context"`
	Volumes           []Volume          `json:"volumes,omitempty"`
	HostPathMounts    []Volume          `json:"host_path_mounts,omitempty"`
	ArgStrategy       ArgStrategy       `json:"arg_strategy"`
	OutputHandler     OutputHandler     `json:"output_handler"`
	NetworkPolicies   []string          `json:"network_policies,omitempty"`
	SpawnLimit        int               `json:"spawn_limit,omitempty"`
	Bans              []string          `json:"bans,omitempty"`
}

// Banned reports whether the image currently carries a persistent ban
// (e.g. an unauthorized host-path mount, §3 Image invariant).
func (img *Image) Banned() bool { return len(img.Bans) > 0 }

// ValidateHostPaths checks every host-path mount against the system
// whitelist, unless unrestricted host paths are enabled system-wide.
// Returns a ban reason (non-empty) when any mount is disallowed.
func (img *Image) ValidateHostPaths(whitelist []string, unrestricted bool) string {
	if unrestricted {
		return ""
	}
	allowed := make(map[string]struct{}, len(whitelist))
	for _, p := range whitelist {
		allowed[p] = struct{}{}
	}
	for _, v := range img.HostPathMounts {
		if _, ok := allowed[v.HostPath]; !ok {
			return "host path " + v.HostPath + " not in system whitelist"
		}
	}
	return ""
}
