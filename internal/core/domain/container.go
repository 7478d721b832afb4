package domain

// Container represents a container in the system (Docker, Podman, etc.)
type Container struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Image     string `json:"image"`
	Status    string `json:"status"`
	State     string `json:"state"` // running, exited, etc.
	IPAddress string `json:"ip_address,omitempty"`
	Port      int    `json:"port,omitempty"`
}

// LaunchOptions carries the runtime contract for one container: the port the
// scheduler routes traffic to, the identity the workers must run as and the
// host port the container port is published on (0 means not published).
type LaunchOptions struct {
	Name     string          `json:"name"`
	Port     int             `json:"port"`
	HostPort int             `json:"host_port,omitempty"`
	Identity RuntimeIdentity `json:"identity"`
	Env      []string        `json:"env,omitempty"`
}
