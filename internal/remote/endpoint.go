// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package remote

import "fmt"

// Role says which side of a run an endpoint is.
type Role int

const (
	RoleLocal Role = iota
	RoleRemote
)

func (r Role) String() string {
	if r == RoleRemote {
		return "remote"
	}
	return "local"
}

// HostEndpoint identifies where a command runs. It is passed explicitly to
// every call; no connection state outlives a call.
type HostEndpoint struct {
	Address string
	Role    Role
	// Adapter and AdapterPort name the HCA device and port the diagnostic
	// tools bind to on this host.
	Adapter     string
	AdapterPort string
}

// Local returns the local endpoint.
func Local(adapter, port string) HostEndpoint {
	return HostEndpoint{Address: "localhost", Role: RoleLocal, Adapter: adapter, AdapterPort: port}
}

// Remote returns a remote endpoint at address.
func Remote(address, adapter, port string) HostEndpoint {
	return HostEndpoint{Address: address, Role: RoleRemote, Adapter: adapter, AdapterPort: port}
}

func (e HostEndpoint) String() string {
	return fmt.Sprintf("%s(%s)", e.Role, e.Address)
}
