// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package envprep

import (
	"net"

	"github.com/safchain/ethtool"
	"github.com/vishvananda/netlink"
)

// LinkInfo describes a local network interface.
type LinkInfo struct {
	Name   string
	Type   string
	Up     bool
	MTU    int
	Driver string
}

// LinkInspector looks up local interfaces.
type LinkInspector interface {
	Inspect(name string) (LinkInfo, error)
}

// NetlinkInspector reads link state over netlink and the driver name over
// the ethtool ioctl.
type NetlinkInspector struct{}

// Inspect returns the state of the named link.
func (NetlinkInspector) Inspect(name string) (LinkInfo, error) {
	link, err := netlink.LinkByName(name)
	if err != nil {
		return LinkInfo{}, err
	}
	attrs := link.Attrs()
	info := LinkInfo{
		Name: attrs.Name,
		Type: link.Type(),
		Up:   attrs.OperState == netlink.OperUp || attrs.Flags&net.FlagUp != 0,
		MTU:  attrs.MTU,
	}

	// Driver lookup is informational; IPoIB and virtual links may not answer.
	if eth, err := ethtool.NewEthtool(); err == nil {
		defer eth.Close()
		if drv, err := eth.DriverName(name); err == nil {
			info.Driver = drv
		}
	}
	return info, nil
}
