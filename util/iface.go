package util

import (
	"net"
	"sort"

	"github.com/google/gopacket/pcap"
	"github.com/pkg/errors"
	psnet "github.com/shirou/gopsutil/v3/net"
)

// Interface describes one capture device. Every lookup returns a fresh value.
type Interface struct {
	Name         string
	Description  string
	Index        int
	MTU          int
	HardwareAddr net.HardwareAddr
	Flags        []string
	IPv4         []string
	IPv6         []string
}

// Loopback reports whether the kernel flags the device as loopback.
func (ifi *Interface) Loopback() bool {
	for _, f := range ifi.Flags {
		if f == "loopback" {
			return true
		}
	}
	return false
}

// ListInterfaces returns the devices libpcap can open, enriched with the
// system's view of each one (index, MTU, hardware address).
func ListInterfaces() ([]Interface, error) {
	devs, err := pcap.FindAllDevs()
	if err != nil {
		return nil, errors.Wrap(err, "find devices")
	}
	stats, err := psnet.Interfaces()
	if err != nil {
		return nil, errors.Wrap(err, "list interfaces")
	}
	byName := make(map[string]psnet.InterfaceStat, len(stats))
	for _, st := range stats {
		byName[st.Name] = st
	}

	result := make([]Interface, 0, len(devs))
	for _, dev := range devs {
		ifi := Interface{Name: dev.Name}
		if st, ok := byName[dev.Name]; ok {
			ifi = fromStat(st)
		}
		ifi.Description = dev.Description
		if len(ifi.IPv4)+len(ifi.IPv6) == 0 {
			for _, a := range dev.Addresses {
				addAddr(&ifi, a.IP.String())
			}
		}
		result = append(result, ifi)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Name < result[j].Name
	})
	return result, nil
}

// LookupInterface returns the system's view of name.
func LookupInterface(name string) (Interface, error) {
	stats, err := psnet.Interfaces()
	if err != nil {
		return Interface{}, errors.Wrap(err, "list interfaces")
	}
	for _, st := range stats {
		if st.Name == name {
			return fromStat(st), nil
		}
	}
	return Interface{}, errors.Errorf("interface %s not found", name)
}

func fromStat(st psnet.InterfaceStat) Interface {
	ifi := Interface{
		Name:  st.Name,
		Index: st.Index,
		MTU:   st.MTU,
		Flags: append([]string(nil), st.Flags...),
	}
	if hw, err := net.ParseMAC(st.HardwareAddr); err == nil {
		ifi.HardwareAddr = hw
	}
	for _, a := range st.Addrs {
		addAddr(&ifi, a.Addr)
	}
	return ifi
}

// addAddr files addr, with or without a prefix length, under its family.
func addAddr(ifi *Interface, addr string) {
	ip := HostIP(addr)
	switch {
	case IsIPv4(ip):
		ifi.IPv4 = append(ifi.IPv4, ip)
	case IsIPv6(ip):
		ifi.IPv6 = append(ifi.IPv6, ip)
	}
}
