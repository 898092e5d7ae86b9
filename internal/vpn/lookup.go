// BuffaLogs - Login Anomaly Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/buffalogs

package vpn

import (
	"fmt"
	"net/netip"
	"sort"
	"strings"
	"sync"
)

// Lookup is a set of anonymizer addresses and networks. Exact addresses
// are matched through a map; prefixes are scanned most specific first.
type Lookup struct {
	mu       sync.RWMutex
	addrs    map[netip.Addr]*entry
	prefixes []prefixEntry
	sorted   bool
	provs    map[string]struct{}
}

type entry struct {
	provider string
	country  string
	hostname string
	source   string
}

type prefixEntry struct {
	prefix netip.Prefix
	info   *entry
}

// NewLookup returns an empty Lookup.
func NewLookup() *Lookup {
	return &Lookup{
		addrs: make(map[netip.Addr]*entry),
		provs: make(map[string]struct{}),
	}
}

// ParseNetwork accepts "203.0.113.7", "2001:db8::1" or "198.51.100.0/24".
// IPv4-mapped IPv6 addresses are unmapped.
func ParseNetwork(s string) (netip.Prefix, error) {
	s = strings.TrimSpace(s)
	if strings.Contains(s, "/") {
		p, err := netip.ParsePrefix(s)
		if err != nil {
			return netip.Prefix{}, fmt.Errorf("invalid CIDR %q: %w", s, err)
		}
		if p.Addr().Is4In6() {
			p = netip.PrefixFrom(p.Addr().Unmap(), p.Bits()-96)
		}
		return p.Masked(), nil
	}
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Prefix{}, fmt.Errorf("invalid IP %q: %w", s, err)
	}
	addr = addr.Unmap()
	return netip.PrefixFrom(addr, addr.BitLen()), nil
}

// Add inserts one address or prefix.
func (l *Lookup) Add(network, provider, source string) error {
	p, err := ParseNetwork(network)
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.insert(p, &entry{provider: provider, source: source})
	return nil
}

// AddServer inserts the addresses of one VPN server. Invalid addresses are
// skipped; the number inserted is returned.
func (l *Lookup) AddServer(provider, source string, srv GluetunServer) int {
	info := &entry{provider: provider, country: srv.Country, hostname: srv.Hostname, source: source}

	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, ip := range srv.IPs {
		p, err := ParseNetwork(ip)
		if err != nil {
			continue
		}
		l.insert(p, info)
		n++
	}
	return n
}

func (l *Lookup) insert(p netip.Prefix, info *entry) {
	if info.provider != "" {
		l.provs[info.provider] = struct{}{}
	}
	if p.IsSingleIP() {
		l.addrs[p.Addr()] = info
		return
	}
	l.prefixes = append(l.prefixes, prefixEntry{prefix: p, info: info})
	l.sorted = false
}

// LookupIP reports whether ip is anonymous and what matched it.
func (l *Lookup) LookupIP(ip string) LookupResult {
	addr, err := netip.ParseAddr(strings.TrimSpace(ip))
	if err != nil {
		return LookupResult{}
	}
	addr = addr.Unmap()

	l.ensureSorted()
	l.mu.RLock()
	defer l.mu.RUnlock()

	if info, ok := l.addrs[addr]; ok {
		return info.result(addr.String())
	}
	for _, pe := range l.prefixes {
		if pe.prefix.Contains(addr) {
			return pe.info.result(pe.prefix.String())
		}
	}
	return LookupResult{}
}

// Contains is LookupIP without the details.
func (l *Lookup) Contains(ip string) bool {
	return l.LookupIP(ip).Anonymous
}

func (l *Lookup) ensureSorted() {
	l.mu.RLock()
	sorted := l.sorted
	l.mu.RUnlock()
	if sorted {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	sort.SliceStable(l.prefixes, func(i, j int) bool {
		return l.prefixes[i].prefix.Bits() > l.prefixes[j].prefix.Bits()
	})
	l.sorted = true
}

func (e *entry) result(network string) LookupResult {
	return LookupResult{
		Anonymous: true,
		Provider:  DisplayName(e.provider),
		Country:   e.country,
		Hostname:  e.hostname,
		Network:   network,
		Source:    e.source,
	}
}

// Count returns the number of addresses and prefixes.
func (l *Lookup) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.addrs) + len(l.prefixes)
}

// Providers returns the number of distinct providers.
func (l *Lookup) Providers() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.provs)
}
