package models

import (
	"strings"
)

// NetworkType is the coarse connectivity class of a device
type NetworkType string

const (
	NetworkUnknown    NetworkType = "unknown"
	NetworkWiFi       NetworkType = "wifi"
	NetworkEthernet   NetworkType = "ethernet"
	NetworkCellular   NetworkType = "cellular"
	NetworkCellular5G NetworkType = "cellular_5g"
	NetworkOffline    NetworkType = "offline"
)

// networkAliases maps lowercase host spellings to a network class
var networkAliases = map[string]NetworkType{
	"unknown":      NetworkUnknown,
	"wifi":         NetworkWiFi,
	"wi-fi":        NetworkWiFi,
	"wlan":         NetworkWiFi,
	"ethernet":     NetworkEthernet,
	"eth":          NetworkEthernet,
	"wired":        NetworkEthernet,
	"lan":          NetworkEthernet,
	"cellular":     NetworkCellular,
	"mobile":       NetworkCellular,
	"2g":           NetworkCellular,
	"3g":           NetworkCellular,
	"4g":           NetworkCellular,
	"lte":          NetworkCellular,
	"cellular_5g":  NetworkCellular5G,
	"5g":           NetworkCellular5G,
	"nr":           NetworkCellular5G,
	"offline":      NetworkOffline,
	"none":         NetworkOffline,
	"disconnected": NetworkOffline,
	"no_network":   NetworkOffline,
}

// ParseNetworkType normalizes host text to a known network class.
// Unrecognized text maps to NetworkUnknown; the second result is false in that case.
func ParseNetworkType(text string) (NetworkType, bool) {
	key := strings.ToLower(strings.TrimSpace(text))
	if nt, ok := networkAliases[key]; ok {
		return nt, true
	}
	return NetworkUnknown, false
}

// Valid reports whether n is one of the declared network classes
func (n NetworkType) Valid() bool {
	switch n {
	case NetworkUnknown, NetworkWiFi, NetworkEthernet, NetworkCellular, NetworkCellular5G, NetworkOffline:
		return true
	}
	return false
}

// Metered reports whether traffic on this network is likely billed per byte
func (n NetworkType) Metered() bool {
	return n == NetworkCellular || n == NetworkCellular5G
}

func (n NetworkType) String() string {
	return string(n)
}
