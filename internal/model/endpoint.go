package model

import (
	"fmt"
	"time"
)

// Endpoint identifies one of the backend sheets polled independently.
type Endpoint string

const (
	Payments       Endpoint = "payments"
	UserUsage      Endpoint = "user_usage"
	InterfaceStats Endpoint = "interface_stats"
	RouterHealth   Endpoint = "router_health"
)

// Endpoints returns every endpoint in initial-load order.
func Endpoints() []Endpoint {
	return []Endpoint{Payments, UserUsage, InterfaceStats, RouterHealth}
}

// ParseEndpoint validates a sheet name.
func ParseEndpoint(name string) (Endpoint, error) {
	for _, ep := range Endpoints() {
		if string(ep) == name {
			return ep, nil
		}
	}
	return "", fmt.Errorf("unknown endpoint %q", name)
}

// CacheKey is the durable storage key for the endpoint's canonical record.
func (e Endpoint) CacheKey() string {
	switch e {
	case Payments:
		return "cache_payments"
	case UserUsage:
		return "cache_usage"
	case InterfaceStats:
		return "cache_iface"
	case RouterHealth:
		return "cache_router"
	default:
		return "cache_" + string(e)
	}
}

// DefaultInterval is the background polling period for the endpoint.
func (e Endpoint) DefaultInterval() time.Duration {
	switch e {
	case Payments:
		return 15 * time.Second
	case UserUsage:
		return 20 * time.Second
	case InterfaceStats:
		return 25 * time.Second
	case RouterHealth:
		return 30 * time.Second
	default:
		return 30 * time.Second
	}
}

const (
	// CacheUpdatedKey stores the last successful update instant.
	CacheUpdatedKey = "cache_updated"
	// ThemeKey stores the dark/light preference.
	ThemeKey = "theme"
)

// Theme values persisted under ThemeKey.
const (
	ThemeDark  = "dark"
	ThemeLight = "light"
)
