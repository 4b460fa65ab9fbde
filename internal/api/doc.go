// Package api serves the gateway's read-only HTTP surface: health checks
// and tenant/conversation listings for dashboards and probes.
package api
