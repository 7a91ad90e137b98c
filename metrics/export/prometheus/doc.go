// Package prometheus exposes engine metrics through a client_golang
// Collector.
//
// The collector reads Engine.MetricsSnapshot on every scrape. It never
// registers itself globally; callers register it or mount Handler, which
// serves a private registry.
package prometheus
