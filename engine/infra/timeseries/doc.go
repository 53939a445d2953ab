// Package timeseries provides the InfluxDB pool. The official HTTP client
// multiplexes requests over its own transport; the pool bounds concurrent use
// with leases, times every call and maps failures onto dbpool errors.
package timeseries
