package timeseries

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Record is one row of a Flux query result.
type Record struct {
	Measurement string
	Field       string
	Value       any
	Time        time.Time
	Values      map[string]any
}

// Client is the narrow slice of an InfluxDB client the pool drives.
// Implementations must be safe for concurrent use.
type Client interface {
	Ping(ctx context.Context) error
	BucketExists(ctx context.Context, bucket string) (bool, error)
	WritePoints(ctx context.Context, bucket string, points []*Point) error
	Query(ctx context.Context, flux string) ([]Record, error)
	DeleteMeasurement(ctx context.Context, bucket, measurement string, start, stop time.Time) error
	Close()
}

type influxClient struct {
	client influxdb2.Client
	org    string
}

var _ Client = (*influxClient)(nil)

// newHTTPClient sizes the transport after the pool configuration.
func newHTTPClient(cfg *Config) *http.Client {
	dialer := &net.Dialer{Timeout: cfg.ConnectionTimeout, KeepAlive: 30 * time.Second}
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         dialer.DialContext,
		MaxConnsPerHost:     int(cfg.MaxConnections),
		MaxIdleConnsPerHost: int(cfg.MaxConnections),
		IdleConnTimeout:     cfg.IdleTimeout,
		TLSHandshakeTimeout: cfg.ConnectionTimeout,
	}
	return &http.Client{Transport: transport}
}

// NewInfluxClient wraps the official client. Request deadlines come from the
// caller's context.
func NewInfluxClient(cfg *Config) Client {
	opts := influxdb2.DefaultOptions().
		SetHTTPClient(newHTTPClient(cfg)).
		SetMaxRetries(uint(cfg.RetryAttempts))
	return &influxClient{
		client: influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, opts),
		org:    cfg.Org,
	}
}

func (c *influxClient) Ping(ctx context.Context) error {
	ok, err := c.client.Ping(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("server at %s did not answer ping", c.client.ServerURL())
	}
	return nil
}

func (c *influxClient) BucketExists(ctx context.Context, bucket string) (bool, error) {
	_, err := c.client.BucketsAPI().FindBucketByName(ctx, bucket)
	if err == nil {
		return true, nil
	}
	if strings.Contains(err.Error(), "not found") {
		return false, nil
	}
	return false, err
}

func (c *influxClient) WritePoints(ctx context.Context, bucket string, points []*Point) error {
	native := make([]*write.Point, len(points))
	for i, p := range points {
		native[i] = p.native()
	}
	return c.client.WriteAPIBlocking(c.org, bucket).WritePoint(ctx, native...)
}

func (c *influxClient) Query(ctx context.Context, flux string) ([]Record, error) {
	result, err := c.client.QueryAPI(c.org).Query(ctx, flux)
	if err != nil {
		return nil, err
	}
	defer result.Close()
	var records []Record
	for result.Next() {
		r := result.Record()
		records = append(records, Record{
			Measurement: r.Measurement(),
			Field:       r.Field(),
			Value:       r.Value(),
			Time:        r.Time(),
			Values:      r.Values(),
		})
	}
	if err := result.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

func (c *influxClient) DeleteMeasurement(ctx context.Context, bucket, measurement string, start, stop time.Time) error {
	predicate := fmt.Sprintf("_measurement=%q", measurement)
	return c.client.DeleteAPI().DeleteWithName(ctx, c.org, bucket, start, stop, predicate)
}

func (c *influxClient) Close() {
	c.client.Close()
}
