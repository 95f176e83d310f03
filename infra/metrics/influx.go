package metrics

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/evsim/cpsim/core/metrics"
	"github.com/evsim/cpsim/infra/logger"
)

// InfluxSink writes meter readings to an InfluxDB instance using the
// official client.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	station  string
	log      logger.Logger
}

// NewInfluxSink creates a sink for the given InfluxDB endpoint. The
// station tag identifies the charge point in every point written.
func NewInfluxSink(url, token, org, bucket, station string) *InfluxSink {
	base := strings.TrimSuffix(url, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(org, bucket),
		station:  station,
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback pings the InfluxDB instance and returns a
// NopSink if the health check fails.
func NewInfluxSinkWithFallback(url, token, org, bucket, station string) coremetrics.Sink {
	sink := NewInfluxSink(url, token, org, bucket, station)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

// RecordSamples writes one point per sampled value.
func (s *InfluxSink) RecordSamples(samples []coremetrics.Sample) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, r := range samples {
		p := write.NewPointWithMeasurement("meter_value").
			AddTag("station", s.station).
			AddTag("connector", strconv.Itoa(r.ConnectorID)).
			AddTag("measurand", r.Measurand).
			AddTag("unit", r.Unit)
		if r.Phase != "" {
			p = p.AddTag("phase", r.Phase)
		}
		p = p.AddField("value", r.Value).SetTime(r.Time)
		if err := s.writeAPI.WritePoint(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

// RecordLimit writes a recomputed effective limit.
func (s *InfluxSink) RecordLimit(u coremetrics.LimitUpdate) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("charging_limit").
		AddTag("station", s.station).
		AddTag("connector", strconv.Itoa(u.ConnectorID)).
		AddField("restricted", u.PowerW != nil || u.CurrentA != nil)
	if u.PowerW != nil {
		p = p.AddField("power_w", *u.PowerW)
	}
	if u.CurrentA != nil {
		p = p.AddField("current_a", *u.CurrentA)
	}
	p = p.SetTime(u.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordConnection writes a supervisor state transition.
func (s *InfluxSink) RecordConnection(u coremetrics.ConnectionUpdate) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("connection_state").
		AddTag("station", s.station).
		AddTag("state", u.State).
		AddField("attempt", u.Attempt).
		SetTime(u.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

// Close releases the underlying HTTP client.
func (s *InfluxSink) Close() {
	s.client.Close()
}
