// Package mqtt publishes simulator telemetry to an MQTT broker using
// Eclipse Paho.
package mqtt

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"os"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	coremetrics "github.com/evsim/cpsim/core/metrics"
	"github.com/evsim/cpsim/infra/logger"
)

// Config defines the connection parameters for the Paho MQTT client.
type Config struct {
	Broker      string      `json:"broker"`
	ClientID    string      `json:"client_id"`
	Username    string      `json:"username"`
	Password    string      `json:"password"`
	TopicPrefix string      `json:"topic_prefix"`
	QoS         byte        `json:"qos"`
	Retain      bool        `json:"retain"`
	UseTLS      bool        `json:"use_tls"`
	ClientCert  string      `json:"client_cert"`
	ClientKey   string      `json:"client_key"`
	CABundle    string      `json:"ca_bundle"`
	LWTTopic    string      `json:"lwt_topic"`
	LWTPayload  string      `json:"lwt_payload"`
	LWTQoS      byte        `json:"lwt_qos"`
	LWTRetain   bool        `json:"lwt_retain"`
	TLSConfig   *tls.Config `json:"-"`
}

type pahoClient interface {
	IsConnected() bool
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
}

var newMQTTClient = func(opts *paho.ClientOptions) pahoClient {
	return paho.NewClient(opts)
}

// Publisher forwards meter samples, limit changes and connection
// transitions to MQTT topics under the configured prefix.
type Publisher struct {
	cli    pahoClient
	prefix string
	qos    byte
	retain bool
	log    logger.Logger
}

// NewPublisher connects to the broker described by cfg.
func NewPublisher(cfg Config) (*Publisher, error) {
	opts, err := NewClientOptions(cfg)
	if err != nil {
		return nil, err
	}

	log := logger.New("mqtt_publisher")
	opts.OnConnect = func(paho.Client) {
		log.Infof("MQTT connected")
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		log.Errorf("connection lost: %v", err)
	}
	opts.OnReconnecting = func(_ paho.Client, _ *paho.ClientOptions) {
		log.Warnf("reconnecting to MQTT broker")
	}

	c := newMQTTClient(opts)
	if token := c.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}

	prefix := cfg.TopicPrefix
	if prefix == "" {
		prefix = "cpsim"
	}
	return &Publisher{cli: c, prefix: prefix, qos: cfg.QoS, retain: cfg.Retain, log: log}, nil
}

// NewClientOptions builds mqtt client options from Config. A missing
// client id is generated so two simulators never collide on the broker.
func NewClientOptions(cfg Config) (*paho.ClientOptions, error) {
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "cpsim-" + uuid.NewString()
	}
	opts := paho.NewClientOptions().AddBroker(cfg.Broker).SetClientID(clientID)
	opts.AutoReconnect = true
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	if cfg.UseTLS {
		tlsCfg, err := cfg.LoadTLSConfig()
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsCfg)
	}
	if cfg.LWTTopic != "" {
		opts.SetWill(cfg.LWTTopic, cfg.LWTPayload, cfg.LWTQoS, cfg.LWTRetain)
	}
	return opts, nil
}

// LoadTLSConfig loads the TLS configuration from the file paths in the config.
func (c Config) LoadTLSConfig() (*tls.Config, error) {
	if c.TLSConfig != nil {
		return c.TLSConfig, nil
	}
	if c.ClientCert == "" || c.ClientKey == "" || c.CABundle == "" {
		return nil, fmt.Errorf("tls config requires client_cert, client_key and ca_bundle")
	}
	cert, err := tls.LoadX509KeyPair(c.ClientCert, c.ClientKey)
	if err != nil {
		return nil, fmt.Errorf("load cert: %w", err)
	}
	caBytes, err := os.ReadFile(c.CABundle)
	if err != nil {
		return nil, fmt.Errorf("read ca: %w", err)
	}
	pool := x509.NewCertPool()
	pool.AppendCertsFromPEM(caBytes)
	return &tls.Config{Certificates: []tls.Certificate{cert}, RootCAs: pool, MinVersion: tls.VersionTLS12}, nil
}

type sampleMessage struct {
	ConnectorID int           `json:"connector_id"`
	Samples     []sampleValue `json:"samples"`
	Timestamp   int64         `json:"timestamp"`
}

type sampleValue struct {
	Measurand string  `json:"measurand"`
	Phase     string  `json:"phase,omitempty"`
	Value     float64 `json:"value"`
	Unit      string  `json:"unit"`
}

// RecordSamples publishes one message per connector under
// <prefix>/connector/<id>/meter.
func (p *Publisher) RecordSamples(samples []coremetrics.Sample) error {
	byConnector := make(map[int]*sampleMessage)
	for _, s := range samples {
		msg, ok := byConnector[s.ConnectorID]
		if !ok {
			msg = &sampleMessage{ConnectorID: s.ConnectorID, Timestamp: s.Time.UnixMilli()}
			byConnector[s.ConnectorID] = msg
		}
		msg.Samples = append(msg.Samples, sampleValue{
			Measurand: s.Measurand,
			Phase:     s.Phase,
			Value:     s.Value,
			Unit:      s.Unit,
		})
	}
	for id, msg := range byConnector {
		topic := fmt.Sprintf("%s/connector/%d/meter", p.prefix, id)
		if err := p.publish(topic, msg); err != nil {
			return err
		}
	}
	return nil
}

// RecordLimit publishes the new effective limit for a connector.
func (p *Publisher) RecordLimit(u coremetrics.LimitUpdate) error {
	msg := struct {
		ConnectorID int      `json:"connector_id"`
		PowerW      *float64 `json:"power_w,omitempty"`
		CurrentA    *float64 `json:"current_a,omitempty"`
		Restricted  bool     `json:"restricted"`
		Timestamp   int64    `json:"timestamp"`
	}{
		ConnectorID: u.ConnectorID,
		PowerW:      u.PowerW,
		CurrentA:    u.CurrentA,
		Restricted:  u.PowerW != nil || u.CurrentA != nil,
		Timestamp:   u.Time.UnixMilli(),
	}
	return p.publish(fmt.Sprintf("%s/connector/%d/limit", p.prefix, u.ConnectorID), msg)
}

// RecordConnection publishes supervisor transitions. The message is
// retained so late subscribers see the current state.
func (p *Publisher) RecordConnection(u coremetrics.ConnectionUpdate) error {
	msg := struct {
		State     string `json:"state"`
		Attempt   int    `json:"attempt"`
		Timestamp int64  `json:"timestamp"`
	}{State: u.State, Attempt: u.Attempt, Timestamp: u.Time.UnixMilli()}

	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	token := p.cli.Publish(p.prefix+"/connection", p.qos, true, payload)
	if token.Wait() && token.Error() != nil {
		return token.Error()
	}
	return nil
}

func (p *Publisher) publish(topic string, msg any) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	token := p.cli.Publish(topic, p.qos, p.retain, payload)
	if token.Wait() && token.Error() != nil {
		return token.Error()
	}
	return nil
}

// Close disconnects from the broker.
func (p *Publisher) Close() {
	p.cli.Disconnect(250)
}
