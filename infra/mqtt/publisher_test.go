package mqtt

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/json"
	"encoding/pem"
	"errors"
	"math/big"
	"os"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coremetrics "github.com/evsim/cpsim/core/metrics"
)

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

// mockClient implements pahoClient for tests.
type mockClient struct {
	opts        *paho.ClientOptions
	published   []published
	publishErrs []error
}

func (m *mockClient) IsConnected() bool { return true }
func (m *mockClient) Connect() paho.Token {
	if m.opts != nil && m.opts.OnConnect != nil {
		m.opts.OnConnect(nil)
	}
	return dummyToken{}
}
func (m *mockClient) Disconnect(uint) {}
func (m *mockClient) Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token {
	m.published = append(m.published, published{topic, qos, retained, payload.([]byte)})
	if len(m.publishErrs) > 0 {
		err := m.publishErrs[0]
		m.publishErrs = m.publishErrs[1:]
		return dummyToken{err: err}
	}
	return dummyToken{}
}

type dummyToken struct{ err error }

func (d dummyToken) Wait() bool                     { return true }
func (d dummyToken) WaitTimeout(time.Duration) bool { return true }
func (d dummyToken) Done() <-chan struct{}          { ch := make(chan struct{}); close(ch); return ch }
func (d dummyToken) Error() error                   { return d.err }

func newTestPublisher(t *testing.T, mc *mockClient, cfg Config) *Publisher {
	t.Helper()
	old := newMQTTClient
	newMQTTClient = func(o *paho.ClientOptions) pahoClient { mc.opts = o; return mc }
	t.Cleanup(func() { newMQTTClient = old })
	pub, err := NewPublisher(cfg)
	require.NoError(t, err)
	return pub
}

func TestRecordSamplesGroupsByConnector(t *testing.T) {
	mc := &mockClient{}
	pub := newTestPublisher(t, mc, Config{Broker: "tcp://localhost:1883", ClientID: "cp001", QoS: 1})

	now := time.Now()
	err := pub.RecordSamples([]coremetrics.Sample{
		{ConnectorID: 1, Measurand: "Power.Active.Import", Value: 7400, Unit: "W", Time: now},
		{ConnectorID: 1, Measurand: "Voltage", Value: 230, Unit: "V", Time: now},
		{ConnectorID: 2, Measurand: "Power.Active.Import", Value: 3700, Unit: "W", Time: now},
	})
	require.NoError(t, err)
	require.Len(t, mc.published, 2)

	topics := map[string]published{}
	for _, p := range mc.published {
		topics[p.topic] = p
	}
	msg1, ok := topics["cpsim/connector/1/meter"]
	require.True(t, ok)
	assert.Equal(t, byte(1), msg1.qos)

	var decoded sampleMessage
	require.NoError(t, json.Unmarshal(msg1.payload, &decoded))
	assert.Equal(t, 1, decoded.ConnectorID)
	assert.Len(t, decoded.Samples, 2)
	assert.Equal(t, now.UnixMilli(), decoded.Timestamp)

	_, ok = topics["cpsim/connector/2/meter"]
	assert.True(t, ok)
}

func TestRecordLimitPublishesRestriction(t *testing.T) {
	mc := &mockClient{}
	pub := newTestPublisher(t, mc, Config{Broker: "tcp://localhost:1883", ClientID: "cp001", TopicPrefix: "station"})

	power := 11000.0
	require.NoError(t, pub.RecordLimit(coremetrics.LimitUpdate{ConnectorID: 1, PowerW: &power, Time: time.Now()}))
	require.Len(t, mc.published, 1)
	assert.Equal(t, "station/connector/1/limit", mc.published[0].topic)

	var msg struct {
		PowerW     *float64 `json:"power_w"`
		Restricted bool     `json:"restricted"`
	}
	require.NoError(t, json.Unmarshal(mc.published[0].payload, &msg))
	require.NotNil(t, msg.PowerW)
	assert.InDelta(t, 11000, *msg.PowerW, 0.01)
	assert.True(t, msg.Restricted)
}

func TestRecordConnectionIsRetained(t *testing.T) {
	mc := &mockClient{}
	pub := newTestPublisher(t, mc, Config{Broker: "tcp://localhost:1883", ClientID: "cp001"})

	require.NoError(t, pub.RecordConnection(coremetrics.ConnectionUpdate{State: "Connected", Time: time.Now()}))
	require.Len(t, mc.published, 1)
	assert.Equal(t, "cpsim/connection", mc.published[0].topic)
	assert.True(t, mc.published[0].retained)
}

func TestPublishErrorPropagates(t *testing.T) {
	mc := &mockClient{publishErrs: []error{errors.New("net fail")}}
	pub := newTestPublisher(t, mc, Config{Broker: "tcp://localhost:1883", ClientID: "cp001"})

	err := pub.RecordSamples([]coremetrics.Sample{{ConnectorID: 1, Measurand: "Voltage", Value: 230, Unit: "V"}})
	assert.Error(t, err)
}

func generateCert(t *testing.T) (certFile, keyFile, caFile string) {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	tmpl := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "test"},
		NotBefore:    time.Now(),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, &priv.PublicKey, priv)
	require.NoError(t, err)
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(priv)})

	dir := t.TempDir()
	certFile = dir + "/cert.pem"
	keyFile = dir + "/key.pem"
	caFile = dir + "/ca.pem"
	require.NoError(t, os.WriteFile(certFile, certPEM, 0o644))
	require.NoError(t, os.WriteFile(keyFile, keyPEM, 0o644))
	require.NoError(t, os.WriteFile(caFile, certPEM, 0o644))
	return
}

func TestLoadTLSConfig(t *testing.T) {
	cert, key, ca := generateCert(t)
	cfg := Config{UseTLS: true, ClientCert: cert, ClientKey: key, CABundle: ca}
	tlsCfg, err := cfg.LoadTLSConfig()
	require.NoError(t, err)
	assert.NotEmpty(t, tlsCfg.Certificates)
	assert.NotNil(t, tlsCfg.RootCAs)
}

func TestNewClientOptionsAuth(t *testing.T) {
	opts, err := NewClientOptions(Config{Broker: "tcp://localhost:1883", ClientID: "id", Username: "u", Password: "p"})
	require.NoError(t, err)
	assert.Equal(t, "u", opts.Username)
	assert.Equal(t, "p", opts.Password)
}

func TestNewClientOptionsLWT(t *testing.T) {
	opts, err := NewClientOptions(Config{
		Broker: "tcp://localhost:1883", ClientID: "id",
		LWTTopic: "cpsim/connection", LWTPayload: `{"state":"Disconnected"}`, LWTQoS: 1, LWTRetain: true,
	})
	require.NoError(t, err)
	assert.True(t, opts.WillEnabled)
	assert.Equal(t, "cpsim/connection", opts.WillTopic)
}
