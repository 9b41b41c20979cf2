package asyncmqtt

import (
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the file form of the client settings.
type Config struct {
	Broker    BrokerConfig    `yaml:"broker"`
	Client    ClientConfig    `yaml:"client"`
	Auth      AuthConfig      `yaml:"auth"`
	Will      *WillConfig     `yaml:"will"`
	TLS       TLSConfig       `yaml:"tls"`
	Transport TransportConfig `yaml:"transport"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// BrokerConfig locates the broker.
type BrokerConfig struct {
	Scheme string `yaml:"scheme"`
	Host   string `yaml:"host"`
	Port   int    `yaml:"port"`
	Path   string `yaml:"path"` // unix scheme only
	Proxy  string `yaml:"proxy"`
}

// ClientConfig holds the session settings.
type ClientConfig struct {
	ID              string  `yaml:"id"`
	GenerateID      bool    `yaml:"generate_id"`
	ProtocolVersion int     `yaml:"protocol_version"`
	KeepAlive       int     `yaml:"keep_alive"`
	CleanSession    bool    `yaml:"clean_session"`
	MaxTopicLength  int     `yaml:"max_topic_length"`
	MaxPacketSize   uint32  `yaml:"max_packet_size"`
	PublishRate     float64 `yaml:"publish_rate"`
	PublishBurst    int     `yaml:"publish_burst"`
}

// AuthConfig holds credentials.
type AuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// WillConfig describes the will message.
type WillConfig struct {
	Topic   string `yaml:"topic"`
	Payload string `yaml:"payload"`
	QoS     byte   `yaml:"qos"`
	Retain  bool   `yaml:"retain"`
}

// TLSConfig controls the TLS schemes.
type TLSConfig struct {
	ServerName         string   `yaml:"server_name"`
	InsecureSkipVerify bool     `yaml:"insecure_skip_verify"`
	Fingerprints       []string `yaml:"fingerprints"`
}

// TransportConfig tunes ConnTransport.
type TransportConfig struct {
	SendBufferSize int           `yaml:"send_buffer_size"`
	PollInterval   time.Duration `yaml:"poll_interval"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
}

// LoggingConfig selects the log level.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// LoadConfig reads a YAML file, applies MQTT_* environment overrides and
// validates the result.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns the settings used for keys a file leaves out.
func DefaultConfig() *Config {
	return &Config{
		Broker: BrokerConfig{
			Scheme: "tcp",
			Host:   "localhost",
			Port:   1883,
		},
		Client: ClientConfig{
			ProtocolVersion: int(ProtocolV311),
			KeepAlive:       int(DefaultKeepAlive),
			CleanSession:    true,
			MaxTopicLength:  defaultMaxTopicBytes,
		},
		Transport: TransportConfig{
			SendBufferSize: DefaultSendBufferSize,
			PollInterval:   DefaultPollInterval,
			WriteTimeout:   5 * time.Second,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MQTT_HOST"); v != "" {
		cfg.Broker.Host = v
	}
	if v := os.Getenv("MQTT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Broker.Port = port
		}
	}
	if v := os.Getenv("MQTT_USERNAME"); v != "" {
		cfg.Auth.Username = v
	}
	if v := os.Getenv("MQTT_PASSWORD"); v != "" {
		cfg.Auth.Password = v
	}
	if v := os.Getenv("MQTT_CLIENT_ID"); v != "" {
		cfg.Client.ID = v
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	var errs []error

	switch c.Broker.Scheme {
	case "unix":
		if c.Broker.Path == "" {
			errs = append(errs, errors.New("broker.path is required for the unix scheme"))
		}
	case "tcp", "mqtt", "tls", "ssl", "mqtts", "ws", "wss", "quic":
		if c.Broker.Host == "" {
			errs = append(errs, errors.New("broker.host is required"))
		}
		if c.Broker.Port < 1 || c.Broker.Port > 65535 {
			errs = append(errs, fmt.Errorf("broker.port %d out of range", c.Broker.Port))
		}
	default:
		errs = append(errs, fmt.Errorf("broker.scheme %q is not supported", c.Broker.Scheme))
	}

	if !ProtocolVersion(c.Client.ProtocolVersion).Valid() {
		errs = append(errs, fmt.Errorf("client.protocol_version %d: %w", c.Client.ProtocolVersion, ErrInvalidProtocolVersion))
	}
	if c.Client.KeepAlive < 0 || c.Client.KeepAlive > maxUint16 {
		errs = append(errs, fmt.Errorf("client.keep_alive %d out of range", c.Client.KeepAlive))
	}
	if c.Client.PublishRate < 0 {
		errs = append(errs, errors.New("client.publish_rate must not be negative"))
	}

	if c.Auth.Password != "" && c.Auth.Username == "" && c.Client.ProtocolVersion == int(ProtocolV311) {
		errs = append(errs, ErrPasswordWithoutUsername)
	}

	if c.Will != nil {
		if err := ValidateTopicName(c.Will.Topic); err != nil {
			errs = append(errs, fmt.Errorf("will.topic: %w", err))
		}
		if c.Will.QoS > 2 {
			errs = append(errs, fmt.Errorf("will.qos: %w", ErrInvalidQoS))
		}
	}

	for _, fp := range c.TLS.Fingerprints {
		if _, err := ParseFingerprint(fp); err != nil {
			errs = append(errs, fmt.Errorf("tls.fingerprints: %w", err))
		}
	}

	return errors.Join(errs...)
}

// BrokerURL returns the broker location as scheme://host:port, or
// unix://path for a socket.
func (c *Config) BrokerURL() string {
	if c.Broker.Scheme == "unix" {
		return "unix://" + c.Broker.Path
	}
	return c.Broker.Scheme + "://" + net.JoinHostPort(c.Broker.Host, strconv.Itoa(c.Broker.Port))
}

// TLSClientConfig returns the TLS settings for the TLS schemes.
func (c *Config) TLSClientConfig() *tls.Config {
	return &tls.Config{
		MinVersion:         tls.VersionTLS12,
		ServerName:         c.TLS.ServerName,
		InsecureSkipVerify: c.TLS.InsecureSkipVerify, //nolint:gosec // opt-in for fingerprint pinning
	}
}

// NewTransport builds the ConnTransport and the address for the configured
// broker.
func (c *Config) NewTransport() (*ConnTransport, string, error) {
	dialer, address, err := NewDialer(c.BrokerURL(), c.TLSClientConfig(), c.Broker.Proxy)
	if err != nil {
		return nil, "", err
	}

	t := NewConnTransport(dialer,
		WithSendBufferSize(c.Transport.SendBufferSize),
		WithPollInterval(c.Transport.PollInterval),
		WithWriteTimeout(c.Transport.WriteTimeout),
	)

	return t, address, nil
}

// Logger returns a logrus-backed logger at the configured level.
func (c *Config) Logger(w io.Writer) Logger {
	return NewLogrusLogger(nil, w, ParseLogLevel(c.Logging.Level))
}

// Options converts the configuration to client options. The server address
// is the one returned by NewTransport.
func (c *Config) Options(address string) ([]Option, error) {
	opts := []Option{
		WithServer(address),
		WithProtocolVersion(ProtocolVersion(c.Client.ProtocolVersion)),
		WithKeepAlive(uint16(c.Client.KeepAlive)),
		WithCleanSession(c.Client.CleanSession),
		WithMaxTopicLength(c.Client.MaxTopicLength),
		WithMaxPacketSize(c.Client.MaxPacketSize),
	}

	if c.Client.ID != "" {
		opts = append(opts, WithClientID(c.Client.ID))
	}
	if c.Client.GenerateID {
		opts = append(opts, WithGeneratedClientID())
	}

	if c.Auth.Username != "" || c.Auth.Password != "" {
		opts = append(opts, WithCredentials(c.Auth.Username, c.Auth.Password))
	}

	if c.Will != nil {
		opts = append(opts, WithWill(&Will{
			Topic:   c.Will.Topic,
			Payload: []byte(c.Will.Payload),
			QoS:     c.Will.QoS,
			Retain:  c.Will.Retain,
		}))
	}

	if c.Client.PublishRate > 0 {
		burst := c.Client.PublishBurst
		if burst < 1 {
			burst = 1
		}
		opts = append(opts, WithPublishRateLimit(c.Client.PublishRate, burst))
	}

	if len(c.TLS.Fingerprints) > 0 {
		fps := make([]Fingerprint, 0, len(c.TLS.Fingerprints))
		for _, s := range c.TLS.Fingerprints {
			fp, err := ParseFingerprint(s)
			if err != nil {
				return nil, err
			}
			fps = append(fps, fp)
		}
		opts = append(opts, WithFingerprints(fps...))
	}

	return opts, nil
}
