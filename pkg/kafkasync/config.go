// Package kafkasync drives SCRAM credential synchronisation against a Kafka
// cluster: a long-lived admin-client session plus the single operation it
// exists to perform, upserting SCRAM credential alterations for a user.
//
// Config and its Validate method parse once, populate unexported derived
// fields (tls, sasl), and reject bad input at load time rather than at
// first use.
package kafkasync

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/twmb/franz-go/pkg/sasl"
	"github.com/twmb/franz-go/pkg/sasl/plain"
	"github.com/twmb/franz-go/pkg/sasl/scram"

	kcscram "github.com/scramsync/kcsync/pkg/scram"
)

// SecurityProtocol mirrors Kafka's own security.protocol values.
type SecurityProtocol string

const (
	ProtocolPlaintext     SecurityProtocol = "PLAINTEXT"
	ProtocolSSL           SecurityProtocol = "SSL"
	ProtocolSASLPlaintext SecurityProtocol = "SASL_PLAINTEXT"
	ProtocolSASLSSL       SecurityProtocol = "SASL_SSL"
)

// Config is the environment-driven admin-client configuration surface.
// Field names track the KAFKA_* environment variables they are loaded from
// (see LoadConfig); Resolve, if set, is applied to the secret-bearing
// string fields before validation so vault:// references (pkg/secrets) can
// stand in for them without Config itself depending on Vault.
type Config struct {
	BootstrapServers []string
	SecurityProtocol SecurityProtocol
	SASLMechanism    string
	SASLJAASConfig   string

	// SSLTruststoreLocation points at a PEM CA bundle. There is no
	// truststore password: PEM CA bundles carry no encryption, unlike the
	// JKS truststores the KAFKA_SSL_* naming descends from.
	SSLTruststoreLocation string
	// SSLKeystoreLocation points at a PEM file holding the client
	// certificate and its private key. SSLKeyPassword decrypts the private
	// key when it is PEM-encrypted; SSLKeystorePassword is its fallback for
	// configs that only set the store-level password.
	SSLKeystoreLocation string
	SSLKeystorePassword string
	SSLKeyPassword      string

	RequestTimeoutMs    int
	DefaultAPITimeoutMs int

	// Resolve, when non-nil, is applied to every secret-bearing field
	// (SASLJAASConfig, the SSL passwords) before Validate uses them. A nil
	// Resolve is a pass-through; see pkg/secrets.Resolver.Resolve for the
	// vault:// indirection this hook exists for.
	Resolve func(string) (string, error)

	tls  *tls.Config
	sasl sasl.Mechanism
}

const (
	DefaultBootstrapServers    = "localhost:9092"
	DefaultRequestTimeoutMs    = 30000
	DefaultDefaultAPITimeoutMs = 60000
)

// LoadConfig builds a Config from the KAFKA_* environment variables,
// applying the defaults above, then validates it. Environment variables are
// the only operator surface; there is no config file format.
func LoadConfig() (Config, error) {
	c := Config{
		BootstrapServers:      splitCSV(getenv("KAFKA_BOOTSTRAP_SERVERS", DefaultBootstrapServers)),
		SecurityProtocol:      SecurityProtocol(getenv("KAFKA_SECURITY_PROTOCOL", string(ProtocolPlaintext))),
		SASLMechanism:         os.Getenv("KAFKA_SASL_MECHANISM"),
		SASLJAASConfig:        os.Getenv("KAFKA_SASL_JAAS_CONFIG"),
		SSLTruststoreLocation: os.Getenv("KAFKA_SSL_TRUSTSTORE_LOCATION"),
		SSLKeystoreLocation:   os.Getenv("KAFKA_SSL_KEYSTORE_LOCATION"),
		SSLKeystorePassword:   os.Getenv("KAFKA_SSL_KEYSTORE_PASSWORD"),
		SSLKeyPassword:        os.Getenv("KAFKA_SSL_KEY_PASSWORD"),
		RequestTimeoutMs:      getenvInt("KAFKA_REQUEST_TIMEOUT_MS", DefaultRequestTimeoutMs),
		DefaultAPITimeoutMs:   getenvInt("KAFKA_DEFAULT_API_TIMEOUT_MS", DefaultDefaultAPITimeoutMs),
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate resolves secret-bearing fields (if c.Resolve is set), then parses
// and checks c, populating the unexported tls/sasl derived fields.
// Everything that can fail is discovered here, at load time, not on the
// first admin call.
func (c *Config) Validate() error {
	if len(c.BootstrapServers) == 0 {
		return fmt.Errorf("kafkasync: at least one bootstrap server required")
	}
	if c.RequestTimeoutMs <= 0 {
		c.RequestTimeoutMs = DefaultRequestTimeoutMs
	}
	if c.DefaultAPITimeoutMs <= 0 {
		c.DefaultAPITimeoutMs = DefaultDefaultAPITimeoutMs
	}

	if err := c.resolveSecrets(); err != nil {
		return err
	}

	switch c.SecurityProtocol {
	case ProtocolPlaintext:
	case ProtocolSASLPlaintext:
		if err := c.buildSASL(); err != nil {
			return err
		}
	case ProtocolSSL:
		if err := c.buildTLS(); err != nil {
			return err
		}
	case ProtocolSASLSSL:
		if err := c.buildTLS(); err != nil {
			return err
		}
		if err := c.buildSASL(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("kafkasync: unknown security protocol %q", c.SecurityProtocol)
	}
	return nil
}

func (c *Config) resolveSecrets() error {
	if c.Resolve == nil {
		return nil
	}
	for _, f := range []*string{
		&c.SASLJAASConfig, &c.SSLKeystorePassword, &c.SSLKeyPassword,
	} {
		if *f == "" {
			continue
		}
		resolved, err := c.Resolve(*f)
		if err != nil {
			return fmt.Errorf("kafkasync: resolving secret: %w", err)
		}
		*f = resolved
	}
	return nil
}

// buildTLS constructs a *tls.Config from the SSL_* fields. Endpoint
// identification is left to Go's default (hostname verification enabled);
// operators running against a self-signed test cluster set
// KAFKA_SSL_TRUSTSTORE_LOCATION to a CA bundle rather than disabling
// verification outright, since franz-go (unlike the Java client) has no
// ssl.endpoint.identification.algorithm="" escape hatch -- see DESIGN.md.
func (c *Config) buildTLS() error {
	tc := &tls.Config{}
	if c.SSLTruststoreLocation != "" {
		pem, err := os.ReadFile(c.SSLTruststoreLocation)
		if err != nil {
			return fmt.Errorf("kafkasync: reading truststore: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return fmt.Errorf("kafkasync: truststore %q contains no certificates", c.SSLTruststoreLocation)
		}
		tc.RootCAs = pool
	}
	if c.SSLKeystoreLocation != "" {
		pemData, err := os.ReadFile(c.SSLKeystoreLocation)
		if err != nil {
			return fmt.Errorf("kafkasync: reading keystore: %w", err)
		}
		cert, err := keystoreCertificate(pemData, c.keyPassword())
		if err != nil {
			return fmt.Errorf("kafkasync: loading keystore: %w", err)
		}
		tc.Certificates = []tls.Certificate{cert}
	}
	c.tls = tc
	return nil
}

// keyPassword is the passphrase for the keystore's private key.
// KAFKA_SSL_KEY_PASSWORD names the key's own password; configs that only
// set the store-level KAFKA_SSL_KEYSTORE_PASSWORD get that as a fallback,
// matching how the Java client treats the two properties.
func (c Config) keyPassword() string {
	if c.SSLKeyPassword != "" {
		return c.SSLKeyPassword
	}
	return c.SSLKeystorePassword
}

// keystoreCertificate splits a combined PEM keystore into its certificate
// chain and private key, decrypting an RFC 1423 encrypted key block with
// password when one is present. PKCS#8-encrypted keys ("ENCRYPTED PRIVATE
// KEY" blocks) are not decryptable with the standard library; operators
// re-encode those with openssl into legacy PEM encryption or strip the
// passphrase.
func keystoreCertificate(pemData []byte, password string) (tls.Certificate, error) {
	var certPEM, keyPEM []byte
	rest := pemData
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		switch {
		case block.Type == "CERTIFICATE":
			certPEM = append(certPEM, pem.EncodeToMemory(block)...)
		case block.Type == "ENCRYPTED PRIVATE KEY":
			return tls.Certificate{}, fmt.Errorf("keystore key uses PKCS#8 encryption, which is unsupported; re-encode the key with openssl")
		case strings.HasSuffix(block.Type, "PRIVATE KEY"):
			if x509.IsEncryptedPEMBlock(block) { //nolint:staticcheck // RFC 1423 is what openssl emits for legacy encrypted PEM keys; there is no stdlib replacement
				if password == "" {
					return tls.Certificate{}, fmt.Errorf("keystore private key is encrypted and no key password is configured")
				}
				der, err := x509.DecryptPEMBlock(block, []byte(password)) //nolint:staticcheck
				if err != nil {
					return tls.Certificate{}, fmt.Errorf("decrypting keystore private key: %w", err)
				}
				block = &pem.Block{Type: block.Type, Bytes: der}
			}
			keyPEM = pem.EncodeToMemory(block)
		}
	}
	if len(certPEM) == 0 || len(keyPEM) == 0 {
		return tls.Certificate{}, fmt.Errorf("keystore must contain both a certificate and a private key")
	}
	return tls.X509KeyPair(certPEM, keyPEM)
}

// jaasUser matches `username="..."` inside a JAAS config string such as
// `org.apache.kafka.common.security.plain.PlainLoginModule required
// username="alice" password="hunter2";`. Minimal on purpose: kcsync only
// ever needs the username/password pair out of it, never a full JAAS
// grammar.
var jaasUser = regexp.MustCompile(`username="([^"]*)"`)
var jaasPass = regexp.MustCompile(`password="([^"]*)"`)

func (c *Config) buildSASL() error {
	if c.SASLMechanism == "" {
		return fmt.Errorf("kafkasync: KAFKA_SASL_MECHANISM required for %s", c.SecurityProtocol)
	}
	user, pass, err := parseJAAS(c.SASLJAASConfig)
	if err != nil {
		return fmt.Errorf("kafkasync: KAFKA_SASL_JAAS_CONFIG: %w", err)
	}

	switch strings.ToUpper(c.SASLMechanism) {
	case "PLAIN":
		c.sasl = plain.Auth{User: user, Pass: pass}.AsMechanism()
	case string(kcscram.SCRAMSHA256):
		c.sasl = scram.Auth{User: user, Pass: pass}.AsSha256Mechanism()
	case string(kcscram.SCRAMSHA512):
		c.sasl = scram.Auth{User: user, Pass: pass}.AsSha512Mechanism()
	default:
		return fmt.Errorf("kafkasync: unsupported SASL mechanism %q (only PLAIN, SCRAM-SHA-256, SCRAM-SHA-512 are supported)", c.SASLMechanism)
	}
	return nil
}

func parseJAAS(jaas string) (user, pass string, err error) {
	if jaas == "" {
		return "", "", fmt.Errorf("empty JAAS config")
	}
	um := jaasUser.FindStringSubmatch(jaas)
	pm := jaasPass.FindStringSubmatch(jaas)
	if um == nil || pm == nil {
		return "", "", fmt.Errorf("could not parse username/password")
	}
	return um[1], pm[1], nil
}

func (c Config) requestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutMs) * time.Millisecond
}

func (c Config) defaultAPITimeout() time.Duration {
	return time.Duration(c.DefaultAPITimeoutMs) * time.Millisecond
}
