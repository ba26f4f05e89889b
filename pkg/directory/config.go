// Package directory provides hostapi.UserDirectory implementations for
// resolving a username from a user id when the admin event's own
// representation omits it.
//
// LDAPDirectory talks to an LDAP/LDAPS endpoint over
// github.com/go-ldap/ldap/v3 and performs a single point lookup by user id
// per call; there is no connection pooling or subtree mirroring.
package directory

import (
	"crypto/tls"
	"fmt"
	"net/url"
	"os"
)

// Config configures an LDAPDirectory. UIDAttribute selects the attribute
// the host's user id is stored under; UsernameAttribute selects the
// attribute returned as the username.
type Config struct {
	URL    string `json:"url"`
	BindDN string `json:"bind_dn,omitempty"`
	BindPW string `json:"bind_password,omitempty"`

	BaseDN            string `json:"base_dn"`
	UIDAttribute      string `json:"uid_attribute"`      // e.g. "entryUUID" or "objectGUID"
	UsernameAttribute string `json:"username_attribute"` // e.g. "uid" or "sAMAccountName"

	SkipVerification bool   `json:"tls_skip_verification,omitempty"`
	CACert           string `json:"tls_ca_cert,omitempty"`

	parsedURL *url.URL
	tls       *tls.Config
}

// Validate parses and checks c, populating its unexported derived fields.
func (c *Config) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("directory: url is required")
	}
	u, err := url.Parse(c.URL)
	if err != nil {
		return fmt.Errorf("directory: invalid url: %w", err)
	}
	c.parsedURL = u

	if c.BaseDN == "" {
		return fmt.Errorf("directory: base_dn is required")
	}
	if c.UIDAttribute == "" {
		c.UIDAttribute = "entryUUID"
	}
	if c.UsernameAttribute == "" {
		c.UsernameAttribute = "uid"
	}

	if u.Scheme == "ldaps" {
		tc := &tls.Config{InsecureSkipVerify: c.SkipVerification} //nolint:gosec // operator opt-in, to allow self-signed test CAs
		if c.CACert != "" {
			pem, err := os.ReadFile(c.CACert)
			if err != nil {
				return fmt.Errorf("directory: reading ca cert: %w", err)
			}
			pool, err := certPool(pem)
			if err != nil {
				return err
			}
			tc.RootCAs = pool
		}
		c.tls = tc
	}
	return nil
}
