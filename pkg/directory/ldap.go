package directory

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"net/url"
	"time"

	"github.com/go-ldap/ldap/v3"

	"github.com/scramsync/kcsync/pkg/hostapi"
)

func certPool(pem []byte) (*x509.CertPool, error) {
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("directory: no certificates found in ca cert")
	}
	return pool, nil
}

// conn is the subset of ldap.Client that LDAPDirectory actually calls. The
// full ldap.Client interface carries two dozen bind variants and directory
// mutation methods (Add, Del, Modify, PasswordModify, ...) that a read-only
// point lookup never touches; depending on only what we use lets unit tests
// inject a small hand-written fake instead of a generated mock. *ldap.Conn,
// returned by ldap.NewConn, satisfies conn.
type conn interface {
	Bind(username, password string) error
	SearchWithPaging(req *ldap.SearchRequest, pagingSize uint32) (*ldap.SearchResult, error)
	Close()
}

type clientKey struct{}

// WithClient attaches an already-connected conn to ctx. LDAPDirectory
// prefers it over dialing the configured URL; unit tests use this seam to
// inject a fake conn instead of dialing a real server.
func WithClient(parent context.Context, client conn) context.Context {
	return context.WithValue(parent, clientKey{}, client)
}

func dial(ctx context.Context, u *url.URL, tc *tls.Config) (conn, error) {
	if cl, ok := ctx.Value(clientKey{}).(conn); ok {
		return cl, nil
	}

	dialer := &net.Dialer{Timeout: ldap.DefaultTimeout}
	host := u.Host

	switch u.Scheme {
	case "ldap":
		if _, _, err := net.SplitHostPort(host); err != nil {
			host = net.JoinHostPort(host, ldap.DefaultLdapPort)
		}
		netConn, err := dialer.DialContext(ctx, "tcp", host)
		if err != nil {
			return nil, err
		}
		c := ldap.NewConn(netConn, false)
		c.Start()
		return c, nil
	case "ldaps":
		if _, _, err := net.SplitHostPort(host); err != nil {
			host = net.JoinHostPort(host, ldap.DefaultLdapsPort)
		}
		tlsDialer := tls.Dialer{NetDialer: dialer, Config: tc}
		netConn, err := tlsDialer.DialContext(ctx, "tcp", host)
		if err != nil {
			return nil, err
		}
		c := ldap.NewConn(netConn, true)
		c.Start()
		return c, nil
	default:
		return nil, fmt.Errorf("directory: unsupported ldap scheme %q", u.Scheme)
	}
}

// LDAPDirectory implements hostapi.UserDirectory by performing a one-shot
// bound search per lookup.
type LDAPDirectory struct {
	cfg     Config
	timeout time.Duration
}

// NewLDAPDirectory returns an LDAPDirectory using cfg, which must already
// have passed Validate.
func NewLDAPDirectory(cfg Config) *LDAPDirectory {
	return &LDAPDirectory{cfg: cfg, timeout: 10 * time.Second}
}

var _ hostapi.UserDirectory = (*LDAPDirectory)(nil)

type ldapUser struct {
	id, username string
}

func (u ldapUser) ID() string       { return u.id }
func (u ldapUser) Username() string { return u.username }

// UserByID searches the directory for an entry whose UIDAttribute equals
// userID and returns its UsernameAttribute. realmID is accepted for
// interface symmetry with other UserDirectory implementations (a host
// backed by multiple LDAP trees might select BaseDN per realm); this
// implementation has one fixed BaseDN per directory instance.
func (d *LDAPDirectory) UserByID(ctx context.Context, _, userID string) (hostapi.User, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	conn, err := dial(ctx, d.cfg.parsedURL, d.cfg.tls)
	if err != nil {
		return nil, fmt.Errorf("directory: dial: %w", err)
	}
	defer conn.Close()

	if d.cfg.BindDN != "" {
		if err := conn.Bind(d.cfg.BindDN, d.cfg.BindPW); err != nil {
			return nil, fmt.Errorf("directory: bind: %w", err)
		}
	}

	filter := fmt.Sprintf("(%s=%s)", d.cfg.UIDAttribute, ldap.EscapeFilter(userID))
	req := ldap.NewSearchRequest(
		d.cfg.BaseDN,
		ldap.ScopeWholeSubtree, ldap.NeverDerefAliases, 1, int(d.timeout.Seconds()), false,
		filter,
		[]string{d.cfg.UsernameAttribute},
		nil,
	)

	res, err := conn.SearchWithPaging(req, 1)
	if err != nil {
		return nil, fmt.Errorf("directory: search: %w", err)
	}
	if len(res.Entries) == 0 {
		return nil, fmt.Errorf("directory: no entry for user id %q", userID)
	}

	username := res.Entries[0].GetAttributeValue(d.cfg.UsernameAttribute)
	if username == "" {
		return nil, fmt.Errorf("directory: entry for %q missing attribute %q", userID, d.cfg.UsernameAttribute)
	}
	return ldapUser{id: userID, username: username}, nil
}
