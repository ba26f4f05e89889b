package directory_test

import (
	"context"
	"testing"

	"github.com/go-ldap/ldap/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scramsync/kcsync/pkg/directory"
)

// fakeConn is a hand-written stand-in for the subset of ldap.Client that
// LDAPDirectory calls. LDAPDirectory only ever calls three methods, so a
// small fake covering exactly those beats a generated mock of the full
// vendor interface.
type fakeConn struct {
	boundAs, boundPW string
	bindErr          error

	searchReq *ldap.SearchRequest
	searchRes *ldap.SearchResult
	searchErr error

	closed bool
}

func (f *fakeConn) Bind(username, password string) error {
	f.boundAs, f.boundPW = username, password
	return f.bindErr
}

func (f *fakeConn) SearchWithPaging(req *ldap.SearchRequest, _ uint32) (*ldap.SearchResult, error) {
	f.searchReq = req
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.searchRes, nil
}

func (f *fakeConn) Close() {
	f.closed = true
}

func entryWith(attr, value string) *ldap.SearchResult {
	return &ldap.SearchResult{
		Entries: []*ldap.Entry{
			{
				DN: "uid=jdoe,dc=example,dc=com",
				Attributes: []*ldap.EntryAttribute{
					{Name: attr, Values: []string{value}},
				},
			},
		},
	}
}

func validConfig(t *testing.T) directory.Config {
	t.Helper()
	cfg := directory.Config{
		URL:    "ldap://directory.example.com:389",
		BaseDN: "dc=example,dc=com",
	}
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestUserByIDReturnsUsernameFromEntry(t *testing.T) {
	cfg := validConfig(t)
	d := directory.NewLDAPDirectory(cfg)

	fc := &fakeConn{searchRes: entryWith("uid", "jdoe")}
	ctx := directory.WithClient(context.Background(), fc)

	u, err := d.UserByID(ctx, "realm1", "f47ac10b-58cc-4372-a567-0e02b2c3d479")
	require.NoError(t, err)
	assert.Equal(t, "jdoe", u.Username())
	assert.Equal(t, "f47ac10b-58cc-4372-a567-0e02b2c3d479", u.ID())
	assert.True(t, fc.closed, "UserByID must close the connection it dialed")
}

func TestUserByIDBindsWhenCredentialsConfigured(t *testing.T) {
	cfg := validConfig(t)
	cfg.BindDN = "cn=admin,dc=example,dc=com"
	cfg.BindPW = "s3cret"
	require.NoError(t, cfg.Validate())
	d := directory.NewLDAPDirectory(cfg)

	fc := &fakeConn{searchRes: entryWith("uid", "jdoe")}
	ctx := directory.WithClient(context.Background(), fc)

	_, err := d.UserByID(ctx, "realm1", "user-id")
	require.NoError(t, err)
	assert.Equal(t, "cn=admin,dc=example,dc=com", fc.boundAs)
	assert.Equal(t, "s3cret", fc.boundPW)
}

func TestUserByIDSkipsBindWhenNoBindDN(t *testing.T) {
	cfg := validConfig(t)
	d := directory.NewLDAPDirectory(cfg)

	fc := &fakeConn{searchRes: entryWith("uid", "jdoe")}
	ctx := directory.WithClient(context.Background(), fc)

	_, err := d.UserByID(ctx, "realm1", "user-id")
	require.NoError(t, err)
	assert.Empty(t, fc.boundAs, "no bind should be attempted without a configured BindDN")
}

func TestUserByIDNoEntriesIsError(t *testing.T) {
	cfg := validConfig(t)
	d := directory.NewLDAPDirectory(cfg)

	fc := &fakeConn{searchRes: &ldap.SearchResult{}}
	ctx := directory.WithClient(context.Background(), fc)

	_, err := d.UserByID(ctx, "realm1", "missing-id")
	require.Error(t, err)
}

func TestUserByIDMissingAttributeIsError(t *testing.T) {
	cfg := validConfig(t)
	d := directory.NewLDAPDirectory(cfg)

	fc := &fakeConn{searchRes: entryWith("uid", "")}
	ctx := directory.WithClient(context.Background(), fc)

	_, err := d.UserByID(ctx, "realm1", "user-id")
	require.Error(t, err)
}

func TestUserByIDUsesConfiguredUIDAttributeInFilter(t *testing.T) {
	cfg := validConfig(t)
	cfg.UIDAttribute = "objectGUID"
	require.NoError(t, cfg.Validate())
	d := directory.NewLDAPDirectory(cfg)

	fc := &fakeConn{searchRes: entryWith("uid", "jdoe")}
	ctx := directory.WithClient(context.Background(), fc)

	_, err := d.UserByID(ctx, "realm1", "user-id")
	require.NoError(t, err)
	require.NotNil(t, fc.searchReq)
	assert.Contains(t, fc.searchReq.Filter, "objectGUID=user-id")
}

func TestUserByIDEscapesFilterValue(t *testing.T) {
	cfg := validConfig(t)
	d := directory.NewLDAPDirectory(cfg)

	fc := &fakeConn{searchRes: entryWith("uid", "jdoe")}
	ctx := directory.WithClient(context.Background(), fc)

	_, err := d.UserByID(ctx, "realm1", "user)(uid=*")
	require.NoError(t, err)
	assert.NotContains(t, fc.searchReq.Filter, "user)(uid=*")
}

func TestUserByIDSearchErrorPropagates(t *testing.T) {
	cfg := validConfig(t)
	d := directory.NewLDAPDirectory(cfg)

	fc := &fakeConn{searchErr: assertableErr{"search failed"}}
	ctx := directory.WithClient(context.Background(), fc)

	_, err := d.UserByID(ctx, "realm1", "user-id")
	require.Error(t, err)
}

type assertableErr struct{ msg string }

func (e assertableErr) Error() string { return e.msg }
