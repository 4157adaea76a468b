// Package directory is the read-only gateway to the registry's LDAP backend.
// Sessions are scoped to a single query: connect lazily, run at most two
// searches, always disconnect.
package directory

import (
	"context"
	"errors"
	"fmt"
	"time"

	ldap "github.com/go-ldap/ldap/v3"

	"github.com/opennic/whoisd/internal/whois/common/log"
	"github.com/opennic/whoisd/internal/whois/common/utils"
	"github.com/opennic/whoisd/internal/whois/domain"
)

var (
	// ErrUnavailable collapses dial, bind, and search transport failures into
	// one outcome. The distinction is logged here, never surfaced to clients.
	ErrUnavailable = errors.New("directory unavailable")

	// ErrNotFound is an empty result set: a normal outcome, distinct from an
	// unreachable backend.
	ErrNotFound = errors.New("record not found in directory")
)

// Zone entry attributes requested from the directory.
const (
	attrDomain      = "associatedDomain"
	attrDescription = "description"
	attrManager     = "manager"
	attrExpiration  = "dateExpiration"
	attrCreated     = "createTimestamp"
	attrModified    = "modifyTimestamp"
	attrDisabled    = "zoneDisabled"
	attrCreator     = "creatorsName"
)

// Contact entry attributes.
const (
	attrCommonName = "cn"
	attrMail       = "mail"
)

// Config carries the directory connection parameters.
type Config struct {
	// URL is the directory address, e.g. "ldaps://ldap.example.net:636".
	URL      string
	BindDN   string
	Password string

	// ZoneBase and UserBase are the subtrees for zone and contact searches.
	ZoneBase string
	UserBase string

	// Timeout bounds dialing and each search.
	Timeout time.Duration
}

// Conn is the subset of *ldap.Conn the gateway uses, seam for tests.
type Conn interface {
	Search(req *ldap.SearchRequest) (*ldap.SearchResult, error)
	Close() error
}

// DialFunc establishes an authenticated directory connection.
type DialFunc func(ctx context.Context, cfg Config) (Conn, error)

// Session is one query's scoped view of the directory.
type Session interface {
	// SearchZone resolves a zone record by domain name. The name is
	// qualified before the filter is built: a bare label gets a trailing
	// dot, matching root-zone registration conventions.
	SearchZone(name string) (domain.ZoneRecord, error)

	// SearchContact resolves a contact record by bare user identifier.
	SearchContact(uid string) (domain.ContactRecord, error)

	Close() error
}

// Client builds per-request directory sessions.
type Client struct {
	cfg    Config
	dial   DialFunc
	logger log.Logger
}

// Options configures a Client. Dial is a test seam; when nil the real
// TLS dial+bind path is used.
type Options struct {
	Config Config
	Logger log.Logger
	Dial   DialFunc
}

// New creates a directory client. The connection itself is deferred until
// Connect, so construction never touches the network.
func New(opts Options) *Client {
	if opts.Logger == nil {
		opts.Logger = log.NewNoopLogger()
	}
	if opts.Dial == nil {
		opts.Dial = dialLDAP
	}
	if opts.Config.Timeout <= 0 {
		opts.Config.Timeout = 10 * time.Second
	}
	return &Client{
		cfg:    opts.Config,
		dial:   opts.Dial,
		logger: opts.Logger,
	}
}

// dialLDAP is the production dial path: TLS transport via the ldaps URL
// scheme, then a simple bind.
func dialLDAP(ctx context.Context, cfg Config) (Conn, error) {
	conn, err := ldap.DialURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", cfg.URL, err)
	}
	conn.SetTimeout(cfg.Timeout)
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining > 0 && remaining < cfg.Timeout {
			conn.SetTimeout(remaining)
		}
	}
	if err := conn.Bind(cfg.BindDN, cfg.Password); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("bind as %s: %w", cfg.BindDN, err)
	}
	return conn, nil
}

// Connect opens an authenticated session. Any dial or bind failure maps to
// ErrUnavailable; the underlying cause is logged with detail.
func (c *Client) Connect(ctx context.Context) (Session, error) {
	conn, err := c.dial(ctx, c.cfg)
	if err != nil {
		c.logger.Error(map[string]any{
			"url":   c.cfg.URL,
			"error": err.Error(),
		}, "Directory connection failed")
		return nil, ErrUnavailable
	}
	return &session{conn: conn, cfg: c.cfg, logger: c.logger}, nil
}

type session struct {
	conn   Conn
	cfg    Config
	logger log.Logger
}

func (s *session) Close() error { return s.conn.Close() }

func (s *session) SearchZone(name string) (domain.ZoneRecord, error) {
	qualified := utils.QualifyDomain(name)
	filter := fmt.Sprintf("(%s=%s)", attrDomain, ldap.EscapeFilter(qualified))

	entry, err := s.searchOne(s.cfg.ZoneBase, filter, []string{
		attrDomain, attrDescription, attrManager, attrExpiration,
		attrCreated, attrModified, attrDisabled, attrCreator,
	})
	if err != nil {
		return domain.ZoneRecord{}, err
	}
	return s.zoneFromEntry(entry), nil
}

func (s *session) SearchContact(uid string) (domain.ContactRecord, error) {
	filter := fmt.Sprintf("(uid=%s)", ldap.EscapeFilter(uid))

	entry, err := s.searchOne(s.cfg.UserBase, filter, []string{attrCommonName, attrMail})
	if err != nil {
		return domain.ContactRecord{}, err
	}
	return domain.ContactRecord{
		Name:  domain.First(entry.GetAttributeValues(attrCommonName)),
		Email: domain.First(entry.GetAttributeValues(attrMail)),
	}, nil
}

// searchOne runs a whole-subtree search and returns the first entry.
func (s *session) searchOne(base, filter string, attrs []string) (*ldap.Entry, error) {
	req := ldap.NewSearchRequest(
		base,
		ldap.ScopeWholeSubtree,
		ldap.NeverDerefAliases,
		0, // no size limit
		int(s.cfg.Timeout.Seconds()),
		false,
		filter,
		attrs,
		nil,
	)

	res, err := s.conn.Search(req)
	if err != nil {
		s.logger.Error(map[string]any{
			"base":   base,
			"filter": filter,
			"error":  err.Error(),
		}, "Directory search failed")
		return nil, ErrUnavailable
	}
	if len(res.Entries) == 0 {
		return nil, ErrNotFound
	}
	return res.Entries[0], nil
}

// zoneFromEntry maps raw directory attributes into a ZoneRecord, defaulting
// every absent or malformed field instead of failing the query.
func (s *session) zoneFromEntry(entry *ldap.Entry) domain.ZoneRecord {
	rec := domain.ZoneRecord{
		Domain:      domain.First(entry.GetAttributeValues(attrDomain)),
		Description: domain.First(entry.GetAttributeValues(attrDescription)),
		ManagerID:   domain.LocalID(domain.First(entry.GetAttributeValues(attrManager))),
		Disabled:    domain.IsDisabled(domain.First(entry.GetAttributeValues(attrDisabled))),
		CreatorDN:   domain.First(entry.GetAttributeValues(attrCreator)),
	}

	rec.Created = s.parseStamp(entry, attrCreated, true)
	rec.Modified = s.parseStamp(entry, attrModified, true)
	rec.Expiration = s.parseStamp(entry, attrExpiration, false)

	return rec
}

// parseStamp reads a timestamp attribute. required marks attributes whose
// absence is a registry data error worth logging; expiration is optional and
// its absence simply means the domain never expires.
func (s *session) parseStamp(entry *ldap.Entry, attr string, required bool) time.Time {
	raw := domain.First(entry.GetAttributeValues(attr))
	if raw == "" {
		if required {
			s.logger.Error(map[string]any{
				"dn":        entry.DN,
				"attribute": attr,
			}, "Zone entry missing required timestamp")
		}
		return time.Time{}
	}
	t, err := domain.ParseDirectoryTime(raw)
	if err != nil {
		s.logger.Warn(map[string]any{
			"dn":        entry.DN,
			"attribute": attr,
			"error":     err.Error(),
		}, "Malformed timestamp attribute, treating as absent")
		return time.Time{}
	}
	return t
}
