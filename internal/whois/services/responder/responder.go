// Package responder orchestrates one WHOIS query: quota check, two-stage
// directory lookup, and fixed-protocol response assembly.
package responder

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"

	"github.com/opennic/whoisd/internal/whois/common/clock"
	"github.com/opennic/whoisd/internal/whois/common/log"
	"github.com/opennic/whoisd/internal/whois/common/utils"
	"github.com/opennic/whoisd/internal/whois/domain"
	"github.com/opennic/whoisd/internal/whois/gateways/directory"
	"github.com/opennic/whoisd/internal/whois/repos/quota"
)

// Responder implements QueryResponder. One instance serves all connections;
// all per-query state lives on the stack of HandleQuery.
type Responder struct {
	quota     QuotaStore
	directory Directory
	registrar domain.RegistrarPolicy
	formatter *Formatter
	clock     clock.Clock
	logger    log.Logger
	limit     int64
}

// Options wires a Responder's collaborators.
type Options struct {
	Quota     QuotaStore
	Directory Directory
	Registrar domain.RegistrarPolicy
	Formatter *Formatter
	Clock     clock.Clock
	Logger    log.Logger

	// Limit is the daily per-client query quota. A query whose
	// post-increment count reaches Limit is refused.
	Limit int64
}

// New creates a Responder. Clock and Logger default to the real clock and a
// noop logger when unset.
func New(opts Options) *Responder {
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	if opts.Logger == nil {
		opts.Logger = log.NewNoopLogger()
	}
	return &Responder{
		quota:     opts.Quota,
		directory: opts.Directory,
		registrar: opts.Registrar,
		formatter: opts.Formatter,
		clock:     opts.Clock,
		logger:    opts.Logger,
		limit:     opts.Limit,
	}
}

// HandleQuery runs the full state machine for one connection: quota check,
// then directory lookup, then exactly one response written to w. Every
// branch produces a complete response with header and footer.
func (r *Responder) HandleQuery(ctx context.Context, rawQuery string, client net.Addr, w io.Writer) error {
	name := strings.TrimSpace(rawQuery)
	key := clientKey(client)
	day := quota.DayKey(r.clock.Now())

	r.logger.Info(map[string]any{
		"domain": name,
		"client": key,
	}, "Domain lookup")

	outcome := r.resolve(ctx, name, key, day)
	return r.formatter.WriteResponse(w, outcome)
}

// resolve walks the branch structure and returns the single terminal outcome
// for this query.
func (r *Responder) resolve(ctx context.Context, name, key, day string) domain.Outcome {
	count, err := r.quota.CheckAndIncrement(ctx, key, day)
	if err != nil {
		// An unreachable quota store aborts the request with the generic
		// outage body. It must never silently grant unlimited queries.
		r.logger.Error(map[string]any{
			"client": key,
			"error":  err.Error(),
		}, "Quota store failure")
		return domain.Outcome{Kind: domain.OutcomeOffline}
	}
	if count >= r.limit {
		r.logger.Info(map[string]any{
			"client": key,
			"count":  count,
			"limit":  r.limit,
		}, "Daily query quota exceeded")
		return domain.Outcome{Kind: domain.OutcomeExceeded}
	}

	return r.lookup(ctx, name, key)
}

// lookup performs the two-stage directory resolution inside one scoped
// session: the zone record first, then the zone manager's contact.
func (r *Responder) lookup(ctx context.Context, name, key string) domain.Outcome {
	sess, err := r.directory.Connect(ctx)
	if err != nil {
		return domain.Outcome{Kind: domain.OutcomeOffline}
	}
	defer func() { _ = sess.Close() }()

	zone, err := sess.SearchZone(name)
	switch {
	case errors.Is(err, directory.ErrNotFound):
		r.logger.Info(map[string]any{
			"domain": name,
			"client": key,
			"icann":  utils.ICANNManaged(name),
		}, "Domain not in registry")
		return domain.Outcome{Kind: domain.OutcomeNotFound}
	case err != nil:
		return domain.Outcome{Kind: domain.OutcomeOffline}
	}

	out := domain.Outcome{
		Kind:      domain.OutcomeFound,
		Zone:      zone,
		Registrar: r.registrar.Label(zone.CreatorDN),
	}

	// A missing or unreachable contact never fails the query; the domain is
	// reported as possibly abandoned instead.
	if zone.ManagerID == "" {
		r.logger.Warn(map[string]any{
			"domain": zone.Domain,
		}, "Zone entry has no manager attribute")
		return out
	}
	contact, err := sess.SearchContact(zone.ManagerID)
	switch {
	case errors.Is(err, directory.ErrNotFound):
		r.logger.Debug(map[string]any{
			"domain":  zone.Domain,
			"manager": zone.ManagerID,
		}, "No contact record for zone manager")
	case err != nil:
		r.logger.Warn(map[string]any{
			"domain":  zone.Domain,
			"manager": zone.ManagerID,
		}, "Contact lookup failed, reporting registrant as unknown")
	default:
		out.Contact = &contact
	}
	return out
}

// clientKey derives the quota key from the peer address: the bare host
// portion, with any port stripped.
func clientKey(addr net.Addr) string {
	if addr == nil {
		return "unknown"
	}
	s := addr.String()
	if host, _, err := net.SplitHostPort(s); err == nil {
		return host
	}
	return s
}
