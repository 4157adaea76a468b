package domain

import (
	"strings"
	"time"
)

// ZoneRecord is a read-only snapshot of one registered domain, fetched from
// the directory per query and never persisted here.
type ZoneRecord struct {
	// Domain is the registered name, e.g. "example.oss".
	Domain string

	// Description is free-form registry text. May be empty.
	Description string

	// ManagerID is the bare local identifier of the zone's administrative
	// contact, with directory DN decoration already stripped.
	ManagerID string

	// Created and Modified come from the directory's operational timestamps.
	// A zero value means the attribute was absent or malformed, which is an
	// upstream data error the caller logs but never fails on.
	Created  time.Time
	Modified time.Time

	// Expiration is zero when the registration never expires.
	Expiration time.Time

	Disabled bool

	// CreatorDN is the raw distinguished name of whoever created the entry,
	// used for registrar attribution.
	CreatorDN string
}

// ContactRecord describes the registrant resolved from the zone's manager.
// Absence of a contact is a valid outcome: the domain may be abandoned.
type ContactRecord struct {
	Name  string
	Email string
}

// OutcomeKind enumerates the four terminal results of a query.
type OutcomeKind int

const (
	OutcomeExceeded OutcomeKind = iota
	OutcomeOffline
	OutcomeNotFound
	OutcomeFound
)

// Outcome is the transient result of one query, consumed immediately by the
// response formatter.
type Outcome struct {
	Kind OutcomeKind

	// Zone, Contact and Registrar are only meaningful when Kind is
	// OutcomeFound. Contact is nil when no contact record exists.
	Zone      ZoneRecord
	Contact   *ContactRecord
	Registrar string
}

// RegistrarPolicy derives the display attribution for who issued a domain:
// a top-tier registrar, the root authority, or the raw identifier fallback.
type RegistrarPolicy struct {
	// RootDN is the distinguished name of the root registry account.
	RootDN string

	// TopTier lists the local identifiers of recognized top-tier registrars.
	TopTier []string

	// TierSuffix is appended to a top-tier identifier for display,
	// e.g. ".opennic.glue".
	TierSuffix string

	// RootLabel is shown when the creator is the root account.
	RootLabel string
}

// Label resolves the registrar attribution for a raw creator DN.
func (p RegistrarPolicy) Label(creatorDN string) string {
	id := LocalID(creatorDN)
	lower := strings.ToLower(id)
	for _, t := range p.TopTier {
		if lower == strings.ToLower(t) {
			return id + p.TierSuffix
		}
	}
	if creatorDN == p.RootDN {
		return p.RootLabel
	}
	return id
}
