package responder

import (
	"fmt"
	"io"
	"time"

	"github.com/opennic/whoisd/internal/whois/domain"
)

// Formatter assembles the fixed WHOIS line protocol. The header and footer
// disclaimers are written on every branch; the body is selected by the
// query outcome. Free-form directory values are sanitized before they are
// interpolated so stored data can never inject protocol lines.
type Formatter struct {
	// InfoURL names the public info/legal page in the header and the
	// not-found body.
	InfoURL string

	// LimitsURL names the quota policy page in the exceeded body.
	LimitsURL string
}

// WriteResponse emits the complete response for one query outcome.
// Bytes go to w incrementally; the first write error aborts the rest.
func (f *Formatter) WriteResponse(w io.Writer, out domain.Outcome) error {
	ew := &errWriter{w: w}

	f.writeHeader(ew)
	switch out.Kind {
	case domain.OutcomeExceeded:
		f.writeExceeded(ew)
	case domain.OutcomeOffline:
		f.writeOffline(ew)
	case domain.OutcomeNotFound:
		f.writeNotFound(ew)
	case domain.OutcomeFound:
		f.writeZone(ew, out.Zone)
		f.writeRegistrant(ew, out.Contact)
		ew.printf("Registrar: %s\n", domain.SanitizeLine(out.Registrar))
	}
	f.writeFooter(ew)

	return ew.err
}

func (f *Formatter) writeHeader(ew *errWriter) {
	ew.printf("Whois Server (%s)\n", f.InfoURL)
	ew.printf("Welcome to the OpenNIC Registry!\n")
	ew.printf("The following information is presented in the hopes that it will be useful, but OpenNIC\n")
	ew.printf("makes ABSOLUTELY NO GUARANTEE as to its accuracy. For more information please visit\n")
	ew.printf("www.opennic.glue or www.opennicproject.org.\n\n")
}

func (f *Formatter) writeFooter(ew *errWriter) {
	ew.printf("\nNOTE: THE WHOIS DATABASE IS A CONTACT DATABASE ONLY. LACK OF A DOMAIN\n")
	ew.printf("RECORD DOES NOT SIGNIFY DOMAIN AVAILABILITY.\n")
}

func (f *Formatter) writeExceeded(ew *errWriter) {
	ew.printf("ERROR: Maximum requests exceeded for today!\n")
	ew.printf("See the limits at %s\n", f.LimitsURL)
}

func (f *Formatter) writeOffline(ew *errWriter) {
	ew.printf("ERROR:\n")
	ew.printf("OpenNIC Whois Service Offline Temporarily. Please try again later.\n")
}

func (f *Formatter) writeNotFound(ew *errWriter) {
	ew.printf("Error! Not found in OpenNIC registry!\n")
	ew.printf("Only .OSS, .PARODY, .TEST, .PIRATE, .KEY and .P2P domains are currently part of this service.\n")
	ew.printf("ICANN domains cannot be queried using this service.\n")
	ew.printf("For more information on OpenNIC Whois, please see %s\n", f.InfoURL)
}

func (f *Formatter) writeZone(ew *errWriter, zone domain.ZoneRecord) {
	ew.printf("Domain Name: %s\n", domain.SanitizeLine(zone.Domain))
	ew.printf("Domain Registered: %s\n", stampOrUnknown(zone.Created))
	ew.printf("Domain Modified: %s\n", stampOrUnknown(zone.Modified))
	if zone.Expiration.IsZero() {
		ew.printf("Domain Expires: Never\n")
	} else {
		ew.printf("Domain Expires: %s\n", domain.FormatDate(zone.Expiration))
	}
	if zone.Disabled {
		ew.printf("Status: Disabled\n")
	} else {
		ew.printf("Status: OK\n")
	}
}

func (f *Formatter) writeRegistrant(ew *errWriter, contact *domain.ContactRecord) {
	if contact == nil {
		ew.printf("Registrant: Unknown\n")
		ew.printf("Registrant: Domain could be abandoned!\n")
		ew.printf("Registrant Contact: OpenNIC\n")
		return
	}
	ew.printf("Registrant: %s\n", domain.SanitizeLine(contact.Name))
	ew.printf("Registrant Contact: %s\n", domain.RedactEmail(domain.SanitizeLine(contact.Email)))
}

// stampOrUnknown renders a registry timestamp, falling back to a fixed
// marker when the directory never supplied one.
func stampOrUnknown(t time.Time) string {
	if t.IsZero() {
		return "Unknown"
	}
	return domain.FormatDate(t)
}

// errWriter is a sticky-error writer: after the first failure, subsequent
// writes are no-ops and the error is reported once at the end.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...any) {
	if ew.err != nil {
		return
	}
	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}
