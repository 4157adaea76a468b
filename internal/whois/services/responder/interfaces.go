package responder

import (
	"context"
	"io"
	"net"

	"github.com/opennic/whoisd/internal/whois/gateways/directory"
)

// QuotaStore is the per-client daily counter consulted before any directory
// work. CheckAndIncrement returns the post-increment count for the key.
type QuotaStore interface {
	CheckAndIncrement(ctx context.Context, clientKey, day string) (int64, error)
}

// Directory opens one scoped directory session per query.
type Directory interface {
	Connect(ctx context.Context) (directory.Session, error)
}

// QueryResponder handles exactly one WHOIS query: the transport reads the
// query line and hands it here together with the open connection as writer.
type QueryResponder interface {
	HandleQuery(ctx context.Context, rawQuery string, client net.Addr, w io.Writer) error
}
