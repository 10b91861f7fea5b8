// Package ntrip implements an NTRIP caster: a TCP relay that accepts RTCM
// correction streams from base stations and fans them out to authenticated
// rover clients, speaking both NTRIP 1.0 (ICY) and NTRIP 2.0 (HTTP/1.1
// chunked) on a single port.
package ntrip

import (
	"fmt"
)

const (
	// NTRIPVersionHeaderKey is the header NTRIP 2.0 clients send to opt in.
	NTRIPVersionHeaderKey     string = "Ntrip-Version"
	NTRIPVersionHeaderValueV2 string = "Ntrip/2.0"
)

// Authentication and admission failures surfaced to peers. Catalog
// implementations return these so the handler can pick the wire response.
var (
	ErrNoMount     error = fmt.Errorf("mount not found")
	ErrNoUser      error = fmt.Errorf("user not found")
	ErrBadPassword error = fmt.Errorf("bad password")
	ErrForbidden   error = fmt.Errorf("user is not the mount owner")

	ErrBadRequest error = fmt.Errorf("bad request")
)

// Catalog is the persistent store the caster authenticates against. The
// concrete implementation lives in the catalog package; the caster only
// needs these two queries.
type Catalog interface {
	// GetMount returns the stored mount password. ErrNoMount when the
	// mount is not in the catalog.
	GetMount(name string) (password string, err error)

	// VerifyDownload authorizes a subscriber. NTRIP 2.0 requires a known
	// user with a matching password who owns the mount (when the mount is
	// bound to an owner); NTRIP 1.0 checks the mount password when one was
	// supplied and otherwise only requires the mount to exist.
	VerifyDownload(mount, username, password, mountPassword string, v2 bool) error
}
