package transport

import (
	"fmt"

	"github.com/avtransport/avtransport/internal/avtransport/address"
	"github.com/avtransport/avtransport/internal/errors"
)

func errUnsupportedScheme(addr address.Address) error {
	return errors.Unsupported("transport.open", fmt.Errorf("no back-end registered for transport %s", addr.Transport))
}
