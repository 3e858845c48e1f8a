package transport

// Device is a scan result: a peer that advertised a name or service UUID
// the gateway is interested in, or matched a direct address filter.
type Device struct {
	// Address is the peer's link-layer address (opaque to this package;
	// passed back to LinkDriver.Connect verbatim).
	Address string

	// Name is the peer's advertised name, if any.
	Name string

	// ServiceUUIDs are the peer's advertised service UUIDs.
	ServiceUUIDs []string
}
