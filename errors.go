package dyndns

import "errors"

// Every error returned by this package wraps exactly one of these.
var (
	// ErrConfiguration is returned for invalid caller-supplied settings,
	// such as a family list that does not pair with the interface names.
	ErrConfiguration = errors.New("configuration error")

	// ErrEnumeration is returned when interfaces cannot be listed,
	// either by the operating system or by the host manager.
	ErrEnumeration = errors.New("interface enumeration failed")

	// ErrNetwork is returned when the echo service cannot be reached
	// or answers with anything but 200 OK.
	ErrNetwork = errors.New("network error")

	// ErrDiscovery is returned when no usable address was found,
	// or the echo service answered with something that is not an IP address.
	ErrDiscovery = errors.New("address discovery failed")

	// ErrPublish is returned when the DNS provider rejects a record set.
	ErrPublish = errors.New("publishing record set failed")
)
