/*
Package dyndns publishes the public IP addresses of a host as DNS A and AAAA record sets.

Usage will always start with [dyndns.New],
which returns a [Client] for one record in one zone.
Addresses come either from a public echo service (the default)
or from named network interfaces, enumerated by the operating system ([OSSource])
or by the Home Assistant host manager ([HostSource]).
Each interface may be limited to one address family with [UsingInterfaces].

Every run is a fresh snapshot: candidate addresses are filtered with [Eligible],
grouped into record sets by [Assemble], and handed to a [Publisher].
Nothing is cached between runs and nothing is retried.
*/
package dyndns
