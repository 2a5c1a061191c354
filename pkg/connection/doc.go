// Package connection provides a periodic-retry helper for establishing
// connectivity to a fleet of devices at startup.
//
// Unlike a per-connection exponential-backoff supervisor, the fleet
// initializer retries the *entire* device list on a fixed interval until
// every device is reachable: there is no backoff growth, because the
// relay protocol's timing constants (the 2s reconnect delay, the 10s
// fleet retry interval) are fixed by the wire protocol, not tuned by
// observed failure rate.
package connection
