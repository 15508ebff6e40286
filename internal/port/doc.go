// Package port checks whether the launch port named in the guidance message
// can be bound on the configured host.
//
// The check asks the operating system directly by opening and closing a TCP
// listener. It is advisory: a port that is free now may be taken by the time
// the operator starts the server.
package port
