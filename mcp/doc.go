// Package mcp contains the protocol data types and constants shared by the
// dispatcher, transports and tool authors. It mirrors the wire representation
// while keeping the surface Go-friendly (exported structs with json tags,
// string constants for method names).
//
// The package is free of transport logic; transports import these types but
// implement their own framing.
//
// # Method Names
//
// The dispatcher handles four built-in methods itself (NegotiateMethod,
// ListToolsMethod, CancelMethod, PingMethod). Any other method name is looked
// up as a tool name in the registry.
//
// # Negotiation
//
// A session starts with a negotiate request carrying the client's protocol
// version and capability names. The server answers with the intersection of
// what it offers and what the client listed; if the client marked a
// capability as required and the server does not offer it, negotiation fails
// with an IncompatibleCapabilities error.
//
//	req := mcp.NegotiateRequest{
//	    ClientInfo:   mcp.ImplementationInfo{Name: "cli", Version: "0.1.0"},
//	    Capabilities: []string{mcp.CapabilityTools, mcp.CapabilityCancellation},
//	}
//
// # Pagination
//
// listTools is cursor based; an empty NextCursor marks the last page.
package mcp
