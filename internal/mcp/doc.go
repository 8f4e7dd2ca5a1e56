// Package mcp implements MCP (Model Context Protocol) client support,
// allowing Relay to connect to an external MCP server, discover its
// tools, and invoke them on behalf of the conversation loop.
//
// MCP uses JSON-RPC 2.0 over HTTP POST. Responses arrive either as
// plain JSON or as a single Server-Sent-Event frame ("event: message"
// followed by "data: <json>"); the transport unwraps both. Session
// continuity is carried in the mcp-session-id header: the client starts
// with a locally generated UUID and adopts the server-issued identifier
// returned by the initialize handshake.
//
// This implementation covers the client/host side only — Relay does not
// act as an MCP server.
package mcp
