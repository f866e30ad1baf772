// Package id generates URL-safe identifiers for work items, comments, and
// events.
//
// An identifier is a UUIDv4 encoded as unpadded base32 (RFC 4648): 26
// lowercase characters, safe in URLs and file paths.
package id
