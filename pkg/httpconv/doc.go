// Package httpconv adapts between wire HTTP messages and the bridged
// application's internal request/response representation.
//
// Both converters are stateless, so a single Inbound/Outbound pair is
// shared by every request a worker serves. Inbound handles method
// override detection, header flattening, cookie extraction (raw or
// integrity-validated), body buffering with rewind, and uploaded-file
// registry population. Outbound handles the status line, multi-value
// headers, RFC 6265 Set-Cookie formatting, and bodies that are either
// direct content or an exact byte range streamed from a file handle.
package httpconv
