// Package upload tracks files uploaded during a single request.
//
// The registry is owned by the request scope and created fresh for every
// request, so emptiness between requests is a constructor guarantee
// rather than a cleanup call that could be forgotten.
//
// Two population paths exist. PopulateFromMultipart rebuilds the
// registry from a multipart form parsed inside the HTTP pipeline.
// PopulateFrom is the host-facing entry point for descriptor trees a
// host process assembled itself before handing the request over, with
// temp paths and error codes already filled in; it walks trees that may
// nest per form field ("a[b][]"), bounded by a configurable maximum
// depth, and validates every leaf descriptor strictly instead of
// coercing malformed input.
package upload
