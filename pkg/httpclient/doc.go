/*
Package httpclient is the JSON HTTP client used by effect handlers.

Failures come back as *APIError with one of the codes HTTP_ERROR,
NETWORK_ERROR, TIMEOUT or UNKNOWN_ERROR. Cancellation of the caller's
context is returned unchanged, so a cancelled effect never mistakes it for a
request failure.
*/
package httpclient
