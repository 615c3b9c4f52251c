// Package errors provides the classified error primitives used across wikiexport.
//
// Every failure the exporter surfaces is mapped onto one of a small set of
// categories that mirror how the run reacts to it:
//
//   - network, gateway: transient remote failures; retried by the gateway,
//     then the affected document is skipped for the pass.
//   - content: malformed macro parameters or attachment metadata; the fact is
//     dropped and parsing continues.
//   - link: a reference that could not be resolved inside the exported tree.
//   - path: two output locations without a common root; fatal for one document.
//   - config, auth, validation: initialization failures; fatal for a corpus and
//     reflected in the process exit status.
//
// Example usage:
//
//	err := errors.GatewayError("fetch page failed").
//		WithContext("page_id", id).
//		Build()
package errors
