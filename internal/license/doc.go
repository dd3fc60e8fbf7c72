// Package license implements hardware-bound license verification and
// activation.
//
// The package is organised around four collaborators:
//
//   - Client executes the verification exchange against the remote
//     license authority, with timeout, bounded retry and typed outcome
//     classification.
//   - Store persists the last verification outcome next to the binary
//     with a keyed checksum, so tampering or copying the file to
//     another machine renders it untrusted.
//   - The state machine in state.go derives the license status from
//     the freshest outcome and the cached record, including the
//     offline grace window.
//   - Manager is the single public entry point (the gate): Evaluate
//     runs the whole flow once per startup, Activate runs it with a
//     freshly supplied key. Concurrent evaluations join the in-flight
//     verification instead of issuing duplicate requests.
//
// Anything other than a Licensed or GracePeriod status means the rest
// of the application must deny gated functionality and show the reason.
package license
