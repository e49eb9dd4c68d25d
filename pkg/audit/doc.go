// Package audit records the security-relevant events of the kernel:
// denied permission checks, assignment grants and revocations, and
// catalog changes. Events carry the decision reason so investigations
// can reconstruct why access was refused, which is exactly the detail
// the public API withholds from callers.
//
// Loggers are pluggable: file (JSON lines with rotation), database,
// or a fan-out over several destinations. A no-op logger keeps call
// sites unconditional when auditing is disabled.
package audit
