// Package policy keeps the write side from calling the read side directly.
//
// Evaluate is a pure decision over request metadata. The Enforcer wraps it, audits every
// decision (allow, deny and bypass) and provides HTTP middleware that answers denied
// requests with 403.
package policy
