// Package authflow implements the multi-role authentication flow of a
// school-management platform as an explicit finite-state machine.
//
// One [Orchestrator] owns the current [Screen] and the session [Draft] and
// is the sole authority for navigation: leaf screens (login forms, the
// two-factor challenge, password reset) emit exit events, a pure reducer
// maps (screen, event, draft) to the next state, and the orchestrator runs
// the side effects (OTP challenge lifecycle, countdowns, the post-login
// auto-advance) with every pending timer cancelled when the flow
// navigates away.
//
// Credential verification and code delivery are collaborator interfaces
// ([Verifier], [CodeSender]); the library never talks to a real identity
// backend. OTP challenges and sessions are kept in Redis with TTLs.
package authflow
