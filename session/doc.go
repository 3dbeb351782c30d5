// Package session holds the process-wide authenticated session and the
// credential store that owns it.
//
// Store is the only writer of the session. Every mutation is persisted
// through a Repo before it becomes visible to readers, and a session is
// reloaded from the Repo at start-up; a missing record means the process
// starts unauthenticated.
package session
