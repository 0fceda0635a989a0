// Package correlation matches outbound calls with their replies. Each pending
// entry resolves exactly once; the table lock is never held while a waiter is
// resolved.
package correlation
