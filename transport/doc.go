// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package transport accepts HTTP/1.x connections and exposes them as
// non-blocking write channels.
//
// Every connection is assigned to a [Loop]. Request dispatch, write
// completions and close notifications for the connection run on that
// loop, one at a time. Blocking socket writes happen on a per connection
// writer goroutine so a slow peer never stalls the loop itself, while
// work done inside loop callbacks does.
//
// Go does not expose goroutine identity, so there is no way to ask
// whether the caller is running on a loop. Callers which need to keep
// long running work off the loops decide based on elapsed time instead.
package transport
