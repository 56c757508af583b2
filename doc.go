// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package httpsvc is the entry point of the HTTP service.
//
// A [Service] owns the connection manager every listening server is
// created through. Servers belong to a deployment context: the
// "container" context returned by [Service.ServerFactory] or an
// application context returned by [Service.ServerFactoryFor]. Server
// names must be unique across all contexts.
//
// [Run] reads configuration sources, decodes them into a config type
// and builds and runs an [App] from it.
package httpsvc
