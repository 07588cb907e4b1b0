// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel

// Package server wires the admission components into one HTTP service.
//
// The service exposes the limiter operations under /v1/limits, guarded
// text generation under /v1/chat, the usage journal under /v1/journal,
// and the usual /healthz and /metrics endpoints. Requests outside the
// excluded paths pass through the default rate limit policy keyed by
// caller identity; /v1/chat is gated separately by the guarded
// provider so a single request is never charged twice.
//
// Configuration reloads rebuild the whole handler chain and swap it in
// atomically. In-flight requests finish against the state they started
// with, and a reload that fails leaves the previous state serving.
package server
