// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package connector

import "errors"

// Sentinel errors from spec.md §7's taxonomy that are not already specific
// to the registry (see internal/registry for DuplicateSource, UnknownStream,
// AckOverrun, NotRemoved).
var (
	// ErrProtocolError means framing or handshake was malformed.
	ErrProtocolError = errors.New("connector: protocol error")
	// ErrConnectorError is the catch-all for user-facing misuse, e.g.
	// sending on a stream that is not Open.
	ErrConnectorError = errors.New("connector: misuse")
	// ErrNotConnected means an operation requiring a live session was
	// attempted before Connect succeeded.
	ErrNotConnected = errors.New("connector: not connected")
)
