// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package sink

import "errors"

// ErrUnexpectedSocket is returned by Read when the accepting listener
// itself enters an exceptional state; this is fatal to the Reader, per
// spec.md §4.6/§7 (acceptor exceptional state is fatal to the sink).
var ErrUnexpectedSocket = errors.New("sink: unexpected socket state on acceptor")

// ErrClosed is returned by Read once Close has been called.
var ErrClosed = errors.New("sink: reader closed")
