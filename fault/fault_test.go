// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package fault

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStatusMapsEveryKind(t *testing.T) {
	require.Equal(t, 400, Status(Protocol))
	require.Equal(t, 403, Status(Auth))
	require.Equal(t, 404, Status(Addressing))
	require.Equal(t, 408, Status(Timeout))
	require.Equal(t, 503, Status(Transport))
	require.Equal(t, 500, Status(Handler))
	require.Equal(t, 500, Status(Internal))
}

func TestSentinelPerKind(t *testing.T) {
	require.ErrorIs(t, Sentinel(Addressing), ErrAddressing)
	require.ErrorIs(t, Sentinel(Timeout), ErrTimeout)
}

func TestWrapInternalPreservesSentinel(t *testing.T) {
	cause := errors.New("no hosted pipeline")
	wrapped := WrapInternal(cause, "router: located on self")
	require.ErrorIs(t, wrapped, ErrInternal)
	require.Contains(t, wrapped.Error(), "located on self")
}
