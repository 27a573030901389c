package room

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseStatus(t *testing.T) {
	cases := []struct {
		raw  string
		want Status
		ok   bool
	}{
		{raw: "connected", want: StatusConnected, ok: true},
		{raw: " Reconnecting ", want: StatusConnecting, ok: true},
		{raw: "connecting", want: StatusConnecting, ok: true},
		{raw: "disconnected", want: StatusDisconnected, ok: true},
		{raw: "CLOSED", want: StatusClosed, ok: true},
		{raw: "", ok: false},
		{raw: "stable", ok: false},
	}
	for _, tc := range cases {
		got, ok := ParseStatus(tc.raw)
		assert.Equal(t, tc.ok, ok, tc.raw)
		assert.Equal(t, tc.want, got, tc.raw)
	}
}
