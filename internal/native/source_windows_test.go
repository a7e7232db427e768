//go:build windows && (amd64 || arm64)

package native

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTooSmall(t *testing.T) {
	tests := []struct {
		status uint32
		want   bool
	}{
		{statusInfoLengthMismatch, true},
		{statusBufferTooSmall, true},
		{statusBufferOverflow, true},
		{0, false},
		{0xC0000022, false}, // access denied
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tooSmall(tt.status), "status 0x%08X", tt.status)
	}
}

func TestWindowsSource_Uptime(t *testing.T) {
	src, err := New()
	require.NoError(t, err)
	up, err := src.Uptime()
	require.NoError(t, err)
	assert.Positive(t, up)
}

func TestWindowsSource_SystemRoot(t *testing.T) {
	t.Setenv("SystemDrive", "D:")
	assert.Equal(t, `D:\`, windowsSource{}.SystemRoot())
}

func TestWindowsSource_OpenProcessZero(t *testing.T) {
	_, err := windowsSource{}.OpenProcess(0)
	assert.ErrorIs(t, err, ErrProcessGone)
}
