package security

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSource returns canned identifiers, with optional per-field errors.
type fakeSource struct {
	board, cpu, mac, disk string
	boardErr, cpuErr      error
	macErr, diskErr       error
}

func (f *fakeSource) BoardSerial() (string, error) { return f.board, f.boardErr }
func (f *fakeSource) CPUID() (string, error)       { return f.cpu, f.cpuErr }
func (f *fakeSource) PrimaryMAC() (string, error)  { return f.mac, f.macErr }
func (f *fakeSource) DiskSerial() (string, error)  { return f.disk, f.diskErr }

func TestMachineCodeFormat(t *testing.T) {
	fm := NewFingerprintManagerWithSource(&fakeSource{
		board: "BOARD-123",
		cpu:   "GenuineIntel Family 6",
		mac:   "00:1A:2B:3C:4D:5E",
		disk:  "WD-987654",
	})

	code := fm.MachineCode()

	groups := strings.Split(code, "-")
	require.Len(t, groups, 8)
	for _, g := range groups {
		assert.Len(t, g, 4)
		assert.Equal(t, strings.ToUpper(g), g)
		_, err := hex.DecodeString(g)
		assert.NoError(t, err, "group %q must be hex", g)
	}
}

func TestMachineCodeDerivation(t *testing.T) {
	// The code is the first 16 bytes of SHA-256 over the pipe-joined
	// identifiers, uppercased and grouped. Pin the derivation so a
	// refactor cannot silently orphan every issued license.
	fm := NewFingerprintManagerWithSource(&fakeSource{
		board: "B", cpu: "C", mac: "M", disk: "D",
	})

	sum := sha256.Sum256([]byte("B|C|M|D"))
	digest := strings.ToUpper(hex.EncodeToString(sum[:16]))
	var want []string
	for i := 0; i < len(digest); i += 4 {
		want = append(want, digest[i:i+4])
	}

	assert.Equal(t, strings.Join(want, "-"), fm.MachineCode())
}

func TestMachineCodeDeterminism(t *testing.T) {
	source := &fakeSource{board: "B1", cpu: "C1", mac: "M1", disk: "D1"}

	first := NewFingerprintManagerWithSource(source).MachineCode()
	second := NewFingerprintManagerWithSource(source).MachineCode()

	assert.Equal(t, first, second)

	// A single changed identifier must change the whole code.
	changed := NewFingerprintManagerWithSource(&fakeSource{
		board: "B1", cpu: "C1", mac: "M1", disk: "D2",
	}).MachineCode()
	assert.NotEqual(t, first, changed)
}

func TestMachineCodeUnknownSentinel(t *testing.T) {
	tests := []struct {
		name   string
		source *fakeSource
	}{
		{
			name: "collection error",
			source: &fakeSource{
				boardErr: errors.New("wmic failed"),
				cpu:      "C", mac: "M", disk: "D",
			},
		},
		{
			name: "empty value without error",
			source: &fakeSource{
				board: "   ",
				cpu:   "C", mac: "M", disk: "D",
			},
		},
	}

	sentinel := NewFingerprintManagerWithSource(&fakeSource{
		board: UnknownIdentifier,
		cpu:   "C", mac: "M", disk: "D",
	}).MachineCode()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fm := NewFingerprintManagerWithSource(tt.source)
			assert.Equal(t, sentinel, fm.MachineCode(),
				"failed collection must fold into the sentinel, not vary the code")
		})
	}
}

func TestMachineCodeAllUnknownStillGenerates(t *testing.T) {
	fm := NewFingerprintManagerWithSource(&fakeSource{
		boardErr: errors.New("no board"),
		cpuErr:   errors.New("no cpu"),
		macErr:   errors.New("no mac"),
		diskErr:  errors.New("no disk"),
	})

	code := fm.MachineCode()
	require.NotEmpty(t, code)
	assert.Len(t, strings.Split(code, "-"), 8)
}

func TestMachineCodeCached(t *testing.T) {
	source := &fakeSource{board: "B", cpu: "C", mac: "M", disk: "D"}
	fm := NewFingerprintManagerWithSource(source)

	first := fm.MachineCode()

	// Mutating the source after the first derivation must not change
	// the cached code for the process lifetime.
	source.disk = "OTHER"
	assert.Equal(t, first, fm.MachineCode())
}

func TestComponents(t *testing.T) {
	fm := NewFingerprintManagerWithSource(&fakeSource{
		board: "B", cpu: "C",
		macErr: errors.New("down"),
		disk:   "D",
	})

	components := fm.Components()
	assert.Equal(t, "B", components["board_serial"])
	assert.Equal(t, "C", components["cpu_id"])
	assert.Equal(t, UnknownIdentifier, components["mac_address"])
	assert.Equal(t, "D", components["disk_serial"])
}

func TestValidateMachineCode(t *testing.T) {
	fm := NewFingerprintManagerWithSource(&fakeSource{
		board: "B", cpu: "C", mac: "M", disk: "D",
	})

	assert.True(t, fm.ValidateMachineCode(fm.MachineCode()))
	assert.False(t, fm.ValidateMachineCode("AAAA-BBBB-CCCC-DDDD-EEEE-FFFF-0000-1111"))
	assert.False(t, fm.ValidateMachineCode(""))
}
