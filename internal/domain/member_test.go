package domain

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewMemberDefaultsName(t *testing.T) {
	m, err := NewMember(NewMemberID(), "")
	require.NoError(t, err)
	require.Equal(t, DefaultName, m.Name())
	require.NotEmpty(t, m.ID)
}

func TestMemberNameValidation(t *testing.T) {
	_, err := NewMember("a", strings.Repeat("x", MaxMemberNameLen+1))
	require.ErrorIs(t, err, ErrNameTooLong)

	m, err := NewMember("a", "alice")
	require.NoError(t, err)
	require.ErrorIs(t, m.SetName(""), ErrNameEmpty)
	require.NoError(t, m.SetName("bob"))
	require.Equal(t, "bob", m.Name())
}

func TestClamps(t *testing.T) {
	require.Equal(t, DefaultRate, ClampRate(math.NaN()))
	require.Equal(t, MinRate, ClampRate(0))
	require.Equal(t, MaxRate, ClampRate(10))
	require.Equal(t, 0.0, ClampPosition(-1))
	require.Equal(t, 0.0, ClampPosition(math.NaN()))
	require.Equal(t, 3.5, ClampPosition(3.5))
}

func TestParseActionType(t *testing.T) {
	a, err := ParseActionType("seek")
	require.NoError(t, err)
	require.Equal(t, ActionSeek, a)

	_, err = ParseActionType("rewind")
	require.Error(t, err)
}

func TestNormalizeRoomCode(t *testing.T) {
	require.Equal(t, RoomCode("ABC123"), NormalizeRoomCode(" abc123\n"))
	require.Equal(t, RoomCode("ABC123"), NormalizeRoomCode("ABC123"))
	require.Equal(t, RoomCode(""), NormalizeRoomCode("  "))
}
