package handles

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Dicklesworthstone/hostprobe/internal/errors"
	"github.com/Dicklesworthstone/hostprobe/internal/growbuf"
	"github.com/Dicklesworthstone/hostprobe/internal/model"
	"github.com/Dicklesworthstone/hostprobe/internal/native"
	"github.com/Dicklesworthstone/hostprobe/internal/native/nativetest"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name  string
		tname string
		index uint16
		want  model.HandleType
	}{
		{"file index", "", 0x1C, model.HandleFile},
		{"file index alt", "", 0x1F, model.HandleFile},
		{"mutex index", "", 0x1E, model.HandleMutex},
		{"semaphore index", "", 0x1D, model.HandleSemaphore},
		{"pipe index", "", 0x1B, model.HandlePipe},
		{"socket index", "", 0x1A, model.HandleSocket},
		{"other index", "", 0x07, model.HandleOther},
		{"no type", "", 0, model.HandleUnknown},
		{"name wins", "socket", 0x1C, model.HandleSocket},
		{"name case", "Mutant", 0, model.HandleMutex},
		{"unmapped name", "eventpoll", 0, model.HandleOther},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.tname, tt.index))
		})
	}
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, "File: Handle=0x1C", Describe(model.HandleFile, 0x1c))
	assert.Equal(t, "Unknown: Handle=0x0", Describe(model.HandleUnknown, 0))
}

func TestLoad_GrowsThenFilters(t *testing.T) {
	entries := make([]native.HandleEntry, 0, 50)
	for i := 0; i < 50; i++ {
		entries = append(entries, native.HandleEntry{PID: uint32(i % 5), Handle: uint64(4 * (i + 1)), TypeIndex: 0x1C})
	}
	entries = append(entries, native.HandleEntry{PID: 9, Handle: 8, TypeName: "socket", Name: "socket:[123]"})
	fake := &nativetest.Fake{Handles: entries}

	e := NewEnumerator(fake, nil, growbuf.Policy{Initial: 8, Max: 1024, MaxRetries: 5})
	table, err := e.Load()
	require.NoError(t, err)
	assert.Equal(t, 51, table.Len())
	// 8 -> 51 (size hint) -> success
	assert.EqualValues(t, 2, fake.Calls())

	recs := table.ForProcess(3)
	assert.Len(t, recs, 10)
	for _, r := range recs {
		assert.Equal(t, model.HandleFile, r.Type)
		assert.Empty(t, r.Name)
	}

	sock := table.ForProcess(9)
	require.Len(t, sock, 1)
	assert.Equal(t, model.HandleSocket, sock[0].Type)
	assert.Equal(t, "socket:[123]", sock[0].Name)
	assert.Equal(t, "Socket: Handle=0x8", sock[0].Description)

	none := table.ForProcess(1234)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestLoad_BoundedGrowth(t *testing.T) {
	fake := &nativetest.Fake{HandleGrowth: true}
	e := NewEnumerator(fake, nil, growbuf.Policy{Initial: 4, Max: 1 << 30, MaxRetries: 3})

	_, err := e.Load()
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeQueryOverflow))
	assert.EqualValues(t, 4, fake.Calls())
}

func TestLoad_HardFailure(t *testing.T) {
	boom := errors.New("access denied")
	fake := &nativetest.Fake{HandleErr: boom}
	e := NewEnumerator(fake, nil, DefaultPolicy)

	_, err := e.Load()
	assert.ErrorIs(t, err, boom)
	assert.EqualValues(t, 1, fake.Calls())
}
