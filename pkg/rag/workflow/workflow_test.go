package workflow

import (
	"testing"

	"kb-assistant/pkg/gateway"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mdFile(name string) gateway.File {
	return gateway.File{Name: name, ContentType: "text/markdown", Content: []byte("# notes")}
}

func mustReduce(t *testing.T, s State, e Event) State {
	t.Helper()
	next, err := Reduce(s, e)
	require.NoError(t, err)
	return next
}

func TestDefaultName(t *testing.T) {
	tests := []struct {
		filename string
		want     string
	}{
		{"notes.md", "notes_知识库"},
		{"release.notes.v2.md", "release_知识库"},
		{"dir/sub/guide.md", "guide_知识库"},
		{".hidden.md", "_知识库"},
	}
	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			assert.Equal(t, tt.want, DefaultName(tt.filename))
		})
	}
}

func TestFileSelection(t *testing.T) {
	s := Initial(DefaultConfig())

	t.Run("rejects unsupported extension", func(t *testing.T) {
		next, err := Reduce(s, FileSelected{File: mdFile("slides.pdf")})
		assert.ErrorIs(t, err, ErrUnsupportedFileType)
		assert.Nil(t, next.File)
	})

	t.Run("extension check is case insensitive", func(t *testing.T) {
		_, err := Reduce(s, FileSelected{File: mdFile("README.MD")})
		assert.NoError(t, err)
	})

	t.Run("upload without file", func(t *testing.T) {
		next, err := Reduce(s, UploadRequested{})
		assert.ErrorIs(t, err, ErrNoFileSelected)
		assert.Equal(t, StepSelectingFile, next.Step)
	})

	t.Run("selection proposes a name", func(t *testing.T) {
		next := mustReduce(t, s, FileSelected{File: mdFile("notes.md")})
		assert.Equal(t, "notes_知识库", next.Params.Name)
		assert.Equal(t, "notes.md", next.FileName)
		assert.Equal(t, StepSelectingFile, next.Step)
	})
}

func TestHappyPathProducesDescriptor(t *testing.T) {
	s := Initial(DefaultConfig())
	s = mustReduce(t, s, FileSelected{File: mdFile("notes.md")})
	s = mustReduce(t, s, UploadRequested{})
	assert.Equal(t, StepUploading, s.Step)

	s = mustReduce(t, s, UploadSucceeded{Filenames: []string{"notes_1699999999.md"}})
	assert.Equal(t, StepConfiguringParameters, s.Step)
	assert.Equal(t, Params{Name: "notes_知识库", ChunkSize: 2048, ChunkOverlap: 100, TopK: 3}, s.Params)

	s = mustReduce(t, s, CreateRequested{})
	assert.Equal(t, StepCreatingIndex, s.Step)
	assert.Equal(t, 0, s.Progress)

	s = mustReduce(t, s, CreateSucceeded{TotalChunks: 42})
	assert.Equal(t, StepResult, s.Step)
	assert.True(t, s.Success)
	assert.Equal(t, ProgressDone, s.Progress)

	kb, ok := s.KnowledgeBase()
	require.True(t, ok)
	assert.Equal(t, "notes_知识库", kb.Name)
	assert.Equal(t, 2048, kb.MaxChunkSize)
	assert.Equal(t, 100, kb.MaxOverlap)
	assert.Equal(t, 3, kb.TopK)
	assert.True(t, kb.IsCreated)
	require.NotNil(t, kb.TotalChunks)
	assert.Equal(t, 42, *kb.TotalChunks)

	s = mustReduce(t, s, Confirmed{})
	assert.Equal(t, Initial(DefaultConfig()), s)
}

func configuring(t *testing.T) State {
	t.Helper()
	s := Initial(DefaultConfig())
	s = mustReduce(t, s, FileSelected{File: mdFile("notes.md")})
	s = mustReduce(t, s, UploadRequested{})
	return mustReduce(t, s, UploadSucceeded{Filenames: []string{"notes_1.md"}})
}

func TestParamsClampToFloors(t *testing.T) {
	s := configuring(t)

	s = mustReduce(t, s, ParamsEdited{Params: Params{Name: "kb", ChunkSize: 10, ChunkOverlap: -5, TopK: 0}})
	assert.Equal(t, Params{Name: "kb", ChunkSize: MinChunkSize, ChunkOverlap: 0, TopK: MinTopK}, s.Params)
}

func TestStepping(t *testing.T) {
	tests := []struct {
		name      string
		field     Field
		direction int
		times     int
		want      Params
	}{
		{"chunk size up", FieldChunkSize, 1, 1, Params{ChunkSize: 2304, ChunkOverlap: 100, TopK: 3}},
		{"chunk size floors at 256", FieldChunkSize, -1, 20, Params{ChunkSize: 256, ChunkOverlap: 100, TopK: 3}},
		{"overlap floors at 0", FieldChunkOverlap, -1, 3, Params{ChunkSize: 2048, ChunkOverlap: 0, TopK: 3}},
		{"overlap up", FieldChunkOverlap, 1, 2, Params{ChunkSize: 2048, ChunkOverlap: 200, TopK: 3}},
		{"top k floors at 1", FieldTopK, -1, 5, Params{ChunkSize: 2048, ChunkOverlap: 100, TopK: 1}},
		{"zero direction is a no-op", FieldTopK, 0, 1, Params{ChunkSize: 2048, ChunkOverlap: 100, TopK: 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := configuring(t)
			tt.want.Name = s.Params.Name
			for i := 0; i < tt.times; i++ {
				s = mustReduce(t, s, Stepped{Field: tt.field, Direction: tt.direction})
			}
			assert.Equal(t, tt.want, s.Params)
		})
	}

	t.Run("unknown field", func(t *testing.T) {
		_, err := Reduce(configuring(t), Stepped{Field: "temperature", Direction: 1})
		assert.ErrorIs(t, err, ErrUnknownField)
	})
}

func TestCreateValidation(t *testing.T) {
	t.Run("empty name", func(t *testing.T) {
		s := mustReduce(t, configuring(t), ParamsEdited{Params: Params{Name: "   ", ChunkSize: 512, ChunkOverlap: 0, TopK: 3}})
		next, err := Reduce(s, CreateRequested{})
		assert.ErrorIs(t, err, ErrEmptyName)
		assert.Equal(t, StepConfiguringParameters, next.Step)
	})

	t.Run("overlap not below chunk size", func(t *testing.T) {
		s := mustReduce(t, configuring(t), ParamsEdited{Params: Params{Name: "kb", ChunkSize: 256, ChunkOverlap: 256, TopK: 3}})
		_, err := Reduce(s, CreateRequested{})
		assert.ErrorIs(t, err, ErrOverlapNotBelowChunkSize)
	})
}

func TestProgressCapsAtNinety(t *testing.T) {
	s := mustReduce(t, configuring(t), CreateRequested{})
	for i := 0; i < 20; i++ {
		s = mustReduce(t, s, ProgressTicked{})
		assert.LessOrEqual(t, s.Progress, ProgressCap)
	}
	assert.Equal(t, ProgressCap, s.Progress)

	s = mustReduce(t, s, CreateSucceeded{TotalChunks: 1})
	assert.Equal(t, ProgressDone, s.Progress)
}

func TestResultIsTerminal(t *testing.T) {
	success := mustReduce(t, mustReduce(t, configuring(t), CreateRequested{}), CreateSucceeded{TotalChunks: 3})
	failure := mustReduce(t, mustReduce(t, configuring(t), CreateRequested{}), CreateFailed{Message: "知识库创建失败: boom"})

	for name, s := range map[string]State{"success": success, "failure": failure} {
		t.Run(name, func(t *testing.T) {
			for _, e := range []Event{UploadRequested{}, CreateRequested{}, ProgressTicked{}, UploadSucceeded{}, CreateSucceeded{}} {
				next, err := Reduce(s, e)
				assert.ErrorIs(t, err, ErrInvalidTransition)
				assert.Equal(t, s, next)
			}
		})
	}

	_, ok := failure.KnowledgeBase()
	assert.False(t, ok)
	assert.Equal(t, "知识库创建失败: boom", failure.ErrorMessage)
}

func TestUploadFailureIsTerminal(t *testing.T) {
	s := Initial(DefaultConfig())
	s = mustReduce(t, s, FileSelected{File: mdFile("notes.md")})
	s = mustReduce(t, s, UploadRequested{})
	s = mustReduce(t, s, UploadFailed{Message: "文件上传失败: Bad Gateway"})

	assert.Equal(t, StepResult, s.Step)
	assert.False(t, s.Success)

	s = mustReduce(t, s, Confirmed{})
	assert.Equal(t, StepSelectingFile, s.Step)
}

func TestResetFromAnyStep(t *testing.T) {
	cfg := Config{Defaults: Params{ChunkSize: 1024, ChunkOverlap: 50, TopK: 5}, AcceptedTypes: []string{".md"}}
	s := Initial(cfg)
	s = mustReduce(t, s, FileSelected{File: mdFile("notes.md")})
	s = mustReduce(t, s, UploadRequested{})

	s = mustReduce(t, s, Reset{})
	assert.Equal(t, Initial(cfg), s)
	assert.Equal(t, 1024, s.Params.ChunkSize)
}

func TestIsTransitionError(t *testing.T) {
	assert.True(t, IsTransitionError(ErrInvalidTransition))
	assert.True(t, IsTransitionError(ErrOverlapNotBelowChunkSize))
	assert.False(t, IsTransitionError(ErrSuperseded))
	assert.False(t, IsTransitionError(nil))
}
