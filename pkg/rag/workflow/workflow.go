package workflow

import (
	"errors"
	"path/filepath"
	"strings"

	"kb-assistant/pkg/gateway"
	"kb-assistant/pkg/store"
)

type Step string

const (
	StepSelectingFile         Step = "selecting_file"
	StepUploading             Step = "uploading"
	StepConfiguringParameters Step = "configuring_parameters"
	StepCreatingIndex         Step = "creating_index"
	StepResult                Step = "result"
)

func (s Step) String() string {
	return string(s)
}

const (
	MinChunkSize     = 256
	ChunkSizeStep    = 256
	MinChunkOverlap  = 0
	ChunkOverlapStep = 50
	MinTopK          = 1
	TopKStep         = 1

	ProgressStep = 10
	ProgressCap  = 90
	ProgressDone = 100

	DefaultNameSuffix = "_知识库"
)

var (
	ErrInvalidTransition        = errors.New("invalid workflow transition")
	ErrUnsupportedFileType      = errors.New("unsupported file type")
	ErrNoFileSelected           = errors.New("no file selected")
	ErrEmptyName                = errors.New("knowledge base name is required")
	ErrOverlapNotBelowChunkSize = errors.New("chunk overlap must be smaller than chunk size")
	ErrUnknownField             = errors.New("unknown parameter field")
)

// IsTransitionError reports whether err was a rejected user action rather than a backend failure
func IsTransitionError(err error) bool {
	return errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrUnsupportedFileType) ||
		errors.Is(err, ErrNoFileSelected) ||
		errors.Is(err, ErrEmptyName) ||
		errors.Is(err, ErrOverlapNotBelowChunkSize) ||
		errors.Is(err, ErrUnknownField)
}

// Params are the user-editable knowledge base settings
type Params struct {
	Name         string `json:"name"`
	ChunkSize    int    `json:"chunkSize"`
	ChunkOverlap int    `json:"chunkOverlap"`
	TopK         int    `json:"topK"`
}

// Clamp raises every numeric field to its floor
func (p Params) Clamp() Params {
	if p.ChunkSize < MinChunkSize {
		p.ChunkSize = MinChunkSize
	}
	if p.ChunkOverlap < MinChunkOverlap {
		p.ChunkOverlap = MinChunkOverlap
	}
	if p.TopK < MinTopK {
		p.TopK = MinTopK
	}
	return p
}

type Field string

const (
	FieldChunkSize    Field = "chunkSize"
	FieldChunkOverlap Field = "chunkOverlap"
	FieldTopK         Field = "topK"
)

// Config fixes the defaults a workflow starts from and returns to on reset
type Config struct {
	Defaults      Params
	AcceptedTypes []string
}

func DefaultConfig() Config {
	return Config{
		Defaults:      Params{ChunkSize: 2048, ChunkOverlap: 100, TopK: 3},
		AcceptedTypes: []string{".md"},
	}
}

func (c Config) accepts(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext == "" {
		return false
	}
	for _, t := range c.AcceptedTypes {
		if strings.ToLower(strings.TrimSpace(t)) == ext {
			return true
		}
	}
	return false
}

// State is the full workflow state. It is a value; Reduce never mutates its input.
type State struct {
	Step            Step          `json:"step"`
	File            *gateway.File `json:"-"`
	FileName        string        `json:"fileName,omitempty"`
	FileSize        int           `json:"fileSize,omitempty"`
	StoredFilenames []string      `json:"storedFilenames"`
	Params          Params        `json:"params"`
	Progress        int           `json:"progress"`
	Success         bool          `json:"isSuccess"`
	ErrorMessage    string        `json:"errorMessage,omitempty"`
	Message         string        `json:"message,omitempty"`
	TotalChunks     int           `json:"totalChunks"`

	config Config
}

func Initial(cfg Config) State {
	return State{
		Step:            StepSelectingFile,
		StoredFilenames: []string{},
		Params:          cfg.Defaults.Clamp(),
		config:          cfg,
	}
}

// KnowledgeBase returns the descriptor a successful result commits
func (s State) KnowledgeBase() (store.KnowledgeBase, bool) {
	if s.Step != StepResult || !s.Success {
		return store.KnowledgeBase{}, false
	}
	total := s.TotalChunks
	return store.KnowledgeBase{
		Name:         s.Params.Name,
		MaxChunkSize: s.Params.ChunkSize,
		MaxOverlap:   s.Params.ChunkOverlap,
		TopK:         s.Params.TopK,
		IsCreated:    true,
		TotalChunks:  &total,
	}, true
}

// Event is anything Reduce understands
type Event interface {
	isEvent()
}

type FileSelected struct{ File gateway.File }
type UploadRequested struct{}
type UploadSucceeded struct {
	Filenames []string
	Message   string
}
type UploadFailed struct{ Message string }
type ParamsEdited struct{ Params Params }
type Stepped struct {
	Field     Field
	Direction int
}
type CreateRequested struct{}
type ProgressTicked struct{}
type CreateSucceeded struct {
	TotalChunks int
	Message     string
}
type CreateFailed struct{ Message string }
type Confirmed struct{}
type Reset struct{}

func (FileSelected) isEvent()    {}
func (UploadRequested) isEvent() {}
func (UploadSucceeded) isEvent() {}
func (UploadFailed) isEvent()    {}
func (ParamsEdited) isEvent()    {}
func (Stepped) isEvent()         {}
func (CreateRequested) isEvent() {}
func (ProgressTicked) isEvent()  {}
func (CreateSucceeded) isEvent() {}
func (CreateFailed) isEvent()    {}
func (Confirmed) isEvent()       {}
func (Reset) isEvent()           {}

// Reduce computes the next state. A rejected event returns the input state unchanged
// together with the reason.
func Reduce(s State, e Event) (State, error) {
	if _, ok := e.(Reset); ok {
		return Initial(s.config), nil
	}

	switch s.Step {
	case StepSelectingFile:
		switch ev := e.(type) {
		case FileSelected:
			if !s.config.accepts(ev.File.Name) {
				return s, ErrUnsupportedFileType
			}
			f := ev.File
			s.File = &f
			s.FileName = f.Name
			s.FileSize = len(f.Content)
			s.Params.Name = DefaultName(f.Name)
			return s, nil
		case UploadRequested:
			if s.File == nil {
				return s, ErrNoFileSelected
			}
			s.Step = StepUploading
			s.Progress = 0
			return s, nil
		}

	case StepUploading:
		switch ev := e.(type) {
		case UploadSucceeded:
			s.Step = StepConfiguringParameters
			s.StoredFilenames = append([]string{}, ev.Filenames...)
			s.Message = ev.Message
			return s, nil
		case UploadFailed:
			return fail(s, ev.Message), nil
		}

	case StepConfiguringParameters:
		switch ev := e.(type) {
		case ParamsEdited:
			s.Params = ev.Params.Clamp()
			return s, nil
		case Stepped:
			p, err := step(s.Params, ev.Field, ev.Direction)
			if err != nil {
				return s, err
			}
			s.Params = p
			return s, nil
		case CreateRequested:
			if strings.TrimSpace(s.Params.Name) == "" {
				return s, ErrEmptyName
			}
			if s.Params.ChunkOverlap >= s.Params.ChunkSize {
				return s, ErrOverlapNotBelowChunkSize
			}
			s.Step = StepCreatingIndex
			s.Progress = 0
			return s, nil
		}

	case StepCreatingIndex:
		switch ev := e.(type) {
		case ProgressTicked:
			s.Progress += ProgressStep
			if s.Progress > ProgressCap {
				s.Progress = ProgressCap
			}
			return s, nil
		case CreateSucceeded:
			s.Step = StepResult
			s.Success = true
			s.Progress = ProgressDone
			s.TotalChunks = ev.TotalChunks
			s.Message = ev.Message
			s.ErrorMessage = ""
			return s, nil
		case CreateFailed:
			return fail(s, ev.Message), nil
		}

	case StepResult:
		if _, ok := e.(Confirmed); ok {
			return Initial(s.config), nil
		}
	}

	return s, ErrInvalidTransition
}

func fail(s State, message string) State {
	s.Step = StepResult
	s.Success = false
	s.ErrorMessage = message
	return s
}

func step(p Params, field Field, direction int) (Params, error) {
	sign := 0
	switch {
	case direction > 0:
		sign = 1
	case direction < 0:
		sign = -1
	}
	switch field {
	case FieldChunkSize:
		p.ChunkSize += sign * ChunkSizeStep
	case FieldChunkOverlap:
		p.ChunkOverlap += sign * ChunkOverlapStep
	case FieldTopK:
		p.TopK += sign * TopKStep
	default:
		return p, ErrUnknownField
	}
	return p.Clamp(), nil
}

// DefaultName is the filename up to its first dot plus the knowledge base suffix
func DefaultName(filename string) string {
	base := filepath.Base(strings.ReplaceAll(filename, "\\", "/"))
	if i := strings.Index(base, "."); i >= 0 {
		base = base[:i]
	}
	return base + DefaultNameSuffix
}
