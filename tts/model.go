package tts

// Architecture describes how a model's weights are laid out on disk.
type Architecture int

const (
	// ArchitectureSingleFile is one graph file.
	ArchitectureSingleFile Architecture = iota
	// ArchitectureMultiStage is one graph per pipeline stage plus configuration.
	ArchitectureMultiStage
)

func (a Architecture) String() string {
	if a == ArchitectureMultiStage {
		return "multi-stage"
	}
	return "single-file"
}

// ModelDescriptor is a static catalog entry for a downloadable model.
type ModelDescriptor struct {
	ID            string
	Name          string
	SizeBytes     int64
	Language      string
	SampleRate    int
	DownloadURL   string
	Architecture  Architecture
	RequiredFiles []string
	DefaultStyle  string
	Description   string
}

// IsZero reports whether d is the zero descriptor.
func (d ModelDescriptor) IsZero() bool {
	return d.ID == ""
}
