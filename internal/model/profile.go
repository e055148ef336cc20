package model

import "time"

type ModelTier string

const (
	ModelHaiku  ModelTier = "haiku"
	ModelSonnet ModelTier = "sonnet"
	ModelOpus   ModelTier = "opus"
)

func (m ModelTier) Valid() bool {
	switch m {
	case ModelHaiku, ModelSonnet, ModelOpus:
		return true
	default:
		return false
	}
}

type Runner string

const (
	RunnerBuiltin Runner = "builtin"
	RunnerCommand Runner = "command"
)

// Profile is the static capability profile a worker is bound to.
type Profile struct {
	Name                    string        `yaml:"name" json:"name"`
	Description             string        `yaml:"description" json:"description"`
	ModelTier               ModelTier     `yaml:"model_tier" json:"model_tier"`
	AllowedDataSources      []string      `yaml:"allowed_data_sources" json:"allowed_data_sources"`
	AllowedNativeOperations []string      `yaml:"allowed_native_operations" json:"allowed_native_operations"`
	DeniedOperations        []string      `yaml:"denied_operations" json:"denied_operations"`
	MaxTurns                int           `yaml:"max_turns" json:"max_turns"`
	BestEffort              bool          `yaml:"best_effort" json:"best_effort"`
	Timeout                 time.Duration `yaml:"timeout" json:"timeout"`
	DataLabel               string        `yaml:"data_label" json:"data_label"`
	ReportFile              string        `yaml:"report_file" json:"report_file"`
	Runner                  Runner        `yaml:"runner" json:"runner"`
	Command                 string        `yaml:"command,omitempty" json:"command,omitempty"`
	SystemPrompt            string        `yaml:"-" json:"system_prompt,omitempty"`
	Path                    string        `yaml:"-" json:"path,omitempty"`
}

// Label returns the human name of the data this worker contributes.
func (p Profile) Label() string {
	if p.DataLabel != "" {
		return p.DataLabel
	}
	return p.Name
}

// Report returns the artifact file stem for this worker.
func (p Profile) Report() string {
	if p.ReportFile != "" {
		return p.ReportFile
	}
	return p.Name + "-report"
}

// Allows reports whether the profile permits a native operation.
func (p Profile) Allows(op string) bool {
	for _, d := range p.DeniedOperations {
		if d == op {
			return false
		}
	}
	for _, a := range p.AllowedNativeOperations {
		if a == op {
			return true
		}
	}
	return false
}

// CanUse reports whether the profile may read a data source.
func (p Profile) CanUse(source string) bool {
	for _, s := range p.AllowedDataSources {
		if s == source || s == "*" {
			return true
		}
	}
	return false
}
