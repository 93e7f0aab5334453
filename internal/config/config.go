// Package config loads the engine's TOML configuration. Every field has
// a working default; an absent file yields a usable config, a malformed
// one is an error.
package config

import (
	"os"

	"github.com/BurntSushi/toml"

	"github.com/FocuswithJustin/Amanuensis/core/errors"
)

// DefaultPath is the conventional configuration file location.
const DefaultPath = "config.toml"

// Config is the full configuration surface. Section and key names follow
// the on-disk TOML layout.
type Config struct {
	Paths               Paths               `toml:"paths"`
	Settings            Settings            `toml:"settings"`
	Ambiguity           Ambiguity           `toml:"ambiguity"`
	UnicodeReplacements UnicodeReplacements `toml:"unicode_replacements"`
	LanguageModel       LanguageModel       `toml:"language_model"`
}

// Paths configures the corpus directories and the store location.
type Paths struct {
	InputPath      string `toml:"input_path"`
	OutputPath     string `toml:"output_path"`
	QuarantinePath string `toml:"quarantine_path"`
	DictionaryPath string `toml:"dictionary_path"`
	LexiconPath    string `toml:"lexicon_path"`
}

// Settings holds the general processing knobs.
type Settings struct {
	LoggingLevel string `toml:"logging_level"`
	LogFormat    string `toml:"log_format"`
	Concurrency  int    `toml:"concurrency"`
	ContextSize  int    `toml:"context_size"`
	UseChoice    bool   `toml:"use_choice"`
	AddXMLIDs    bool   `toml:"add_xml_ids"`
}

// Ambiguity lists the normalized keys that always require review.
type Ambiguity struct {
	AmbiguousKeys      []string `toml:"ambiguous_aws"`
	AutoApplyThreshold float64  `toml:"auto_apply_threshold"`
}

// UnicodeReplacements configures the pre-parse character cleanup pass.
type UnicodeReplacements struct {
	ReplacementsOn      bool              `toml:"replacements_on"`
	CharactersToDelete  []string          `toml:"characters_to_delete"`
	CharactersToReplace map[string]string `toml:"characters_to_replace"`
}

// LanguageModel configures the optional HTTP suggestion backend.
type LanguageModel struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Model          string `toml:"model"`
	APIKey         string `toml:"api_key"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Paths: Paths{
			InputPath:      "corpus",
			OutputPath:     "out",
			QuarantinePath: "quarantine",
			DictionaryPath: "data/learned.db",
		},
		Settings: Settings{
			LoggingLevel: "info",
			LogFormat:    "text",
			Concurrency:  4,
			ContextSize:  20,
			UseChoice:    true,
		},
		Ambiguity: Ambiguity{
			AmbiguousKeys: []string{"the$", "y$"},
		},
		LanguageModel: LanguageModel{
			TimeoutSeconds: 10,
		},
	}
}

// Load reads the configuration at path, layering file values over the
// defaults. A missing file at the conventional path is not an error; a
// missing file at an explicitly requested path is.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		path = DefaultPath
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if path == DefaultPath {
			return cfg, nil
		}
		return nil, errors.NewValidation("config", "configuration file not found: "+path)
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, errors.Wrapf(err, "decoding %s", path)
	}
	return cfg, nil
}
