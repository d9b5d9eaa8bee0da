// Package file provides file-based implementations of driven port interfaces.
// These adapters persist data to the local filesystem.
//
// Adapters:
//   - ConfigStore: TOML-based configuration storage
//   - PromptStore: user-editable prompt templates with embedded defaults
//
// LoadSettings layers defaults, the TOML file, .env files and RAGBOT_*
// environment variables into a domain.Settings.
package file
