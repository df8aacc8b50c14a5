// Package config loads the YAML file that describes a taskmesh deployment:
// the agent roster, the memory backend, the server address and logging.
//
// Secrets never live in the file. API keys are named by environment variable
// (api_key_env) and resolved at wiring time; connection fields support
// ${VAR} expansion. Every omitted field gets a usable default, so an empty
// file yields a single default assistant on :8080 backed by in-process memory.
package config
