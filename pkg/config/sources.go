package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var packagedDefaults []byte

// DefaultConfigFile is the env file read when no path is given and the file
// exists in the working directory.
const DefaultConfigFile = "configs/config.yaml"

// EnvConfigFile names the variable that selects the env file.
const EnvConfigFile = EnvPrefix + "CONFIG"

// Layer names, lowest precedence first.
const (
	SourceDefaults = "defaults"
	SourceFile     = "file"
	SourceEnv      = "env"
	SourceCLI      = "cli"
)

// Params holds explicitly supplied command line parameters keyed by
// configuration key. Only parameters the user actually set belong here.
type Params map[string]string

// Sources describes where configuration layers are read from.
type Sources struct {
	// Defaults overrides the packaged defaults document (YAML). Nil uses the
	// embedded defaults.
	Defaults []byte

	// File is the env file path. Empty means no env file layer.
	File string

	// Environ is the process environment in os.Environ form. Nil means no
	// process environment layer.
	Environ []string

	// Params is the CLI layer.
	Params Params
}

// DefaultSources returns the sources used by a normal run: packaged defaults,
// the env file named by UITEST_CONFIG (or configs/config.yaml if present), the
// process environment, and the given params.
func DefaultSources(params Params) Sources {
	file := os.Getenv(EnvConfigFile)
	if file == "" {
		if _, err := os.Stat(DefaultConfigFile); err == nil {
			file = DefaultConfigFile
		}
	}

	return Sources{
		File:    file,
		Environ: os.Environ(),
		Params:  params,
	}
}

// Environ renders params and an optional env file as UITEST_* variables in
// os.Environ form, sorted by key. A child process given these variables
// resolves the same values through its environment layer.
func Environ(params Params, configFile string) []string {
	var env []string
	if configFile != "" {
		env = append(env, EnvConfigFile+"="+configFile)
	}

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		env = append(env, EnvVar(k)+"="+params[k])
	}
	return env
}

// layer is one flattened configuration source.
type layer struct {
	name   string
	values map[string]string
}

// loadDefaults parses the defaults document into a layer.
func loadDefaults(doc []byte) (layer, error) {
	if doc == nil {
		doc = packagedDefaults
	}

	raw := map[string]any{}
	if err := yaml.Unmarshal(doc, &raw); err != nil {
		return layer{}, &ConfigError{Source: SourceDefaults, Message: "invalid defaults document", Err: err}
	}

	values := map[string]string{}
	if err := flatten("", raw, values); err != nil {
		return layer{}, withSource(err, SourceDefaults)
	}
	if err := checkKnown(values, SourceDefaults); err != nil {
		return layer{}, err
	}

	return layer{name: SourceDefaults, values: values}, nil
}

// envFile is a parsed env file: keys shared by every environment plus one
// section per environment.
type envFile struct {
	shared   map[string]string
	sections map[Environment]map[string]string
}

// loadEnvFile reads and flattens the env file at path.
func loadEnvFile(path string) (envFile, error) {
	file := envFile{
		shared:   map[string]string{},
		sections: map[Environment]map[string]string{},
	}
	if path == "" {
		return file, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return file, &ConfigError{Source: SourceFile, Message: fmt.Sprintf("config file %s not found", path), Err: err}
		}
		return file, &ConfigError{Source: SourceFile, Message: fmt.Sprintf("failed to read config file %s", path), Err: err}
	}

	raw := map[string]any{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return file, &ConfigError{Source: SourceFile, Message: fmt.Sprintf("invalid YAML in %s", path), Err: err}
	}

	for name, value := range raw {
		env, isSection := lookupEnvironment(name)
		if !isSection {
			if err := flatten(name, value, file.shared); err != nil {
				return file, withSource(err, SourceFile)
			}
			continue
		}

		body, ok := value.(map[string]any)
		if !ok {
			return file, &ConfigError{Key: name, Source: SourceFile, Message: "environment section must be a mapping"}
		}
		section := map[string]string{}
		if err := flatten("", body, section); err != nil {
			return file, withSource(err, sectionSource(env))
		}
		if _, ok := section[KeyEnvironment]; ok {
			return file, &ConfigError{Key: KeyEnvironment, Source: sectionSource(env), Message: "environment cannot be set inside an environment section"}
		}
		if err := checkKnown(section, sectionSource(env)); err != nil {
			return file, err
		}
		file.sections[env] = section
	}

	if err := checkKnown(file.shared, SourceFile); err != nil {
		return file, err
	}

	return file, nil
}

func sectionSource(env Environment) string {
	return SourceFile + ":" + string(env)
}

// loadEnviron extracts UITEST_* variables and legacy aliases.
func loadEnviron(environ []string) layer {
	vars := make(map[string]string, len(environ))
	for _, kv := range environ {
		name, value, ok := strings.Cut(kv, "=")
		if ok {
			vars[name] = value
		}
	}

	values := map[string]string{}
	for alias, key := range envAliases {
		if v, ok := vars[alias]; ok && v != "" {
			values[key] = v
		}
	}
	for key := range knownKeys {
		if v, ok := vars[EnvVar(key)]; ok && v != "" {
			values[key] = v
		}
	}

	return layer{name: SourceEnv, values: values}
}

// loadParams validates the CLI layer.
func loadParams(params Params) (layer, error) {
	values := make(map[string]string, len(params))
	for k, v := range params {
		values[k] = v
	}
	if err := checkKnown(values, SourceCLI); err != nil {
		return layer{}, err
	}
	return layer{name: SourceCLI, values: values}, nil
}

// flatten converts nested YAML mappings into dotted leaf keys.
func flatten(prefix string, value any, out map[string]string) error {
	switch v := value.(type) {
	case map[string]any:
		for k, child := range v {
			key := k
			if prefix != "" {
				key = prefix + "." + k
			}
			if err := flatten(key, child, out); err != nil {
				return err
			}
		}
	case []any:
		return &ConfigError{Key: prefix, Message: "lists are not supported"}
	case nil:
		// An explicit null leaves the key unset in this layer.
	default:
		if prefix == "" {
			return &ConfigError{Message: "document must be a mapping"}
		}
		out[prefix] = fmt.Sprint(v)
	}
	return nil
}

func checkKnown(values map[string]string, source string) error {
	for key := range values {
		if !IsKnownKey(key) {
			return &ConfigError{Key: key, Source: source, Message: "unknown configuration key"}
		}
	}
	return nil
}

func withSource(err error, source string) error {
	var cfgErr *ConfigError
	if errors.As(err, &cfgErr) && cfgErr.Source == "" {
		cfgErr.Source = source
	}
	return err
}
