package token

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// keyFileMode keeps key files readable by the owner only.
const keyFileMode = 0o600

// WriteKeyToEnvFile generates a master key and sets name=<key> in a .env file,
// replacing an existing assignment. It returns the generated key.
func WriteKeyToEnvFile(filePath, name string) (string, error) {
	return writeGeneratedKey(filePath, name, setInEnvFile)
}

// WriteKeyToJSONFile generates a master key and stores it under name in a JSON object file.
func WriteKeyToJSONFile(filePath, name string) (string, error) {
	return writeGeneratedKey(filePath, name, setInJSONFile)
}

// WriteKeyToYAMLFile generates a master key and stores it under name in a YAML mapping file.
func WriteKeyToYAMLFile(filePath, name string) (string, error) {
	return writeGeneratedKey(filePath, name, setInYAMLFile)
}

func writeGeneratedKey(filePath, name string, set func(path, name, value string) error) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", errors.New("key name required")
	}
	key, err := GenerateKey()
	if err != nil {
		return "", fmt.Errorf("failed to generate key: %w", err)
	}
	if err := set(filePath, name, key); err != nil {
		return "", err
	}
	return key, nil
}

func readOptional(filePath string) ([]byte, error) {
	content, err := os.ReadFile(filePath)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return content, nil
}

// setInEnvFile replaces the first NAME= line or appends one.
func setInEnvFile(filePath, name, value string) error {
	content, err := readOptional(filePath)
	if err != nil {
		return err
	}
	var lines []string
	if len(content) > 0 {
		lines = strings.Split(strings.TrimRight(string(content), "\n"), "\n")
	}
	assignment := regexp.MustCompile(`^(export\s+)?` + regexp.QuoteMeta(name) + `=`)
	found := false
	for i, line := range lines {
		if assignment.MatchString(line) {
			lines[i] = fmt.Sprintf("%s=%s", name, value)
			found = true
			break
		}
	}
	if !found {
		lines = append(lines, fmt.Sprintf("%s=%s", name, value))
	}
	return os.WriteFile(filePath, []byte(strings.Join(lines, "\n")+"\n"), keyFileMode)
}

func setInJSONFile(filePath, name, value string) error {
	content, err := readOptional(filePath)
	if err != nil {
		return err
	}
	data := make(map[string]any)
	if len(content) > 0 {
		if err := json.Unmarshal(content, &data); err != nil {
			return fmt.Errorf("failed to parse JSON: %w", err)
		}
	}
	if data == nil {
		data = make(map[string]any)
	}
	data[name] = value
	updated, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return os.WriteFile(filePath, append(updated, '\n'), keyFileMode)
}

func setInYAMLFile(filePath, name, value string) error {
	content, err := readOptional(filePath)
	if err != nil {
		return err
	}
	data := make(map[string]any)
	if len(content) > 0 {
		if err := yaml.Unmarshal(content, &data); err != nil {
			return fmt.Errorf("failed to parse YAML: %w", err)
		}
	}
	if data == nil {
		data = make(map[string]any)
	}
	data[name] = value
	updated, err := yaml.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal YAML: %w", err)
	}
	return os.WriteFile(filePath, updated, keyFileMode)
}
