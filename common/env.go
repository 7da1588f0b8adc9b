package common

import (
	"io"
	"os"
	"strings"
)

// LoadEnv loads environment variables from a file
func LoadEnv(filename string) error {
	file, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return err
	}

	lines := strings.Split(string(data), "\n")
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) == 2 {
			key := strings.TrimSpace(parts[0])
			val := strings.TrimSpace(parts[1])
			val = strings.Trim(val, "'\"")
			// Real environment wins over the file.
			if _, exists := os.LookupEnv(key); exists {
				continue
			}
			os.Setenv(key, val)
		}
	}
	return nil
}

// ApplyEnv copies secrets from the environment into the config.
func (c *Config) ApplyEnv() {
	if c.Narration.SarvamKey == "" {
		c.Narration.SarvamKey = os.Getenv("SARVAM_API_KEY")
	}
	if c.Narration.GeminiKey == "" {
		c.Narration.GeminiKey = os.Getenv("GEMINI_API_KEY")
	}
	if c.Sink.AccessKey == "" {
		c.Sink.AccessKey = os.Getenv("AWS_ACCESS_KEY_ID")
	}
	if c.Sink.SecretKey == "" {
		c.Sink.SecretKey = os.Getenv("AWS_SECRET_ACCESS_KEY")
	}
	if c.Sink.Region == "" {
		c.Sink.Region = os.Getenv("AWS_REGION")
	}
}
