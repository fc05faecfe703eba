package cli

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/term"

	"github.com/marcus-pm/lenny-cli/internal/config"
)

// userConfigPath returns the per-user config file path.
func userConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "lenny", "config.env")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".config", "lenny", "config.env")
}

// loadUserConfigEnv reads KEY=VALUE lines from the user config file into
// the environment. Values already exported win over the file.
func loadUserConfigEnv() {
	f, err := os.Open(userConfigPath())
	if err != nil {
		return
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if os.Getenv(key) == "" {
			os.Setenv(key, strings.TrimSpace(value))
		}
	}
}

// ensureAPIKey makes sure the configured provider has credentials,
// prompting interactively (no echo) for an Anthropic key when possible.
func ensureAPIKey(c *config.Config) error {
	if c.LLMProvider != config.ProviderAnthropic || c.AnthropicAPIKey != "" {
		return c.Validate()
	}
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return c.Validate()
	}

	fmt.Println()
	fmt.Println("First-time setup")
	fmt.Println("  An Anthropic API key is required to run queries.")
	var key string
	for key == "" {
		fmt.Print("  Enter your Anthropic API key: ")
		raw, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println()
		if err != nil {
			return fmt.Errorf("read API key: %w", err)
		}
		key = strings.TrimSpace(string(raw))
		if key == "" {
			fmt.Println("  API key cannot be empty.")
		}
	}

	c.AnthropicAPIKey = key
	os.Setenv("ANTHROPIC_API_KEY", key)

	configPath := userConfigPath()
	fmt.Printf("  Save this key for future runs at %s? [Y/n] ", configPath)
	reader := bufio.NewReader(os.Stdin)
	answer, _ := reader.ReadString('\n')
	answer = strings.ToLower(strings.TrimSpace(answer))
	if answer == "" || answer == "y" || answer == "yes" {
		if err := saveAPIKey(configPath, key); err != nil {
			fmt.Printf("  Could not save key: %v\n", err)
		} else {
			fmt.Println("  Saved.")
		}
	}
	fmt.Println()
	return nil
}

func saveAPIKey(path, key string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte("ANTHROPIC_API_KEY="+key+"\n"), 0o600)
}
