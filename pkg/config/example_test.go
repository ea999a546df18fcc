package config_test

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ajitpratap0/crmtap/pkg/config"
)

// ExampleDefault shows the values every key falls back to.
func ExampleDefault() {
	cfg := config.Default()

	fmt.Printf("Login URL: %s\n", cfg.LoginURL)
	fmt.Printf("API version: %s\n", cfg.APIVersion)
	fmt.Printf("Page size: %d\n", cfg.PageSize)
	fmt.Printf("Retry attempts: %d\n", cfg.RetryAttempts)

	// Output:
	// Login URL: https://login.salesforce.com
	// API version: 41.0
	// Page size: 2000
	// Retry attempts: 3
}

// ExampleLoad loads a JSON config file. The secret is pulled from the
// environment through ${VAR} substitution.
func ExampleLoad() {
	dir, _ := os.MkdirTemp("", "crmtap-example")
	defer os.RemoveAll(dir)

	_ = os.Setenv("EXAMPLE_CLIENT_SECRET", "s3cret")
	defer os.Unsetenv("EXAMPLE_CLIENT_SECRET")

	path := filepath.Join(dir, "tap.json")
	_ = os.WriteFile(path, []byte(`{
  "refresh_token": "rt",
  "client_id": "cid",
  "client_secret": "${EXAMPLE_CLIENT_SECRET}",
  "start_date": "2020-01-01T00:00:00Z"
}`), 0o600)

	cfg, err := config.Load(path)
	if err != nil {
		fmt.Println("error:", err)
		return
	}

	fmt.Println(cfg.StartDate)
	fmt.Println(cfg.ClientSecret)
	fmt.Println(cfg.Redacted().ClientSecret)

	// Output:
	// 2020-01-01T00:00:00Z
	// s3cret
	// ********
}
