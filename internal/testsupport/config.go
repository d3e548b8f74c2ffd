package testsupport

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

// WriteConfigFile writes a valid YAML configuration into dir, with the audit
// output directory also pointed at dir, and returns the file path.
func WriteConfigFile(t testing.TB, dir string) string {
	t.Helper()

	content := fmt.Sprintf(`api:
  api-key: "test-key"
  url: "https://immich.test"
database:
  host: "localhost"
  dbname: "immich"
  user: "postgres"
  password: "secret"
  port: 5432
user-info:
  name: "Jane"
output:
  dir: %q
`, dir)

	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write test config: %v", err)
	}
	return path
}
