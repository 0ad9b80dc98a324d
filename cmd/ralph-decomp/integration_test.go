package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

// IntegrationTestCase represents a single end-to-end test case
type IntegrationTestCase struct {
	Name         string   `yaml:"name"`
	Args         []string `yaml:"args"`          // Flags placed before the listing
	Input        string   `yaml:"input"`         // Listing document
	Expect       []string `yaml:"expect"`        // Strings that must appear in output
	ExpectOrder  []string `yaml:"expect_order"`  // Strings that must appear in this order
	ExpectUnique []string `yaml:"expect_unique"` // Strings that must appear exactly once
	ExpectNot    []string `yaml:"expect_not"`    // Strings that must NOT appear in output
	Skip         string   `yaml:"skip,omitempty"`
}

// IntegrationTestFile represents the integration.yaml file structure
type IntegrationTestFile struct {
	Tests []IntegrationTestCase `yaml:"tests"`
}

func TestIntegration(t *testing.T) {
	data, err := os.ReadFile("../../testdata/integration.yaml")
	if err != nil {
		t.Fatalf("failed to read integration.yaml: %v", err)
	}
	var testFile IntegrationTestFile
	if err := yaml.Unmarshal(data, &testFile); err != nil {
		t.Fatalf("failed to parse integration.yaml: %v", err)
	}
	if len(testFile.Tests) == 0 {
		t.Fatal("integration.yaml has no tests")
	}

	for _, tc := range testFile.Tests {
		t.Run(tc.Name, func(t *testing.T) {
			if tc.Skip != "" {
				t.Skip(tc.Skip)
			}
			path := filepath.Join(t.TempDir(), "input.yaml")
			if err := os.WriteFile(path, []byte(tc.Input), 0644); err != nil {
				t.Fatalf("failed to write listing: %v", err)
			}

			resetDebugFlags()
			var out, errOut bytes.Buffer
			cmd := newRootCmd(&out, &errOut)
			cmd.SetArgs(normalizeFlags(append(append([]string(nil), tc.Args...), path)))
			if err := cmd.Execute(); err != nil {
				t.Fatalf("ralph-decomp failed: %v\nStderr: %s", err, errOut.String())
			}
			output := out.String()

			for _, exp := range tc.Expect {
				if !strings.Contains(output, exp) {
					t.Errorf("expected output to contain %q\nGot:\n%s", exp, output)
				}
			}
			pos := 0
			for _, exp := range tc.ExpectOrder {
				i := strings.Index(output[pos:], exp)
				if i < 0 {
					t.Errorf("expected %q after offset %d\nGot:\n%s", exp, pos, output)
					break
				}
				pos += i + len(exp)
			}
			for _, exp := range tc.ExpectUnique {
				if n := strings.Count(output, exp); n != 1 {
					t.Errorf("expected %q exactly once, found %d times\nGot:\n%s", exp, n, output)
				}
			}
			for _, exp := range tc.ExpectNot {
				if strings.Contains(output, exp) {
					t.Errorf("expected output NOT to contain %q\nGot:\n%s", exp, output)
				}
			}
		})
	}
}
