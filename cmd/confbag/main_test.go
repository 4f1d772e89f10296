package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/qmchamm/confbag/catalog"
	"github.com/qmchamm/confbag/config"
)

// makeTree builds root/P<p>/T<t>/<name>.xyz files, plus a directory that
// does not follow the naming convention.
func makeTree(t *testing.T, root string) {
	t.Helper()
	files := map[string]string{
		"P150/T2000/P150T2000config160.xyz":      "1\nconfig=160 phase=solid\nH 0 0 0\n",
		"P150/T2000/P150T2000config160_gofr.txt": "r g\n",
		"P150/T2400/P150T2400config161.xyz":      "1\nconfig=161 phase=Liquid rs=1.3\nH 0 0 0\n",
		"P225/T1000/P225T1000config7.xyz":        "1\nconfig=7 phase=molten\nH 0 0 0\n",
		"Pxx/T1000/bad.xyz":                      "1\nconfig=1\nH 0 0 0\n",
	}
	for name, content := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
}

// clearEnv keeps the caller's environment out of the settings.
func clearEnv(t *testing.T) {
	for _, name := range []string{"CONFBAG_CONFIG", config.EnvEndpoint, config.EnvAccessKey,
		config.EnvSecretKey, config.EnvBucket, config.EnvPrefix, config.EnvSentryDSN} {
		t.Setenv(name, "")
	}
}

func runArgs(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := run(args, &out)
	return out.String(), err
}

func TestCreateTreeAndCatalog(t *testing.T) {
	clearEnv(t)
	root := t.TempDir()
	makeTree(t, root)
	outDir := filepath.Join(t.TempDir(), "archives")
	storeDir := filepath.Join(t.TempDir(), "store")

	out, err := runArgs(t, "--store", storeDir, "create", "--mode", "tree", "--out", outDir,
		"--from-name", "--config-offset", "100", "--upload", "--workers", "2", root)
	// the Pxx directory is reported, everything else goes through
	if !errors.Is(err, errReported) {
		t.Errorf("got %v, expected the bad directory to be reported", err)
	}
	for _, want := range []string{
		"P150T2000_config_60.zip -> P150/T2000/P150T2000_config_60.zip",
		"P150T2400_config_61.zip -> P150/T2400/P150T2400_config_61.zip",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output is missing %q:\n%s", want, out)
		}
	}
	// config7 has no offset to remove, so it comes out negative
	if !strings.Contains(out, "P225T1000_config_-93.zip") {
		t.Errorf("output is missing the P225 archive:\n%s", out)
	}

	out, err = runArgs(t, "--store", storeDir, "list", "P150/")
	if err != nil {
		t.Fatal(err)
	}
	if strings.Count(out, "\n") != 2 {
		t.Errorf("list gave %q", out)
	}

	out, err = runArgs(t, "--store", storeDir, "catalog", "--out", "-", "--pressure", "150", "--uri-base", "s3://bucket")
	if err != nil {
		t.Fatal(err)
	}
	c, err := catalog.ReadYAML(strings.NewReader(out))
	if err != nil {
		t.Fatal(err)
	}
	entries := c.Sources["hydrogen_v1"].Metadata.Entries
	if len(entries) != 2 {
		t.Fatalf("got %d entries:\n%s", len(entries), out)
	}
	if entries[0].URI != "s3://bucket/P150/T2000/P150T2000_config_60.zip" {
		t.Errorf("uri %s", entries[0].URI)
	}
	if entries[0].Attributes["config_number"] != 60 || entries[0].Attributes["state"] != "solid" {
		t.Errorf("attributes %v", entries[0].Attributes)
	}
	if len(entries[0].Datasets) != 2 {
		t.Errorf("datasets %v", entries[0].Datasets)
	}

	out, err = runArgs(t, "--store", storeDir, "catalog", "--state", "liquid")
	if err != nil {
		t.Fatal(err)
	}
	// header plus the liquid run; molten is not a known state
	if lines := strings.Split(strings.TrimSpace(out), "\n"); len(lines) != 2 {
		t.Errorf("table is\n%s", out)
	}
}

func TestShowVerifyDelete(t *testing.T) {
	clearEnv(t)
	root := t.TempDir()
	makeTree(t, root)
	storeDir := filepath.Join(t.TempDir(), "store")
	xyzPath := filepath.Join(root, "P150", "T2400", "P150T2400config161.xyz")

	if _, err := runArgs(t, "create", "--from-name", xyzPath); err != nil {
		t.Fatal(err)
	}
	local := filepath.Join(root, "P150", "T2400", "P150T2400_config_161.zip")
	out, err := runArgs(t, "show", local)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"config_number", "161", "liquid", "xyz_data", "1 atoms"} {
		if !strings.Contains(out, want) {
			t.Errorf("show is missing %q:\n%s", want, out)
		}
	}

	if _, err := runArgs(t, "--store", storeDir, "upload", local); err != nil {
		t.Fatal(err)
	}
	if _, err := runArgs(t, "--store", storeDir, "upload", local); !errors.Is(err, errReported) {
		t.Errorf("second upload gave %v", err)
	}
	if _, err := runArgs(t, "--store", storeDir, "upload", "--overwrite", local); err != nil {
		t.Errorf("upload --overwrite gave %v", err)
	}

	key := "P150/T2400/P150T2400_config_161.zip"
	out, err = runArgs(t, "--store", storeDir, "verify", key, local)
	if err != nil || strings.Count(out, ": ok") != 2 {
		t.Errorf("verify gave %q, %v", out, err)
	}
	if _, err := runArgs(t, "--store", storeDir, "delete", key); err != nil {
		t.Fatal(err)
	}
	out, _ = runArgs(t, "--store", storeDir, "list")
	if out != "" {
		t.Errorf("store still holds %q", out)
	}
}

func TestRunErrors(t *testing.T) {
	clearEnv(t)
	if _, err := runArgs(t); err == nil {
		t.Errorf("expected an error with no command")
	}
	if _, err := runArgs(t, "frobnicate"); err == nil {
		t.Errorf("expected an error for an unknown command")
	}
	if _, err := runArgs(t, "list"); !errors.Is(err, errNoStore) {
		t.Errorf("got %v, expected errNoStore", err)
	}
	if _, err := runArgs(t, "create", "--mode", "sideways", "x.xyz"); !errors.Is(err, errReported) {
		t.Errorf("got %v for a bad mode", err)
	}
}

func TestCreateDuplicateOutput(t *testing.T) {
	clearEnv(t)
	root := t.TempDir()
	tdir := filepath.Join(root, "P1", "T2")
	if err := os.MkdirAll(tdir, 0755); err != nil {
		t.Fatal(err)
	}
	// a and b carry no config number, so both would be P1T2_config_NA
	for name, content := range map[string]string{
		"a.xyz": "1\nphase=solid\nH 0 0 0\n",
		"b.xyz": "1\nphase=solid\nH 0 0 0\n",
		"c.xyz": "1\nconfig=3 phase=solid\nH 0 0 0\n",
	} {
		if err := os.WriteFile(filepath.Join(tdir, name), []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	outDir := t.TempDir()
	out, err := runArgs(t, "create", "--mode", "tree", "--out", outDir, root)
	if !errors.Is(err, errReported) {
		t.Errorf("got %v, expected the clash to be reported", err)
	}
	if strings.Contains(out, "config_NA") {
		t.Errorf("a clashing archive was written:\n%s", out)
	}
	if !strings.Contains(out, "P1T2_config_3.zip") {
		t.Errorf("output is missing the config 3 archive:\n%s", out)
	}
	entries, _ := os.ReadDir(outDir)
	if len(entries) != 1 {
		t.Errorf("output directory holds %d files, expected 1", len(entries))
	}
}

func TestCreateFailFast(t *testing.T) {
	clearEnv(t)
	root := t.TempDir()
	good := filepath.Join(root, "P1T2config3.xyz")
	if err := os.WriteFile(good, []byte("1\nconfig=3\nH 0 0 0\n"), 0644); err != nil {
		t.Fatal(err)
	}
	missing := filepath.Join(root, "P1T2config4.xyz")
	outDir := t.TempDir()

	out, err := runArgs(t, "create", "--fail-fast", "--from-name", "--out", outDir, missing, good)
	if !errors.Is(err, errReported) {
		t.Errorf("got %v", err)
	}
	if out != "" {
		t.Errorf("expected nothing written after the failure, got %q", out)
	}
	if entries, _ := os.ReadDir(outDir); len(entries) != 0 {
		t.Errorf("output directory holds %d files", len(entries))
	}

	// without the flag the good file still goes through
	out, err = runArgs(t, "create", "--from-name", "--out", outDir, missing, good)
	if !errors.Is(err, errReported) {
		t.Errorf("got %v", err)
	}
	if !strings.Contains(out, "P1T2_config_3.zip") {
		t.Errorf("output is %q", out)
	}
}
