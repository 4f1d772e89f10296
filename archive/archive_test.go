package archive

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/qmchamm/confbag/meta"
	"github.com/qmchamm/confbag/store"
)

const sampleXYZ = `2
config=60 phase=solid pressure=150 temperature=2000 Lattice="10 0 0 0 10 0 0 0 10" Properties=species:S:1:pos:R:3
H 0.0 0.0 0.0
H 0.74 0.0 0.0
`

// writeFiles makes the named files in dir.
func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestDiscover(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"P1T2config3.xyz":      sampleXYZ,
		"P1T2config3_sofk.txt": "sofk",
		"P1T2config3.sk":       "sk",
	})
	os.Mkdir(filepath.Join(dir, "P1T2config3_gofr.txt"), 0755)

	c := Discover(filepath.Join(dir, "P1T2config3.xyz"))
	if c.SofkPath != filepath.Join(dir, "P1T2config3_sofk.txt") {
		t.Errorf("sofk path %q", c.SofkPath)
	}
	if c.SkPath != filepath.Join(dir, "P1T2config3.sk") {
		t.Errorf("sk path %q", c.SkPath)
	}
	if c.GofrPath != "" {
		t.Errorf("a directory should not count as a companion, got %q", c.GofrPath)
	}
}

func TestName(t *testing.T) {
	m := meta.Meta{Pressure: meta.Int(150), Temperature: meta.Int(2000), ConfigNumber: meta.Int(60)}
	var table = []struct {
		m         meta.Meta
		ext       string
		name, key string
	}{
		{m, "", "P150T2000_config_60.zip", "P150/T2000/P150T2000_config_60.zip"},
		{m, ".h5", "P150T2000_config_60.h5", "P150/T2000/P150T2000_config_60.h5"},
		{meta.Meta{Pressure: meta.Int(5)}, "zip", "P5TNA_config_NA.zip", "P5/TNA/P5TNA_config_NA.zip"},
	}
	for _, tab := range table {
		name := Name(tab.m, tab.ext)
		if name != tab.name {
			t.Errorf("got name %s, expected %s", name, tab.name)
		}
		key := RemoteKey(tab.m, filepath.Join("/some/dir", name))
		if key != tab.key {
			t.Errorf("got key %s, expected %s", key, tab.key)
		}
	}
}

func TestEndToEnd(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"P150T2000_config_60.xyz": sampleXYZ})
	xyzPath := filepath.Join(dir, "P150T2000_config_60.xyz")

	m, _, err := meta.ReadHeader(xyzPath)
	if err != nil {
		t.Fatal(err)
	}
	c := Discover(xyzPath)
	c.Meta = m
	out := filepath.Join(dir, Name(m, ""))
	if err := Write(out, c); err != nil {
		t.Fatal(err)
	}

	r, err := OpenFile(out)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	if r.Name() != "P150T2000_config_60" {
		t.Errorf("bag name %s", r.Name())
	}
	attrs, err := r.Attributes()
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]any{
		"config_number": 60,
		"state":         "solid",
		"pressure":      150,
		"temperature":   2000,
	}
	if len(attrs) != len(want) {
		t.Errorf("got attributes %v", attrs)
	}
	for k, v := range want {
		if attrs[k] != v {
			t.Errorf("attribute %s = %#v, expected %#v", k, attrs[k], v)
		}
	}
	entries := r.Entries()
	if len(entries) != 1 || entries[0] != XYZEntry {
		t.Fatalf("got entries %v", entries)
	}
	data, err := r.Entry(XYZEntry)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != sampleXYZ {
		t.Errorf("xyz_data differs from the input")
	}
	if err := r.Verify(); err != nil {
		t.Errorf("Verify: %s", err)
	}
	if r.Tags()["pressure"] != "150" {
		t.Errorf("bag-info pressure tag is %q", r.Tags()["pressure"])
	}
}

func TestRoundtripTypes(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"a.xyz":      sampleXYZ,
		"a_sofk.txt": "k s(k)\n1 2\n",
		"a_gofr.txt": "r g(r)\n1 2\n",
		"a.sk":       "sk data",
	})
	m := meta.Meta{
		ConfigNumber:    meta.Int(7),
		Pressure:        meta.Int(225),
		Temperature:     meta.Int(1000),
		State:           meta.StateOf(meta.Ambiguous),
		Rs:              meta.Float(1.31),
		PotentialEnergy: meta.Float(-4),
		Method:          meta.String("DMC"),
		Author:          meta.String("multi word\nname"),
		QMCQuality:      meta.Int(0),
	}
	c := Discover(filepath.Join(dir, "a.xyz"))
	c.Meta = m
	var buf bytes.Buffer
	if err := Encode(&buf, c); err != nil {
		t.Fatal(err)
	}
	r, err := Open(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatal(err)
	}
	back, err := r.Meta()
	if err != nil {
		t.Fatal(err)
	}
	before, after := m.Attributes(), back.Attributes()
	if len(before) != len(after) {
		t.Fatalf("got %v, expected %v", after, before)
	}
	for i := range before {
		if before[i] != after[i] {
			t.Errorf("got %#v, expected %#v", after[i], before[i])
		}
	}
	attrs, _ := r.Attributes()
	if _, ok := attrs["potential_energy"].(float64); !ok {
		t.Errorf("potential_energy came back as %T", attrs["potential_energy"])
	}
	if _, ok := attrs["pressure"].(int); !ok {
		t.Errorf("pressure came back as %T", attrs["pressure"])
	}
	wantEntries := []string{ElectronicEntry, GofrEntry, SofkEntry, XYZEntry}
	got := r.Entries()
	if len(got) != len(wantEntries) {
		t.Fatalf("got entries %v", got)
	}
	for i := range got {
		if got[i] != wantEntries[i] {
			t.Errorf("entry %d is %s, expected %s", i, got[i], wantEntries[i])
		}
	}
	sk, _ := r.Entry(ElectronicEntry)
	if string(sk) != "sk data" {
		t.Errorf("electronic_sk_data is %q", sk)
	}
	if r.Tags()["author"] != "multi word name" {
		t.Errorf("author tag is %q", r.Tags()["author"])
	}
}

func TestInvalidUTF8(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"latin1.xyz": "1\nconfig=3 author=M\xfcller pressure=10\nH 0 0 0\n",
	})
	path := filepath.Join(dir, "latin1.xyz")
	c := Discover(path)
	var err error
	c.Meta, _, err = meta.ReadHeader(path)
	if err != nil {
		t.Fatal(err)
	}
	// strings set directly skip header coercion
	c.Meta.Method = meta.String("D\xffMC")
	var buf bytes.Buffer
	if err := Encode(&buf, c); err != nil {
		t.Fatal(err)
	}
	r, err := Open(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatal(err)
	}
	attrs, err := r.Attributes()
	if err != nil {
		t.Fatal(err)
	}
	if attrs["author"] != "M\uFFFDller" {
		t.Errorf("author is %q", attrs["author"])
	}
	if attrs["method"] != "D\uFFFDMC" {
		t.Errorf("method is %q", attrs["method"])
	}
	if attrs["pressure"] != 10 {
		t.Errorf("pressure is %v", attrs["pressure"])
	}
}

func TestIdempotent(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"x.xyz": sampleXYZ, "x_gofr.txt": "g"})
	c := Discover(filepath.Join(dir, "x.xyz"))
	c.Meta, _ = meta.ParseName("P150T2000config60")
	out := filepath.Join(dir, "out.zip")

	if err := Write(out, c, WithDerivedUUID()); err != nil {
		t.Fatal(err)
	}
	first, _ := os.ReadFile(out)
	if err := Write(out, c, WithDerivedUUID()); err != nil {
		t.Fatal(err)
	}
	second, _ := os.ReadFile(out)
	if !bytes.Equal(first, second) {
		t.Errorf("two writes of the same input differ")
	}

	r, err := Open(bytes.NewReader(second), int64(len(second)))
	if err != nil {
		t.Fatal(err)
	}
	attrs, _ := r.Attributes()
	if attrs["uuid"] != DeriveUUID(c.Meta, "") {
		t.Errorf("uuid attribute is %v", attrs["uuid"])
	}

	// no temporary files are left behind
	entries, _ := os.ReadDir(dir)
	if len(entries) != 3 {
		t.Errorf("directory holds %d files, expected 3", len(entries))
	}
}

func TestMissingCompanion(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"y.xyz": sampleXYZ})
	c := Discover(filepath.Join(dir, "y.xyz"))
	var buf bytes.Buffer
	if err := Encode(&buf, c); err != nil {
		t.Fatal(err)
	}
	r, _ := Open(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if _, err := r.Entry(SofkEntry); err == nil {
		t.Errorf("expected no sofk_data entry")
	}
}

func TestWriteErrors(t *testing.T) {
	dir := t.TempDir()
	c := Configuration{XYZPath: filepath.Join(dir, "missing.xyz")}
	err := Write(filepath.Join(dir, "out.zip"), c)
	if !errors.Is(err, meta.ErrFileNotFound) {
		t.Errorf("got %v, expected ErrFileNotFound", err)
	}

	writeFiles(t, dir, map[string]string{"z.xyz": sampleXYZ})
	c = Discover(filepath.Join(dir, "z.xyz"))
	err = Write(filepath.Join(dir, "no", "such", "dir", "out.zip"), c)
	var ioerr *IOError
	if !errors.As(err, &ioerr) {
		t.Errorf("got %v, expected an *IOError", err)
	}

	// a companion that vanishes after discovery is a read failure
	c.SofkPath = filepath.Join(dir, "gone_sofk.txt")
	err = Write(filepath.Join(dir, "out.zip"), c)
	if !errors.As(err, &ioerr) || ioerr.Path != c.SofkPath {
		t.Errorf("got %v, expected an *IOError for the companion", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "out.zip")); err == nil {
		t.Errorf("a failed write left an archive behind")
	}
}

func TestUpload(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"P1T2config3.xyz": sampleXYZ})
	c := Discover(filepath.Join(dir, "P1T2config3.xyz"))
	c.Meta, _ = meta.ParseName(c.XYZPath)
	out := filepath.Join(dir, Name(c.Meta, ""))
	if err := Write(out, c); err != nil {
		t.Fatal(err)
	}
	key := RemoteKey(c.Meta, out)
	s := store.NewMemory()

	if err := Upload(s, out, key, false); err != nil {
		t.Fatal(err)
	}
	err := Upload(s, out, key, false)
	if !errors.Is(err, store.ErrKeyExists) {
		t.Errorf("second upload gave %v", err)
	}
	var rerr *RemoteError
	if !errors.As(err, &rerr) || rerr.Key != key {
		t.Errorf("expected a *RemoteError for %s, got %v", key, err)
	}
	if err := Upload(s, out, key, true); err != nil {
		t.Errorf("overwrite gave %v", err)
	}

	r, closer, err := OpenKey(s, key)
	if err != nil {
		t.Fatal(err)
	}
	defer closer.Close()
	m, err := r.Meta()
	if err != nil {
		t.Fatal(err)
	}
	if *m.Pressure != 1 || *m.Temperature != 2 || *m.ConfigNumber != 3 {
		t.Errorf("got %v", m.Attributes())
	}
	if _, err := os.Stat(out); err != nil {
		t.Errorf("local archive is gone: %s", err)
	}
}
