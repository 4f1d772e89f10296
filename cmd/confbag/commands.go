package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"github.com/qmchamm/confbag/archive"
	"github.com/qmchamm/confbag/catalog"
	"github.com/qmchamm/confbag/meta"
	"github.com/qmchamm/confbag/xyz"
)

func doupload(e *env, args []string) error {
	flags := pflag.NewFlagSet("upload", pflag.ContinueOnError)
	overwrite := flags.Bool("overwrite", false, "replace archives already in the store")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if flags.NArg() == 0 {
		return errors.New("upload: no ARCHIVE given")
	}
	s, err := e.openStore()
	if err != nil {
		return err
	}
	var rep report
	for _, p := range flags.Args() {
		key, err := remoteKeyFor(p)
		if err != nil {
			rep.add(p, err)
			continue
		}
		if err := archive.Upload(s, p, key, *overwrite); err != nil {
			rep.add(p, err)
			continue
		}
		fmt.Fprintf(e.stdout, "%s -> %s\n", p, key)
	}
	return rep.err()
}

// remoteKeyFor reads the attributes of the local archive at p to find its
// key.
func remoteKeyFor(p string) (string, error) {
	r, err := archive.OpenFile(p)
	if err != nil {
		return "", err
	}
	defer r.Close()
	m, err := r.Meta()
	if err != nil {
		return "", err
	}
	return archive.RemoteKey(m, p), nil
}

func dolist(e *env, args []string) error {
	if len(args) > 1 {
		return errors.New("list: at most one PREFIX")
	}
	var prefix string
	if len(args) == 1 {
		prefix = args[0]
	}
	s, err := e.openStore()
	if err != nil {
		return err
	}
	keys, err := s.ListPrefix(prefix)
	if err != nil {
		return &archive.RemoteError{Op: "list", Key: prefix, Err: err}
	}
	for _, k := range keys {
		fmt.Fprintln(e.stdout, k)
	}
	return nil
}

func docatalog(e *env, args []string) error {
	flags := pflag.NewFlagSet("catalog", pflag.ContinueOnError)
	out := flags.String("out", "", "write a YAML catalog to this file (\"-\" for standard output)")
	name := flags.String("name", e.cfg.Catalog.Name, "source name in the YAML catalog")
	description := flags.String("description", e.cfg.Catalog.Description, "source description in the YAML catalog")
	uriBase := flags.String("uri-base", e.cfg.Catalog.URIBase, "prefix for the entry URIs")
	pressure := flags.Int("pressure", 0, "only archives at this pressure")
	temperature := flags.Int("temperature", 0, "only archives at this temperature")
	state := flags.String("state", "", "only archives in this state")
	workers := flags.Int("workers", e.cfg.Create.Workers, "number of archives to read at once")
	ext := flags.String("ext", e.cfg.Create.Ext, "archive file extension")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if flags.NArg() > 1 {
		return errors.New("catalog: at most one PREFIX")
	}
	var f catalog.Filter
	if flags.Changed("pressure") {
		f.Pressure = meta.Int(*pressure)
	}
	if flags.Changed("temperature") {
		f.Temperature = meta.Int(*temperature)
	}
	if *state != "" {
		st, ok := meta.ParseState(*state)
		if !ok {
			return fmt.Errorf("catalog: unknown state %q", *state)
		}
		f.State = &st
	}

	s, err := e.openStore()
	if err != nil {
		return err
	}
	opts := []catalog.ScanOption{catalog.WithWorkers(*workers), catalog.WithExt(*ext)}
	if e.verbose {
		opts = append(opts, catalog.WithLogging())
	}
	entries, errs := catalog.Scan(s, flags.Arg(0), *uriBase, opts...)
	var rep report
	for _, err := range errs {
		var rerr *archive.RemoteError
		if errors.As(err, &rerr) {
			rep.add(rerr.Key, rerr.Err)
		} else {
			rep.add("catalog", err)
		}
	}
	entries = f.Apply(entries)

	switch *out {
	case "":
		err = catalog.WriteTable(e.stdout, entries)
	case "-":
		err = catalog.WriteYAML(e.stdout, *name, *description, entries)
	default:
		err = writeCatalogFile(*out, *name, *description, entries)
	}
	if err != nil {
		return err
	}
	e.vlog(len(entries), "entries")
	return rep.err()
}

func writeCatalogFile(path, name, description string, entries []catalog.Entry) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := catalog.WriteYAML(f, name, description, entries); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// openArchive opens a local archive file if one exists at arg, and
// otherwise the archive stored under the key arg.
func openArchive(e *env, arg string) (*archive.Reader, io.Closer, error) {
	if fi, err := os.Stat(arg); err == nil && fi.Mode().IsRegular() {
		r, err := archive.OpenFile(arg)
		return r, r, err
	}
	s, err := e.openStore()
	if err != nil {
		return nil, nil, err
	}
	return archive.OpenKey(s, arg)
}

func doshow(e *env, args []string) error {
	if len(args) != 1 {
		return errors.New("show: expected one KEY or PATH")
	}
	r, closer, err := openArchive(e, args[0])
	if err != nil {
		return err
	}
	defer closer.Close()
	attrs, err := r.Attributes()
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(e.stdout, 0, 8, 1, ' ', 0)
	fmt.Fprintf(tw, "Archive:\t%s\n", r.Name())
	fmt.Fprintf(tw, "Attributes (%d):\n", len(attrs))
	for _, k := range attributeOrder(attrs) {
		fmt.Fprintf(tw, "  %s\t%v\n", k, attrs[k])
	}
	fmt.Fprintf(tw, "Entries (%d):\n", len(r.Entries()))
	for _, name := range r.Entries() {
		data, err := r.Entry(name)
		if err != nil {
			return err
		}
		sum := r.Checksum(name)
		if len(sum) > 12 {
			sum = sum[:12]
		}
		fmt.Fprintf(tw, "  %s\t%d bytes\tsha256 %s%s\n", name, len(data), sum, describeEntry(name, data))
	}
	return tw.Flush()
}

// attributeOrder lists the keys of attrs in field order, then any unknown
// keys sorted.
func attributeOrder(attrs map[string]any) []string {
	var result []string
	seen := make(map[string]bool)
	for _, f := range meta.Fields {
		if _, ok := attrs[f.Name]; ok {
			result = append(result, f.Name)
			seen[f.Name] = true
		}
	}
	var extra []string
	for k := range attrs {
		if !seen[k] {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	return append(result, extra...)
}

// describeEntry summarizes the structure in an xyz_data entry.
func describeEntry(name string, data []byte) string {
	if name != archive.XYZEntry {
		return ""
	}
	frame, err := xyz.NewReader(bytes.NewReader(data)).Next()
	if err != nil {
		return fmt.Sprintf(", unreadable: %v", err)
	}
	desc := fmt.Sprintf(", %d atoms", len(frame.Atoms))
	if len(frame.Lattice) == 9 {
		desc += fmt.Sprintf(", cell %g x %g x %g", frame.Lattice[0], frame.Lattice[4], frame.Lattice[8])
	}
	return desc
}

func dodelete(e *env, args []string) error {
	if len(args) == 0 {
		return errors.New("delete: no KEY given")
	}
	s, err := e.openStore()
	if err != nil {
		return err
	}
	var rep report
	for _, key := range args {
		if err := s.Delete(key); err != nil {
			rep.add(key, &archive.RemoteError{Op: "delete", Key: key, Err: err})
			continue
		}
		e.vlog("deleted", key)
	}
	return rep.err()
}

func doverify(e *env, args []string) error {
	if len(args) == 0 {
		return errors.New("verify: no KEY or PATH given")
	}
	var rep report
	for _, arg := range args {
		r, closer, err := openArchive(e, arg)
		if err != nil {
			rep.add(arg, err)
			continue
		}
		err = r.Verify()
		closer.Close()
		if err != nil {
			rep.add(arg, err)
			continue
		}
		fmt.Fprintf(e.stdout, "%s: ok\n", arg)
	}
	return rep.err()
}
