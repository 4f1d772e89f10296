package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/spf13/pflag"

	"github.com/qmchamm/confbag/archive"
	"github.com/qmchamm/confbag/meta"
	"github.com/qmchamm/confbag/store"
	"github.com/qmchamm/confbag/util"
)

// createOptions are the flags of the create command.
type createOptions struct {
	out        string
	mode       string
	fromName   bool
	offset     int
	upload     bool
	overwrite  bool
	workers    int
	ext        string
	deriveUUID bool
	failFast   bool
}

// job is one structure file to archive. base holds metadata known before
// the header is read, such as values from the directory names.
type job struct {
	xyz  string
	base meta.Meta
}

// result is what became of one job.
type result struct {
	path string // local archive
	key  string // remote key, if uploaded
	err  error
}

func docreate(e *env, args []string) error {
	var o createOptions
	flags := pflag.NewFlagSet("create", pflag.ContinueOnError)
	flags.StringVar(&o.out, "out", e.cfg.Create.Out, "directory for the archives (default: next to each input)")
	flags.StringVar(&o.mode, "mode", "file", "what PATH is: file, run or tree")
	flags.BoolVar(&o.fromName, "from-name", false, "take pressure, temperature and config number from the file name")
	flags.IntVar(&o.offset, "config-offset", e.cfg.Create.ConfigOffset, "subtract this from config numbers read from names")
	flags.BoolVar(&o.upload, "upload", false, "upload each archive after writing it")
	flags.BoolVar(&o.overwrite, "overwrite", false, "replace archives already in the store")
	flags.IntVar(&o.workers, "workers", e.cfg.Create.Workers, "number of files to process at once")
	flags.StringVar(&o.ext, "ext", e.cfg.Create.Ext, "archive file extension")
	flags.BoolVar(&o.deriveUUID, "derive-uuid", e.cfg.Create.DeriveUUID, "set a missing uuid from the archive name")
	flags.BoolVar(&o.failFast, "fail-fast", false, "stop at the first file that fails")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if flags.NArg() == 0 {
		return errors.New("create: no PATH given")
	}
	if o.out != "" {
		if err := os.MkdirAll(o.out, 0755); err != nil {
			return err
		}
	}

	var rep report
	var jobs []job
	for _, p := range flags.Args() {
		found, err := findJobs(o.mode, p, &rep)
		if err != nil {
			rep.add(p, err)
			continue
		}
		jobs = append(jobs, found...)
	}

	var s store.Store
	if o.upload {
		var err error
		if s, err = e.openStore(); err != nil {
			return err
		}
	}

	results := runJobs(e, jobs, o, s)
	for i, r := range results {
		if r.err != nil {
			rep.add(jobs[i].xyz, r.err)
			continue
		}
		if r.key != "" {
			fmt.Fprintf(e.stdout, "%s -> %s\n", r.path, r.key)
		} else {
			fmt.Fprintln(e.stdout, r.path)
		}
	}
	return rep.err()
}

// findJobs expands one command line PATH according to mode. Problems with
// single directories of a tree are reported to rep and skipped.
func findJobs(mode, p string, rep *report) ([]job, error) {
	switch mode {
	case "file":
		return []job{{xyz: p}}, nil
	case "run":
		// a run directory holds <dirname>.xyz
		name := filepath.Base(filepath.Clean(p))
		return []job{{xyz: filepath.Join(p, name+".xyz")}}, nil
	case "tree":
		return walkTree(p, rep)
	}
	return nil, fmt.Errorf("unknown mode %q", mode)
}

// walkTree finds root/P*/T*/*.xyz. Pressure and temperature are taken from
// the directory names. A directory whose name does not parse is reported
// and skipped.
func walkTree(root string, rep *report) ([]job, error) {
	pdirs, err := subdirs(root, "P*")
	if err != nil {
		return nil, err
	}
	var jobs []job
	for _, pdir := range pdirs {
		p, err := meta.ParsePressureDir(filepath.Base(pdir))
		if err != nil {
			rep.add(pdir, fmt.Errorf("skipping directory: %w", err))
			continue
		}
		tdirs, err := subdirs(pdir, "T*")
		if err != nil {
			rep.add(pdir, err)
			continue
		}
		for _, tdir := range tdirs {
			t, err := meta.ParseTemperatureDir(filepath.Base(tdir))
			if err != nil {
				rep.add(tdir, fmt.Errorf("skipping directory: %w", err))
				continue
			}
			files, err := filepath.Glob(filepath.Join(tdir, "*.xyz"))
			if err != nil {
				rep.add(tdir, err)
				continue
			}
			sort.Strings(files)
			for _, f := range files {
				jobs = append(jobs, job{
					xyz:  f,
					base: meta.Meta{Pressure: meta.Int(p), Temperature: meta.Int(t)},
				})
			}
		}
	}
	return jobs, nil
}

// subdirs returns the sorted directories in dir matching pattern.
func subdirs(dir, pattern string) ([]string, error) {
	if _, err := os.Stat(dir); err != nil {
		return nil, err
	}
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return nil, err
	}
	var result []string
	for _, m := range matches {
		if fi, err := os.Stat(m); err == nil && fi.IsDir() {
			result = append(result, m)
		}
	}
	sort.Strings(result)
	return result, nil
}

var (
	// errDuplicateOutput marks inputs that resolve to the same archive.
	errDuplicateOutput = errors.New("another input resolves to the same archive")

	// errSkipped marks inputs not processed after a --fail-fast stop.
	errSkipped = errors.New("skipped after an earlier failure")
)

// plan is a resolved job: its configuration and where its archive goes.
type plan struct {
	c    archive.Configuration
	name string
	out  string
}

// runJobs processes the jobs with up to o.workers at once. Every job is
// resolved first; inputs whose archives would land on the same path are
// all reported and none of them is written. Results are in job order.
func runJobs(e *env, jobs []job, o createOptions, s store.Store) []result {
	results := make([]result, len(jobs))
	plans := make([]plan, len(jobs))
	pool(results, o, func(i int) error {
		var err error
		plans[i], err = prepare(e, jobs[i], o)
		return err
	})
	markDuplicates(jobs, plans, results)
	if o.failFast && failed(results) {
		for i := range results {
			if results[i].err == nil {
				results[i].err = errSkipped
			}
		}
	}
	pool(results, o, func(i int) error {
		r := process(e, plans[i], o, s)
		results[i].path, results[i].key = r.path, r.key
		return r.err
	})
	return results
}

// pool runs fn for every index whose result has no error yet, up to
// o.workers at once, and stores what fn returns. With o.failFast the first
// error stops the gate and the indexes not yet started get errSkipped.
func pool(results []result, o createOptions, fn func(i int) error) {
	gate := util.NewGate(o.workers)
	var wg sync.WaitGroup
	for i := range results {
		if results[i].err != nil {
			continue
		}
		if !gate.Enter() {
			results[i].err = errSkipped
			continue
		}
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := fn(i)
			results[i].err = err
			if err != nil && o.failFast {
				// before Leave, so no waiter slips in
				gate.Stop()
			}
			gate.Leave()
		}(i)
	}
	wg.Wait()
}

func failed(results []result) bool {
	for _, r := range results {
		if r.err != nil {
			return true
		}
	}
	return false
}

// markDuplicates gives every planned job that shares its output path with
// another one an errDuplicateOutput naming the other inputs.
func markDuplicates(jobs []job, plans []plan, results []result) {
	byPath := make(map[string][]int)
	for i := range plans {
		if results[i].err == nil {
			byPath[plans[i].out] = append(byPath[plans[i].out], i)
		}
	}
	for out, idx := range byPath {
		if len(idx) < 2 {
			continue
		}
		for _, i := range idx {
			var others []string
			for _, j := range idx {
				if j != i {
					others = append(others, jobs[j].xyz)
				}
			}
			results[i].err = fmt.Errorf("%s: %w (%s)", out, errDuplicateOutput, strings.Join(others, ", "))
		}
	}
}

// prepare resolves one structure file and decides where its archive goes.
func prepare(e *env, j job, o createOptions) (plan, error) {
	e.vlog("reading", j.xyz)
	m, err := resolve(j, o)
	if err != nil {
		return plan{}, err
	}
	c := archive.Discover(j.xyz)
	c.Meta = m
	name := archive.Name(m, o.ext)
	dir := o.out
	if dir == "" {
		dir = filepath.Dir(j.xyz)
	}
	out, err := filepath.Abs(filepath.Join(dir, name))
	if err != nil {
		return plan{}, err
	}
	return plan{c: c, name: name, out: out}, nil
}

// process writes and optionally uploads one planned archive.
func process(e *env, p plan, o createOptions, s store.Store) result {
	opts := []archive.Option{archive.WithExt(o.ext)}
	if o.deriveUUID {
		opts = append(opts, archive.WithDerivedUUID())
	}
	if err := archive.Write(p.out, p.c, opts...); err != nil {
		return result{err: err}
	}
	e.vlog("wrote", p.out)

	r := result{path: p.out}
	if s != nil {
		key := archive.RemoteKey(p.c.Meta, p.name)
		if err := archive.Upload(s, p.out, key, o.overwrite); err != nil {
			// the local archive is kept
			r.err = fmt.Errorf("archive %s kept: %w", p.out, err)
			return r
		}
		e.vlog("uploaded", key)
		r.key = key
	}
	return r
}

// resolve builds the metadata for j from the file header. With --from-name
// the values in the file name replace the header's, and directory values
// from a tree walk win over both.
func resolve(j job, o createOptions) (meta.Meta, error) {
	var m meta.Meta
	if o.fromName {
		var err error
		m, err = meta.ParseName(j.xyz, meta.WithConfigOffset(o.offset))
		if err != nil {
			return meta.Meta{}, err
		}
	}
	header, _, err := meta.ReadHeader(j.xyz)
	if err != nil {
		return meta.Meta{}, err
	}
	return header.Merge(m).Merge(j.base), nil
}
