// Command confbag packages structure files into archives, uploads them to a
// store, and lists and catalogs the archives kept there.
package main

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"

	raven "github.com/getsentry/raven-go"
	"github.com/spf13/pflag"

	"github.com/qmchamm/confbag/config"
	"github.com/qmchamm/confbag/store"
)

const usage = `
confbag [global flags] <command> <command arguments>

Possible commands:
    create [flags] PATH...
        make an archive for each structure file, run directory or tree

    upload [--overwrite] ARCHIVE...
        upload archives to the store under their remote key

    list [PREFIX]
        list the keys in the store

    catalog [flags] [PREFIX]
        describe the archives in the store as a table or YAML catalog

    show KEY|PATH
        print the attributes and entries of one archive

    delete KEY...
        remove archives from the store

    verify KEY|PATH...
        check archive checksums

Global flags:
`

// env is what every command gets: the settings, the global flags, and
// where to write.
type env struct {
	cfg       *config.Config
	location  string
	verbose   bool
	stdout    io.Writer
	openStore func() (store.Store, error)
}

// vlog logs only with --verbose.
func (e *env) vlog(v ...any) {
	if e.verbose {
		log.Println(v...)
	}
}

var commands = map[string]func(*env, []string) error{
	"create":  docreate,
	"upload":  doupload,
	"list":    dolist,
	"catalog": docatalog,
	"show":    doshow,
	"delete":  dodelete,
	"verify":  doverify,
}

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		if !errors.Is(err, errReported) {
			fmt.Fprintln(os.Stderr, "confbag:", err)
		}
		os.Exit(1)
	}
}

// errReported means the command has already printed its errors.
var errReported = errors.New("errors reported")

func run(args []string, stdout io.Writer) error {
	flags := pflag.NewFlagSet("confbag", pflag.ContinueOnError)
	flags.SetInterspersed(false)
	configPath := flags.String("config", os.Getenv("CONFBAG_CONFIG"), "TOML settings file")
	location := flags.String("store", "", "store location: a directory, s3://[host]/bucket/prefix or minio://host/bucket/prefix")
	verbose := flags.BoolP("verbose", "v", false, "log progress")
	flags.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flags.PrintDefaults()
	}
	if err := flags.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}
	args = flags.Args()
	if len(args) == 0 {
		flags.Usage()
		return errors.New("no command given")
	}
	cmd, ok := commands[args[0]]
	if !ok {
		flags.Usage()
		return fmt.Errorf("unknown command %q", args[0])
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if cfg.SentryDSN != "" {
		if err := raven.SetDSN(cfg.SentryDSN); err != nil {
			log.Println("sentry:", err)
		}
	}
	e := &env{
		cfg:      cfg,
		location: *location,
		verbose:  *verbose,
		stdout:   stdout,
	}
	e.openStore = func() (store.Store, error) {
		return parselocation(e.location, e.cfg.Storage)
	}
	return cmd(e, args[1:])
}

// report prints a batch failure for one item and remembers it happened.
type report struct {
	failures int
}

func (r *report) add(item string, err error) {
	r.failures++
	fmt.Fprintf(os.Stderr, "%s: %v\n", item, err)
}

// err returns errReported if any item failed.
func (r *report) err() error {
	if r.failures > 0 {
		return fmt.Errorf("%d failed: %w", r.failures, errReported)
	}
	return nil
}
