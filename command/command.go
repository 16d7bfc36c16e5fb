package command

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/lcpu-club/optdeadline/client"
	"github.com/lcpu-club/optdeadline/common"
	"github.com/lcpu-club/optdeadline/configure"
	"github.com/lcpu-club/optdeadline/importer"
	"github.com/lcpu-club/optdeadline/replacer"
	"github.com/lcpu-club/optdeadline/service"
	"github.com/lcpu-club/optdeadline/session"
	"github.com/lcpu-club/optdeadline/status"
	"github.com/lcpu-club/optdeadline/store"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v3"
)

type Command struct {
	configurePath string
	configure     *configure.Configure
	client        *client.Client
	out           io.Writer
}

func NewCommand() *Command {
	return &Command{out: os.Stdout}
}

// SetOutput redirects what the commands print.
func (c *Command) SetOutput(w io.Writer) {
	c.out = w
}

// Init loads the configure file and sets up logging. address, when not
// empty, replaces the configured server addresses.
func (c *Command) Init(confFile string, address string) error {
	conf, err := configure.LoadConfigure(confFile)
	if err != nil {
		return err
	}
	if address != "" {
		conf.Remote.Address = []string{address}
	}
	c.configurePath = confFile
	c.configure = conf
	common.ConfigureLogging(conf.Log.Level, conf.Log.Format)
	return nil
}

func (c *Command) getClient() *client.Client {
	if c.client == nil {
		c.client = client.NewClient(c.configure.Remote.Address, c.configure.Remote.Timeout)
	}
	return c.client
}

func ErrWrongArgumentNumber(command string, expected string) error {
	return fmt.Errorf(
		"wrong argument number for %v, expected %v\r\n   (use \"%v help %v\" for help)",
		command, expected, os.Args[0], command,
	)
}

func (c *Command) printJSON(v interface{}) error {
	j, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(c.out, string(j))
	return err
}

func (c *Command) HandleServe(ctx *cli.Context) error {
	svc, err := service.NewService(c.configure, c.configurePath)
	if err != nil {
		return err
	}
	if err := svc.Connect(); err != nil {
		return err
	}
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sig)
	served := make(chan error, 1)
	go func() {
		served <- svc.Serve()
	}()
	select {
	case err = <-served:
		if err != nil {
			log.WithError(err).Error("HTTP server stopped")
		}
	case s := <-sig:
		log.Infof("received %v, shutting down", s)
	}
	sctx, cancel := context.WithTimeout(context.Background(), ctx.Duration("drain-timeout"))
	defer cancel()
	if serr := svc.Shutdown(sctx); serr != nil && err == nil {
		err = serr
	}
	return err
}

// algorithms picks the variants from the flags. Neither flag means both.
func algorithms(ctx *cli.Context) session.Algorithms {
	a := session.Algorithms{
		Algorithm1: ctx.Bool("algorithm1"),
		Algorithm2: ctx.Bool("algorithm2"),
	}
	if !a.Any() {
		a.Algorithm1, a.Algorithm2 = true, true
	}
	return a
}

func (c *Command) HandleRun(ctx *cli.Context) error {
	if ctx.Args().Len() != 2 {
		return ErrWrongArgumentNumber(ctx.Command.Name, "2")
	}
	id, err := c.getClient().Run(ctx.Args().Get(0), algorithms(ctx), ctx.Args().Get(1))
	if err != nil {
		return err
	}
	fmt.Fprintln(c.out, id)
	return nil
}

func (c *Command) HandleStatus(ctx *cli.Context) error {
	if ctx.Args().Len() != 1 {
		return ErrWrongArgumentNumber(ctx.Command.Name, "1")
	}
	id := ctx.Args().Get(0)
	if !ctx.Bool("watch") {
		s, err := c.getClient().GetSession(id)
		if err != nil {
			return err
		}
		return c.printSnapshot(s)
	}
	wctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	var last *status.Snapshot
	err := c.getClient().Watch(wctx, id, func(s *status.Snapshot) error {
		if last == nil || last.Status != s.Status {
			fmt.Fprintf(c.out, "%s %s\n", s.ID, s.Status)
		}
		last = s
		return nil
	})
	if err != nil {
		return err
	}
	return c.printSnapshot(last)
}

func (c *Command) printSnapshot(s *status.Snapshot) error {
	w := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "session:\t%s\n", s.ID)
	fmt.Fprintf(w, "status:\t%s\n", s.Status)
	fmt.Fprintf(w, "started:\t%s\n", s.StartedFormatted)
	fmt.Fprintf(w, "completed:\t%s\n", s.CompletedFormatted)
	fmt.Fprintf(w, "deadline:\t%s -> %s\n", s.InitialDeadline, s.ComputedDeadline)
	fmt.Fprintln(w, "query\tcores\tdeadline\tcapacity\tvms")
	for i := range s.Queries {
		fmt.Fprintf(w, "%s\t%v\t%s\t%v\t%v\n", s.Queries[i], s.Cores[i], s.Deadlines[i], s.Capacities[i], s.VMs[i])
	}
	fmt.Fprintf(w, "total\t%v\t\t\t%v\n", s.TotalCores, s.TotalVMs)
	fmt.Fprintf(w, "cost:\t%s\n", strconv.FormatFloat(s.TotalCost, 'f', -1, 64))
	for _, e := range s.Errors {
		fmt.Fprintf(w, "warning:\t%s\n", e)
	}
	return w.Flush()
}

func (c *Command) HandleList(ctx *cli.Context) error {
	sessions, err := c.getClient().ListSessions()
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SESSION\tSTATUS\tSTARTED\tCOST")
	for _, s := range sessions {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", s.ID, s.Status, s.StartedFormatted, strconv.FormatFloat(s.TotalCost, 'f', -1, 64))
	}
	return w.Flush()
}

func (c *Command) HandleListConfigurations(ctx *cli.Context) error {
	names, err := c.getClient().ListConfigurations()
	if err != nil {
		return err
	}
	for _, n := range names {
		fmt.Fprintln(c.out, n)
	}
	return nil
}

func (c *Command) HandleShowConfiguration(ctx *cli.Context) error {
	if ctx.Args().Len() != 1 {
		return ErrWrongArgumentNumber(ctx.Command.Name, "1")
	}
	conf, err := c.getClient().GetConfiguration(ctx.Args().Get(0))
	if err != nil {
		return err
	}
	fmt.Fprintln(c.out, "# "+conf.Name)
	for _, app := range conf.Applications {
		fmt.Fprintln(c.out, strings.Join(app, " "))
	}
	return nil
}

// HandleSaveConfiguration uploads a configuration written in the store
// text format. --name replaces the name of its header line.
func (c *Command) HandleSaveConfiguration(ctx *cli.Context) error {
	if ctx.Args().Len() != 1 {
		return ErrWrongArgumentNumber(ctx.Command.Name, "1")
	}
	conf, err := store.LoadFromPath(ctx.Args().Get(0))
	if err != nil {
		return err
	}
	if name := ctx.String("name"); name != "" {
		conf.Name = name
	}
	return c.getClient().SaveConfiguration(conf)
}

func (c *Command) HandleFiles(ctx *cli.Context) error {
	files, err := c.getClient().ListFiles()
	if err != nil {
		return err
	}
	return c.printJSON(files)
}

// HandleImport uploads an archive to the server, or with --local installs
// an archive or an extracted tree into the configured pool directly.
func (c *Command) HandleImport(ctx *cli.Context) error {
	if ctx.Args().Len() != 1 {
		return ErrWrongArgumentNumber(ctx.Command.Name, "1")
	}
	src := ctx.Args().Get(0)
	var (
		bundles []importer.Bundle
		err     error
	)
	if ctx.Bool("local") {
		bundles, err = c.importLocal(src)
	} else {
		var b []byte
		b, err = os.ReadFile(src)
		if err != nil {
			return err
		}
		bundles, err = c.getClient().Import(b)
	}
	for _, b := range bundles {
		fmt.Fprintf(c.out, "%s\t%s\n", b.Query, b.Script)
	}
	return err
}

func (c *Command) importLocal(src string) ([]importer.Bundle, error) {
	p := importer.NewPipeline(c.configure.Paths.AppFiles)
	fi, err := os.Stat(src)
	if err != nil {
		return nil, err
	}
	if fi.IsDir() {
		return p.Import(src)
	}
	f, err := os.Open(src)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return p.ImportArchive(f, c.configure.Paths.Tmp)
}

func (c *Command) HandleConvert(ctx *cli.Context) error {
	if ctx.Args().Len() != 2 {
		return ErrWrongArgumentNumber(ctx.Command.Name, "2")
	}
	return importer.ConvertFolder(ctx.Args().Get(0), ctx.Args().Get(1))
}

var ErrMalformedSetting = fmt.Errorf("setting must be KEY=VALUE")

func parseSettings(args []string) (map[string]string, error) {
	settings := map[string]string{}
	for _, a := range args {
		k, v, ok := strings.Cut(a, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("%w: %q", ErrMalformedSetting, a)
		}
		settings[strings.TrimSpace(k)] = v
	}
	return settings, nil
}

// HandleSettings prints the path settings of the server, after applying
// the KEY=VALUE arguments if any.
func (c *Command) HandleSettings(ctx *cli.Context) error {
	var (
		settings map[string]string
		err      error
	)
	if ctx.Args().Len() == 0 {
		settings, err = c.getClient().Settings()
	} else {
		var overrides map[string]string
		overrides, err = parseSettings(ctx.Args().Slice())
		if err != nil {
			return err
		}
		settings, err = c.getClient().UpdateSettings(overrides)
	}
	if err != nil {
		return err
	}
	return c.printJSON(settings)
}

// HandleRenderScript prints a pool script with its placeholders filled the
// way the solver fills them.
func (c *Command) HandleRenderScript(ctx *cli.Context) error {
	if ctx.Args().Len() != 2 {
		return ErrWrongArgumentNumber(ctx.Command.Name, "2")
	}
	b, err := os.ReadFile(ctx.Args().Get(0))
	if err != nil {
		return err
	}
	nodes, err := strconv.Atoi(ctx.Args().Get(1))
	if err != nil {
		return fmt.Errorf("invalid node count %q", ctx.Args().Get(1))
	}
	_, err = fmt.Fprint(c.out, replacer.Expand(string(b), replacer.Values{
		Nodes:   nodes,
		DirPath: ctx.String("dir-path"),
	}))
	return err
}
