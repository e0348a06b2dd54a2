package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	upd "github.com/unparanoid/go-upd"
	"github.com/unparanoid/go-upd/driver/memfs"
	"github.com/unparanoid/go-upd/internal/logging"
	"github.com/unparanoid/go-upd/msgpack"
	"github.com/unparanoid/go-upd/pathutil"
	"github.com/unparanoid/go-upd/proto"
)

// Config is the YAML configuration of the daemon.
type Config struct {
	LogLevel string `yaml:"log_level"`

	Msgpack struct {
		MaxMem  int `yaml:"maxmem"`
		Backlog int `yaml:"backlog"`
	} `yaml:"msgpack"`

	Mounts []Mount `yaml:"mounts"`
}

// Mount places a file handled by the named driver at a path, creating
// intermediate directories.
type Mount struct {
	Path   string `yaml:"path"`
	Driver string `yaml:"driver"`
	Param  string `yaml:"param"`
}

func main() {
	var (
		configPath = pflag.StringP("config", "c", "", "Path to the YAML configuration")
		verbose    = pflag.BoolP("verbose", "v", false, "Verbose output")
	)
	pflag.Parse()

	var cfg Config
	if *configPath != "" {
		raw, err := os.ReadFile(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "cannot read config: %v\n", err)
			os.Exit(1)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			fmt.Fprintf(os.Stderr, "cannot parse config: %v\n", err)
			os.Exit(1)
		}
	}

	logConfig := logging.DefaultConfig()
	if *verbose || cfg.LogLevel == "debug" {
		logConfig.Level = logging.LevelDebug
	}
	logger := logging.NewLogger(logConfig)
	logging.SetDefault(logger)

	iso, err := upd.New(upd.Options{
		RootDriver: memfs.NewDir(),
		MsgSink: func(msg string) {
			logger.Printf("%s", msg)
		},
	})
	if err != nil {
		logger.Error("failed to create isolate", "error", err)
		os.Exit(1)
	}

	for _, d := range []upd.Driver{memfs.NewDir(), memfs.NewBlob(), memfs.NewPipe()} {
		if err := iso.RegisterDriver(d); err != nil {
			logger.Error("failed to register driver", "driver", d.Name(), "error", err)
			os.Exit(1)
		}
	}

	iso.Post(func() {
		for _, m := range cfg.Mounts {
			mount(iso, m, logger)
		}
	})

	ctx := &msgpack.Context{
		MaxMem:  cfg.Msgpack.MaxMem,
		Backlog: cfg.Msgpack.Backlog,
		In:      true,
		Out:     true,
	}
	go pump(iso, ctx, logger)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		iso.Post(func() {
			iso.Exit(upd.StatusShutdown)
		})
	}()

	logger.Info("isolate running", "host_ver", fmt.Sprintf("%d.%d", upd.VerMajor, upd.VerMinor))
	status := iso.Run()
	logger.Info("isolate stopped", "status", status.String())
	if status == upd.StatusPanic {
		os.Exit(1)
	}
}

// mount creates the file for one mount entry and links it into the
// tree, creating intermediate directories along the way.
func mount(iso *upd.Iso, m Mount, logger *logging.Logger) {
	driver := iso.DriverLookup(m.Driver)
	if driver == nil {
		logger.Error("unknown mount driver", "driver", m.Driver, "path", m.Path)
		return
	}

	norm, ok := pathutil.Normalize(m.Path)
	if !ok || norm == "" || norm[0] != '/' {
		logger.Error("invalid mount path", "path", m.Path)
		return
	}

	upd.FindPathDup(&upd.Pathfind{
		Iso:    iso,
		Path:   pathutil.Dirname(norm),
		Create: true,
		CB: func(pf *upd.Pathfind) {
			if len(pf.Path) > 0 {
				logger.Error("cannot create mount directory", "path", m.Path)
				return
			}
			file, err := iso.NewFile(upd.FileTemplate{
				Driver: driver,
				Path:   norm,
				Param:  []byte(m.Param),
			})
			if err != nil {
				logger.Error("cannot create mount file", "path", m.Path, "error", err)
				return
			}
			req := upd.Request{
				File: pf.Base,
				Type: upd.DirAdd,
				CB: func(req *upd.Request) {
					logger.Info("mounted", "path", m.Path, "driver", m.Driver)
				},
			}
			req.Dir.Entry = upd.DirEntry{Name: pathutil.Basename(norm), File: file}
			if upd.DispatchDup(&req) == nil {
				logger.Error("cannot link mount file", "path", m.Path)
			}
			file.Unref()
		},
	})
}

// pump copies stdin into the msgpack context and answers every parsed
// command on stdout.
func pump(iso *upd.Iso, ctx *msgpack.Context, logger *logging.Logger) {
	chunk := make([]byte, 4096)
	for {
		n, err := os.Stdin.Read(chunk)
		if n > 0 {
			p := make([]byte, n)
			copy(p, chunk[:n])
			iso.Post(func() {
				feed(iso, ctx, p, logger)
			})
		}
		if err != nil {
			if err != io.EOF {
				logger.Error("stdin read failed", "error", err)
			}
			iso.Post(func() {
				iso.Exit(upd.StatusShutdown)
			})
			return
		}
	}
}

func feed(iso *upd.Iso, ctx *msgpack.Context, p []byte, logger *logging.Logger) {
	if !ctx.Unpack(p) {
		if ctx.Broken() {
			logger.Error("inbound stream broken, shutting down")
			iso.Exit(upd.StatusPanic)
		} else {
			logger.Warn("inbound message refused", "pending", ctx.Pending())
		}
		return
	}
	for {
		obj, ok := ctx.Pop()
		if !ok {
			return
		}
		proto.RunDup(&proto.Parse{
			Iso:   iso,
			Src:   obj,
			Iface: proto.Encoder | proto.Object,
			CB: func(par *proto.Parse) {
				reply(ctx, par, logger)
			},
		})
	}
}

func reply(ctx *msgpack.Context, par *proto.Parse, logger *logging.Logger) {
	res := map[string]any{
		"success": par.Err == "",
	}
	if par.Err != "" {
		res["error"] = par.Err
	} else if par.Msg.Cmd == proto.EncoderFrame && par.Msg.EncoderFrame.File != nil {
		res["file"] = uint64(par.Msg.EncoderFrame.File.ID())
	}
	if err := ctx.Pack(res); err != nil {
		logger.Error("cannot pack reply", "error", err)
		return
	}
	if _, err := os.Stdout.Write(ctx.TakeOut()); err != nil {
		logger.Error("cannot write reply", "error", err)
	}
}
