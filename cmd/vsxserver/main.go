// Command vsxserver runs the anagram-game server: it loads a config file,
// spawns the conversation and person registries, and accepts connections on
// every configured listener.
package main

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/vsxgame/vsxserver/internal/actorkit"
	"github.com/vsxgame/vsxserver/internal/clock"
	"github.com/vsxgame/vsxserver/internal/config"
	"github.com/vsxgame/vsxserver/internal/game"
	"github.com/vsxgame/vsxserver/internal/person"
	"github.com/vsxgame/vsxserver/internal/serverconn"
	"github.com/vsxgame/vsxserver/internal/tileset"
)

// acceptBackoff is how long the accept loop pauses after EMFILE before
// trying again, giving already-open sockets a chance to close.
const acceptBackoff = time.Second

func main() {
	os.Exit(run())
}

func run() int {
	var (
		configPath = pflag.StringP("config", "c", "", "path to config file")
		logPath    = pflag.StringP("log", "l", "", "path to log file (default stderr)")
		daemonize  = pflag.BoolP("daemonize", "d", false, "accepted but not implemented (logs a warning)")
		user       = pflag.StringP("user", "u", "", "accepted but not applied (logs a warning)")
		group      = pflag.StringP("group", "g", "", "accepted but not applied (logs a warning)")
		help       = pflag.BoolP("help", "h", false, "show this help and exit")
	)
	pflag.Parse()

	if *help {
		pflag.Usage()
		return 0
	}

	cfg := &config.Config{Servers: []config.Server{{Port: 5144}}}
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "vsxserver: %v\n", err)
			return 1
		}
		cfg = loaded
	}
	if *logPath != "" {
		cfg.LogFile = *logPath
	}
	if *user != "" {
		cfg.User = *user
	}
	if *group != "" {
		cfg.Group = *group
	}

	log, closeLog, err := newLogger(cfg.LogFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "vsxserver: opening log file: %v\n", err)
		return 1
	}
	defer closeLog()

	if *daemonize {
		log.Warn().Msg("daemonize requested but not implemented; running in the foreground")
	}

	listeners, err := listen(cfg.Servers)
	if err != nil {
		log.Error().Err(err).Msg("failed to bind a configured listener")
		return 1
	}
	defer func() {
		for _, l := range listeners {
			_ = l.Close()
		}
	}()

	dropPrivileges(log, cfg.User, cfg.Group)

	clk := clock.System{}
	engine := actorkit.NewEngine(log)

	tiles, err := loadTileSets(log)
	if err != nil {
		log.Error().Err(err).Msg("failed to load tile sets")
		return 1
	}

	convRegistry := engine.Spawn("conversation-registry", actorkit.NewProps(game.NewRegistryProducer(engine, tiles, clk)))
	personRegistry := engine.Spawn("person-registry", actorkit.NewProps(person.NewRegistryProducer(engine, clk, convRegistry)))
	time.Sleep(50 * time.Millisecond) // let both registries finish starting before the first connection arrives

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	for _, l := range listeners {
		go acceptLoop(log, l, engine, convRegistry, personRegistry, clk)
	}
	log.Info().Int("listeners", len(listeners)).Msg("server started")

	<-stop
	log.Info().Msg("shutting down")
	engine.Shutdown(5 * time.Second)
	return 0
}

func newLogger(path string) (zerolog.Logger, func(), error) {
	if path == "" {
		return zerolog.New(os.Stderr).With().Timestamp().Logger(), func() {}, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return zerolog.Logger{}, nil, err
	}
	return zerolog.New(f).With().Timestamp().Logger(), func() { _ = f.Close() }, nil
}

// listen opens one net.Listener per configured [server] section, TLS-wrapped
// when certificate/private_key are set.
func listen(servers []config.Server) ([]net.Listener, error) {
	listeners := make([]net.Listener, 0, len(servers))
	for _, s := range servers {
		addr := net.JoinHostPort(s.Address, strconv.Itoa(s.Port))
		var l net.Listener
		var err error
		if s.TLS() {
			cert, cerr := tls.LoadX509KeyPair(s.Certificate, s.PrivateKey)
			if cerr != nil {
				err = fmt.Errorf("loading TLS material for %s: %w", addr, cerr)
			} else {
				l, err = tls.Listen("tcp", addr, &tls.Config{Certificates: []tls.Certificate{cert}})
			}
		} else {
			l, err = net.Listen("tcp", addr)
		}
		if err != nil {
			for _, opened := range listeners {
				_ = opened.Close()
			}
			return nil, err
		}
		listeners = append(listeners, l)
	}
	return listeners, nil
}

// acceptLoop accepts connections on l until it is closed, spawning one
// serverconn actor per accepted socket. An EMFILE-class error backs off
// briefly instead of spinning, grounded on vsx-server.c's handling of the
// same errno: stop trying to accept until pressure eases, rather than
// tearing the listener down.
func acceptLoop(log zerolog.Logger, l net.Listener, engine *actorkit.Engine, convRegistry, personRegistry *actorkit.PID, clk clock.Clock) {
	for {
		conn, err := l.Accept()
		if err != nil {
			if isTooManyOpenFiles(err) {
				log.Warn().Err(err).Msg("too many open files, pausing accept loop")
				time.Sleep(acceptBackoff)
				continue
			}
			log.Info().Err(err).Msg("listener closed, accept loop exiting")
			return
		}

		connLog := log.With().Str("trace_id", uuid.NewString()).Str("remote", conn.RemoteAddr().String()).Logger()
		props := actorkit.NewProps(serverconn.NewProducer(engine, connLog, conn, conn.RemoteAddr(), convRegistry, personRegistry, clk))
		engine.Spawn("conn", props)
	}
}

func isTooManyOpenFiles(err error) bool {
	return errors.Is(err, syscall.EMFILE)
}

func loadTileSets(log zerolog.Logger) (*tileset.Registry, error) {
	if dir := os.Getenv("VSX_TILESET_DIR"); dir != "" {
		reg, err := tileset.LoadDirectory(dir)
		if err != nil {
			return nil, err
		}
		log.Info().Str("dir", dir).Msg("loaded tile sets from directory")
		return reg, nil
	}
	reg, err := tileset.LoadEmbedded()
	if err != nil {
		return nil, err
	}
	log.Info().Msg("loaded embedded tile sets")
	return reg, nil
}

// dropPrivileges does not change the process's user or group: when either
// is set it only logs a warning, and the server keeps running with its
// current privileges. Daemonization is not implemented either; see
// DESIGN.md.
func dropPrivileges(log zerolog.Logger, user, group string) {
	if user == "" && group == "" {
		return
	}
	if runtime.GOOS != "linux" {
		log.Warn().Str("goos", runtime.GOOS).Msg("privilege drop is only implemented on linux")
		return
	}
	log.Warn().Str("user", user).Str("group", group).Msg("privilege drop requested but not wired to a uid/gid lookup; running with current privileges")
}
