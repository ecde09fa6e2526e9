// maxtel fronts a single-user BBS engine with a pool of worker nodes so
// many telnet callers can each get a private session. It owns the public
// listener, the worker lifecycle, per-caller bridge processes, terminal
// detection, and the operator display.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/LimpingNinja/maxtel/internal/bridge"
	"github.com/LimpingNinja/maxtel/internal/config"
	"github.com/LimpingNinja/maxtel/internal/supervisor"
	"github.com/LimpingNinja/maxtel/internal/ui"
)

const daemonEnv = "MAXTEL_DAEMONIZED"

var (
	defaults = config.Default()

	flagPort   = flag.Int("p", defaults.Port, "Telnet listen port")
	flagNodes  = flag.Int("n", defaults.Nodes, "Number of nodes to start (1-32)")
	flagBase   = flag.String("d", defaults.BaseDir, "Base directory of the installation")
	flagEngine = flag.String("m", defaults.EnginePath, "Engine executable path")
	flagConfig = flag.String("c", defaults.ConfigPath, "Engine config path (may be relative to base)")
	flagSize   = flag.String("s", "", "Request terminal size COLSxROWS (e.g. 132x60)")
	flagHead   = flag.Bool("H", false, "Headless mode (no display)")
	flagDaemon = flag.Bool("D", false, "Daemonize (implies -H)")
	flagHelp   = flag.Bool("h", false, "Show usage")

	// Internal bridge mode: the supervisor re-execs itself per caller with
	// the accepted socket as an inherited fd.
	flagBridge     = flag.Bool("bridge", false, "")
	flagBridgeSock = flag.String("bridge-socket", "", "")
	flagBridgeCaps = flag.String("bridge-caps", "", "")
)

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: %s [options]\n", filepath.Base(os.Args[0]))
	fmt.Fprintf(os.Stderr, "Options:\n")
	fmt.Fprintf(os.Stderr, "  -p PORT    Telnet port (default: %d)\n", defaults.Port)
	fmt.Fprintf(os.Stderr, "  -n NODES   Number of nodes (default: %d)\n", defaults.Nodes)
	fmt.Fprintf(os.Stderr, "  -d PATH    Base directory (default: current)\n")
	fmt.Fprintf(os.Stderr, "  -m PATH    Engine binary path (default: %s)\n", defaults.EnginePath)
	fmt.Fprintf(os.Stderr, "  -c PATH    Engine config path (default: %s)\n", defaults.ConfigPath)
	fmt.Fprintf(os.Stderr, "  -s SIZE    Request terminal size (e.g., 80x25, 132x60)\n")
	fmt.Fprintf(os.Stderr, "  -H         Headless mode (no UI, for scripts/daemons)\n")
	fmt.Fprintf(os.Stderr, "  -D         Daemonize (implies -H, fork to background)\n")
	fmt.Fprintf(os.Stderr, "  -h         Show this help\n")
	os.Exit(1)
}

func main() {
	flag.Usage = usage
	flag.Parse()
	if *flagHelp {
		usage()
	}

	if *flagBridge {
		runBridge()
		return
	}

	settings := buildSettings()

	if *flagDaemon && os.Getenv(daemonEnv) == "" {
		daemonize(settings.Port)
		return
	}

	if err := run(settings); err != nil {
		fmt.Fprintf(os.Stderr, "maxtel: %v\n", err)
		os.Exit(1)
	}
	if !*flagDaemon {
		fmt.Println("maxtel shutdown complete.")
	}
}

// buildSettings merges an optional maxtel.toml under any flags the user set
// explicitly; flags win.
func buildSettings() config.Settings {
	s, err := config.Load("maxtel.toml")
	if err != nil {
		fmt.Fprintf(os.Stderr, "maxtel: %v\n", err)
		os.Exit(1)
	}

	set := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	if set["p"] {
		s.Port = *flagPort
	}
	if set["n"] {
		s.Nodes = *flagNodes
	}
	if set["d"] {
		s.BaseDir = *flagBase
	}
	if set["m"] {
		s.EnginePath = *flagEngine
	}
	if set["c"] {
		s.ConfigPath = *flagConfig
	}
	if set["s"] {
		s.Size = *flagSize
	}
	if set["H"] || *flagDaemon {
		s.Headless = true
	}

	if s.Size != "" {
		if _, _, err := config.ParseSize(s.Size); err != nil {
			fmt.Fprintf(os.Stderr, "maxtel: %v\n", err)
			os.Exit(1)
		}
	}
	return s
}

func run(settings config.Settings) error {
	// Resolve and enter the base directory before anything spawns.
	absBase, err := filepath.Abs(settings.BaseDir)
	if err != nil {
		return fmt.Errorf("base dir: %w", err)
	}
	if err := os.Chdir(absBase); err != nil {
		return fmt.Errorf("base dir: %w", err)
	}
	settings.BaseDir = absBase

	logFile, err := os.OpenFile("maxtel.log", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("log file: %w", err)
	}
	defer logFile.Close()
	log := zerolog.New(zerolog.ConsoleWriter{
		Out:        logFile,
		NoColor:    true,
		TimeFormat: "2006-01-02 15:04:05",
	}).With().Timestamp().Logger()

	log.Info().Int("port", settings.Port).Int("nodes", settings.Nodes).
		Str("base", settings.BaseDir).Msg("maxtel starting")

	info := config.LoadSystemInfo(settings.BaseDir, settings.ConfigPath)

	var disp ui.UI
	if settings.Headless {
		disp = ui.Headless{}
		fmt.Fprintf(os.Stderr, "maxtel running in headless mode on port %d with %d nodes\n",
			settings.Port, settings.Nodes)
	} else {
		tui, err := ui.NewTui(settings.Size)
		if err != nil {
			return fmt.Errorf("display: %w", err)
		}
		disp = tui
	}

	sup, err := supervisor.New(settings, info, log, disp)
	if err != nil {
		disp.Close()
		return err
	}
	return sup.Run()
}

// runBridge is the per-caller child: negotiate, publish caps, pump.
func runBridge() {
	conn, err := bridge.InheritedConn()
	if err != nil {
		os.Exit(1)
	}
	defer conn.Close()

	err = bridge.Serve(conn, bridge.Options{
		SocketPath: *flagBridgeSock,
		CapsPath:   *flagBridgeCaps,
	})
	if err != nil {
		os.Exit(1)
	}
}

// daemonize re-execs into a new session with stdio on /dev/null. The parent
// prints the child pid and exits 0.
func daemonize(port int) {
	exe, err := os.Executable()
	if err != nil {
		fmt.Fprintf(os.Stderr, "maxtel: %v\n", err)
		os.Exit(1)
	}

	null, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		fmt.Fprintf(os.Stderr, "maxtel: %v\n", err)
		os.Exit(1)
	}
	defer null.Close()

	cmd := exec.Command(exe, os.Args[1:]...)
	cmd.Env = append(os.Environ(), daemonEnv+"=1")
	cmd.Stdin = null
	cmd.Stdout = null
	cmd.Stderr = null
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "maxtel: daemonize: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("maxtel daemon started (PID %d), port %d\n", cmd.Process.Pid, port)
	_ = cmd.Process.Release()
}
