package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/yulon/go-lanenet/config"
)

type app struct {
	v       *viper.Viper
	cfgPath string
	cfg     *config.Config
	log     zerolog.Logger
	logFile *os.File
}

func newRootCmd() *cobra.Command {
	a := &app{v: config.New()}

	root := &cobra.Command{
		Use:           "lanenet",
		Short:         "Two-player LAN lane battle",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logFile != nil {
				a.logFile.Close()
			}
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgPath, "config", "", "config file (default ./lanenet.yaml)")
	pf.String("log-level", "INFO", "TRACE, DEBUG, INFO, WARN or ERROR")
	pf.String("log-file", "", "also write logs to this file")
	pf.Int("port", 0, "TCP port to host on or join")
	pf.String("db", "", "match results database")
	for key, flag := range map[string]string{
		"logLevel":   "log-level",
		"logFile":    "log-file",
		"net.port":   "port",
		"store.path": "db",
	} {
		a.v.BindPFlag(key, pf.Lookup(flag))
	}

	root.AddCommand(newHostCmd(a), newJoinCmd(a), newResultsCmd(a))
	return root
}

func (a *app) load() error {
	cfg, err := config.Load(a.v, a.cfgPath)
	if err != nil {
		return err
	}
	a.cfg = cfg

	if cfg.LogFile != "" {
		a.logFile, err = os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("error opening log file: %w", err)
		}
	}
	a.log = setupLogging(cfg.LogLevel, a.logFile)
	return nil
}

func setupLogging(level string, file *os.File) zerolog.Logger {
	var lvl zerolog.Level
	switch strings.ToUpper(level) {
	case "TRACE":
		lvl = zerolog.TraceLevel
	case "DEBUG":
		lvl = zerolog.DebugLevel
	case "WARN":
		lvl = zerolog.WarnLevel
	case "ERROR":
		lvl = zerolog.ErrorLevel
	default:
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	zerolog.TimestampFunc = func() time.Time {
		return time.Now().UTC()
	}

	ws := []io.Writer{zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}}
	if file != nil {
		ws = append(ws, zerolog.ConsoleWriter{
			Out:        file,
			TimeFormat: time.RFC3339,
			NoColor:    true,
		})
	}
	return zerolog.New(zerolog.MultiLevelWriter(ws...)).With().Timestamp().Logger()
}
