package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	lanenet "github.com/yulon/go-lanenet"
	"github.com/yulon/go-lanenet/sim"
	"github.com/yulon/go-lanenet/store"
)

var errQuit = errors.New("quit")

type playFlags struct {
	bot  bool
	seed uint64
}

func (f *playFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&f.bot, "bot", false, "let a bot spawn units for this side")
	cmd.Flags().Uint64Var(&f.seed, "bot-seed", 0, "bot random seed (0 picks one)")
}

func newHostCmd(a *app) *cobra.Command {
	var pf playFlags
	cmd := &cobra.Command{
		Use:   "host",
		Short: "Host a match and wait for a player to join",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.play(cmd.Context(), lanenet.RoleHost, a.cfg.ListenAddr(), pf)
		},
	}
	pf.register(cmd)
	return cmd
}

func newJoinCmd(a *app) *cobra.Command {
	var pf playFlags
	cmd := &cobra.Command{
		Use:   "join [host[:port]]",
		Short: "Join a hosted match",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var host string
			if len(args) > 0 {
				host = args[0]
			}
			return a.play(cmd.Context(), lanenet.RoleClient, a.cfg.JoinAddr(host), pf)
		},
	}
	pf.register(cmd)
	return cmd
}

func (a *app) play(ctx context.Context, role lanenet.Role, addr string, pf playFlags) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := a.log.With().Str("role", role.String()).Logger()
	opts := append(a.cfg.SessionOptions(),
		lanenet.WithSessionLogger(log),
		lanenet.WithObserver(logObserver(log)),
	)

	if role == lanenet.RoleHost && a.cfg.Store.Path != "" {
		st, err := store.Open(a.cfg.Store.Path, log)
		if err != nil {
			return err
		}
		defer st.Close()
		opts = append(opts, lanenet.WithResultSink(st))
	}
	if pf.bot {
		if role != lanenet.RoleHost {
			return errors.New("--bot needs the host; the client only forwards spawn requests")
		}
		seed := pf.seed
		if seed == 0 {
			seed = uint64(time.Now().UnixNano())
		}
		opts = append(opts, lanenet.WithSpawnDecider(role.Side(), sim.NewBot(a.cfg.Game, a.cfg.Roster, seed)))
	}

	sess := lanenet.NewSession(role, opts...)
	defer sess.Close()

	var err error
	if role == lanenet.RoleHost {
		err = sess.Host(ctx, addr)
	} else {
		err = sess.Join(ctx, addr)
	}
	if err != nil {
		return err
	}
	log.Info().Str("addr", addr).Strs("units", a.cfg.Roster.Types()).Msg("commands: spawn <type>, stats, state, quit")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)
	cmds := make(chan string)

	g.Go(func() error {
		defer cancel()
		return a.loop(ctx, sess, cmds, log)
	})
	g.Go(func() error {
		return readCommands(ctx, os.Stdin, cmds)
	})

	err = g.Wait()
	if errors.Is(err, errQuit) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// loop drives the session at the configured tick rate. It owns sess.
func (a *app) loop(ctx context.Context, sess *lanenet.Session, cmds <-chan string, log zerolog.Logger) error {
	tkr := time.NewTicker(a.cfg.TickInterval())
	defer tkr.Stop()

	last := time.Now()
	announced := false
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case line := <-cmds:
			if err := runCommand(sess, line, log); err != nil {
				return err
			}

		case now := <-tkr.C:
			sess.Tick(now.Sub(last))
			last = now

			st := sess.State()
			if st.Outcome.Over() && !announced {
				announced = true
				log.Info().
					Str("result", st.Outcome.String()).
					Float64("leftHP", st.Left.HP).
					Float64("rightHP", st.Right.HP).
					Msg("match over")
			}
			if sess.ReturnHome() {
				log.Info().Str("reason", sess.Reason()).Msg("leaving match")
				return errQuit
			}
		}
	}
}

func runCommand(sess *lanenet.Session, line string, log zerolog.Logger) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	switch fields[0] {
	case "spawn", "s":
		if len(fields) != 2 {
			log.Warn().Msg("usage: spawn <type>")
			return nil
		}
		if err := sess.RequestSpawn(sess.Role().Side(), fields[1]); err != nil {
			log.Warn().Err(err).Str("type", fields[1]).Msg("spawn refused")
		}
	case "stats":
		ev := log.Info().EmbedObject(sess.Stats()).Str("state", sess.ConnState().String())
		if read, write := sess.LastActivity(); !read.IsZero() {
			ev = ev.Dur("sinceRead", time.Since(read)).Dur("sinceWrite", time.Since(write))
		}
		ev.Msg("link")
	case "state":
		st := sess.State()
		log.Info().
			Dur("elapsed", time.Duration(st.Elapsed*float64(time.Second))).
			Float64("leftHP", st.Left.HP).
			Float64("rightHP", st.Right.HP).
			Float64("leftGauge", st.LeftGauge).
			Float64("rightGauge", st.RightGauge).
			Int("left", st.CountSide(sim.SideLeft)).
			Int("right", st.CountSide(sim.SideRight)).
			Msg("battle")
	case "dismiss":
		sess.Dismiss()
	case "quit", "q", "exit":
		return errQuit
	default:
		log.Warn().Str("cmd", fields[0]).Msg("unknown command")
	}
	return nil
}

// readCommands forwards lines from r until ctx ends or r is exhausted.
// Scanning runs on its own goroutine since a terminal read cannot be
// interrupted.
func readCommands(ctx context.Context, r io.Reader, cmds chan<- string) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				// stdin closed: keep playing until the match ends
				<-ctx.Done()
				return nil
			}
			select {
			case cmds <- line:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

func logObserver(log zerolog.Logger) lanenet.Observer {
	return lanenet.ObserverFuncs{
		Connected: func() {
			log.Info().Msg("opponent connected")
		},
		Disconnected: func(reason string) {
			log.Warn().Str("reason", reason).Msg("disconnected, returning home")
		},
		SnapshotApplied: func(st *sim.State) {
			log.Trace().Int("units", len(st.Units)).Float64("elapsed", st.Elapsed).Msg("snapshot applied")
		},
	}
}

func printResult(w io.Writer, r lanenet.MatchResult) {
	fmt.Fprintf(w, "%s  %-17s  %6s  L %6.0f  R %6.0f  %s\n",
		r.EndedAt.Local().Format(time.DateTime),
		r.Outcome,
		r.Duration.Round(time.Second),
		r.LeftHP, r.RightHP, r.Peer)
}
