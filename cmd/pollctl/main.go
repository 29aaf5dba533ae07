// Command pollctl drives a learning session from the terminal through the
// optimistic editor: it prints the tree, reorders questions and options, and
// follows live response counts.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/classpoll/internal/client"
	"github.com/stemsi/classpoll/internal/config"
	"github.com/stemsi/classpoll/internal/editor"
	"github.com/stemsi/classpoll/internal/logger"
	"github.com/stemsi/classpoll/internal/model"
)

var (
	bold  = color.New(color.Bold).SprintFunc()
	faint = color.New(color.Faint).SprintFunc()
	green = color.New(color.FgGreen).SprintFunc()
	red   = color.New(color.FgRed).SprintFunc()
)

func usage() {
	fmt.Fprintln(os.Stderr, `Usage: pollctl [flags] <command> <session-id> [args]

Commands:
  show          <session-id>                       print questions and options
  move-question <session-id> <from> <to>           move a question (1-based positions)
  move-option   <session-id> <question> <from> <to> move an option within question #<question>
  watch         <session-id>                       follow live response counts

Flags:`)
	flag.PrintDefaults()
}

func main() {
	cfg := config.Load()

	var email, password string
	flag.StringVar(&cfg.APIURL, "api", cfg.APIURL, "API base URL")
	flag.StringVar(&cfg.APIToken, "token", cfg.APIToken, "Bearer token (or use -email/-password)")
	flag.StringVar(&email, "email", "", "Log in with this email instead of a token")
	flag.StringVar(&password, "password", "", "Password for -email")
	flag.Usage = usage
	flag.Parse()

	args := flag.Args()
	if len(args) < 2 {
		usage()
		os.Exit(2)
	}
	sessionID, err := uuid.Parse(args[1])
	if err != nil {
		fail("invalid session id: %v", err)
	}

	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	api := client.NewHTTP(cfg.APIURL, cfg.APIToken, log)
	if email != "" {
		if _, err := api.Login(ctx, email, password); err != nil {
			fail("login: %v", err)
		}
	}

	writeErrs := &errSink{}
	ed := editor.New(api, editor.Options{
		Debounce: cfg.SyncDebounce,
		Log:      log,
		OnError:  writeErrs.add,
	})
	defer ed.Close()

	if _, err := ed.Load(ctx, sessionID); err != nil {
		fail("load session: %v", err)
	}

	switch args[0] {
	case "show":
		printTree(ed.Snapshot())

	case "move-question":
		from, to := position(args, 2), position(args, 3)
		if err := ed.MoveQuestion(from, to); err != nil {
			fail("move question: %v", err)
		}
		settle(ctx, ed, writeErrs)

	case "move-option":
		q, from, to := position(args, 2), position(args, 3), position(args, 4)
		tree := ed.Snapshot()
		if q < 0 || q >= len(tree.Questions) {
			fail("question #%d does not exist", q+1)
		}
		if err := ed.MoveOption(tree.Questions[q].ID, from, to); err != nil {
			fail("move option: %v", err)
		}
		settle(ctx, ed, writeErrs)

	case "watch":
		watch(ctx, api, ed, sessionID, log)

	default:
		usage()
		os.Exit(2)
	}
}

// errSink collects background write failures reported by the editor.
type errSink struct {
	mu   sync.Mutex
	errs []error
}

func (s *errSink) add(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs = append(s.errs, err)
}

func (s *errSink) err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return errors.Join(s.errs...)
}

// position reads a 1-based position argument and returns it 0-based.
func position(args []string, i int) int {
	if len(args) <= i {
		usage()
		os.Exit(2)
	}
	n, err := strconv.Atoi(args[i])
	if err != nil || n < 1 {
		fail("position %q must be a positive integer", args[i])
	}
	return n - 1
}

// settle waits for the write to land, then revalidates against the server and
// prints what it stored.
func settle(ctx context.Context, ed *editor.Editor, writeErrs *errSink) {
	ed.Wait()
	if err := writeErrs.err(); err != nil {
		fmt.Fprintln(os.Stderr, red("write failed, local change rolled back:"), err)
	}
	tree, err := ed.Revalidate(ctx)
	if err != nil {
		fail("revalidate: %v", err)
	}
	printTree(tree)
}

func watch(ctx context.Context, api *client.HTTP, ed *editor.Editor, sessionID uuid.UUID, log zerolog.Logger) {
	feed, err := client.NewLiveFeed(api.BaseURL(), api.Token(), sessionID, log)
	if err != nil {
		fail("live feed: %v", err)
	}
	printTree(ed.Snapshot())

	err = feed.Run(ctx, func(counts map[uuid.UUID]int) {
		if err := ed.ApplyCounts(counts); err != nil {
			log.Warn().Err(err).Msg("apply counts")
			return
		}
		fmt.Println(faint("──"))
		printTree(ed.Snapshot())
	})
	if err != nil {
		fail("%v", err)
	}
}

func printTree(s *model.Session) {
	if s == nil {
		return
	}
	state := green("active")
	if !s.IsActive {
		state = red("closed")
	}
	fmt.Printf("%s  %s  [%s]\n", bold(s.Title), faint(s.AccessCode), state)
	for _, q := range s.Questions {
		fmt.Printf("%2d. %s\n", q.Order, bold(q.Title))
		for _, o := range q.Options {
			marker := " "
			if q.DefaultOptionID != nil && *q.DefaultOptionID == o.ID {
				marker = "*"
			}
			fmt.Printf("    %s %d) %-32s %s %s\n", marker, o.Order, o.Title,
				green(strconv.Itoa(o.ResponseCount)), faint(fmt.Sprintf("+%dpt", o.RewardPoint)))
		}
	}
}

func fail(format string, a ...any) {
	fmt.Fprintln(os.Stderr, red("error:"), fmt.Sprintf(format, a...))
	os.Exit(1)
}
