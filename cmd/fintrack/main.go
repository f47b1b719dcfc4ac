package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"go.uber.org/zap"

	"fintrack/internal/client"
	"fintrack/internal/dashboard"
	"fintrack/internal/domain/expense"
	"fintrack/internal/shared/apperr"
	"fintrack/internal/shared/config"
	"fintrack/internal/shared/logging"
	"fintrack/internal/shared/messages"
)

const usage = `fintrack - track expenses and receipts from the command line

Usage:
  fintrack <command> [options]

Commands:
  list      Show expenses and totals
  summary   Show totals computed by the server
  add       Record a new expense, optionally with a receipt
  edit      Change an existing expense
  delete    Remove an expense
  attach    Upload receipts for existing expenses

Environment:
  FINTRACK_API_URL        API base URL (default http://localhost:8080)
  FINTRACK_OWNER_ID       Owner used when --owner is not given
  FINTRACK_MESSAGES_FILE  JSON file overriding banner texts
  FINTRACK_TOKEN          Bearer token sent with every request
  FINTRACK_TIMEOUT        Per-request timeout (default 30s)

Examples:
  fintrack list --owner=me@example.com
  fintrack summary
  fintrack add --category=Food --amount=12.50 --receipt=./lunch.jpg
  fintrack edit --id=3f1c... --amount=14
  fintrack delete --id=3f1c... --yes
  fintrack attach 3f1c...=./lunch.jpg 9a0b...=./taxi.pdf
`

func main() {
	if len(os.Args) < 2 {
		fmt.Print(usage + "\n")
		os.Exit(1)
	}

	command := os.Args[1]

	switch command {
	case "list":
		runList(os.Args[2:])
	case "summary":
		runSummary(os.Args[2:])
	case "add":
		runAdd(os.Args[2:])
	case "edit":
		runEdit(os.Args[2:])
	case "delete":
		runDelete(os.Args[2:])
	case "attach":
		runAttach(os.Args[2:])
	case "help", "-h", "--help":
		fmt.Print(usage + "\n")
	default:
		fmt.Printf("Unknown command: %s\n\n", command)
		fmt.Print(usage + "\n")
		os.Exit(1)
	}
}

type session struct {
	ctx        context.Context
	cancel     context.CancelFunc
	controller *dashboard.Controller
	api        *client.Client
	owner      string
	msgs       *messages.Messages
	logger     *zap.Logger
}

func newSession(owner string, confirmer dashboard.Confirmer) *session {
	if err := config.LoadDotEnv(".env"); err != nil {
		log.Fatalf("Failed to load .env: %v", err)
	}
	cfg, err := config.LoadClient()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger, err := logging.New(getenv("LOG_LEVEL", "warn"), "console")
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	msgs, err := messages.Load(cfg.MessagesFile)
	if err != nil {
		log.Fatalf("Failed to load messages: %v", err)
	}

	if owner == "" {
		owner = cfg.OwnerID
	}
	if expense.IsPlaceholderOwner(owner) {
		log.Fatal("Error: an owner is required (use --owner or FINTRACK_OWNER_ID)")
	}

	api := client.NewClient(cfg.BaseURL, cfg.RequestTimeout)
	if cfg.Token != "" {
		api = api.WithBearerToken(cfg.Token)
	}
	c := dashboard.NewController(api, dashboard.Options{
		Confirmer: confirmer,
		Messages:  msgs,
		Logger:    logger,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	s := &session{ctx: ctx, cancel: cancel, controller: c, api: api, owner: owner, msgs: msgs, logger: logger}
	if err := c.SetOwner(ctx, owner); err != nil {
		s.exit()
	}
	return s
}

// exit prints the current banner and terminates with a failure status.
func (s *session) exit() {
	printBanner(os.Stderr, s.controller.Snapshot().Banner)
	s.close()
	os.Exit(1)
}

func (s *session) close() {
	s.cancel()
	s.logger.Sync()
}

func runList(args []string) {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	owner := fs.String("owner", "", "Owner id (defaults to FINTRACK_OWNER_ID)")
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	s := newSession(*owner, nil)
	defer s.close()

	printExpenses(os.Stdout, s.controller.Snapshot())
}

func runSummary(args []string) {
	fs := flag.NewFlagSet("summary", flag.ExitOnError)
	owner := fs.String("owner", "", "Owner id (defaults to FINTRACK_OWNER_ID)")
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	s := newSession(*owner, nil)
	defer s.close()

	summary, err := s.api.Summary(s.ctx, s.owner)
	if err != nil {
		s.logger.Debug("summary request failed", zap.Error(err))
		fmt.Fprintln(os.Stderr, messages.Failure(s.msgs.LoadFailed, apperr.Message(err)))
		s.close()
		os.Exit(1)
	}
	printSummary(os.Stdout, summary)
}

func runAdd(args []string) {
	fs := flag.NewFlagSet("add", flag.ExitOnError)
	owner := fs.String("owner", "", "Owner id (defaults to FINTRACK_OWNER_ID)")
	category := fs.String("category", "", "Expense category (required)")
	amount := fs.String("amount", "", "Amount, e.g. 12.50 (required)")
	date := fs.String("date", "", "Date as YYYY-MM-DD (defaults to today)")
	receiptPath := fs.String("receipt", "", "Receipt file to upload first")
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	s := newSession(*owner, nil)
	defer s.close()

	form := s.controller.Snapshot().Form
	form.Category = *category
	form.Amount = *amount
	if *date != "" {
		form.Date = *date
	}
	file, closeFile := openOrExit(*receiptPath)
	defer closeFile()
	form.File = file

	s.controller.SetForm(form)
	if err := s.controller.Submit(s.ctx); err != nil {
		s.exit()
	}
	snap := s.controller.Snapshot()
	printBanner(os.Stdout, snap.Banner)
	printExpenses(os.Stdout, snap)
}

func runEdit(args []string) {
	fs := flag.NewFlagSet("edit", flag.ExitOnError)
	owner := fs.String("owner", "", "Owner id (defaults to FINTRACK_OWNER_ID)")
	id := fs.String("id", "", "Record id to edit (required)")
	category := fs.String("category", "", "New category")
	amount := fs.String("amount", "", "New amount")
	date := fs.String("date", "", "New date as YYYY-MM-DD")
	receiptPath := fs.String("receipt", "", "Replacement receipt file")
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if *id == "" {
		fmt.Println("Error: --id is required")
		fs.Usage()
		os.Exit(1)
	}

	s := newSession(*owner, nil)
	defer s.close()

	if err := s.controller.Edit(*id); err != nil {
		s.exit()
	}

	form := s.controller.Snapshot().Form
	if *category != "" {
		form.Category = *category
	}
	if *amount != "" {
		form.Amount = *amount
	}
	if *date != "" {
		form.Date = *date
	}
	file, closeFile := openOrExit(*receiptPath)
	defer closeFile()
	form.File = file

	s.controller.SetForm(form)
	if err := s.controller.Submit(s.ctx); err != nil {
		s.exit()
	}
	printBanner(os.Stdout, s.controller.Snapshot().Banner)
}

func runDelete(args []string) {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	owner := fs.String("owner", "", "Owner id (defaults to FINTRACK_OWNER_ID)")
	id := fs.String("id", "", "Record id to delete (required)")
	yes := fs.Bool("yes", false, "Skip the confirmation prompt")
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if *id == "" {
		fmt.Println("Error: --id is required")
		fs.Usage()
		os.Exit(1)
	}

	var confirmer dashboard.Confirmer = promptConfirmer(os.Stdin, os.Stdout)
	if *yes {
		confirmer = dashboard.ConfirmFunc(func(string) bool { return true })
	}

	s := newSession(*owner, confirmer)
	defer s.close()

	err := s.controller.Delete(s.ctx, *id)
	if errors.Is(err, dashboard.ErrCancelled) {
		fmt.Println("Nothing deleted")
		return
	}
	if err != nil {
		s.exit()
	}
	printBanner(os.Stdout, s.controller.Snapshot().Banner)
}

func runAttach(args []string) {
	fs := flag.NewFlagSet("attach", flag.ExitOnError)
	owner := fs.String("owner", "", "Owner id (defaults to FINTRACK_OWNER_ID)")
	fs.Usage = func() {
		fmt.Println("Usage: fintrack attach [options] <record-id>=<file> ...")
		fmt.Println("\nOptions:")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	targets, err := parseAttachArgs(fs.Args())
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		fs.Usage()
		os.Exit(1)
	}

	s := newSession(*owner, nil)
	defer s.close()

	files := make(map[string]client.File, len(targets))
	for id, path := range targets {
		f, closeFile := openOrExit(path)
		defer closeFile()
		files[id] = *f
	}

	attachErr := s.controller.AttachReceipts(s.ctx, files)

	snap := s.controller.Snapshot()
	for id := range targets {
		printRow(os.Stdout, id, snap.Row(id))
	}
	if attachErr != nil {
		s.close()
		os.Exit(1)
	}
}

// parseAttachArgs reads id=path pairs.
func parseAttachArgs(args []string) (map[string]string, error) {
	if len(args) == 0 {
		return nil, errors.New("at least one <record-id>=<file> pair is required")
	}
	out := make(map[string]string, len(args))
	for _, arg := range args {
		id, path, ok := strings.Cut(arg, "=")
		id, path = strings.TrimSpace(id), strings.TrimSpace(path)
		if !ok || id == "" || path == "" {
			return nil, fmt.Errorf("invalid argument %q, want <record-id>=<file>", arg)
		}
		if _, dup := out[id]; dup {
			return nil, fmt.Errorf("record %s listed more than once", id)
		}
		out[id] = path
	}
	return out, nil
}

// openReceipt opens path for upload. The content type is guessed from the
// extension; the server sniffs the bytes when it is empty.
func openReceipt(path string) (*client.File, io.Closer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	if info.IsDir() {
		f.Close()
		return nil, nil, fmt.Errorf("%s is a directory", path)
	}
	return &client.File{
		Name:        filepath.Base(path),
		ContentType: mime.TypeByExtension(strings.ToLower(filepath.Ext(path))),
		Size:        info.Size(),
		Body:        f,
	}, f, nil
}

func openOrExit(path string) (*client.File, func()) {
	if path == "" {
		return nil, func() {}
	}
	f, closer, err := openReceipt(path)
	if err != nil {
		log.Fatalf("Failed to open receipt: %v", err)
	}
	return f, func() { closer.Close() }
}

func promptConfirmer(in io.Reader, out io.Writer) dashboard.Confirmer {
	reader := bufio.NewReader(in)
	return dashboard.ConfirmFunc(func(prompt string) bool {
		fmt.Fprintf(out, "%s [y/N]: ", prompt)
		answer, _ := reader.ReadString('\n')
		switch strings.ToLower(strings.TrimSpace(answer)) {
		case "y", "yes":
			return true
		}
		return false
	})
}

func printBanner(w io.Writer, b dashboard.Banner) {
	if b.IsZero() {
		return
	}
	if b.Kind == dashboard.BannerError {
		fmt.Fprintf(w, "error: %s\n", b.Text)
		return
	}
	fmt.Fprintln(w, b.Text)
}

func printRow(w io.Writer, id string, row dashboard.RowStatus) {
	switch row.State {
	case dashboard.RowMessage:
		fmt.Fprintf(w, "%s: %s\n", id, row.Message.Text)
	case dashboard.RowUploading:
		fmt.Fprintf(w, "%s: uploading %d%%\n", id, row.Progress)
	}
}

func printExpenses(w io.Writer, snap dashboard.Snapshot) {
	if len(snap.Expenses) == 0 {
		fmt.Fprintln(w, "No expenses yet")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDATE\tCATEGORY\tAMOUNT\tRECEIPT")
	for _, e := range snap.Expenses {
		receiptRef := "-"
		if e.HasReceipt() {
			receiptRef = *e.ReceiptRef
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", e.RecordID, e.Date, e.Category, expense.FormatAmount(e.Amount), receiptRef)
	}
	tw.Flush()

	fmt.Fprintln(w)
	printSummary(w, snap.Summary)
}

func printSummary(w io.Writer, s expense.Summary) {
	fmt.Fprintf(w, "Total: %s  Expenses: %d  With receipts: %d\n",
		expense.FormatAmount(s.Total), s.Count, s.WithReceipts)
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
