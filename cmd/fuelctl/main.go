// Command fuelctl is a terminal client for the fuel-card ledger authority.
// Session state and the selected card survive between invocations through the
// configured durable store.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"fuelcard-client/config"
	"fuelcard-client/internal/adapter/authority"
	fileStorage "fuelcard-client/internal/adapter/storage/file"
	redisStorage "fuelcard-client/internal/adapter/storage/redis"
	"fuelcard-client/internal/core/domain"
	"fuelcard-client/internal/core/ports"
	"fuelcard-client/internal/service"
	"fuelcard-client/pkg/apperror"
	"fuelcard-client/pkg/logger"

	"github.com/rs/zerolog"
)

const usage = `Usage: fuelctl <command> [flags]

Account:
  register        Create an account
  login           Sign in and store the session
  logout          Sign out and clear the session
  status          Show session and selected card
  profile         Show account overview
  change-password Rotate the account password (signs out)

Cards:
  cards           List your cards
  create-card     Create a card
  delete-card     Delete a card
  select          Select the card to operate on

Ledger:
  topup           Credit the selected card
  spend           Record a fuel purchase
  history         Show the transaction history
  summary         Show spending totals, optionally for a date range
`

func main() {
	os.Exit(run(os.Args[1:]))
}

type app struct {
	cfg      *config.Config
	log      zerolog.Logger
	sessions *service.SessionService
	ledger   *service.LedgerService
}

func run(args []string) int {
	if len(args) == 0 {
		fmt.Fprint(os.Stderr, usage)
		return 2
	}

	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		return 1
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)

	store, err := openStore(cfg, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open storage: %v\n", err)
		return 1
	}

	client := authority.New(cfg.Authority.BaseURL, cfg.Authority.Timeout, log)
	a := &app{
		cfg:      cfg,
		log:      log,
		sessions: service.NewSessionService(client, store, log),
		ledger:   service.NewLedgerService(client, store, store, log),
	}

	ctx := context.Background()
	cmd, rest := args[0], args[1:]

	var cmdErr error
	switch cmd {
	case "register":
		cmdErr = a.register(ctx, rest)
	case "login":
		cmdErr = a.login(ctx, rest)
	case "logout":
		a.sessions.SignOut(ctx)
		fmt.Println("Signed out.")
	case "status":
		cmdErr = a.status(ctx)
	case "profile":
		cmdErr = a.profile(ctx)
	case "change-password":
		cmdErr = a.changePassword(ctx, rest)
	case "cards":
		cmdErr = a.cards(ctx)
	case "create-card":
		cmdErr = a.createCard(ctx, rest)
	case "delete-card":
		cmdErr = a.deleteCard(ctx, rest)
	case "select":
		cmdErr = a.selectCard(ctx, rest)
	case "topup":
		cmdErr = a.topUp(ctx, rest)
	case "spend":
		cmdErr = a.spend(ctx, rest)
	case "history":
		cmdErr = a.history(ctx)
	case "summary":
		cmdErr = a.summary(ctx, rest)
	case "help", "-h", "--help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", cmd, usage)
		return 2
	}

	if cmdErr != nil {
		fmt.Fprintln(os.Stderr, friendly(cmdErr))
		return 1
	}
	return 0
}

func openStore(cfg *config.Config, log zerolog.Logger) (interface {
	ports.TokenStore
	ports.SnapshotStore
}, error) {
	if cfg.Storage.Backend == "redis" {
		client, err := redisStorage.NewClient(context.Background(), cfg.Storage.Redis, log)
		if err != nil {
			return nil, err
		}
		return redisStorage.NewStore(client), nil
	}
	return fileStorage.New(cfg.Storage.Dir)
}

// requireSignIn runs the startup session check and applies the protected-route
// decision: only a valid session may proceed. A transport failure keeps the
// prior validity, so a previously valid session still passes offline checks
// against the local cache (the authority re-verifies every real call anyway).
func (a *app) requireSignIn(ctx context.Context) error {
	err := a.sessions.CheckAuth(ctx, true)
	validity := a.sessions.Current().Validity

	if err != nil && validity != domain.ValidityValid {
		return err
	}
	if domain.DecideRoute(validity, domain.RouteProtected) == domain.DecisionRedirectSignIn {
		return apperror.ErrNoSession()
	}
	return nil
}

// restoreCard loads the selected-card snapshot for card-scoped commands.
func (a *app) restoreCard(ctx context.Context) error {
	if _, ok := a.ledger.Card(); ok {
		return nil
	}
	return a.ledger.Restore(ctx)
}

func (a *app) register(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("register", flag.ExitOnError)
	email := fs.String("email", "", "account email")
	password := fs.String("password", "", "account password")
	repeat := fs.String("repeat", "", "repeated password (defaults to -password)")
	fs.Parse(args)

	if *repeat == "" {
		*repeat = *password
	}
	if err := a.sessions.Register(ctx, *email, *password, *repeat); err != nil {
		return err
	}
	fmt.Println("Account created. Run 'fuelctl login' to sign in.")
	return nil
}

func (a *app) login(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	email := fs.String("email", "", "account email")
	password := fs.String("password", "", "account password")
	fs.Parse(args)

	if err := a.sessions.Login(ctx, *email, *password); err != nil {
		return err
	}
	fmt.Println("Signed in.")
	return nil
}

func (a *app) status(ctx context.Context) error {
	if err := a.sessions.CheckAuth(ctx, true); err != nil {
		fmt.Println("Authority unreachable; showing cached state.")
	}
	fmt.Printf("Session: %s\n", a.sessions.Current().Validity)

	if err := a.restoreCard(ctx); err == nil {
		if card, ok := a.ledger.Card(); ok {
			fmt.Printf("Selected card: %s (#%d), balance %.2f\n", card.Name, card.ID, card.Balance)
		}
	} else {
		fmt.Println("No card selected.")
	}
	return nil
}

func (a *app) profile(ctx context.Context) error {
	if err := a.requireSignIn(ctx); err != nil {
		return err
	}
	p, err := a.sessions.Profile(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Email: %s\nCards: %d\n", p.Email, p.CardCount)
	return nil
}

func (a *app) changePassword(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("change-password", flag.ExitOnError)
	current := fs.String("current", "", "current password")
	newPass := fs.String("new", "", "new password")
	confirm := fs.String("confirm", "", "confirmed new password (defaults to -new)")
	fs.Parse(args)

	if err := a.requireSignIn(ctx); err != nil {
		return err
	}
	if *confirm == "" {
		*confirm = *newPass
	}
	if err := a.sessions.ChangePassword(ctx, *current, *newPass, *confirm); err != nil {
		return err
	}
	fmt.Println("Password changed. You are signed out; log in with the new password.")
	return nil
}

func (a *app) cards(ctx context.Context) error {
	if err := a.requireSignIn(ctx); err != nil {
		return err
	}
	cards, err := a.ledger.ListCards(ctx)
	if err != nil {
		return err
	}
	if len(cards) == 0 {
		fmt.Println("No cards yet. Create one with 'fuelctl create-card'.")
		return nil
	}

	selected, hasSelected := a.ledger.Card()
	if !hasSelected {
		if err := a.ledger.Restore(ctx); err == nil {
			selected, hasSelected = a.ledger.Card()
		}
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tBALANCE\t")
	for _, c := range cards {
		marker := ""
		if hasSelected && c.ID == selected.ID {
			marker = " *"
		}
		fmt.Fprintf(w, "%d\t%s%s\t%.2f\t\n", c.ID, c.Name, marker, c.Balance)
	}
	return w.Flush()
}

func (a *app) createCard(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("create-card", flag.ExitOnError)
	name := fs.String("name", "", "card name")
	balance := fs.Float64("balance", 0, "initial balance")
	fs.Parse(args)

	if err := a.requireSignIn(ctx); err != nil {
		return err
	}
	card, err := a.ledger.CreateCard(ctx, *name, *balance)
	if err != nil {
		return err
	}
	fmt.Printf("Created card %s (#%d) with balance %.2f\n", card.Name, card.ID, card.Balance)
	return nil
}

func (a *app) deleteCard(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("delete-card", flag.ExitOnError)
	id := fs.Int64("id", 0, "card ID")
	fs.Parse(args)

	if err := a.requireSignIn(ctx); err != nil {
		return err
	}
	if err := a.ledger.DeleteCard(ctx, *id); err != nil {
		return err
	}
	fmt.Printf("Deleted card #%d\n", *id)
	return nil
}

func (a *app) selectCard(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("select", flag.ExitOnError)
	id := fs.Int64("id", 0, "card ID")
	fs.Parse(args)

	if err := a.requireSignIn(ctx); err != nil {
		return err
	}
	cards, err := a.ledger.ListCards(ctx)
	if err != nil {
		return err
	}
	for _, c := range cards {
		if c.ID == *id {
			if err := a.ledger.Select(ctx, c); err != nil {
				return err
			}
			fmt.Printf("Selected card %s (#%d)\n", c.Name, c.ID)
			return nil
		}
	}
	return apperror.ErrCardNotFound()
}

func (a *app) topUp(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("topup", flag.ExitOnError)
	amount := fs.Float64("amount", 0, "amount to credit")
	fs.Parse(args)

	if err := a.requireSignIn(ctx); err != nil {
		return err
	}
	if err := a.restoreCard(ctx); err != nil {
		return err
	}
	tx, err := a.ledger.TopUp(ctx, *amount)
	if err != nil {
		return err
	}
	fmt.Printf("Topped up %.2f; balance is now %.2f\n", tx.Amount, tx.ResultingBalance)
	return nil
}

func (a *app) spend(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("spend", flag.ExitOnError)
	amount := fs.Float64("amount", 0, "amount to spend")
	price := fs.Float64("price", 0, "fuel price per liter (defaults to the latest known price)")
	fuelType := fs.String("type", "", "fuel type: lpg, petrol or diesel (defaults to a price-based guess)")
	fs.Parse(args)

	if err := a.requireSignIn(ctx); err != nil {
		return err
	}
	if err := a.restoreCard(ctx); err != nil {
		return err
	}

	p, ft := a.ledger.SuggestedFuel()
	if *price > 0 {
		p = *price
		ft = domain.ClassifyFuelPrice(p)
	}
	if *fuelType != "" {
		ft = domain.FuelType(*fuelType)
	}

	tx, err := a.ledger.Spend(ctx, *amount, p, ft)
	if err != nil {
		return err
	}
	fmt.Printf("Spent %.2f on %.2f L of %s @ %.2f; balance is now %.2f\n",
		-tx.Amount, tx.Fuel.Liters, tx.Fuel.Type, tx.Fuel.PricePerLiter, tx.ResultingBalance)
	return nil
}

func (a *app) history(ctx context.Context) error {
	if err := a.requireSignIn(ctx); err != nil {
		return err
	}
	if err := a.restoreCard(ctx); err != nil {
		return err
	}
	if err := a.ledger.LoadHistory(ctx); err != nil {
		return err
	}

	card, _ := a.ledger.Card()
	fmt.Printf("%s (#%d), balance %.2f\n\n", card.Name, card.ID, card.Balance)

	history := a.ledger.History()
	if len(history) == 0 {
		fmt.Println("No transactions yet.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "DATE\tTYPE\tAMOUNT\tBALANCE\tFUEL\t")
	for _, tx := range history {
		fuel := ""
		if tx.Fuel != nil {
			fuel = fmt.Sprintf("%.2f L %s @ %.2f", tx.Fuel.Liters, tx.Fuel.Type, tx.Fuel.PricePerLiter)
		}
		fmt.Fprintf(w, "%s\t%s\t%+.2f\t%.2f\t%s\t\n",
			tx.Timestamp.Local().Format("2006-01-02 15:04"), tx.Kind, tx.Amount, tx.ResultingBalance, fuel)
	}
	return w.Flush()
}

func (a *app) summary(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("summary", flag.ExitOnError)
	fromStr := fs.String("from", "", "range start (YYYY-MM-DD)")
	toStr := fs.String("to", "", "range end (YYYY-MM-DD)")
	fs.Parse(args)

	if err := a.requireSignIn(ctx); err != nil {
		return err
	}
	if err := a.restoreCard(ctx); err != nil {
		return err
	}

	var bounds *service.SummaryRange
	if *fromStr != "" || *toStr != "" {
		if *fromStr == "" || *toStr == "" {
			return apperror.Validation("provide both -from and -to, or neither")
		}
		from, err := time.ParseInLocation("2006-01-02", *fromStr, time.Local)
		if err != nil {
			return apperror.Validation("invalid -from date, expected YYYY-MM-DD")
		}
		to, err := time.ParseInLocation("2006-01-02", *toStr, time.Local)
		if err != nil {
			return apperror.Validation("invalid -to date, expected YYYY-MM-DD")
		}
		bounds = &service.SummaryRange{From: from, To: to}
	}

	totals, err := a.ledger.Summary(ctx, bounds)
	if err != nil {
		return err
	}

	if bounds != nil {
		fmt.Printf("%s, %s to %s\n", totals.CardName, *fromStr, *toStr)
	} else {
		fmt.Printf("%s, all time\n", totals.CardName)
	}
	fmt.Printf("Total spent:  %.2f\nTotal liters: %.2f\n", totals.TotalSpent, totals.TotalLiters)
	return nil
}

// friendly strips the error-code prefix for terminal output.
func friendly(err error) string {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return err.Error()
}
