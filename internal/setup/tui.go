// Package setup implements the interactive configuration wizard.
package setup

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/vadiminshakov/moexfolio/config"
)

// DefaultOutput is the file written by the wizard.
const DefaultOutput = "config.gen.yaml"

var (
	subtle    = lipgloss.AdaptiveColor{Light: "#D9DCCF", Dark: "#383838"}
	highlight = lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#7D56F4"}
	special   = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"}

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Background(highlight).
			Padding(1, 2).
			Bold(true).
			MarginBottom(1)

	stepStyle = lipgloss.NewStyle().
			Foreground(special).
			Bold(true).
			MarginTop(1).
			MarginBottom(0)
)

// Answers collected by the wizard.
type Answers struct {
	Driver         string
	StorePath      string
	Board          string
	InfoInterval   string
	RequestTimeout string
	Retries        string
	Development    bool
	Domains        string
}

func defaultAnswers() Answers {
	return Answers{
		Driver:         config.DriverMongo,
		StorePath:      "./data/trades.json",
		Board:          "TQBR",
		InfoInterval:   "15m",
		RequestTimeout: "10s",
		Retries:        "2",
	}
}

// RunTUI launches the terminal configuration wizard and writes the result to output.
func RunTUI(output string) error {
	if output == "" {
		output = DefaultOutput
	}
	a := defaultAnswers()
	var confirm bool

	// step 1: ledger
	header()
	fmt.Println(lipgloss.NewStyle().Foreground(subtle).Render("Let's configure your portfolio tracker.\n"))
	fmt.Println(stepStyle.Render("STEP 1: TRADE LEDGER"))
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Where are your trades stored?").
				Options(
					huh.NewOption("MongoDB (MONGODB_URI)", config.DriverMongo),
					huh.NewOption("Local JSON file", config.DriverFile),
					huh.NewOption("In memory (nothing persisted)", config.DriverMemory),
				).
				Value(&a.Driver),
		),
	).Run()
	if err != nil {
		return err
	}

	if a.Driver == config.DriverFile {
		err = huh.NewForm(
			huh.NewGroup(
				huh.NewInput().
					Title("Ledger file").
					Value(&a.StorePath).
					Validate(notEmpty("ledger file")),
			),
		).Run()
		if err != nil {
			return err
		}
	}

	// step 2: market
	header()
	fmt.Println(stepStyle.Render("STEP 2: MARKET DATA"))
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("MOEX board").
				Description("Trading board of your shares (e.g. TQBR)").
				Value(&a.Board).
				Validate(notEmpty("board")),
			huh.NewInput().
				Title("Request timeout").
				Description("Duration string (e.g. 5s, 10s)").
				Value(&a.RequestTimeout).
				Validate(validateDuration),
			huh.NewInput().
				Title("Retries").
				Description("Retries of a failed feed request").
				Value(&a.Retries).
				Validate(validateRetries),
		),
	).Run()
	if err != nil {
		return err
	}

	// step 3: schedule
	header()
	fmt.Println(stepStyle.Render("STEP 3: SCHEDULE"))
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Valuation interval").
				Description("How often the portfolio is revalued (e.g. 15m, 1h)").
				Value(&a.InfoInterval).
				Validate(validateDuration),
		),
	).Run()
	if err != nil {
		return err
	}

	// step 4: deployment
	header()
	fmt.Println(stepStyle.Render("STEP 4: DEPLOYMENT"))
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Development mode?").
				Description("Verbose logs, Telegram updates are polled").
				Value(&a.Development),
			huh.NewInput().
				Title("TLS domains").
				Description("Comma separated, empty to serve plain HTTP").
				Value(&a.Domains),
		),
	).Run()
	if err != nil {
		return err
	}

	// confirmation
	header()
	fmt.Println(stepStyle.Render("FINAL CONFIRMATION"))

	summary := fmt.Sprintf(
		"Ledger: %s\nBoard: %s\nInterval: %s\nDevelopment: %t\n\nSet in the environment or .env:\nTELEGRAM_API_TOKEN, MY_TELEGRAM_ID, TOTAL_INVESTMENTS",
		a.Driver, a.Board, a.InfoInterval, a.Development,
	)
	if a.Driver == config.DriverMongo {
		summary += ", MONGODB_URI"
	}
	fmt.Println(lipgloss.NewStyle().Border(lipgloss.NormalBorder()).Padding(1).Render(summary))

	err = huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Save Configuration?").
				Affirmative("Yes, save").
				Negative("No, exit").
				Value(&confirm),
		),
	).Run()
	if err != nil {
		return err
	}

	if !confirm {
		return errors.New("setup cancelled by user")
	}

	if err := Write(output, a); err != nil {
		return err
	}

	fmt.Println(lipgloss.NewStyle().Foreground(special).Render(fmt.Sprintf("\n✓ Configuration saved to %s\nRun: moexfolio serve --config %s", output, output)))
	return nil
}

// Write validates the answers and writes them as a YAML config file.
func Write(path string, a Answers) error {
	tmp, err := Build(a)
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(tmp)
	if err != nil {
		return errors.Wrap(err, "failed to generate yaml")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrap(err, "failed to save config file")
	}
	return nil
}

// Build converts the answers to the YAML config representation.
func Build(a Answers) (config.ConfigTmp, error) {
	if err := validateDuration(a.InfoInterval); err != nil {
		return config.ConfigTmp{}, errors.Wrap(err, "valuation interval")
	}
	if err := validateDuration(a.RequestTimeout); err != nil {
		return config.ConfigTmp{}, errors.Wrap(err, "request timeout")
	}
	if err := validateRetries(a.Retries); err != nil {
		return config.ConfigTmp{}, errors.Wrap(err, "retries")
	}
	retries, _ := strconv.Atoi(a.Retries)

	tmp := config.ConfigTmp{
		Log: config.LogTmp{Development: a.Development},
		Market: config.MarketTmp{
			Board:          strings.ToUpper(strings.TrimSpace(a.Board)),
			RequestTimeout: a.RequestTimeout,
			Retries:        &retries,
		},
		Schedule: config.ScheduleTmp{InfoInterval: a.InfoInterval},
		Store:    config.StoreTmp{Driver: a.Driver},
	}
	if a.Driver == config.DriverFile {
		tmp.Store.Path = a.StorePath
	}
	for _, d := range strings.Split(a.Domains, ",") {
		if d = strings.TrimSpace(d); d != "" {
			tmp.Web.Domains = append(tmp.Web.Domains, d)
		}
	}

	return tmp, nil
}

func header() {
	fmt.Print("\033[H\033[2J")
	fmt.Println(headerStyle.Render("MOEXFOLIO CONFIG WIZARD"))
}

func notEmpty(field string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s cannot be empty", field)
		}
		return nil
	}
}

func validateDuration(s string) error {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("must be a duration (e.g. 30s, 15m)")
	}
	if d <= 0 {
		return fmt.Errorf("must be positive")
	}
	return nil
}

func validateRetries(s string) error {
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("must be an integer")
	}
	if n < 0 || n > 10 {
		return fmt.Errorf("must be between 0 and 10")
	}
	return nil
}
