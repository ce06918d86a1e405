package setup

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"gopkg.in/yaml.v3"

	"github.com/vadiminshakov/tradeready/config"
)

// GeneratedPath is where the wizard writes the resulting configuration.
const GeneratedPath = "config.gen.yaml"

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

// RunTUI launches the terminal configuration wizard.
func RunTUI() error {
	var (
		gatewayURL     string
		sessionID      string
		statusStr      string
		readinessStr   string
		categories     []string
		dashboardAddr  string
		tlsDomainsStr  string
		certCacheDir   string
		publishNATS    bool
		natsURL        string
		natsSubject    string
		probesEnabled  bool
		hyperliquidURL string
		hyperliquidKey string
		confirm        bool
	)

	// defaults
	statusStr = "60s"
	readinessStr = "30s"
	dashboardAddr = ":8080"
	certCacheDir = "cert-cache"
	natsURL = "nats://127.0.0.1:4222"
	natsSubject = "tradeready.transitions"
	hyperliquidURL = "https://api.hyperliquid.xyz"

	// step 1: welcome
	fmt.Print("\033[H\033[2J") // Clear screen
	fmt.Println(headerStyle.Render("TRADEREADY CONFIG WIZARD"))
	fmt.Println(lipgloss.NewStyle().Foreground(subtle).Render("Let's wire your readiness synchronizer up.\n"))

	// gateway
	fmt.Println(stepStyle.Render("STEP 1: GATEWAY"))
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Gateway URL").
				Description("Base URL of the trading gateway (e.g. https://gateway.example.com)").
				Value(&gatewayURL).
				Validate(validateAbsoluteURL),
			huh.NewInput().
				Title("Session ID").
				Description("Leave empty to stay logged out until one is set").
				Value(&sessionID),
		),
	).Run()
	if err != nil {
		return err
	}

	// refresh cadence
	fmt.Print("\033[H\033[2J")
	fmt.Println(headerStyle.Render("TRADEREADY CONFIG WIZARD"))
	fmt.Println(stepStyle.Render("STEP 2: CADENCE"))
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Status Refresh Interval").
				Description("Config, trades, activity and stats (e.g. 60s)").
				Value(&statusStr).
				Validate(validateDuration),
			huh.NewInput().
				Title("Readiness Refresh Interval").
				Description("Credential status and providers (e.g. 30s)").
				Value(&readinessStr).
				Validate(validateDuration),
		),
	).Run()
	if err != nil {
		return err
	}

	// required categories
	fmt.Print("\033[H\033[2J")
	fmt.Println(headerStyle.Render("TRADEREADY CONFIG WIZARD"))
	fmt.Println(stepStyle.Render("STEP 3: REQUIREMENTS"))
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewMultiSelect[string]().
				Title("Required Provider Categories").
				Description("Each selected category needs a connected provider before trading can start").
				Options(
					huh.NewOption("Market Data", "marketData").Selected(true),
					huh.NewOption("News", "news").Selected(true),
					huh.NewOption("Metadata", "metadata").Selected(true),
				).
				Value(&categories),
		),
	).Run()
	if err != nil {
		return err
	}

	// dashboard
	fmt.Print("\033[H\033[2J")
	fmt.Println(headerStyle.Render("TRADEREADY CONFIG WIZARD"))
	fmt.Println(stepStyle.Render("STEP 4: DASHBOARD"))
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Listen Address").
				Description("host:port for the status dashboard").
				Value(&dashboardAddr),
			huh.NewInput().
				Title("TLS Domains").
				Description("Comma separated, leave empty for plain HTTP").
				Value(&tlsDomainsStr),
		),
	).Run()
	if err != nil {
		return err
	}

	if strings.TrimSpace(tlsDomainsStr) != "" {
		err = huh.NewForm(
			huh.NewGroup(
				huh.NewInput().
					Title("Certificate Cache Directory").
					Value(&certCacheDir).
					Validate(func(s string) error {
						if strings.TrimSpace(s) == "" {
							return fmt.Errorf("cache directory cannot be empty")
						}
						return nil
					}),
			),
		).Run()
		if err != nil {
			return err
		}
	}

	// transitions
	fmt.Print("\033[H\033[2J")
	fmt.Println(headerStyle.Render("TRADEREADY CONFIG WIZARD"))
	fmt.Println(stepStyle.Render("STEP 5: TRANSITIONS"))
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Publish readiness transitions to NATS?").
				Value(&publishNATS),
		),
	).Run()
	if err != nil {
		return err
	}

	if publishNATS {
		err = huh.NewForm(
			huh.NewGroup(
				huh.NewInput().
					Title("NATS URL").
					Value(&natsURL),
				huh.NewInput().
					Title("Subject").
					Value(&natsSubject),
			),
		).Run()
		if err != nil {
			return err
		}
	}

	// probes
	fmt.Print("\033[H\033[2J")
	fmt.Println(headerStyle.Render("TRADEREADY CONFIG WIZARD"))
	fmt.Println(stepStyle.Render("STEP 6: VENUE PROBES"))
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Run advisory venue connectivity probes?").
				Description("Binance and Bybit need no keys, keys are read from the environment").
				Value(&probesEnabled),
		),
	).Run()
	if err != nil {
		return err
	}

	if probesEnabled {
		err = huh.NewForm(
			huh.NewGroup(
				huh.NewInput().
					Title("Hyperliquid API URL").
					Value(&hyperliquidURL),
				huh.NewInput().
					Title("Hyperliquid Private Key").
					Description("Optional, HYPERLIQUID_PRIVATE_KEY overrides this").
					Value(&hyperliquidKey).
					EchoMode(huh.EchoModePassword),
			),
		).Run()
		if err != nil {
			return err
		}
	}

	// confirmation
	fmt.Print("\033[H\033[2J")
	fmt.Println(headerStyle.Render("TRADEREADY CONFIG WIZARD"))
	fmt.Println(stepStyle.Render("FINAL CONFIRMATION"))

	summary := fmt.Sprintf(
		"Gateway: %s\nSession: %s\nStatus every: %s\nReadiness every: %s\nCategories: %s\nDashboard: %s\nNATS: %s\nProbes: %v\n",
		gatewayURL, orPlaceholder(sessionID, "(not set)"), statusStr, readinessStr,
		strings.Join(categories, ", "), dashboardAddr, orPlaceholder(natsURLIf(publishNATS, natsURL), "off"), probesEnabled,
	)
	fmt.Println(lipgloss.NewStyle().Border(lipgloss.NormalBorder()).Padding(1).Render(summary))

	err = huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Save Configuration?").
				Affirmative("Yes, save and start").
				Negative("No, exit").
				Value(&confirm),
		),
	).Run()
	if err != nil {
		return err
	}

	if !confirm {
		return fmt.Errorf("setup cancelled by user")
	}

	cfg := buildConfig(
		gatewayURL, sessionID, statusStr, readinessStr, categories,
		dashboardAddr, tlsDomainsStr, certCacheDir,
		publishNATS, natsURL, natsSubject,
		probesEnabled, hyperliquidURL, hyperliquidKey,
	)

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("generated config is invalid: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to generate yaml: %w", err)
	}

	if err := os.WriteFile(GeneratedPath, data, 0644); err != nil {
		return fmt.Errorf("failed to save config file: %w", err)
	}

	fmt.Println(lipgloss.NewStyle().Foreground(special).Render(fmt.Sprintf("\n✓ Configuration saved to %s\nStarting synchronizer...", GeneratedPath)))
	time.Sleep(1500 * time.Millisecond) // small pause to read success message
	return nil
}

func buildConfig(
	gatewayURL, sessionID, statusStr, readinessStr string, categories []string,
	dashboardAddr, tlsDomainsStr, certCacheDir string,
	publishNATS bool, natsURL, natsSubject string,
	probesEnabled bool, hyperliquidURL, hyperliquidKey string,
) *config.Config {
	cfg := config.Default()
	cfg.Gateway.URL = gatewayURL
	cfg.SessionID = sessionID

	// inputs already passed validateDuration
	status, _ := time.ParseDuration(statusStr)
	readiness, _ := time.ParseDuration(readinessStr)
	cfg.StatusInterval = config.Duration(status)
	cfg.ReadinessInterval = config.Duration(readiness)

	cfg.RequiredCategories = categories
	cfg.Dashboard.Addr = dashboardAddr
	cfg.Dashboard.TLSDomains = splitDomains(tlsDomainsStr)
	cfg.Dashboard.CertCacheDir = certCacheDir

	if publishNATS {
		cfg.NATS.URL = natsURL
		cfg.NATS.Subject = natsSubject
	} else {
		cfg.NATS.URL = ""
	}

	cfg.Probe.Enabled = probesEnabled
	cfg.Probe.HyperliquidURL = hyperliquidURL
	cfg.Probe.HyperliquidKey = hyperliquidKey

	return cfg
}

func validateAbsoluteURL(s string) error {
	u, err := url.Parse(s)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("must be an absolute url (e.g. https://gateway.example.com)")
	}
	return nil
}

func validateDuration(s string) error {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("must be a duration (e.g. 30s, 1m)")
	}
	if d <= 0 {
		return fmt.Errorf("must be positive")
	}
	return nil
}

func splitDomains(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func orPlaceholder(s, placeholder string) string {
	if s == "" {
		return placeholder
	}
	return s
}

func natsURLIf(enabled bool, url string) string {
	if !enabled {
		return ""
	}
	return url
}
