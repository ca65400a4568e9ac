// Command netshark talks to a NetShark capture appliance: listing sources,
// creating and reading views, and exporting packets.
package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/netsharklabs/netshark-go/config"
	"github.com/netsharklabs/netshark-go/internal/logger"
	"github.com/netsharklabs/netshark-go/internal/shark"
	"github.com/netsharklabs/netshark-go/internal/transport"
)

var (
	flagConfig   string
	flagHost     string
	flagToken    string
	flagUsername string
	flagPassword string
	flagInsecure bool
)

var rootCmd = &cobra.Command{
	Use:   "netshark",
	Short: "Client for NetShark capture appliances",
	Long: `netshark drives a NetShark capture appliance over its REST API.

Examples:
  netshark sources --host shark01                      # list jobs, clips, files
  netshark readview -l                                 # list open views
  netshark readview <handle> -f out.csv                # dump a view to CSV
  netshark createview jobs/voip -k ip.src -v generic.bytes:sum
  netshark report jobs/voip -k ip.src -v generic.bytes:sum --sort generic.bytes
  netshark download jobs/voip --last 15m -o voip.pcap  # export packets`,
	SilenceUsage: true,
}

// Execute runs the root command, exiting non-zero on unrecoverable errors.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "netshark:", err)
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flagConfig, "config", "c", "", "path to config file (default config.json)")
	pf.StringVar(&flagHost, "host", "", "appliance host, overrides config")
	pf.StringVar(&flagToken, "token", "", "bearer token, overrides config")
	pf.StringVar(&flagUsername, "username", "", "basic-auth user, overrides config")
	pf.StringVar(&flagPassword, "password", "", "basic-auth password, overrides config")
	pf.BoolVar(&flagInsecure, "insecure", false, "skip TLS certificate verification")

	rootCmd.AddCommand(sourcesCmd)
	rootCmd.AddCommand(readviewCmd)
	rootCmd.AddCommand(createviewCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(downloadCmd)
}

// loadConfig merges the config file with command-line overrides. A missing
// config file is fine as long as --host is given.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(flagConfig)
	if err != nil {
		if flagHost == "" {
			return nil, err
		}
		cfg = &config.Config{}
		cfg.ValidateAndSetDefaults()
	}
	if flagHost != "" {
		cfg.Appliance.Host = flagHost
	}
	if flagToken != "" {
		cfg.Appliance.Token = flagToken
	}
	if flagUsername != "" {
		cfg.Appliance.Username = flagUsername
	}
	if flagPassword != "" {
		cfg.Appliance.Password = flagPassword
	}
	if flagInsecure {
		cfg.Appliance.InsecureTLS = true
	}
	if cfg.Appliance.Host == "" {
		return nil, fmt.Errorf("no appliance host configured; pass --host or set appliance.host in the config file")
	}
	return cfg, nil
}

// newShark builds the appliance handle from config plus flags.
func newShark() (*shark.NetShark, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if err := cfg.InitializeLogging(); err != nil {
		return nil, err
	}
	conn, err := transport.NewClient(cfg.Appliance.Host, transport.Options{
		Token:       cfg.Appliance.Token,
		Username:    cfg.Appliance.Username,
		Password:    cfg.Appliance.Password,
		InsecureTLS: cfg.Appliance.InsecureTLS,
		Timeout:     cfg.Timeout(),
	})
	if err != nil {
		return nil, err
	}
	log := logger.L()
	log.Debug().Str("host", conn.Host()).Msg("connecting to appliance")
	return shark.New(conn, shark.Version5), nil
}

// parseTime accepts RFC3339 or epoch seconds.
func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("cannot parse time %q: use RFC3339 or epoch seconds", s)
	}
	return t, nil
}
