package config

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
)

// Version is the daemon version reported by --version and node_getInfo.
const Version = "0.1.0"

// Flags holds parsed command-line flags. Config flags are kept as raw
// strings keyed by config key so they go through the same setters as the
// config file and the environment.
type Flags struct {
	Help    bool
	Version bool
	Config  string

	// Values holds only the config flags given on the command line.
	Values map[string]string

	// Remaining args
	Args []string
}

// Network returns the network chosen on the command line, if any.
func (f *Flags) Network() string {
	return strings.ToLower(f.Values["network"])
}

// DataDir returns the data directory given on the command line, if any.
func (f *Flags) DataDir() string {
	return f.Values["datadir"]
}

type configFlag struct {
	name    string
	key     string
	section string
	usage   string
	isBool  bool
}

var configFlags = []configFlag{
	{"network", "network", "Core", "Network: mainnet (default) or devnet", false},
	{"datadir", "datadir", "Core", "Data directory (default: ~/.klingpay)", false},

	{"rpc", "rpc.enabled", "RPC", "Enable the RPC server (default: true)", true},
	{"rpc-addr", "rpc.addr", "RPC", "RPC listen address (default: 127.0.0.1)", false},
	{"rpc-port", "rpc.port", "RPC", "RPC port (mainnet: 7545, devnet: 7645)", false},
	{"rpc-allowed", "rpc.allowed", "RPC", "Allowed client IPs or CIDRs (comma-separated)", false},
	{"rpc-cors", "rpc.cors", "RPC", "Allowed CORS origins (comma-separated)", false},

	{"wallet", "wallet.enabled", "Wallet", "Enable wallet methods (default: true)", true},

	{"solana-rpc", "upstream.solana_rpc", "Upstream", "Solana RPC endpoints, tried in order (comma-separated)", false},
	{"helius-key", "upstream.helius_key", "Upstream", "Helius API key (adds Helius as a Solana endpoint)", false},
	{"moralis-key", "upstream.moralis_key", "Upstream", "Moralis API key (enables token balance lookups)", false},
	{"catalog", "upstream.catalog", "Upstream", "YAML endpoint catalog", false},
	{"upstream-timeout", "upstream.timeout", "Upstream", "Timeout per upstream attempt, e.g. 8s", false},

	{"cache", "cache.backend", "Cache", "Cache backend: memory (default) or redis", false},
	{"cache-size", "cache.size", "Cache", "Entries kept by the memory cache", false},
	{"redis-addr", "cache.redis_addr", "Cache", "Redis address when --cache=redis", false},

	{"trade-api", "trade.api_url", "Trade", "P2P trading API base URL", false},
	{"trade-mirror-ttl", "trade.mirror_ttl", "Trade", "How long mirrored trade records are kept, e.g. 168h", false},

	{"log-level", "log.level", "Logging", "Log level: debug, info, warn, error (default: info)", false},
	{"log-file", "log.file", "Logging", "Log file path (default: <datadir>/<network>/logs/klingpay.log)", false},
	{"log-json", "log.json", "Logging", "Output console logs as JSON", true},
}

// keyValue records a flag into Flags.Values under its config key.
type keyValue struct {
	values map[string]string
	key    string
	isBool bool
}

func (v *keyValue) String() string   { return "" }
func (v *keyValue) IsBoolFlag() bool { return v.isBool }

func (v *keyValue) Set(s string) error {
	if v.isBool {
		switch strings.ToLower(s) {
		case "true", "1", "yes", "on", "false", "0", "no", "off":
		default:
			return fmt.Errorf("want true or false, got %q", s)
		}
	}
	v.values[v.key] = s
	return nil
}

// ParseFlags parses command-line flags from args (usually os.Args[1:]).
func ParseFlags(args []string) (*Flags, error) {
	f := &Flags{Values: make(map[string]string)}
	fs := flag.NewFlagSet("klingpayd", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.BoolVar(&f.Help, "help", false, "")
	fs.BoolVar(&f.Help, "h", false, "")
	fs.BoolVar(&f.Version, "version", false, "")
	fs.BoolVar(&f.Version, "v", false, "")
	fs.StringVar(&f.Config, "config", "", "")
	fs.StringVar(&f.Config, "c", "", "")
	devnet := fs.Bool("devnet", false, "")

	for _, cf := range configFlags {
		fs.Var(&keyValue{values: f.Values, key: cf.key, isBool: cf.isBool}, cf.name, cf.usage)
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if *devnet {
		f.Values["network"] = string(Devnet)
	}

	f.Args = fs.Args()
	for _, arg := range f.Args {
		if strings.HasPrefix(arg, "-") {
			return nil, fmt.Errorf("flag %q was not parsed (positional argument stopped parsing)", arg)
		}
	}
	return f, nil
}

// ApplyFlags applies the config flags in f to cfg.
func ApplyFlags(cfg *Config, f *Flags) error {
	for _, cf := range configFlags {
		value, ok := f.Values[cf.key]
		if !ok {
			continue
		}
		if err := setConfigValue(cfg, cf.key, value); err != nil {
			return fmt.Errorf("flag --%s: %w", cf.name, err)
		}
	}
	return nil
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `klingpay - non-custodial Solana wallet backend and upstream proxy

Usage:
  klingpayd [options]

Commands:
  --help, -h      Show this help message
  --version, -v   Show version information
  --config, -c    Config file path (default: <datadir>/klingpay.conf)
  --devnet        Shorthand for --network=devnet
`)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	section := ""
	for _, cf := range configFlags {
		if cf.section != section {
			section = cf.section
			fmt.Fprintf(tw, "\n%s Options:\n", section)
		}
		fmt.Fprintf(tw, "  --%s\t%s\n", cf.name, cf.usage)
	}
	tw.Flush()

	fmt.Fprint(w, `
Environment:
  Every config key can be overridden with KLINGPAY_<KEY>, dots replaced by
  underscores, e.g. KLINGPAY_UPSTREAM_HELIUS_KEY. Flags win over env.

Examples:
  # Start a mainnet node
  klingpayd

  # Devnet with a Helius key and a shared Redis cache
  klingpayd --devnet --helius-key=<key> --cache=redis --redis-addr=127.0.0.1:6379
`)
}

// startupNetwork picks the network that selects the built-in defaults:
// a flag wins over the environment, mainnet is the fallback.
func startupNetwork(f *Flags, lookup func(string) (string, bool)) NetworkType {
	v := f.Network()
	if v == "" {
		if env, ok := lookup(EnvName("network")); ok {
			v = strings.ToLower(strings.TrimSpace(env))
		}
	}
	if v == string(Devnet) {
		return Devnet
	}
	return Mainnet
}

// Load loads configuration with the following precedence:
// 1. Default values
// 2. Auto-create data dirs + default config (idempotent)
// 3. Config file
// 4. KLINGPAY_* environment
// 5. Command-line flags
// 6. Endpoint catalog, when configured
func Load(args []string) (*Config, *Flags, error) {
	flags, err := ParseFlags(args)
	if err != nil {
		if err == flag.ErrHelp {
			printUsage(os.Stdout)
			os.Exit(0)
		}
		return nil, nil, err
	}

	if flags.Help {
		printUsage(os.Stdout)
		os.Exit(0)
	}
	if flags.Version {
		fmt.Println("klingpayd version " + Version)
		os.Exit(0)
	}

	cfg := Default(startupNetwork(flags, os.LookupEnv))
	if dir := flags.DataDir(); dir != "" {
		cfg.DataDir = dir
	} else if v, ok := os.LookupEnv(EnvName("datadir")); ok && v != "" {
		cfg.DataDir = v
	}

	if err := EnsureDataDirs(cfg); err != nil {
		return nil, nil, fmt.Errorf("ensuring data dirs: %w", err)
	}

	configPath := flags.Config
	if configPath == "" {
		configPath = cfg.ConfigFile()
	}

	fileValues, err := LoadFile(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config file: %w", err)
	}
	if err := ApplyFileConfig(cfg, fileValues); err != nil {
		return nil, nil, fmt.Errorf("applying config file: %w", err)
	}
	if err := ApplyEnv(cfg, os.LookupEnv); err != nil {
		return nil, nil, fmt.Errorf("applying environment: %w", err)
	}
	if err := ApplyFlags(cfg, flags); err != nil {
		return nil, nil, err
	}
	if err := ApplyCatalog(cfg); err != nil {
		return nil, nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, flags, nil
}

// EnsureDataDirs creates the data directory structure and a default config
// file if they don't already exist. Safe to call on every startup.
func EnsureDataDirs(cfg *Config) error {
	dirs := []string{
		cfg.DataDir,
		cfg.NetworkDataDir(),
		cfg.MirrorDir(),
		cfg.LogsDir(),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating directory %s: %w", dir, err)
		}
	}
	if err := os.MkdirAll(cfg.KeystoreDir(), 0700); err != nil {
		return fmt.Errorf("creating directory %s: %w", cfg.KeystoreDir(), err)
	}

	configPath := cfg.ConfigFile()
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := WriteDefaultConfig(configPath, cfg.Network); err != nil {
			return fmt.Errorf("writing config file: %w", err)
		}
	}

	return nil
}
