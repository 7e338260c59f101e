// kakao-link logs in to a Kakao account and shares a message template into
// one or more chat rooms, the way the KakaoLink JavaScript SDK does from a
// browser.
//
// Run sequence:
//  1. Load configuration (JSON/YAML file or defaults) and apply flags.
//  2. Resolve the password (flag or OS keyring) and the template params.
//  3. Build the HTTP client (optionally through a proxy from a list).
//  4. Log in once, then send to every --room in order.
//
// The exit status is 1 if anything failed.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/afero"
	flag "github.com/spf13/pflag"
	"github.com/tidwall/jsonc"

	"github.com/cjh980402/kakao-link/client"
	"github.com/cjh980402/kakao-link/config"
	"github.com/cjh980402/kakao-link/credential"
	"github.com/cjh980402/kakao-link/logger"
	"github.com/cjh980402/kakao-link/metrics"
	"github.com/cjh980402/kakao-link/proxy"
	"github.com/cjh980402/kakao-link/schema"
	"github.com/cjh980402/kakao-link/session"
)

type options struct {
	configFile   string
	password     string
	useKeyring   bool
	savePassword bool
	rooms        []string
	params       string
	paramsFile   string
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := afero.NewOsFs()

	// ── Flags ──────────────────────────────────────────────────────────────
	var o options
	flags := flag.NewFlagSet("kakao-link", flag.ContinueOnError)
	flags.StringVarP(&o.configFile, "config", "c", "", "path to a JSON (comments allowed) or YAML config file")
	appKey := flags.String("app-key", "", "JavaScript app key (32 characters)")
	origin := flags.String("origin", "", "web domain registered for the app key, e.g. https://app.example")
	email := flags.StringP("email", "e", "", "account email")
	flags.StringVarP(&o.password, "password", "p", "", "account password (prefer --keyring)")
	flags.BoolVar(&o.useKeyring, "keyring", false, "read the password from the OS keyring when --password is not given")
	flags.BoolVar(&o.savePassword, "save-password", false, "store --password in the OS keyring for later --keyring runs")
	flags.StringSliceVarP(&o.rooms, "room", "r", nil, "chat room title to share into (repeatable)")
	template := flags.StringP("template", "t", "", "template type (validation action); default \"default\"")
	flags.StringVar(&o.params, "params", "", "template params as JSON; comments allowed")
	flags.StringVar(&o.paramsFile, "params-file", "", "file holding the template params")
	profile := flags.String("profile", "", "transport profile: standard or chrome")
	proxyURL := flags.String("proxy", "", "proxy URL")
	proxyFile := flags.String("proxy-file", "", "newline-delimited proxy list; one is picked")
	logLevel := flags.String("log-level", "", "debug, info, warn or error")
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	// ── Configuration ──────────────────────────────────────────────────────
	cfg := config.DefaultConfig()
	if o.configFile != "" {
		loaded, err := config.LoadConfigFS(fs, o.configFile)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		cfg = loaded
	}
	overlay := func(name string, dst *string, v string) {
		if flags.Changed(name) {
			*dst = v
		}
	}
	overlay("app-key", &cfg.AppKey, *appKey)
	overlay("origin", &cfg.Origin, *origin)
	overlay("email", &cfg.Email, *email)
	overlay("template", &cfg.TemplateType, *template)
	overlay("profile", &cfg.Profile, *profile)
	overlay("proxy", &cfg.Proxy, *proxyURL)
	overlay("proxy-file", &cfg.ProxyFile, *proxyFile)
	overlay("log-level", &cfg.LogLevel, *logLevel)

	// ── Logger ─────────────────────────────────────────────────────────────
	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	log := logger.New(level)

	if err := cfg.Validate(); err != nil {
		log.Errorf("invalid configuration: %v", err)
		return 1
	}
	if cfg.Email == "" {
		log.Error("an account email is required (--email or email in config)")
		return 1
	}
	if len(o.rooms) == 0 {
		log.Error("at least one --room is required")
		return 1
	}

	// ── Credentials and params ─────────────────────────────────────────────
	password, err := resolvePassword(o, cfg.Email, credential.NewStore(), log)
	if err != nil {
		log.Errorf("password: %v", err)
		return 1
	}
	params, err := loadParams(fs, o)
	if err != nil {
		log.Errorf("params: %v", err)
		return 1
	}

	// ── Proxy ──────────────────────────────────────────────────────────────
	proxyAddr := cfg.Proxy
	if cfg.ProxyFile != "" {
		var pool proxy.Pool
		if err := pool.Load(fs, cfg.ProxyFile); err != nil {
			log.Errorf("load proxies: %v", err)
			return 1
		}
		proxyAddr = pool.Next()
		log.Infof("loaded %d proxies from %q", pool.Count(), cfg.ProxyFile)
	}

	// ── HTTP client ────────────────────────────────────────────────────────
	hc, err := client.NewHTTPClient(client.Options{
		Proxy:               proxyAddr,
		Timeout:             cfg.RequestTimeout.Std(),
		Profile:             cfg.Profile,
		RateLimit:           cfg.RateLimit,
		RateBurst:           cfg.RateBurst,
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
		MaxConnsPerHost:     cfg.MaxConnsPerHost,
	})
	if err != nil {
		log.Errorf("build HTTP client: %v", err)
		return 1
	}

	// ── Session ────────────────────────────────────────────────────────────
	m := metrics.NewMetrics()
	opts := []session.Option{
		session.WithHTTPClient(hc),
		session.WithLogger(log),
		session.WithMetrics(m),
		session.WithSchemaWatcher(schema.NewWatcher()),
	}
	if cfg.TolerantBeacon {
		opts = append(opts, session.WithTolerantBeacon())
	}
	sm := session.NewManager(opts...)
	sc, err := sm.Get(cfg.AppKey, cfg.Origin)
	if err != nil {
		log.Errorf("create session: %v", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := sc.Login(ctx, cfg.Email, password); err != nil {
		log.With("kind", session.KindOf(err)).Errorf("login failed: %v", err)
		return 1
	}

	failed := 0
	for _, room := range o.rooms {
		if err := sc.Send(ctx, room, params, cfg.TemplateType); err != nil {
			failed++
			log.With("kind", session.KindOf(err)).With("room", room).Errorf("send failed: %v", err)
			if ctx.Err() != nil {
				break
			}
			continue
		}
		log.With("room", room).Info("message shared")
	}

	snap := m.Snapshot()
	log.Infof("done: requests %d | sends %d | failed %d | elapsed %s",
		snap.Requests, snap.Sends, snap.SendFailures, snap.Uptime.Round(time.Millisecond))
	if failed > 0 {
		return 1
	}
	return 0
}

// passwordStore is the part of credential.Store run needs.
type passwordStore interface {
	Get(email string) (string, error)
	Set(email, password string) error
}

// resolvePassword prefers --password and falls back to the keyring when
// --keyring is set.  With --save-password a flag-supplied password is
// written to the keyring.
func resolvePassword(o options, email string, store passwordStore, log *logger.Logger) (string, error) {
	if o.password != "" {
		if o.savePassword {
			if err := store.Set(email, o.password); err != nil {
				return "", err
			}
			log.Info("password saved to the OS keyring")
		}
		return o.password, nil
	}
	if o.useKeyring {
		return store.Get(email)
	}
	return "", errors.New("no password given; use --password or --keyring")
}

// loadParams returns the template params from --params or --params-file.
// Both accept JSON with comments and trailing commas.  With neither, the
// params are an empty object.
func loadParams(fs afero.Fs, o options) (json.RawMessage, error) {
	var raw []byte
	switch {
	case o.params != "" && o.paramsFile != "":
		return nil, errors.New("--params and --params-file are mutually exclusive")
	case o.params != "":
		raw = []byte(o.params)
	case o.paramsFile != "":
		b, err := afero.ReadFile(fs, o.paramsFile)
		if err != nil {
			return nil, fmt.Errorf("read %q: %w", o.paramsFile, err)
		}
		raw = b
	default:
		return json.RawMessage("{}"), nil
	}
	out := jsonc.ToJSON(raw)
	if !json.Valid(out) {
		return nil, errors.New("not valid JSON")
	}
	return json.RawMessage(out), nil
}
