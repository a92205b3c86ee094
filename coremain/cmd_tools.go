package coremain

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/pmkol/resolver-x/mlog"
	"github.com/pmkol/resolver-x/pkg/resolver"
)

func newResolveCmd() *cobra.Command {
	var (
		cfgPath  string
		name     string
		strategy string
		delay    time.Duration
		timeout  time.Duration
	)
	c := &cobra.Command{
		Use:   "resolve [-c config_file] [-r resolver] domain...",
		Short: "Resolve domains with a configured resolver and exit.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := resolver.ParseQueryStrategy(strategy)
			if err != nil {
				return err
			}
			cfg, err := loadFullConfig(cfgPath)
			if err != nil {
				return fmt.Errorf("fail to load config, %w", err)
			}
			s, err := NewServer(cfg, mlog.L())
			if err != nil {
				return err
			}
			defer s.closeResolvers()

			if len(name) == 0 {
				name = cfg.Resolvers[0].Name
			}
			r, ok := s.Resolver(name)
			if !ok {
				return fmt.Errorf("no resolver named %s", name)
			}
			return resolveAll(cmd.Context(), cmd.OutOrStdout(), r, args, st, delay, timeout)
		},
		SilenceUsage: true,
	}
	fs := c.Flags()
	fs.StringVarP(&cfgPath, "config", "c", "", "config file")
	fs.StringVarP(&name, "resolver", "r", "", "resolver name, default is the first one")
	fs.StringVarP(&strategy, "strategy", "s", "ipv4_first", "query strategy")
	fs.DurationVar(&delay, "resolution-delay", resolver.DefaultResolutionDelay, "time to wait for the preferred family")
	fs.DurationVar(&timeout, "timeout", 10*time.Second, "timeout of each domain")
	return c
}

// resolveAll resolves domains concurrently and prints one line per domain in
// argument order.
func resolveAll(
	ctx context.Context,
	out io.Writer,
	r *resolver.Resolver,
	domains []string,
	st resolver.QueryStrategy,
	delay, timeout time.Duration,
) error {
	lines := make([]string, len(domains))
	var g errgroup.Group
	g.SetLimit(16)
	for i, domain := range domains {
		g.Go(func() error {
			qCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			ips, err := resolver.ResolveAddrs(qCtx, r, domain, st, delay)
			if err != nil {
				lines[i] = fmt.Sprintf("%s: error: %v", domain, err)
				return nil
			}
			s := make([]string, 0, len(ips))
			for _, ip := range ips {
				s = append(s, ip.String())
			}
			lines[i] = fmt.Sprintf("%s: %s", domain, strings.Join(s, " "))
			return nil
		})
	}
	_ = g.Wait()
	for _, l := range lines {
		if _, err := fmt.Fprintln(out, l); err != nil {
			return err
		}
	}
	return nil
}

func newGenConfigCmd() *cobra.Command {
	var output string
	c := &cobra.Command{
		Use:   "gen-config [-o output_file]",
		Short: "Print an example config.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := yaml.Marshal(exampleConfig())
			if err != nil {
				return err
			}
			if len(output) > 0 {
				return os.WriteFile(output, b, 0o644)
			}
			_, err = cmd.OutOrStdout().Write(b)
			return err
		},
		SilenceUsage: true,
	}
	c.Flags().StringVarP(&output, "output", "o", "", "write to this file instead of stdout")
	return c
}

type exampleResolver struct {
	Name                   string     `yaml:"name"`
	InitialCacheCapacity   int        `yaml:"initial_cache_capacity,omitempty"`
	BatchRequestCount      int        `yaml:"batch_request_count,omitempty"`
	ProtectiveQueryTimeout string     `yaml:"protective_query_timeout,omitempty"`
	GracefulStopWait       string     `yaml:"graceful_stop_wait,omitempty"`
	Driver                 DriverSpec `yaml:"driver"`
}

type exampleCfg struct {
	Log       map[string]any    `yaml:"log"`
	API       APIConfig         `yaml:"api"`
	Resolvers []exampleResolver `yaml:"resolvers"`
}

func exampleConfig() *exampleCfg {
	ttl := map[string]any{
		"positive_min_ttl": resolver.DefaultTTLPolicy.PositiveMinTTL,
		"positive_max_ttl": resolver.DefaultTTLPolicy.PositiveMaxTTL,
		"positive_del_ttl": resolver.DefaultTTLPolicy.PositiveDelTTL,
		"negative_ttl":     resolver.DefaultTTLPolicy.NegativeTTL,
	}
	return &exampleCfg{
		Log: map[string]any{"level": "info", "file": "", "production": false},
		API: APIConfig{HTTP: "127.0.0.1:8080"},
		Resolvers: []exampleResolver{
			{
				Name:                   "default",
				InitialCacheCapacity:   10,
				BatchRequestCount:      16,
				ProtectiveQueryTimeout: "60s",
				GracefulStopWait:       "30s",
				Driver: DriverSpec{
					Type: "dns",
					Args: map[string]any{
						"upstreams": []map[string]any{
							{"addr": "udp://1.1.1.1:53", "trusted": true},
							{"addr": "tls://8.8.8.8:853", "server_name": "dns.google"},
						},
						"timeout": "5s",
						"ttl":     ttl,
					},
				},
			},
			{
				Name: "shared",
				Driver: DriverSpec{
					Type: "redis_cache",
					Args: map[string]any{
						"url":        "redis://127.0.0.1:6379/0",
						"key_prefix": "resolverd:",
						"inner": map[string]any{
							"type": "dns",
							"args": map[string]any{
								"upstreams": []map[string]any{{"addr": "udp://9.9.9.9:53", "trusted": true}},
							},
						},
					},
				},
			},
			{
				Name: "fixed",
				Driver: DriverSpec{
					Type: "static",
					Args: map[string]any{
						"hosts": []string{"router.lan 192.168.1.1 fd00::1"},
					},
				},
			},
		},
	}
}
