package coremain

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pmkol/resolver-x/pkg/resolver"
)

func Test_loadFullConfig(t *testing.T) {
	dir := t.TempDir()
	sub := writeFile(t, dir, "sub.yaml", `
resolvers:
  - name: sub
    driver:
      type: coremain_test
      args:
        addr: "2001:db8::1"
`)
	cfgFile := writeFile(t, dir, "config.yaml", fmt.Sprintf(`
log:
  level: error
include: [%s]
api:
  http: 127.0.0.1:0
resolvers:
  - name: main
    batch_request_count: 4
    protective_query_timeout: 2s
    driver:
      type: coremain_test
      args:
        addr: 192.0.2.1
`, sub))

	cfg, err := loadFullConfig(cfgFile)
	require.NoError(t, err)
	assert.Equal(t, "error", cfg.Log.Level)
	assert.Equal(t, "127.0.0.1:0", cfg.API.HTTP)
	require.Len(t, cfg.Resolvers, 2)
	assert.Equal(t, "sub", cfg.Resolvers[0].Name)
	assert.Equal(t, "main", cfg.Resolvers[1].Name)
	assert.Equal(t, 4, cfg.Resolvers[1].BatchRequestCount)
	assert.Equal(t, 2*time.Second, cfg.Resolvers[1].ProtectiveQueryTimeout)
	require.NoError(t, cfg.validate())

	dc, err := NewDriverConfig("main", &cfg.Resolvers[1].Driver, nil)
	require.NoError(t, err)
	assert.Equal(t, "192.0.2.1", dc.(*testDriver).addr.String())
}

func Test_mergeInclude_loop(t *testing.T) {
	dir := t.TempDir()
	p := dir + "/loop.yaml"
	writeFile(t, dir, "loop.yaml", fmt.Sprintf("include: [%s]\n", p))
	_, err := loadFullConfig(p)
	assert.ErrorContains(t, err, "maximum include depth")
}

func Test_loadConfig_errors(t *testing.T) {
	dir := t.TempDir()
	_, _, err := loadConfig(dir + "/nope.yaml")
	assert.Error(t, err)

	p := writeFile(t, dir, "unknown.yaml", "unknown_key: 1\n")
	_, _, err = loadConfig(p)
	assert.Error(t, err)
}

func Test_Config_validate(t *testing.T) {
	ok := testResolverConfig("a", "192.0.2.1")
	tests := []struct {
		name string
		rcs  []ResolverConfig
	}{
		{"empty", nil},
		{"no name", []ResolverConfig{testResolverConfig("", "192.0.2.1")}},
		{"duplicated", []ResolverConfig{ok, ok}},
		{"no driver", []ResolverConfig{{Name: "b"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, (&Config{Resolvers: tt.rcs}).validate())
		})
	}
	assert.NoError(t, (&Config{Resolvers: []ResolverConfig{ok}}).validate())
}

func Test_NewDriverConfig(t *testing.T) {
	_, err := NewDriverConfig("r", &DriverSpec{Type: "no_such_type"}, nil)
	assert.ErrorContains(t, err, "unknown driver type")

	_, err = NewDriverConfig("r", &DriverSpec{Type: testDriverType, Args: map[string]any{"addr": "192.0.2.1", "extra": 1}}, nil)
	assert.ErrorContains(t, err, "unable to decode")

	_, err = NewDriverConfig("r", &DriverSpec{Type: testDriverType, Args: map[string]any{"fail": "true"}}, nil)
	assert.ErrorContains(t, err, "init failed")

	assert.Contains(t, GetDriverTypes(), testDriverType)
	assert.Panics(t, func() { RegNewDriverFunc(testDriverType, nil, nil) })
	assert.Panics(t, func() {
		RegNewDriverFunc(testDriverType, func(*BD, any) (resolver.DriverConfig, error) { return nil, nil }, nil)
	})

	RegNewDriverFunc("coremain_tmp", func(*BD, any) (resolver.DriverConfig, error) { return nil, nil }, nil)
	DelDriverType("coremain_tmp")
	assert.NotContains(t, GetDriverTypes(), "coremain_tmp")
}

func Test_WeakDecode(t *testing.T) {
	var out struct {
		Wait  time.Duration `yaml:"wait"`
		Tags  []string      `yaml:"tags"`
		Count int           `yaml:"count"`
	}
	err := WeakDecode(map[string]any{"wait": "1m30s", "tags": "a,b", "count": "3"}, &out)
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, out.Wait)
	assert.Equal(t, []string{"a", "b"}, out.Tags)
	assert.Equal(t, 3, out.Count)
}
