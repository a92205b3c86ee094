package coremain

import (
	"fmt"
	"sort"
	"sync"

	"github.com/go-viper/mapstructure/v2"
	"go.uber.org/zap"

	"github.com/pmkol/resolver-x/pkg/resolver"
)

// NewDriverFunc builds a driver config from decoded args.
type NewDriverFunc func(bd *BD, args any) (resolver.DriverConfig, error)

// NewArgsFunc returns a pointer the raw args are decoded into. The decoded
// pointer is handed to NewDriverFunc.
type NewArgsFunc func() any

type driverTypeInfo struct {
	newDriver NewDriverFunc
	newArgs   NewArgsFunc
}

var (
	driverTypesMu sync.RWMutex
	driverTypes   = make(map[string]driverTypeInfo)
)

// RegNewDriverFunc registers a driver type. It panics if typ is registered
// twice or initFunc is nil.
func RegNewDriverFunc(typ string, initFunc NewDriverFunc, argsType NewArgsFunc) {
	if initFunc == nil {
		panic(fmt.Sprintf("driver type %s has a nil init func", typ))
	}
	driverTypesMu.Lock()
	defer driverTypesMu.Unlock()
	if _, ok := driverTypes[typ]; ok {
		panic(fmt.Sprintf("driver type %s has been registered", typ))
	}
	driverTypes[typ] = driverTypeInfo{newDriver: initFunc, newArgs: argsType}
}

// DelDriverType removes a registered type. Only used by tests.
func DelDriverType(typ string) {
	driverTypesMu.Lock()
	defer driverTypesMu.Unlock()
	delete(driverTypes, typ)
}

// GetDriverTypes returns all registered driver types, sorted.
func GetDriverTypes() []string {
	driverTypesMu.RLock()
	defer driverTypesMu.RUnlock()
	types := make([]string, 0, len(driverTypes))
	for typ := range driverTypes {
		types = append(types, typ)
	}
	sort.Strings(types)
	return types
}

// BD is what every driver init func receives besides its args.
type BD struct {
	resolver string
	typ      string
	logger   *zap.Logger
}

func NewBD(resolverName, typ string, lg *zap.Logger) *BD {
	if lg == nil {
		lg = zap.NewNop()
	}
	return &BD{resolver: resolverName, typ: typ, logger: lg}
}

func (b *BD) Resolver() string { return b.resolver }

func (b *BD) Type() string { return b.typ }

// L returns the logger of the driver, named after its type.
func (b *BD) L() *zap.Logger { return b.logger }

// NewDriverConfig decodes spec and builds the driver config of its type.
func NewDriverConfig(resolverName string, spec *DriverSpec, lg *zap.Logger) (resolver.DriverConfig, error) {
	driverTypesMu.RLock()
	info, ok := driverTypes[spec.Type]
	driverTypesMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown driver type %s", spec.Type)
	}

	args := spec.Args
	if info.newArgs != nil {
		args = info.newArgs()
		if spec.Args != nil {
			if err := WeakDecode(spec.Args, args); err != nil {
				return nil, fmt.Errorf("unable to decode driver args of %s: %w", spec.Type, err)
			}
		}
	}

	if lg == nil {
		lg = zap.NewNop()
	}
	bd := NewBD(resolverName, spec.Type, lg.Named(spec.Type))
	dc, err := info.newDriver(bd, args)
	if err != nil {
		return nil, fmt.Errorf("failed to init driver %s: %w", spec.Type, err)
	}
	return dc, nil
}

// WeakDecode decodes in into output with weak typing, using yaml tags.
// Durations may be written as strings such as "5s".
func WeakDecode(in any, output any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		ErrorUnused:      true,
		Result:           output,
		TagName:          "yaml",
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return err
	}
	return decoder.Decode(in)
}
