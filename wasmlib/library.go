package wasmlib

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"
	"unsafe"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"go.uber.org/zap"

	ffibridge "github.com/wippyai/ffi-bridge"
	"github.com/wippyai/ffi-bridge/errors"
	"github.com/wippyai/ffi-bridge/types"
)

// Config holds configuration for opening a module.
type Config struct {
	// Name is the module instance name. Empty means anonymous.
	Name string

	// MemoryLimitPages caps linear memory in 64KB pages. 0 keeps the
	// wazero default.
	MemoryLimitPages uint32

	// EnableWASI instantiates wasi_snapshot_preview1 before the module so
	// modules built for WASI can start.
	EnableWASI bool
}

// Library is an instantiated wasm module.
type Library struct {
	runtime wazero.Runtime
	module  api.Module
	name    string

	// mu serializes calls into module and guards closed.
	mu     sync.Mutex
	closed bool
}

// Symbol is an exported wasm function.
type Symbol struct {
	fn   api.Function
	name string
}

// Name returns the export name.
func (s *Symbol) Name() string { return s.name }

// Open compiles and instantiates a wasm binary with default configuration.
func Open(ctx context.Context, wasm []byte) (*Library, error) {
	return OpenWithConfig(ctx, wasm, nil)
}

// OpenFile reads and opens the wasm binary at path.
func OpenFile(ctx context.Context, path string, cfg *Config) (*Library, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Load(fmt.Sprintf("read %s", path), err)
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Name == "" {
		cfg.Name = path
	}
	return OpenWithConfig(ctx, data, cfg)
}

// OpenWithConfig compiles and instantiates a wasm binary.
func OpenWithConfig(ctx context.Context, wasm []byte, cfg *Config) (*Library, error) {
	if cfg == nil {
		cfg = &Config{}
	}

	runtimeCfg := wazero.NewRuntimeConfig().WithCloseOnContextDone(true)
	if cfg.MemoryLimitPages > 0 {
		runtimeCfg = runtimeCfg.WithMemoryLimitPages(cfg.MemoryLimitPages)
	}
	rt := wazero.NewRuntimeWithConfig(ctx, runtimeCfg)

	if cfg.EnableWASI {
		if _, err := wasi_snapshot_preview1.Instantiate(ctx, rt); err != nil {
			_ = rt.Close(ctx)
			return nil, errors.Load("instantiate WASI", err)
		}
	}

	compiled, err := rt.CompileModule(ctx, wasm)
	if err != nil {
		_ = rt.Close(ctx)
		return nil, errors.Load("compile module", err)
	}

	modCfg := wazero.NewModuleConfig().WithName(cfg.Name)
	if cfg.EnableWASI {
		modCfg = modCfg.WithStdout(os.Stdout).WithStderr(os.Stderr)
	}
	mod, err := rt.InstantiateModule(ctx, compiled, modCfg)
	if err != nil {
		_ = rt.Close(ctx)
		return nil, errors.Load("instantiate module", err)
	}

	Logger().Debug("module instantiated",
		zap.String("name", cfg.Name),
		zap.Int("exports", len(compiled.ExportedFunctions())))

	return &Library{runtime: rt, module: mod, name: cfg.Name}, nil
}

// Exports lists the names of exported functions in sorted order.
func (l *Library) Exports() []string {
	defs := l.module.ExportedFunctionDefinitions()
	names := make([]string, 0, len(defs))
	for name := range defs {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Resolve looks up an exported function.
func (l *Library) Resolve(name string) (ffibridge.Symbol, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil, errors.Resolution(name, errors.NotInitialized(errors.PhaseResolve, "module "+l.name))
	}
	fn := l.module.ExportedFunction(name)
	if fn == nil {
		return nil, errors.Resolution(name, fmt.Errorf("module has no exported function %q", name))
	}
	return &Symbol{name: name, fn: fn}, nil
}

// Prepare lowers sig and checks it against the export's declared type.
func (l *Library) Prepare(sym ffibridge.Symbol, sig *ffibridge.Signature) (ffibridge.Callable, error) {
	s, ok := sym.(*Symbol)
	if !ok {
		return nil, errors.InvalidInput(errors.PhaseInvoke, fmt.Sprintf("symbol %q was not resolved by wasmlib", sym.Name()))
	}

	var params []api.ValueType
	var paramLeaves []leafRef
	for i, p := range sig.Params {
		for _, leaf := range p.Leaves {
			params = append(params, lower(leaf.Kind))
			paramLeaves = append(paramLeaves, leafRef{arg: i, leaf: leaf})
		}
	}
	results := make([]api.ValueType, len(sig.Result.Leaves))
	for i, leaf := range sig.Result.Leaves {
		results[i] = lower(leaf.Kind)
	}

	def := s.fn.Definition()
	if !slices.Equal(params, def.ParamTypes()) || !slices.Equal(results, def.ResultTypes()) {
		return nil, errors.New(errors.PhaseInvoke, errors.KindTypeMismatch).
			Path(s.name).
			GoType(funcTypeString(params, results)).
			NativeType(funcTypeString(def.ParamTypes(), def.ResultTypes())).
			Detail("signature %s does not lower to the exported type", sig).
			Build()
	}

	Logger().Debug("export bound",
		zap.String("name", s.name),
		zap.Stringer("signature", sig))

	return &callable{
		lib:       l,
		fn:        s.fn,
		name:      s.name,
		params:    paramLeaves,
		results:   sig.Result.Leaves,
		stackSize: max(len(params), len(results)),
	}, nil
}

// Close releases the runtime and every module in it.
func (l *Library) Close(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	if err := l.runtime.Close(ctx); err != nil {
		return errors.Load("close runtime", err)
	}
	return nil
}

type leafRef struct {
	leaf types.Leaf
	arg  int
}

type callable struct {
	lib       *Library
	fn        api.Function
	name      string
	params    []leafRef
	results   []types.Leaf
	stackSize int
}

func (c *callable) Call(ctx context.Context, ret unsafe.Pointer, args []unsafe.Pointer) error {
	stack := make([]uint64, c.stackSize)
	for i, ref := range c.params {
		if ref.arg >= len(args) {
			return fmt.Errorf("%s: argument %d missing", c.name, ref.arg)
		}
		stack[i] = load(unsafe.Add(args[ref.arg], ref.leaf.Offset), ref.leaf.Kind)
	}

	c.lib.mu.Lock()
	if c.lib.closed {
		c.lib.mu.Unlock()
		return errors.NotInitialized(errors.PhaseInvoke, "module "+c.lib.name)
	}
	err := c.fn.CallWithStack(ctx, stack)
	c.lib.mu.Unlock()
	if err != nil {
		return fmt.Errorf("wasm call failed: %w", err)
	}

	for i, leaf := range c.results {
		store(unsafe.Add(ret, leaf.Offset), leaf.Kind, stack[i])
	}
	return nil
}

func lower(k types.Kind) api.ValueType {
	switch k {
	case types.KindU64, types.KindI64, types.KindPointer:
		return api.ValueTypeI64
	case types.KindF32:
		return api.ValueTypeF32
	case types.KindF64:
		return api.ValueTypeF64
	default:
		return api.ValueTypeI32
	}
}

// load reads one leaf and encodes it as a wasm stack value. Signed narrow
// integers are sign-extended to i32.
func load(p unsafe.Pointer, k types.Kind) uint64 {
	switch k {
	case types.KindU8:
		return uint64(*(*uint8)(p))
	case types.KindI8:
		return api.EncodeI32(int32(*(*int8)(p)))
	case types.KindU16:
		return uint64(*(*uint16)(p))
	case types.KindI16:
		return api.EncodeI32(int32(*(*int16)(p)))
	case types.KindU32:
		return api.EncodeU32(*(*uint32)(p))
	case types.KindI32:
		return api.EncodeI32(*(*int32)(p))
	case types.KindU64:
		return *(*uint64)(p)
	case types.KindI64:
		return api.EncodeI64(*(*int64)(p))
	case types.KindF32:
		return api.EncodeF32(*(*float32)(p))
	case types.KindF64:
		return api.EncodeF64(*(*float64)(p))
	case types.KindPointer:
		return uint64(*(*uintptr)(p))
	}
	return 0
}

// store truncates a wasm stack value to the leaf width.
func store(p unsafe.Pointer, k types.Kind, v uint64) {
	switch k {
	case types.KindU8, types.KindI8:
		*(*uint8)(p) = uint8(v)
	case types.KindU16, types.KindI16:
		*(*uint16)(p) = uint16(v)
	case types.KindU32, types.KindI32, types.KindF32:
		*(*uint32)(p) = uint32(v)
	case types.KindU64, types.KindI64, types.KindF64:
		*(*uint64)(p) = v
	case types.KindPointer:
		*(*uintptr)(p) = uintptr(v)
	}
}

func funcTypeString(params, results []api.ValueType) string {
	var b strings.Builder
	b.WriteByte('(')
	for i, t := range params {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(api.ValueTypeName(t))
	}
	b.WriteString(") -> (")
	for i, t := range results {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(api.ValueTypeName(t))
	}
	b.WriteByte(')')
	return b.String()
}
