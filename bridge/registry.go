package bridge

import (
	"sort"
	"strconv"
	"sync"

	"go.uber.org/zap"

	ffibridge "github.com/wippyai/ffi-bridge"
	"github.com/wippyai/ffi-bridge/errors"
	"github.com/wippyai/ffi-bridge/layout"
	"github.com/wippyai/ffi-bridge/types"
)

// Registry owns the type table, the struct arena and the function map.
// It is safe for concurrent use.
type Registry struct {
	loader ffibridge.Loader
	caller ffibridge.CallInterface
	layout ffibridge.LayoutPrimitive
	log    *zap.Logger
	table  *types.Table
	funcs  map[string]*Function
	mu     sync.RWMutex
}

// Option configures a Registry.
type Option func(*Registry)

// WithLayout sets the layout primitive used by BuildStruct. It defaults to the
// loader when the loader also implements LayoutPrimitive, and to layout.Native
// otherwise.
func WithLayout(p ffibridge.LayoutPrimitive) Option {
	return func(r *Registry) {
		r.layout = p
	}
}

// WithCallInterface sets the call interface used to prepare functions.
// It defaults to the loader when the loader also implements CallInterface.
func WithCallInterface(c ffibridge.CallInterface) Option {
	return func(r *Registry) {
		r.caller = c
	}
}

// WithLogger sets the registry's logger. Defaults to the package Logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Registry) {
		r.log = l
	}
}

// New creates a registry whose function names resolve through loader.
// Options override the call interface and layout primitive taken from loader.
func New(loader ffibridge.Loader, opts ...Option) *Registry {
	r := &Registry{
		loader: loader,
		layout: layout.Native{},
		table:  types.NewTable(),
		funcs:  make(map[string]*Function),
	}
	if c, ok := loader.(ffibridge.CallInterface); ok {
		r.caller = c
	}
	if p, ok := loader.(ffibridge.LayoutPrimitive); ok {
		r.layout = p
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.log == nil {
		r.log = Logger()
	}
	return r
}

// BuildStruct registers a struct whose fields have the given type codes, in
// declared order, and returns its new type code. Every code must already be
// registered. Building the same shape twice yields two distinct codes.
func (r *Registry) BuildStruct(fields []types.Code) (types.Code, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	children, err := r.table.ResolveAll(fields)
	if err != nil {
		return 0, err
	}

	infos := make([]types.Info, len(children))
	for i, c := range children {
		if c.Kind() == types.KindVoid {
			return 0, errors.New(errors.PhaseRegister, errors.KindInvalidInput).
				Path("field" + strconv.Itoa(i)).
				NativeType("void").
				Detail("void cannot be a struct field").
				Build()
		}
		infos[i] = r.table.Info(c)
	}

	offsets, info, err := r.layout.StructLayout(infos)
	if err != nil {
		return 0, errors.Layout("compute struct offsets", err)
	}
	if len(offsets) != len(children) {
		return 0, errors.Layout("layout primitive returned "+strconv.Itoa(len(offsets))+
			" offsets for "+strconv.Itoa(len(children))+" fields", nil)
	}

	code := r.table.AddStruct(types.Struct{
		Children: children,
		Offsets:  offsets,
		Info:     info,
	})

	r.log.Debug("struct registered",
		zap.Uint32("code", uint32(code)),
		zap.Int("fields", len(children)),
		zap.Uint32("size", info.Size),
		zap.Uint32("align", info.Align))

	return code, nil
}

// BuildFunction resolves name through the loader and registers it with the
// given argument and return types. A later registration under the same name
// replaces the earlier one.
func (r *Registry) BuildFunction(name string, args []types.Code, ret types.Code) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	argDescs, err := r.table.ResolveAll(args)
	if err != nil {
		return err
	}
	for i, d := range argDescs {
		if d.Kind() == types.KindVoid {
			return errors.New(errors.PhaseRegister, errors.KindInvalidInput).
				Path(name, "arg"+strconv.Itoa(i)).
				NativeType("void").
				Detail("void cannot be an argument").
				Build()
		}
	}
	retDesc, err := r.table.Resolve(ret)
	if err != nil {
		return err
	}

	if r.loader == nil {
		return errors.NotInitialized(errors.PhaseResolve, "library loader")
	}
	sym, err := r.loader.Resolve(name)
	if err != nil {
		if errors.HasKind(err, errors.KindResolution) {
			return err
		}
		return errors.Resolution(name, err)
	}

	fn := &Function{
		Name:   name,
		Args:   argDescs,
		Return: retDesc,
		Symbol: sym,
		sig:    r.signature(argDescs, retDesc),
	}

	if _, exists := r.funcs[name]; exists {
		r.log.Debug("function replaced", zap.String("name", name))
	}
	r.funcs[name] = fn

	r.log.Debug("function registered",
		zap.String("name", name),
		zap.Stringer("signature", fn.sig))

	return nil
}

func (r *Registry) signature(args []types.Descriptor, ret types.Descriptor) *ffibridge.Signature {
	sig := &ffibridge.Signature{Params: make([]ffibridge.Param, len(args))}
	for i, d := range args {
		sig.Params[i] = r.param(d)
	}
	sig.Result = r.param(ret)
	return sig
}

func (r *Registry) param(d types.Descriptor) ffibridge.Param {
	return ffibridge.Param{
		Type:   r.table.Layout(d),
		Leaves: layout.Schedule(r.table, d),
	}
}

// Function returns the function registered under name.
func (r *Registry) Function(name string) (*Function, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.funcs[name]
	return fn, ok
}

// Functions returns the registered function names in sorted order.
func (r *Registry) Functions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.funcs))
	for name := range r.funcs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Describe returns the resolved layout of a type code.
func (r *Registry) Describe(code types.Code) (types.Layout, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, err := r.table.Resolve(code)
	if err != nil {
		return types.Layout{}, err
	}
	return r.table.Layout(d), nil
}

// FlattenOffsets returns the flattened leaf offsets of a struct type code.
// The boolean is false for scalar codes.
func (r *Registry) FlattenOffsets(code types.Code) ([]uint32, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, err := r.table.Resolve(code)
	if err != nil {
		return nil, false, err
	}
	offs, ok := layout.FlattenOffsets(r.table, d)
	return offs, ok, nil
}

// TypeCount returns the number of registered type codes.
func (r *Registry) TypeCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.table.Len()
}

// SetTarget opens a call session for the named function.
func (r *Registry) SetTarget(name string) (*Session, error) {
	r.mu.RLock()
	fn, ok := r.funcs[name]
	caller := r.caller
	r.mu.RUnlock()

	if !ok {
		return nil, errors.NotFound(errors.PhaseTarget, "function", name)
	}

	s := newSession(fn, caller, r.log)

	r.log.Debug("call target set",
		zap.String("name", name),
		zap.Int("arg_bytes", len(s.writeBuf)),
		zap.Int("ret_bytes", len(s.readBuf)),
		zap.Int("write_slots", len(s.writeLeaves)),
		zap.Int("read_slots", len(s.readLeaves)))

	return s, nil
}
