package script

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/wippyai/ffi-bridge/bridge"
	"github.com/wippyai/ffi-bridge/errors"
	"github.com/wippyai/ffi-bridge/types"
)

// Result is the flattened return value of one call.
type Result struct {
	Function string
	Kinds    []types.Kind
	Values   []any
}

func (r Result) String() string {
	var b strings.Builder
	b.WriteString(r.Function)
	b.WriteString(" -> ")
	if len(r.Values) == 0 {
		b.WriteString("void")
		return b.String()
	}
	b.WriteByte('[')
	for i, v := range r.Values {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%v:%s", v, r.Kinds[i])
	}
	b.WriteByte(']')
	return b.String()
}

// Register builds every struct and function of s in reg and returns the type
// code bound to each struct name.
func (s *Script) Register(reg *bridge.Registry) (map[string]types.Code, error) {
	named := make(map[string]types.Code, len(s.Structs))

	for _, st := range s.Structs {
		if _, dup := named[st.Name]; dup {
			return nil, errors.InvalidInput(errors.PhaseConfig, fmt.Sprintf("struct %q declared twice", st.Name))
		}
		fields, err := resolveNames(named, st.Fields)
		if err != nil {
			return nil, err
		}
		code, err := reg.BuildStruct(fields)
		if err != nil {
			return nil, err
		}
		named[st.Name] = code
	}

	for _, fn := range s.Functions {
		args, err := resolveNames(named, fn.Args)
		if err != nil {
			return nil, err
		}
		ret := types.CodeVoid
		if fn.Returns != "" {
			if ret, err = resolveName(named, fn.Returns); err != nil {
				return nil, err
			}
		}
		if err := reg.BuildFunction(fn.Name, args, ret); err != nil {
			return nil, err
		}
	}
	return named, nil
}

// Run registers s and performs its calls in order.
func (s *Script) Run(ctx context.Context, reg *bridge.Registry) ([]Result, error) {
	if _, err := s.Register(reg); err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(s.Calls))
	for i, c := range s.Calls {
		sess, err := reg.SetTarget(c.Function)
		if err != nil {
			return results, err
		}
		res, err := Invoke(ctx, sess, c.Args)
		if err != nil {
			return results, fmt.Errorf("call %d: %w", i, err)
		}
		bridge.Logger().Debug("script call", zap.Int("index", i), zap.Stringer("result", res))
		results = append(results, res)
	}
	return results, nil
}

// Invoke writes args to the session's leaves, calls, and reads every result
// leaf.
func Invoke(ctx context.Context, sess *bridge.Session, args []any) (Result, error) {
	kinds := sess.WriteKinds()
	name := sess.Function().Name
	if len(args) != len(kinds) {
		return Result{}, errors.New(errors.PhaseMarshal, errors.KindInvalidInput).
			Path(name).
			Detail("got %d argument values, signature has %d leaves", len(args), len(kinds)).
			Build()
	}

	sess.Reset()
	for i, k := range kinds {
		if err := WriteValue(sess, k, args[i]); err != nil {
			return Result{}, err
		}
	}
	if err := sess.Call(ctx); err != nil {
		return Result{}, err
	}

	res := Result{Function: name, Kinds: sess.ReadKinds()}
	for _, k := range res.Kinds {
		v, err := ReadValue(sess, k)
		if err != nil {
			return Result{}, err
		}
		res.Values = append(res.Values, v)
	}
	return res, nil
}

// WriteValue converts v to kind k and writes it at the session's write
// cursor. v may be any Go number or a numeric string.
func WriteValue(s *bridge.Session, k types.Kind, v any) error {
	text := strings.TrimSpace(fmt.Sprint(v))
	bad := func(err error) error {
		return errors.New(errors.PhaseMarshal, errors.KindInvalidInput).
			Path(s.Function().Name).
			NativeType(k.String()).
			Value(v).
			Detail("cannot convert %q", text).
			Cause(err).
			Build()
	}

	switch k {
	case types.KindU8, types.KindU16, types.KindU32, types.KindU64, types.KindPointer:
		n, err := strconv.ParseUint(text, 0, int(k.Info().Size)*8)
		if err != nil {
			return bad(err)
		}
		switch k {
		case types.KindU8:
			return bridge.Write(s, uint8(n))
		case types.KindU16:
			return bridge.Write(s, uint16(n))
		case types.KindU32:
			return bridge.Write(s, uint32(n))
		case types.KindU64:
			return bridge.Write(s, n)
		default:
			return bridge.Write(s, uintptr(n))
		}
	case types.KindI8, types.KindI16, types.KindI32, types.KindI64:
		n, err := strconv.ParseInt(text, 0, int(k.Info().Size)*8)
		if err != nil {
			return bad(err)
		}
		switch k {
		case types.KindI8:
			return bridge.Write(s, int8(n))
		case types.KindI16:
			return bridge.Write(s, int16(n))
		case types.KindI32:
			return bridge.Write(s, int32(n))
		default:
			return bridge.Write(s, n)
		}
	case types.KindF32:
		f, err := strconv.ParseFloat(text, 32)
		if err != nil {
			return bad(err)
		}
		return bridge.Write(s, float32(f))
	case types.KindF64:
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return bad(err)
		}
		return bridge.Write(s, f)
	}
	return errors.Unsupported(errors.PhaseMarshal, "write of "+k.String())
}

// ReadValue reads one value of kind k at the session's read cursor.
func ReadValue(s *bridge.Session, k types.Kind) (any, error) {
	switch k {
	case types.KindU8:
		return bridge.Read[uint8](s)
	case types.KindU16:
		return bridge.Read[uint16](s)
	case types.KindU32:
		return bridge.Read[uint32](s)
	case types.KindU64:
		return bridge.Read[uint64](s)
	case types.KindI8:
		return bridge.Read[int8](s)
	case types.KindI16:
		return bridge.Read[int16](s)
	case types.KindI32:
		return bridge.Read[int32](s)
	case types.KindI64:
		return bridge.Read[int64](s)
	case types.KindF32:
		return bridge.Read[float32](s)
	case types.KindF64:
		return bridge.Read[float64](s)
	case types.KindPointer:
		return bridge.Read[uintptr](s)
	}
	return nil, errors.Unsupported(errors.PhaseMarshal, "read of "+k.String())
}

func resolveName(named map[string]types.Code, name string) (types.Code, error) {
	if k, ok := types.ParseKind(name); ok {
		return types.Code(k), nil
	}
	if code, ok := named[name]; ok {
		return code, nil
	}
	return 0, errors.NotFound(errors.PhaseConfig, "type", name)
}

func resolveNames(named map[string]types.Code, names []string) ([]types.Code, error) {
	codes := make([]types.Code, len(names))
	for i, n := range names {
		c, err := resolveName(named, n)
		if err != nil {
			return nil, err
		}
		codes[i] = c
	}
	return codes, nil
}
