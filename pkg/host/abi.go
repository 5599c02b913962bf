package host

import (
	"context"

	"github.com/tetratelabs/wazero/api"

	"github.com/nacht-org/quelle-sub001/pkg/quelleerr"
)

// The ABI exchanges byte strings with the guest as a packed uint64: the
// high 32 bits are a linear-memory offset, the low 32 bits a length. Guests
// allocate their own return buffers and exchange ownership of argument
// buffers via the exported "alloc"/"dealloc" pair.

func packPtrLen(ptr, length uint32) uint64 {
	return (uint64(ptr) << 32) | uint64(length)
}

func unpackPtrLen(packed uint64) (ptr, length uint32) {
	return uint32(packed >> 32), uint32(packed)
}

// writeToGuest allocates length(data) bytes inside mod via its exported
// "alloc" function and copies data into that region, returning the pointer.
func writeToGuest(ctx context.Context, mod api.Module, data []byte) (uint32, error) {
	alloc := mod.ExportedFunction("alloc")
	if alloc == nil {
		return 0, quelleerr.New(quelleerr.ExtensionABIViolation, "guest_missing_alloc")
	}
	results, err := alloc.Call(ctx, uint64(len(data)))
	if err != nil {
		return 0, quelleerr.Wrap(quelleerr.ExtensionABIViolation, "guest_alloc_call", err)
	}
	ptr := uint32(results[0])
	if len(data) > 0 && !mod.Memory().Write(ptr, data) {
		return 0, quelleerr.New(quelleerr.ExtensionABIViolation, "guest_memory_write_out_of_range")
	}
	return ptr, nil
}

// readFromGuest copies length bytes out of mod's linear memory at ptr.
func readFromGuest(mod api.Module, ptr, length uint32) ([]byte, error) {
	if length == 0 {
		return nil, nil
	}
	data, ok := mod.Memory().Read(ptr, length)
	if !ok {
		return nil, quelleerr.New(quelleerr.ExtensionABIViolation, "guest_memory_read_out_of_range")
	}
	// Memory.Read returns a view into wazero's backing memory; copy it out
	// since the guest may reuse or free that region once the call returns.
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func freeInGuest(ctx context.Context, mod api.Module, ptr, length uint32) {
	dealloc := mod.ExportedFunction("dealloc")
	if dealloc == nil || length == 0 {
		return
	}
	_, _ = dealloc.Call(ctx, uint64(ptr), uint64(length))
}

// callWithBytes writes payload into the guest, invokes funcName(ptr, len),
// unpacks the returned (ptr, len), reads the result bytes, and frees both
// the argument and result buffers.
func callWithBytes(ctx context.Context, mod api.Module, funcName string, payload []byte) ([]byte, error) {
	fn := mod.ExportedFunction(funcName)
	if fn == nil {
		return nil, quelleerr.New(quelleerr.ExtensionABIViolation, "guest_missing_export").WithPath(funcName)
	}

	argPtr, err := writeToGuest(ctx, mod, payload)
	if err != nil {
		return nil, err
	}
	defer freeInGuest(ctx, mod, argPtr, uint32(len(payload)))

	results, err := fn.Call(ctx, uint64(argPtr), uint64(len(payload)))
	if err != nil {
		return nil, quelleerr.Wrap(quelleerr.ExtensionTrapped, "guest_call", err).WithPath(funcName)
	}

	resPtr, resLen := unpackPtrLen(results[0])
	data, err := readFromGuest(mod, resPtr, resLen)
	if err != nil {
		return nil, err
	}
	freeInGuest(ctx, mod, resPtr, resLen)
	return data, nil
}

// callNoArgs is callWithBytes for zero-argument guest exports like meta().
func callNoArgs(ctx context.Context, mod api.Module, funcName string) ([]byte, error) {
	fn := mod.ExportedFunction(funcName)
	if fn == nil {
		return nil, quelleerr.New(quelleerr.ExtensionABIViolation, "guest_missing_export").WithPath(funcName)
	}
	results, err := fn.Call(ctx)
	if err != nil {
		return nil, quelleerr.Wrap(quelleerr.ExtensionTrapped, "guest_call", err).WithPath(funcName)
	}
	resPtr, resLen := unpackPtrLen(results[0])
	data, err := readFromGuest(mod, resPtr, resLen)
	if err != nil {
		return nil, err
	}
	freeInGuest(ctx, mod, resPtr, resLen)
	return data, nil
}
