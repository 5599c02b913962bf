package host

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"

	"github.com/nacht-org/quelle-sub001/internal/logger"
	"github.com/nacht-org/quelle-sub001/pkg/httpx"
	"github.com/nacht-org/quelle-sub001/pkg/quelleerr"
)

// hostModuleName is the import module name every guest's http_execute
// import is bound under.
const hostModuleName = "quelle"

// Host compiles and runs extension WASM components under wazero. One Host
// typically lives for the process lifetime; it owns the wazero runtime and
// the compiled-module cache, both safe for concurrent use.
type Host struct {
	runtime  wazero.Runtime
	executor httpx.Executor

	mu       sync.Mutex
	compiled map[string]wazero.CompiledModule // keyed by the caller-supplied cache key

	instanceSeq atomic.Uint64
}

// NewHost constructs a Host whose guests issue HTTP through executor
// (typically the Caching Executor). The wazero runtime and WASI preview1
// host functions are set up once here.
func NewHost(ctx context.Context, executor httpx.Executor) (*Host, error) {
	rt := wazero.NewRuntime(ctx)
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, rt); err != nil {
		return nil, quelleerr.Wrap(quelleerr.IO, "instantiate_wasi", err)
	}

	h := &Host{runtime: rt, executor: executor, compiled: make(map[string]wazero.CompiledModule)}
	if _, err := h.buildHostModule(ctx); err != nil {
		return nil, err
	}
	return h, nil
}

// buildHostModule registers the single capability guests import: http_execute.
func (h *Host) buildHostModule(ctx context.Context) (api.Module, error) {
	builder := h.runtime.NewHostModuleBuilder(hostModuleName)
	builder.NewFunctionBuilder().
		WithFunc(h.httpExecute).
		Export("http_execute")
	mod, err := builder.Instantiate(ctx)
	if err != nil {
		return nil, quelleerr.Wrap(quelleerr.IO, "instantiate_host_module", err)
	}
	return mod, nil
}

// httpExecute is the host function bound to the guest's http.execute
// import: read a JSON httpx.Request from the calling module's memory,
// execute it, and write back a JSON result envelope.
func (h *Host) httpExecute(ctx context.Context, mod api.Module, ptr, length uint32) uint64 {
	reqBytes, err := readFromGuest(mod, ptr, length)
	if err != nil {
		return h.writeExecuteError(ctx, mod, err.Error())
	}

	var req httpx.Request
	if err := json.Unmarshal(reqBytes, &req); err != nil {
		return h.writeExecuteError(ctx, mod, "malformed request: "+err.Error())
	}

	resp, err := h.executor.Execute(ctx, req)
	envelope := struct {
		Response *httpx.Response      `json:"response,omitempty"`
		Err      *httpx.ResponseError `json:"error,omitempty"`
	}{}
	if err != nil {
		if respErr, ok := err.(*httpx.ResponseError); ok {
			envelope.Err = respErr
		} else {
			envelope.Err = &httpx.ResponseError{URL: req.URL, Message: err.Error()}
		}
	} else {
		envelope.Response = &resp
	}

	data, marshalErr := json.Marshal(envelope)
	if marshalErr != nil {
		return h.writeExecuteError(ctx, mod, "could not marshal response: "+marshalErr.Error())
	}
	resPtr, writeErr := writeToGuest(ctx, mod, data)
	if writeErr != nil {
		logger.Warn("could not write http_execute result into guest memory", logger.Err(writeErr))
		return packPtrLen(0, 0)
	}
	return packPtrLen(resPtr, uint32(len(data)))
}

func (h *Host) writeExecuteError(ctx context.Context, mod api.Module, message string) uint64 {
	envelope := struct {
		Err *httpx.ResponseError `json:"error"`
	}{Err: &httpx.ResponseError{Message: message}}
	data, _ := json.Marshal(envelope)
	ptr, err := writeToGuest(ctx, mod, data)
	if err != nil {
		return packPtrLen(0, 0)
	}
	return packPtrLen(ptr, uint32(len(data)))
}

// CompileExtension compiles wasm once under cacheKey (typically the
// manifest's wasm checksum string) and caches the result for cheap
// per-call instantiation via NewRunner.
func (h *Host) CompileExtension(ctx context.Context, cacheKey string, wasm []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.compiled[cacheKey]; ok {
		return nil
	}
	compiled, err := h.runtime.CompileModule(ctx, wasm)
	if err != nil {
		return quelleerr.Wrap(quelleerr.ExtensionABIViolation, "compile_extension", err)
	}
	h.compiled[cacheKey] = compiled
	return nil
}

// Close releases every resource the Host's wazero runtime holds.
func (h *Host) Close(ctx context.Context) error {
	return h.runtime.Close(ctx)
}

// NewRunner instantiates a fresh module instance from the extension cached
// under cacheKey. The Runner MUST be used for exactly one logical scrape
// operation: the Host never shares mutable guest state across concurrent
// calls, so callers must construct a new Runner per operation rather than
// reuse one across fetch_novel_info/fetch_chapter/simple_search calls that
// could run concurrently.
func (h *Host) NewRunner(ctx context.Context, cacheKey string) (*Runner, error) {
	h.mu.Lock()
	compiled, ok := h.compiled[cacheKey]
	h.mu.Unlock()
	if !ok {
		return nil, quelleerr.New(quelleerr.ExtensionNotFound, "new_runner").WithPath(cacheKey)
	}

	// Each call gets its own instance name: wazero refuses to instantiate
	// the same compiled module under a name already in use, and concurrent
	// scrape operations must never share mutable guest state.
	name := "extension-" + strconv.FormatUint(h.instanceSeq.Add(1), 10)
	cfg := wazero.NewModuleConfig().WithName(name)
	mod, err := h.runtime.InstantiateModule(ctx, compiled, cfg)
	if err != nil {
		return nil, quelleerr.Wrap(quelleerr.ExtensionTrapped, "instantiate_extension", err)
	}
	return &Runner{mod: mod}, nil
}
