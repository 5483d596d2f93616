// Package ort implements the inference.Engine interface on the ONNX
// Runtime C API. One Runtime is created per process; each model file is
// loaded into a Model whose Run converts between inference.Tensor values
// and OrtValues. ONNX Runtime is dynamically linked via cgo.
package ort

/*
#cgo LDFLAGS: -lonnxruntime
#include <onnxruntime_c_api.h>
#include <stdlib.h>
#include <string.h>

static const OrtApi* ort_api() {
    return OrtGetApiBase()->GetApi(ORT_API_VERSION);
}

static OrtStatus* ort_create_env(const OrtApi* api, const char* name, OrtEnv** out) {
    return api->CreateEnv(ORT_LOGGING_LEVEL_WARNING, name, out);
}

static OrtStatus* ort_create_session_options(const OrtApi* api, OrtSessionOptions** out) {
    return api->CreateSessionOptions(out);
}

static OrtStatus* ort_create_session_from_memory(const OrtApi* api, OrtEnv* env,
    const void* model_data, size_t model_data_len, OrtSessionOptions* opts, OrtSession** out) {
    return api->CreateSessionFromArray(env, model_data, model_data_len, opts, out);
}

static OrtStatus* ort_create_cpu_memory_info(const OrtApi* api, OrtMemoryInfo** out) {
    return api->CreateCpuMemoryInfo(OrtArenaAllocator, OrtMemTypeDefault, out);
}

static OrtStatus* ort_create_tensor_float(const OrtApi* api, OrtMemoryInfo* info,
    float* data, size_t data_len, int64_t* shape, size_t shape_len, OrtValue** out) {
    return api->CreateTensorWithDataAsOrtValue(info, data, data_len * sizeof(float),
        shape, shape_len, ONNX_TENSOR_ELEMENT_DATA_TYPE_FLOAT, out);
}

static OrtStatus* ort_create_tensor_int64(const OrtApi* api, OrtMemoryInfo* info,
    int64_t* data, size_t data_len, int64_t* shape, size_t shape_len, OrtValue** out) {
    return api->CreateTensorWithDataAsOrtValue(info, data, data_len * sizeof(int64_t),
        shape, shape_len, ONNX_TENSOR_ELEMENT_DATA_TYPE_INT64, out);
}

static OrtStatus* ort_run(const OrtApi* api, OrtSession* session,
    const char** input_names, const OrtValue* const* inputs, size_t num_inputs,
    const char** output_names, size_t num_outputs, OrtValue** outputs) {
    return api->Run(session, NULL, input_names, inputs, num_inputs,
        output_names, num_outputs, outputs);
}

static OrtStatus* ort_get_tensor_float_data(const OrtApi* api, OrtValue* value, float** out) {
    return api->GetTensorMutableData(value, (void**)out);
}

static OrtStatus* ort_get_tensor_shape(const OrtApi* api, OrtValue* value,
    int64_t* shape, size_t shape_len) {
    OrtTensorTypeAndShapeInfo* info;
    OrtStatus* status = api->GetTensorTypeAndShape(value, &info);
    if (status) return status;
    status = api->GetDimensions(info, shape, shape_len);
    api->ReleaseTensorTypeAndShapeInfo(info);
    return status;
}

static OrtStatus* ort_get_tensor_ndim(const OrtApi* api, OrtValue* value, size_t* ndim) {
    OrtTensorTypeAndShapeInfo* info;
    OrtStatus* status = api->GetTensorTypeAndShape(value, &info);
    if (status) return status;
    status = api->GetDimensionsCount(info, ndim);
    api->ReleaseTensorTypeAndShapeInfo(info);
    return status;
}

static const char* ort_error_message(const OrtApi* api, OrtStatus* status) {
    return api->GetErrorMessage(status);
}

static void ort_release_status(const OrtApi* api, OrtStatus* status) { api->ReleaseStatus(status); }
static void ort_release_env(const OrtApi* api, OrtEnv* env) { api->ReleaseEnv(env); }
static void ort_release_session(const OrtApi* api, OrtSession* s) { api->ReleaseSession(s); }
static void ort_release_session_options(const OrtApi* api, OrtSessionOptions* o) { api->ReleaseSessionOptions(o); }
static void ort_release_memory_info(const OrtApi* api, OrtMemoryInfo* i) { api->ReleaseMemoryInfo(i); }
static void ort_release_value(const OrtApi* api, OrtValue* v) { api->ReleaseValue(v); }
*/
import "C"

import (
	"fmt"
	"os"
	"runtime"
	"unsafe"

	"github.com/skypro1111/micasr/internal/inference"
)

func api() *C.OrtApi {
	return C.ort_api()
}

func checkStatus(status *C.OrtStatus) error {
	if status == nil {
		return nil
	}
	msg := C.GoString(C.ort_error_message(api(), status))
	C.ort_release_status(api(), status)
	return fmt.Errorf("onnxruntime: %s", msg)
}

// Runtime is the process-wide ONNX Runtime environment.
type Runtime struct {
	env *C.OrtEnv
}

// NewRuntime creates the runtime environment. Create one per process.
func NewRuntime(name string) (*Runtime, error) {
	cName := C.CString(name)
	defer C.free(unsafe.Pointer(cName))

	var env *C.OrtEnv
	if err := checkStatus(C.ort_create_env(api(), cName, &env)); err != nil {
		return nil, err
	}

	r := &Runtime{env: env}
	runtime.SetFinalizer(r, (*Runtime).Close)
	return r, nil
}

// Close releases the environment. Models must be closed first.
func (r *Runtime) Close() error {
	if r.env != nil {
		C.ort_release_env(api(), r.env)
		r.env = nil
		runtime.SetFinalizer(r, nil)
	}
	return nil
}

// Model is a loaded ONNX model. It implements inference.Engine. Run is safe
// for concurrent use; ONNX Runtime locks internally.
type Model struct {
	session *C.OrtSession
	pinned  []byte // model bytes must outlive the session
}

// LoadModel reads an ONNX model file into a session.
func (r *Runtime) LoadModel(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model file %s: %w", path, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("model file %s is empty", path)
	}

	var opts *C.OrtSessionOptions
	if err := checkStatus(C.ort_create_session_options(api(), &opts)); err != nil {
		return nil, err
	}
	defer C.ort_release_session_options(api(), opts)

	var session *C.OrtSession
	if err := checkStatus(C.ort_create_session_from_memory(
		api(), r.env,
		unsafe.Pointer(&data[0]), C.size_t(len(data)),
		opts, &session,
	)); err != nil {
		return nil, fmt.Errorf("failed to load model %s: %w", path, err)
	}

	m := &Model{session: session, pinned: data}
	runtime.SetFinalizer(m, (*Model).Close)
	return m, nil
}

// Close releases the session.
func (m *Model) Close() error {
	if m.session != nil {
		C.ort_release_session(api(), m.session)
		m.session = nil
		runtime.SetFinalizer(m, nil)
	}
	return nil
}

// Run executes one inference call. Input tensors carry either float32 or
// int64 data; outputs are copied out as float32, which covers the acoustic
// and VAD model contracts. All OrtValues are released before returning.
func (m *Model) Run(inputs []inference.Tensor, outputNames []string) ([]inference.Tensor, error) {
	if m.session == nil {
		return nil, fmt.Errorf("model session is closed")
	}
	if len(inputs) == 0 {
		return nil, fmt.Errorf("no input tensors")
	}
	if len(outputNames) == 0 {
		return nil, fmt.Errorf("no output names")
	}

	var memInfo *C.OrtMemoryInfo
	if err := checkStatus(C.ort_create_cpu_memory_info(api(), &memInfo)); err != nil {
		return nil, err
	}
	defer C.ort_release_memory_info(api(), memInfo)

	cInputNames := make([]*C.char, len(inputs))
	cInputs := make([]*C.OrtValue, len(inputs))
	defer func() {
		for _, name := range cInputNames {
			if name != nil {
				C.free(unsafe.Pointer(name))
			}
		}
		for _, val := range cInputs {
			if val != nil {
				C.ort_release_value(api(), val)
			}
		}
	}()

	for i := range inputs {
		t := &inputs[i]
		if err := t.Validate(); err != nil {
			return nil, err
		}
		cInputNames[i] = C.CString(t.Name)

		val, err := createValue(memInfo, t)
		if err != nil {
			return nil, fmt.Errorf("input %q: %w", t.Name, err)
		}
		cInputs[i] = val
	}

	cOutputNames := make([]*C.char, len(outputNames))
	for i, name := range outputNames {
		cOutputNames[i] = C.CString(name)
		defer C.free(unsafe.Pointer(cOutputNames[i]))
	}

	cOutputs := make([]*C.OrtValue, len(outputNames))
	status := C.ort_run(api(), m.session,
		&cInputNames[0], &cInputs[0], C.size_t(len(inputs)),
		&cOutputNames[0], C.size_t(len(outputNames)), &cOutputs[0],
	)
	if err := checkStatus(status); err != nil {
		return nil, err
	}
	defer func() {
		for _, val := range cOutputs {
			if val != nil {
				C.ort_release_value(api(), val)
			}
		}
	}()

	outputs := make([]inference.Tensor, len(outputNames))
	for i, val := range cOutputs {
		out, err := copyValue(val)
		if err != nil {
			return nil, fmt.Errorf("output %q: %w", outputNames[i], err)
		}
		out.Name = outputNames[i]
		outputs[i] = out
	}
	return outputs, nil
}

// createValue builds an OrtValue referencing the tensor's Go-owned data.
// The data stays reachable for the duration of Run, which is the lifetime
// of the value.
func createValue(memInfo *C.OrtMemoryInfo, t *inference.Tensor) (*C.OrtValue, error) {
	if len(t.Shape) == 0 {
		return nil, fmt.Errorf("tensor has no shape")
	}

	var value *C.OrtValue

	switch {
	case len(t.Floats) > 0:
		if err := checkStatus(C.ort_create_tensor_float(
			api(), memInfo,
			(*C.float)(unsafe.Pointer(&t.Floats[0])),
			C.size_t(len(t.Floats)),
			(*C.int64_t)(unsafe.Pointer(&t.Shape[0])),
			C.size_t(len(t.Shape)),
			&value,
		)); err != nil {
			return nil, err
		}
	case len(t.Ints) > 0:
		if err := checkStatus(C.ort_create_tensor_int64(
			api(), memInfo,
			(*C.int64_t)(unsafe.Pointer(&t.Ints[0])),
			C.size_t(len(t.Ints)),
			(*C.int64_t)(unsafe.Pointer(&t.Shape[0])),
			C.size_t(len(t.Shape)),
			&value,
		)); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("tensor has no data")
	}

	return value, nil
}

// copyValue copies an output OrtValue into a Go-owned tensor.
func copyValue(val *C.OrtValue) (inference.Tensor, error) {
	var ndim C.size_t
	if err := checkStatus(C.ort_get_tensor_ndim(api(), val, &ndim)); err != nil {
		return inference.Tensor{}, err
	}

	shape := make([]int64, int(ndim))
	if ndim > 0 {
		if err := checkStatus(C.ort_get_tensor_shape(
			api(), val, (*C.int64_t)(unsafe.Pointer(&shape[0])), ndim,
		)); err != nil {
			return inference.Tensor{}, err
		}
	}

	total := 1
	for _, d := range shape {
		total *= int(d)
	}

	out := inference.Tensor{Shape: shape}
	if total <= 0 {
		return out, nil
	}

	var ptr *C.float
	if err := checkStatus(C.ort_get_tensor_float_data(api(), val, &ptr)); err != nil {
		return inference.Tensor{}, err
	}

	out.Floats = make([]float32, total)
	C.memcpy(unsafe.Pointer(&out.Floats[0]), unsafe.Pointer(ptr), C.size_t(total*4))
	return out, nil
}
